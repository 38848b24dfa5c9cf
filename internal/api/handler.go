package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
	"github.com/rongwang/tally-server/internal/service"
)

// Handler serves the identity routes and the RPC surface
type Handler struct {
	svc     service.Service
	tokens  *auth.Tokens
	builder *procedure.Builder
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, tokens *auth.Tokens, builder *procedure.Builder, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		tokens:  tokens,
		builder: builder,
		logger:  logger,
	}
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(RequestLogger(h.logger))
	router.Use(SessionMiddleware(h.tokens, h.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/signup", h.SignUp)
		authRoutes.POST("/login", h.Login)
		authRoutes.GET("/session", h.Session)
	}

	rpcRoutes := router.Group("/rpc")
	for _, r := range h.procedures() {
		rpcRoutes.POST("/"+r.name, r.handler)
	}
}

type route struct {
	name    string
	handler gin.HandlerFunc
}

func register[In, Out any](p *procedure.Procedure[In, Out]) route {
	return route{name: p.Name(), handler: rpc(p)}
}

// procedures builds every RPC operation with its guard chain
func (h *Handler) procedures() []route {
	b := h.builder
	return []route{
		// Ledgers
		register(procedure.Authed(b, "ledger.list", h.svc.ListLedgers)),
		register(procedure.Authed(b, "ledger.create", h.svc.CreateLedger)),
		register(procedure.Scoped(b, "ledger.get", capability.RequireRead, h.svc.GetLedger)),
		register(procedure.Scoped(b, "ledger.update", capability.RequireManage, h.svc.UpdateLedger)),
		register(procedure.Scoped(b, "ledger.delete", capability.RequireManage, h.svc.DeleteLedger)),
		register(procedure.Scoped(b, "ledger.share", capability.RequireManage, h.svc.ShareLedger)),

		// Templates
		register(procedure.Scoped(b, "template.getForLedger", capability.RequireRead, h.svc.GetTemplates)),
		register(procedure.Scoped(b, "template.create", capability.RequireConfigure, h.svc.CreateTemplate)),
		register(procedure.Scoped(b, "template.update", capability.RequireConfigure, h.svc.UpdateTemplate)),
		register(procedure.Scoped(b, "template.delete", capability.RequireConfigure, h.svc.DeleteTemplate)),

		// Entries
		register(procedure.Scoped(b, "entry.getForLedger", capability.RequireRead, h.svc.GetEntries)),
		register(procedure.Scoped(b, "entry.create", capability.RequireRecord, h.svc.CreateEntry)),
		register(procedure.Scoped(b, "entry.update", capability.RequireRecord, h.svc.UpdateEntry)),
		register(procedure.Scoped(b, "entry.delete", capability.RequireRecord, h.svc.DeleteEntry)),

		// Change log
		register(procedure.Scoped(b, "getUpdatesSince", capability.RequireRead, h.svc.GetUpdatesSince)),
	}
}

// SignUp handles password sign up
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request: %s", err.Error()))
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "sign up failed", err)
		return
	}

	c.JSON(http.StatusCreated, models.Response{Status: "success", Result: resp})
}

// Login handles password login and sets the session cookie
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request: %s", err.Error()))
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "login failed", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, resp.Token, resp.ExpiresIn, "/", "", false, true)
	c.JSON(http.StatusOK, models.Response{Status: "success", Result: resp})
}

// Session returns the caller's resolved session
func (h *Handler) Session(c *gin.Context) {
	session := auth.FromContext(c.Request.Context())
	if session == nil {
		respondError(c, apperr.Unauthenticated("authentication required"))
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Status: "success",
		Result: models.SessionResponse{
			UserID:   session.UserID,
			Email:    session.Email,
			Name:     session.Name,
			ImageURL: session.ImageURL,
			Expires:  session.Expires,
		},
	})
}

func (h *Handler) respondServiceError(c *gin.Context, msg string, err error) {
	if apperr.CodeOf(err) == apperr.CodeInternal {
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
	}
	respondError(c, err)
}
