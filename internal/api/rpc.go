package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
)

// rpc adapts a procedure to a gin handler. The JSON body is decoded into the
// procedure's input; the pipeline does everything else.
func rpc[In, Out any](p *procedure.Procedure[In, Out]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		// An empty body is a zero input; binding tags still apply
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, apperr.BadRequest("invalid request: %s", err.Error()))
				return
			}
		} else if err := binding.Validator.ValidateStruct(&in); err != nil {
			respondError(c, apperr.BadRequest("invalid request: %s", err.Error()))
			return
		}

		session := auth.FromContext(c.Request.Context())
		out, err := p.Call(c.Request.Context(), session, in)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.Response{
			Status: "success",
			Result: out,
		})
	}
}

// respondError writes err in the error envelope. Errors outside the taxonomy
// are reported as internal.
func respondError(c *gin.Context, err error) {
	e := apperr.From(err)
	c.AbortWithStatusJSON(e.Code.HTTPStatus(), models.ErrorResponse{
		Status:  "error",
		Code:    string(e.Code),
		Message: e.Message,
	})
}
