package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/tally-server/internal/api"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/config"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
	"github.com/rongwang/tally-server/internal/repository"
	"github.com/rongwang/tally-server/internal/service"
	"github.com/rongwang/tally-server/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "testpassword"

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  repository.Repository
	Service     service.Service
	Tokens      *auth.Tokens
	DB          *sqlx.DB
	TestUserID  string
	TestUserJWT string
}

// SetupTestContext creates a new test context with initialized dependencies.
// It runs on the in-memory repository unless TALLY_TEST_POSTGRES=1.
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Use a test JWT secret
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	var (
		repo repository.Repository
		db   *sqlx.DB
	)
	if os.Getenv("TALLY_TEST_POSTGRES") == "1" {
		cfg.Database.DBName = cfg.Database.TestDBName

		var err error
		db, err = config.SetupDatabase(cfg)
		require.NoError(t, err, "Failed to set up test database")
		repo = repository.NewPostgresRepository(db)
		cleanupTestDatabase(t, repo)
	} else {
		repo = repository.NewMemoryRepository()
	}

	logger := utils.DiscardLogger()
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.NewDefaultService(repo, tokens, nil, logger)
	handler := api.NewHandler(svc, tokens, procedure.NewBuilder(repo, logger), logger)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.SetupRoutes(router)

	testCtx := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Tokens:     tokens,
		DB:         db,
	}
	testCtx.TestUserID, testCtx.TestUserJWT = testCtx.CreateUser(t, "testuser@example.com")

	return testCtx
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	// Clean up database
	if t.DB != nil {
		cleanupTestDatabase(nil, t.Repository)
		t.DB.Close()
	}
}

// cleanupTestDatabase removes any existing test users and data
func cleanupTestDatabase(t *testing.T, repo repository.Repository) {
	pgRepo, ok := repo.(*repository.PostgresRepository)
	if !ok {
		return
	}
	db := pgRepo.GetDB()

	// Children first; ledger_changes has no foreign keys
	for _, table := range []string{"ledger_changes", "entries", "templates", "ledger_sequences", "ledger_access", "ledgers", "users"} {
		_, err := db.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

// CreateUser stores a password user and returns its id and a session token
func (tc *TestContext) CreateUser(t *testing.T, email string) (string, string) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:    email,
		Name:     email,
		Password: string(hashedPassword),
	}
	require.NoError(t, tc.Repository.CreateUser(context.Background(), user), "Failed to create test user")

	token, _, err := tc.Tokens.Issue(user)
	require.NoError(t, err, "Failed to generate JWT token")

	return user.ID, token
}

// RPC posts body to the named procedure as the holder of token
func (tc *TestContext) RPC(name string, body interface{}, token string) *httptest.ResponseRecorder {
	var headers map[string]string
	if token != "" {
		headers = AuthHeaders(token)
	}
	return PerformRequest(tc.Router, http.MethodPost, "/rpc/"+name, body, headers)
}

// DecodeResult unmarshals the result of a success envelope into out
func DecodeResult(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	var envelope struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "body: %s", w.Body.String())
	require.Equal(t, "success", envelope.Status, "body: %s", w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Result, out))
}

// DecodeError unmarshals an error envelope
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

// Day returns midnight UTC of the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}
