package syncclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/tally-server/internal/api/testutils"
	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/syncclient"
	"github.com/rongwang/tally-server/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	testCtx *testutils.TestContext
	http    *httptest.Server
	client  *syncclient.Client
}

func newServer(t *testing.T) *server {
	testCtx := testutils.SetupTestContext(t)
	t.Cleanup(func() { testutils.CleanupTestContext(testCtx) })

	srv := httptest.NewServer(testCtx.Router)
	t.Cleanup(srv.Close)

	return &server{
		testCtx: testCtx,
		http:    srv,
		client:  syncclient.NewClient(srv.URL, testCtx.TestUserJWT, syncclient.WithRetry(3, 0)),
	}
}

func call[Out any](t *testing.T, c *syncclient.Client, procedure string, in interface{}) Out {
	var out Out
	require.NoError(t, c.Call(context.Background(), procedure, in, &out))
	return out
}

func TestSyncerConverges(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	ledger := call[models.Ledger](t, s.client, "ledger.create", models.CreateLedgerRequest{
		Name:      "Trip",
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 10),
	})
	coffee := call[models.Template](t, s.client, "template.create", models.CreateTemplateRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Title:     "Coffee",
		Value:     decimal.NewFromInt(3),
	})
	call[models.Entry](t, s.client, "entry.create", models.CreateEntryRequest{
		LedgerRef:  models.LedgerRef{LedgerID: ledger.ID},
		TemplateID: coffee.ID,
		Multiplier: dec(2),
	})

	syncer := syncclient.NewSyncer(s.client, ledger.ID, utils.DiscardLogger())
	require.NoError(t, syncer.Bootstrap(ctx))
	assert.Len(t, syncer.Cache().Templates(), 1)
	assert.Len(t, syncer.Cache().Entries(), 1)

	// Nothing new since the bootstrap cursor
	n, err := syncer.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	tea := call[models.Template](t, s.client, "template.create", models.CreateTemplateRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Title:     "Tea",
		Value:     decimal.NewFromInt(1),
	})
	teaEntry := call[models.Entry](t, s.client, "entry.create", models.CreateEntryRequest{
		LedgerRef:  models.LedgerRef{LedgerID: ledger.ID},
		TemplateID: tea.ID,
		Multiplier: dec(5),
	})
	call[models.DeleteResponse](t, s.client, "template.delete", models.EntityRef{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		ID:        coffee.ID,
	})
	title := "Green tea"
	call[models.Entry](t, s.client, "entry.update", models.UpdateEntryRequest{
		EntityRef: models.EntityRef{LedgerRef: models.LedgerRef{LedgerID: ledger.ID}, ID: teaEntry.ID},
		Title:     &title,
	})

	n, err = syncer.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	serverTemplates, err := s.client.Templates(ctx, ledger.ID)
	require.NoError(t, err)
	serverEntries, err := s.client.Entries(ctx, ledger.ID)
	require.NoError(t, err)

	assert.Equal(t, ids(serverTemplates), ids(syncer.Cache().Templates()))
	assert.Equal(t, entryIDs(serverEntries), entryIDs(syncer.Cache().Entries()))

	for _, e := range syncer.Cache().Entries() {
		if e.ID == teaEntry.ID {
			assert.Equal(t, "Green tea", e.Title)
		}
	}
}

func TestSyncerKeepsEntriesOfDeletedTemplate(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	ledger := call[models.Ledger](t, s.client, "ledger.create", models.CreateLedgerRequest{
		Name:      "Trip",
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 10),
	})
	coffee := call[models.Template](t, s.client, "template.create", models.CreateTemplateRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Title:     "Coffee",
		Value:     decimal.NewFromInt(3),
	})
	entry := call[models.Entry](t, s.client, "entry.create", models.CreateEntryRequest{
		LedgerRef:  models.LedgerRef{LedgerID: ledger.ID},
		TemplateID: coffee.ID,
		Multiplier: dec(2),
	})

	syncer := syncclient.NewSyncer(s.client, ledger.ID, utils.DiscardLogger())
	require.NoError(t, syncer.Bootstrap(ctx))

	call[models.DeleteResponse](t, s.client, "template.delete", models.EntityRef{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		ID:        coffee.ID,
	})

	n, err := syncer.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	serverEntries, err := s.client.Entries(ctx, ledger.ID)
	require.NoError(t, err)
	require.Len(t, serverEntries, 1)
	cached := syncer.Cache().Entries()
	require.Len(t, cached, 1)

	// The cache only learns of the template delete, so the entry must be
	// unchanged on the server too
	assert.Equal(t, serverEntries[0], cached[0])
	require.NotNil(t, cached[0].TemplateID)
	assert.Equal(t, coffee.ID, *cached[0].TemplateID)
	assert.True(t, entry.Value.Equal(cached[0].Value))
	assert.Empty(t, syncer.Cache().Templates())
}

func ids(templates []models.Template) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, t.ID)
	}
	return out
}

func entryIDs(entries []models.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

// statusServer answers every call with code and counts the attempts
func statusServer(t *testing.T, code apperr.Code, succeedAfter int32) (*httptest.Server, *atomic.Int32) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	attempts := &atomic.Int32{}
	router.POST("/rpc/:procedure", func(c *gin.Context) {
		n := attempts.Add(1)
		if succeedAfter > 0 && n > succeedAfter {
			c.JSON(http.StatusOK, models.Response{Status: "success", Result: []models.Template{}})
			return
		}
		c.JSON(code.HTTPStatus(), models.ErrorResponse{Status: "error", Code: string(code), Message: "nope"})
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, attempts
}

func TestRetryableCodesAreRetried(t *testing.T) {
	for _, code := range []apperr.Code{
		apperr.CodeClientClosedRequest,
		apperr.CodeConflict,
		apperr.CodeInternal,
		apperr.CodeTimeout,
		apperr.CodeTooManyRequests,
	} {
		t.Run(string(code), func(t *testing.T) {
			srv, attempts := statusServer(t, code, 0)
			client := syncclient.NewClient(srv.URL, "token", syncclient.WithRetry(3, time.Millisecond))

			_, err := client.Templates(context.Background(), "ledger")
			require.Error(t, err)
			assert.Equal(t, code, apperr.CodeOf(err))
			assert.Equal(t, int32(3), attempts.Load())
		})
	}
}

func TestTerminalCodesAreNotRetried(t *testing.T) {
	for _, code := range []apperr.Code{
		apperr.CodeUnauthenticated,
		apperr.CodeForbidden,
		apperr.CodeNotFound,
		apperr.CodeBadRequest,
	} {
		t.Run(string(code), func(t *testing.T) {
			srv, attempts := statusServer(t, code, 0)
			client := syncclient.NewClient(srv.URL, "token", syncclient.WithRetry(3, time.Millisecond))

			_, err := client.Templates(context.Background(), "ledger")
			assert.Equal(t, code, apperr.CodeOf(err))
			assert.Equal(t, int32(1), attempts.Load())
		})
	}
}

func TestRetrySucceedsWithinLimit(t *testing.T) {
	srv, attempts := statusServer(t, apperr.CodeInternal, 2)
	client := syncclient.NewClient(srv.URL, "token", syncclient.WithRetry(3, time.Millisecond))

	templates, err := client.Templates(context.Background(), "ledger")
	require.NoError(t, err)
	assert.Empty(t, templates)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRunStopsOnLostAccess(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := call[models.Ledger](t, s.client, "ledger.create", models.CreateLedgerRequest{
		Name:      "Trip",
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 10),
	})

	// Bob's access is revoked while he polls
	_, bobToken := s.testCtx.CreateUser(t, "bob@example.com")
	read := capability.LevelRead
	call[models.ShareLedgerResponse](t, s.client, "ledger.share", models.ShareLedgerRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Email:     "bob@example.com",
		Level:     &read,
	})
	bob := syncclient.NewClient(s.http.URL, bobToken, syncclient.WithRetry(3, 0))
	syncer := syncclient.NewSyncer(bob, ledger.ID, utils.DiscardLogger())
	require.NoError(t, syncer.Bootstrap(ctx))

	call[models.ShareLedgerResponse](t, s.client, "ledger.share", models.ShareLedgerRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Email:     "bob@example.com",
	})

	err := syncer.Run(ctx, 10*time.Millisecond)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestRunStopsWithContext(t *testing.T) {
	s := newServer(t)
	ledger := call[models.Ledger](t, s.client, "ledger.create", models.CreateLedgerRequest{
		Name:      "Trip",
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 10),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	syncer := syncclient.NewSyncer(s.client, ledger.ID, utils.DiscardLogger())
	err := syncer.Run(ctx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func dec(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}
