package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/tally-server/internal/api/testutils"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLedger(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Successful ledger creation
	ledger := createLedger(t, testCtx, testCtx.TestUserJWT, "Trip")
	assert.Len(t, ledger.ID, 36)
	assert.Equal(t, testCtx.TestUserID, ledger.CreatedBy)

	// The creator is an admin of the new ledger
	w := testCtx.RPC("ledger.list", nil, testCtx.TestUserJWT)
	require.Equal(t, http.StatusOK, w.Code)

	var ledgers []models.LedgerSummary
	testutils.DecodeResult(t, w, &ledgers)
	require.Len(t, ledgers, 1)
	assert.Equal(t, ledger.ID, ledgers[0].ID)
	assert.Equal(t, capability.LevelAdmin, ledgers[0].Level)
	require.Len(t, ledgers[0].Access, 1)
	assert.Equal(t, testCtx.TestUserID, ledgers[0].Access[0].UserID)

	// Test case 2: Invalid request (end before start)
	w = testCtx.RPC("ledger.create", models.CreateLedgerRequest{
		Name:      "Backwards",
		StartDate: testutils.Day(2024, 2, 1),
		EndDate:   testutils.Day(2024, 1, 1),
	}, testCtx.TestUserJWT)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 3: Invalid request (missing name)
	w = testCtx.RPC("ledger.create", models.CreateLedgerRequest{
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 2),
	}, testCtx.TestUserJWT)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Unauthorized request (no token)
	w = testCtx.RPC("ledger.create", models.CreateLedgerRequest{
		Name:      "Anonymous",
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 2),
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidationRunsBeforeAuthentication(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	w := testCtx.RPC("ledger.get", models.LedgerRef{LedgerID: "short"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", testutils.DecodeError(t, w).Code)

	w = testCtx.RPC("ledger.create", models.CreateLedgerRequest{
		Name:      "Backwards",
		StartDate: testutils.Day(2024, 2, 1),
		EndDate:   testutils.Day(2024, 1, 1),
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndUpdateLedger(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	ledger := createLedger(t, testCtx, testCtx.TestUserJWT, "Trip")

	w := testCtx.RPC("ledger.get", models.LedgerRef{LedgerID: ledger.ID}, testCtx.TestUserJWT)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.LedgerSummary
	testutils.DecodeResult(t, w, &got)
	assert.Equal(t, "Trip", got.Name)
	assert.Equal(t, capability.LevelAdmin, got.Level)
	require.Len(t, got.Access, 1)
	assert.Equal(t, testCtx.TestUserID, got.Access[0].UserID)

	name := "Holiday"
	end := testutils.Day(2024, 1, 20)
	w = testCtx.RPC("ledger.update", models.UpdateLedgerRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		Name:      &name,
		EndDate:   &end,
	}, testCtx.TestUserJWT)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.Ledger
	testutils.DecodeResult(t, w, &updated)
	assert.Equal(t, "Holiday", updated.Name)
	assert.True(t, updated.EndDate.Equal(end))
	assert.True(t, updated.StartDate.Equal(ledger.StartDate))

	// The resulting range must stay ordered
	early := testutils.Day(2023, 12, 1)
	w = testCtx.RPC("ledger.update", models.UpdateLedgerRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledger.ID},
		EndDate:   &early,
	}, testCtx.TestUserJWT)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownLedgerIsForbidden(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// No access row exists for a ledger that does not exist either
	w := testCtx.RPC("ledger.get", models.LedgerRef{LedgerID: "00000000-0000-0000-0000-000000000000"}, testCtx.TestUserJWT)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteLedger(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// First create a ledger to delete
	ledger := createLedger(t, testCtx, testCtx.TestUserJWT, "Ledger to Delete")

	// Test case 1: Successful deletion
	w := testCtx.RPC("ledger.delete", models.LedgerRef{LedgerID: ledger.ID}, testCtx.TestUserJWT)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.DeleteLedgerResponse
	testutils.DecodeResult(t, w, &resp)
	assert.Equal(t, ledger.ID, resp.LedgerID)
	assert.True(t, resp.PurgedChanges)

	// Test case 2: The access rows went with it
	w = testCtx.RPC("ledger.get", models.LedgerRef{LedgerID: ledger.ID}, testCtx.TestUserJWT)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testCtx.RPC("ledger.list", nil, testCtx.TestUserJWT)
	var ledgers []models.LedgerSummary
	testutils.DecodeResult(t, w, &ledgers)
	assert.Empty(t, ledgers)

	// Test case 3: Unauthorized request (no token)
	w = testCtx.RPC("ledger.delete", models.LedgerRef{LedgerID: ledger.ID}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
