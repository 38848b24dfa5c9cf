package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/tally-server/internal/api/testutils"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func createLedger(t *testing.T, testCtx *testutils.TestContext, token, name string) models.Ledger {
	w := testCtx.RPC("ledger.create", models.CreateLedgerRequest{
		Name:      name,
		StartDate: testutils.Day(2024, 1, 1),
		EndDate:   testutils.Day(2024, 1, 10),
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ledger models.Ledger
	testutils.DecodeResult(t, w, &ledger)
	return ledger
}

func createTemplate(t *testing.T, testCtx *testutils.TestContext, token, ledgerID, title, value string) models.Template {
	w := testCtx.RPC("template.create", models.CreateTemplateRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledgerID},
		Title:     title,
		Value:     decimal.RequireFromString(value),
		Unit:      "cup",
		Group:     "drinks",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var template models.Template
	testutils.DecodeResult(t, w, &template)
	return template
}

func createEntry(t *testing.T, testCtx *testutils.TestContext, token, ledgerID, templateID, multiplier string) models.Entry {
	m := decimal.RequireFromString(multiplier)
	w := testCtx.RPC("entry.create", models.CreateEntryRequest{
		LedgerRef:  models.LedgerRef{LedgerID: ledgerID},
		TemplateID: templateID,
		Multiplier: &m,
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entry models.Entry
	testutils.DecodeResult(t, w, &entry)
	return entry
}

func share(t *testing.T, testCtx *testutils.TestContext, token, ledgerID, email string, level *capability.Level) {
	w := testCtx.RPC("ledger.share", models.ShareLedgerRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledgerID},
		Email:     email,
		Level:     level,
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func levelPtr(l capability.Level) *capability.Level {
	return &l
}

func dec(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}
