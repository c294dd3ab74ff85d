package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vault_layer/internal/app"
	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/internal/middleware"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

const (
	adminPrincipal = "admin-1"
	userPrincipal  = "alice"
)

type testAPI struct {
	router http.Handler
	assets *ledger.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	assets := ledger.NewMemory("vault")
	application, err := app.New(context.Background(), app.Options{
		Assets:       assets,
		VaultAccount: "vault",
		Log:          logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(context.Background()) })

	api := &testAPI{
		router: NewHandler(application, logger.Nop()),
		assets: assets,
	}

	// Zero fee keeps the arithmetic in these tests plain.
	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize", map[string]interface{}{
		"admin":      adminPrincipal,
		"ledger_ref": "neo:gas",
		"fee_bps":    0,
	}, http.StatusCreated)

	return api
}

// do issues a request as the given principal and asserts the status.
func (api *testAPI) do(t *testing.T, principal, method, path string, payload interface{}, wantStatus int) map[string]interface{} {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, wantStatus, rec.Code, "%s %s: %s", method, path, rec.Body.String())

	if rec.Body.Len() == 0 {
		return nil
	}
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestDepositAndBalance(t *testing.T) {
	api := newTestAPI(t)
	api.assets.Mint(userPrincipal, 1_000)

	out := api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 600}, http.StatusOK)
	require.Equal(t, float64(600), out["balance"])

	out = api.do(t, userPrincipal, http.MethodGet, "/vault/balance", nil, http.StatusOK)
	require.Equal(t, float64(600), out["balance"])

	out = api.do(t, userPrincipal, http.MethodGet, "/vault/total", nil, http.StatusOK)
	require.Equal(t, float64(600), out["total_deposits"])
}

func TestDepositRejectionsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)

	// Non-positive amount is a validation error.
	out := api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 0}, http.StatusBadRequest)
	require.Equal(t, "validation", out["class"])

	// Unfunded ledger account makes the pull fail.
	out = api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 100}, http.StatusBadGateway)
	require.Equal(t, "external", out["class"])

	// Unknown JSON fields are rejected.
	api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amout": 100}, http.StatusBadRequest)
}

func TestWithdrawRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	api.assets.Mint(userPrincipal, 1_000)

	api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 1_000}, http.StatusOK)
	out := api.do(t, userPrincipal, http.MethodPost, "/vault/withdraw",
		map[string]interface{}{"amount": 400}, http.StatusOK)
	require.Equal(t, float64(600), out["balance"])
	require.Equal(t, int64(400), api.assets.Balance(userPrincipal))

	// Overdraft is a precondition failure.
	out = api.do(t, userPrincipal, http.MethodPost, "/vault/withdraw",
		map[string]interface{}{"amount": 601}, http.StatusConflict)
	require.Equal(t, "precondition", out["class"])
}

func TestRoleAdministration(t *testing.T) {
	api := newTestAPI(t)

	// Only the admin may grant.
	api.do(t, userPrincipal, http.MethodPost, "/admin/roles/grant",
		map[string]interface{}{"principal": "bob", "role": "pauser"}, http.StatusForbidden)

	api.do(t, adminPrincipal, http.MethodPost, "/admin/roles/grant",
		map[string]interface{}{"principal": "bob", "role": "pauser"}, http.StatusOK)
	api.do(t, adminPrincipal, http.MethodPost, "/admin/roles/revoke",
		map[string]interface{}{"principal": "bob", "role": "pauser"}, http.StatusNoContent)

	api.do(t, adminPrincipal, http.MethodPost, "/admin/roles/grant",
		map[string]interface{}{"principal": "bob", "role": "overlord"}, http.StatusBadRequest)
}

func TestUpgradeLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.assets.Mint(userPrincipal, 1_000)
	api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 1_000}, http.StatusOK)

	// A non-upgrader cannot retarget the proxy.
	api.do(t, userPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 2}, http.StatusForbidden)

	out := api.do(t, adminPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 2}, http.StatusOK)
	require.Equal(t, "v2.0.0", out["version"])

	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize/gen2",
		map[string]interface{}{"pauser": adminPrincipal}, http.StatusCreated)

	// Balance survives the transition.
	out = api.do(t, userPrincipal, http.MethodGet, "/vault/balance", nil, http.StatusOK)
	require.Equal(t, float64(1_000), out["balance"])

	api.do(t, adminPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 3}, http.StatusOK)
	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize/gen3", nil, http.StatusCreated)

	// Replaying a completed initialization stage fails.
	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize/gen2",
		map[string]interface{}{"pauser": adminPrincipal}, http.StatusConflict)

	out = api.do(t, adminPrincipal, http.MethodGet, "/admin/params", nil, http.StatusOK)
	require.Equal(t, float64(3), out["generation"])
	require.Equal(t, float64(86400), out["withdrawal_delay_seconds"])

	// Downgrade attempts are rejected by layout validation.
	api.do(t, adminPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 1}, http.StatusConflict)
}

func TestWithdrawalRequestFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.assets.Mint(userPrincipal, 1_000)
	api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 1_000}, http.StatusOK)

	api.do(t, adminPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 2}, http.StatusOK)
	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize/gen2",
		map[string]interface{}{"pauser": adminPrincipal}, http.StatusCreated)
	api.do(t, adminPrincipal, http.MethodPost, "/admin/upgrade",
		map[string]interface{}{"generation": 3}, http.StatusOK)
	api.do(t, adminPrincipal, http.MethodPost, "/admin/initialize/gen3", nil, http.StatusCreated)

	api.do(t, userPrincipal, http.MethodPost, "/vault/withdrawals/request",
		map[string]interface{}{"amount": 500}, http.StatusAccepted)

	out := api.do(t, userPrincipal, http.MethodGet, "/vault/withdrawals", nil, http.StatusOK)
	require.Equal(t, float64(500), out["amount"])

	// The delay has not elapsed.
	out = api.do(t, userPrincipal, http.MethodPost, "/vault/withdrawals/execute", nil, http.StatusConflict)
	require.Equal(t, "precondition", out["class"])

	// The emergency path bypasses the delay and drains the balance.
	out = api.do(t, userPrincipal, http.MethodPost, "/vault/withdrawals/emergency", nil, http.StatusOK)
	require.Equal(t, float64(1_000), out["paid"])
	require.Equal(t, int64(1_000), api.assets.Balance(userPrincipal))
}

func TestJournalRecordsOperations(t *testing.T) {
	api := newTestAPI(t)
	api.assets.Mint(userPrincipal, 1_000)
	api.do(t, userPrincipal, http.MethodPost, "/vault/deposit",
		map[string]interface{}{"amount": 250}, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/vault/journal?principal="+userPrincipal, nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), userPrincipal))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "deposit", entries[0]["operation"])
	require.Equal(t, float64(250), entries[0]["amount"])
}
