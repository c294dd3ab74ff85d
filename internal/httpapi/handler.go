// Package httpapi exposes the vault operation surface over REST. Every
// route except health and metrics requires an authenticated principal; the
// vault core decides whether that principal may perform the operation.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/app"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/middleware"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// handler bundles the HTTP endpoints over the application.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns a router exposing the vault REST API. Middleware is
// attached by the caller so tests can exercise handlers directly.
func NewHandler(application *app.Application, log *logger.Logger) *mux.Router {
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	v := r.PathPrefix("/vault").Subrouter()
	v.HandleFunc("/deposit", h.deposit).Methods(http.MethodPost)
	v.HandleFunc("/withdraw", h.withdraw).Methods(http.MethodPost)
	v.HandleFunc("/yield", h.yield).Methods(http.MethodGet)
	v.HandleFunc("/yield/claim", h.claimYield).Methods(http.MethodPost)
	v.HandleFunc("/withdrawals", h.withdrawalRequest).Methods(http.MethodGet)
	v.HandleFunc("/withdrawals/request", h.requestWithdrawal).Methods(http.MethodPost)
	v.HandleFunc("/withdrawals/execute", h.executeWithdrawal).Methods(http.MethodPost)
	v.HandleFunc("/withdrawals/emergency", h.emergencyWithdraw).Methods(http.MethodPost)
	v.HandleFunc("/balance", h.ownBalance).Methods(http.MethodGet)
	v.HandleFunc("/balances/{principal}", h.balanceOf).Methods(http.MethodGet)
	v.HandleFunc("/total", h.total).Methods(http.MethodGet)
	v.HandleFunc("/version", h.version).Methods(http.MethodGet)
	v.HandleFunc("/journal", h.journal).Methods(http.MethodGet)

	a := r.PathPrefix("/admin").Subrouter()
	a.HandleFunc("/initialize", h.initialize).Methods(http.MethodPost)
	a.HandleFunc("/initialize/gen2", h.initializeGen2).Methods(http.MethodPost)
	a.HandleFunc("/initialize/gen3", h.initializeGen3).Methods(http.MethodPost)
	a.HandleFunc("/upgrade", h.upgrade).Methods(http.MethodPost)
	a.HandleFunc("/roles/grant", h.grantRole).Methods(http.MethodPost)
	a.HandleFunc("/roles/revoke", h.revokeRole).Methods(http.MethodPost)
	a.HandleFunc("/fee", h.setDepositFee).Methods(http.MethodPost)
	a.HandleFunc("/yield-rate", h.setYieldRate).Methods(http.MethodPost)
	a.HandleFunc("/pause", h.pause).Methods(http.MethodPost)
	a.HandleFunc("/unpause", h.unpause).Methods(http.MethodPost)
	a.HandleFunc("/withdrawal-delay", h.setWithdrawalDelay).Methods(http.MethodPost)
	a.HandleFunc("/params", h.params).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.Deposit(r.Context(), caller, payload.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal": caller,
		"balance":   h.app.BalanceOf(r.Context(), caller),
	})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.Withdraw(r.Context(), caller, payload.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal": caller,
		"balance":   h.app.BalanceOf(r.Context(), caller),
	})
}

func (h *handler) yield(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	accrued, err := h.app.Vault().UserYield(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principal": caller, "accrued": accrued})
}

func (h *handler) claimYield(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	paid, err := h.app.ClaimYield(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principal": caller, "paid": paid})
}

func (h *handler) withdrawalRequest(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	req, err := h.app.Vault().WithdrawalRequest(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal":    caller,
		"amount":       req.Amount,
		"request_time": req.RequestTime,
	})
}

func (h *handler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.RequestWithdrawal(r.Context(), caller, payload.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"principal": caller, "amount": payload.Amount})
}

func (h *handler) executeWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	paid, err := h.app.ExecuteWithdrawal(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principal": caller, "paid": paid})
}

func (h *handler) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	paid, err := h.app.EmergencyWithdraw(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principal": caller, "paid": paid})
}

func (h *handler) ownBalance(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal": caller,
		"balance":   h.app.BalanceOf(r.Context(), caller),
	})
}

func (h *handler) balanceOf(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal": principal,
		"balance":   h.app.BalanceOf(r.Context(), principal),
	})
}

func (h *handler) total(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_deposits": h.app.TotalDeposits(r.Context()),
	})
}

func (h *handler) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    h.app.Vault().Version(),
		"generation": h.app.Vault().Generation(),
	})
}

func (h *handler) journal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Journal(r.Context(), r.URL.Query().Get("principal"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Admin     string `json:"admin"`
		LedgerRef string `json:"ledger_ref"`
		FeeBps    uint64 `json:"fee_bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	if err := h.app.Initialize(r.Context(), payload.Admin, payload.LedgerRef, payload.FeeBps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"generation": h.app.Vault().Generation()})
}

func (h *handler) initializeGen2(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Pauser string `json:"pauser"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	if err := h.app.InitializeGen2(r.Context(), payload.Pauser); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"generation": h.app.Vault().Generation()})
}

func (h *handler) initializeGen3(w http.ResponseWriter, r *http.Request) {
	if err := h.app.InitializeGen3(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"generation": h.app.Vault().Generation()})
}

func (h *handler) upgrade(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Generation uint64 `json:"generation"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.Upgrade(r.Context(), caller, payload.Generation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    h.app.Vault().Version(),
		"generation": h.app.Vault().Generation(),
	})
}

type rolePayload struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

func parseRole(name string) (access.Role, error) {
	switch access.Role(name) {
	case access.RoleAdmin, access.RoleUpgrader, access.RolePauser:
		return access.Role(name), nil
	default:
		return "", errors.Validation("unknown role %q", name)
	}
}

func (h *handler) grantRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	role, err := parseRole(payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.GrantRole(r.Context(), caller, payload.Principal, role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"principal": payload.Principal, "role": payload.Role})
}

func (h *handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	role, err := parseRole(payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.RevokeRole(r.Context(), caller, payload.Principal, role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setDepositFee(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bps uint64 `json:"bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.SetDepositFee(r.Context(), caller, payload.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"fee_bps": payload.Bps})
}

func (h *handler) setYieldRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bps uint64 `json:"bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.SetYieldRate(r.Context(), caller, payload.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"yield_rate_bps": payload.Bps})
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	if err := h.app.PauseDeposits(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *handler) unpause(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Principal(r.Context())
	if err := h.app.UnpauseDeposits(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (h *handler) setWithdrawalDelay(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Seconds uint64 `json:"seconds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body: %v", err))
		return
	}
	caller := middleware.Principal(r.Context())
	if err := h.app.SetWithdrawalDelay(r.Context(), caller, payload.Seconds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"withdrawal_delay_seconds": payload.Seconds})
}

// params reports the current operating parameters. Fields introduced by a
// later generation than the active one are omitted.
func (h *handler) params(w http.ResponseWriter, r *http.Request) {
	v := h.app.Vault()
	out := map[string]interface{}{
		"generation":     v.Generation(),
		"version":        v.Version(),
		"fee_bps":        v.DepositFeeBps(),
		"total_deposits": v.TotalDeposits(),
	}
	if rate, err := v.YieldRateBps(); err == nil {
		out["yield_rate_bps"] = rate
	}
	if paused, err := v.DepositsPaused(); err == nil {
		out["deposits_paused"] = paused
	}
	if delay, err := v.WithdrawalDelay(); err == nil {
		out["withdrawal_delay_seconds"] = delay
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	class := "internal"
	var e *errors.Error
	if errors.As(err, &e) {
		status = e.HTTPStatus()
		class = string(e.Class)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "class": class})
}
