package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payvault.org/internal/audit"
	"payvault.org/internal/payroll"
)

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type addEmployeeRequest struct {
	Address         string `json:"address"`
	Salary          int64  `json:"salary"`
	IntervalSeconds int64  `json:"interval_seconds"`
}

type vaultResponse struct {
	Balance int64 `json:"balance"`
}

type dueResponse struct {
	Due  bool      `json:"due"`
	AsOf time.Time `json:"as_of"`
}

type rosterResponse struct {
	Length int `json:"length"`
}

type rosterEntryResponse struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

func (a *API) handleDeposits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	balance, err := a.payroll.Deposit(r.Context(), req.Amount)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}

	a.auditEvent(r, "payroll.deposit", map[string]any{
		"amount":  req.Amount,
		"balance": balance,
	})
	writeJSON(w, http.StatusOK, vaultResponse{Balance: balance})
}

func (a *API) handleEmployeesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req addEmployeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	address := strings.TrimSpace(req.Address)
	if len(address) > 64 {
		writeError(w, r, http.StatusBadRequest, codeInvalidAddress, "address must be <=64 characters")
		return
	}

	emp, err := a.payroll.AddEmployee(r.Context(), address, req.Salary, req.IntervalSeconds)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}

	a.auditEvent(r, "payroll.employee.add", map[string]any{
		"address":          emp.Address,
		"salary":           emp.Salary,
		"interval_seconds": emp.IntervalSeconds,
	})
	w.Header().Set("Location", "/v1/payroll/employees/"+emp.Address)
	writeJSON(w, http.StatusCreated, emp)
}

func (a *API) handleEmployeeResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/payroll/employees/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/settle") {
		address := strings.TrimSuffix(strings.TrimSuffix(path, "/settle"), "/")
		if address == "" || strings.Contains(address, "/") {
			writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.requireEmployer(w, r) {
			return
		}
		a.settleOne(w, r, address)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getEmployee(w, r, path)
	case http.MethodDelete:
		if !a.requireEmployer(w, r) {
			return
		}
		a.deactivateEmployee(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) getEmployee(w http.ResponseWriter, r *http.Request, address string) {
	emp, err := a.payroll.GetEmployee(r.Context(), address)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (a *API) deactivateEmployee(w http.ResponseWriter, r *http.Request, address string) {
	emp, err := a.payroll.DeactivateEmployee(r.Context(), address)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	a.auditEvent(r, "payroll.employee.deactivate", map[string]any{
		"address":      emp.Address,
		"total_earned": emp.TotalEarned,
	})
	writeJSON(w, http.StatusOK, emp)
}

func (a *API) settleOne(w http.ResponseWriter, r *http.Request, address string) {
	p, err := a.payroll.SettleOne(r.Context(), address)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	a.auditEvent(r, "payroll.settle.one", map[string]any{
		"address": p.Address,
		"amount":  p.Amount,
		"balance": p.Balance,
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleSettleAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	pass, err := a.payroll.SettleAll(r.Context())
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	a.auditEvent(r, "payroll.settle.all", map[string]any{
		"evaluated": pass.Evaluated,
		"payments":  len(pass.Payments),
		"balance":   pass.Balance,
	})
	writeJSON(w, http.StatusOK, pass)
}

func (a *API) handleDue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	due, err := a.payroll.AnyDue(r.Context())
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dueResponse{Due: due, AsOf: time.Now().UTC()})
}

func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	pass, err := a.payroll.Trigger(r.Context())
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	a.auditEvent(r, "payroll.trigger", map[string]any{
		"evaluated": pass.Evaluated,
		"payments":  len(pass.Payments),
		"balance":   pass.Balance,
	})
	writeJSON(w, http.StatusOK, pass)
}

func (a *API) handleRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	n, err := a.payroll.RosterLen(r.Context())
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterResponse{Length: n})
}

func (a *API) handleRosterIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/v1/payroll/roster/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, http.StatusNotFound, codeNotFound, "roster index not found")
		return
	}
	address, err := a.payroll.AddressAt(r.Context(), index)
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterEntryResponse{Index: index, Address: address})
}

func (a *API) handleVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	balance, err := a.payroll.Balance(r.Context())
	if err != nil {
		handlePayrollError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultResponse{Balance: balance})
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}

// --- helpers ---

const (
	codeBadRequest        = "bad_request"
	codeInvalidAddress    = "invalid_address"
	codeInvalidAmount     = "invalid_amount"
	codeAlreadyActive     = "already_active"
	codeNotActive         = "not_active"
	codeTooEarly          = "too_early"
	codeInsufficientFunds = "insufficient_funds"
	codeNothingDue        = "nothing_due"
	codeReentrantCall     = "reentrant_call"
	codeNotFound          = "not_found"
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeRateLimited       = "rate_limited"
	codeInternal          = "internal"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handlePayrollError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payroll.ErrInvalidAddress):
		writeError(w, r, http.StatusBadRequest, codeInvalidAddress, err.Error())
	case errors.Is(err, payroll.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, payroll.ErrAlreadyActive):
		writeError(w, r, http.StatusConflict, codeAlreadyActive, err.Error())
	case errors.Is(err, payroll.ErrNotActive):
		writeError(w, r, http.StatusConflict, codeNotActive, err.Error())
	case errors.Is(err, payroll.ErrTooEarly):
		writeError(w, r, http.StatusConflict, codeTooEarly, err.Error())
	case errors.Is(err, payroll.ErrInsufficientFunds):
		writeError(w, r, http.StatusConflict, codeInsufficientFunds, err.Error())
	case errors.Is(err, payroll.ErrNothingDue):
		writeError(w, r, http.StatusConflict, codeNothingDue, err.Error())
	case errors.Is(err, payroll.ErrReentrantCall):
		writeError(w, r, http.StatusConflict, codeReentrantCall, err.Error())
	case errors.Is(err, payroll.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": errorBody{
			Code:      code,
			Message:   msg,
			RequestID: RequestIDFromContext(r.Context()),
		},
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
