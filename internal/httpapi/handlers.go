package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"payvault.org/api/spec"
	"payvault.org/internal/auth"
	"payvault.org/internal/obs"
	"payvault.org/internal/payroll"
	"payvault.org/internal/stream"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP слой поверх payroll.Service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	payroll    payroll.Service
	stream     *stream.Stream

	ratePerSec float64
	rateBurst  int
}

func New(rp ReadyProbe, version string, svc payroll.Service, st *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		payroll:    svc,
		stream:     st,
		ratePerSec: 50,
		rateBurst:  100,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// dev token mint
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// payroll surface; deposits, registration and forced settlement are
	// employer-only, probe/trigger and reads stay open
	employer := RequireRole(auth.RoleEmployer)
	a.mux.Handle("/v1/payroll/deposits", employer(http.HandlerFunc(a.handleDeposits)))
	a.mux.Handle("/v1/payroll/employees", employer(http.HandlerFunc(a.handleEmployeesCollection)))
	a.mux.HandleFunc("/v1/payroll/employees/", a.handleEmployeeResource)
	a.mux.Handle("/v1/payroll/settle", employer(http.HandlerFunc(a.handleSettleAll)))
	a.mux.HandleFunc("/v1/payroll/due", a.handleDue)
	a.mux.HandleFunc("/v1/payroll/trigger", a.handleTrigger)
	a.mux.HandleFunc("/v1/payroll/roster", a.handleRoster)
	a.mux.HandleFunc("/v1/payroll/roster/", a.handleRosterIndex)
	a.mux.HandleFunc("/v1/payroll/vault", a.handleVault)
	a.mux.HandleFunc("/v1/payroll/stream", a.Stream)

	// корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetRateLimit overrides the default per-IP limiter settings. Call before
// Handler.
func (a *API) SetRateLimit(perSecond float64, burst int) {
	if perSecond > 0 {
		a.ratePerSec = perSecond
	}
	if burst > 0 {
		a.rateBurst = burst
	}
}

// Handler собирает цепочку middleware вокруг mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = obs.Instrument(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "payvault-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "payvault-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
