package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/service"
	"kasirinaja/ledger/internal/shift"
	"kasirinaja/ledger/internal/stock"
	"kasirinaja/ledger/internal/store"
)

type Options struct {
	AllowedOrigin      string
	RateLimitPerMinute int
}

type API struct {
	service *service.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
}

func New(svc *service.Service, m *metrics.Metrics, logger *zap.Logger, opts Options) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.RateLimitPerMinute < 1 {
		opts.RateLimitPerMinute = 240
	}
	return &API{service: svc, metrics: m, logger: logger.Named("http"), opts: opts}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.opts.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(a.opts.RateLimitPerMinute, time.Minute))
	r.Use(secureHeaders)

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/cashflow", a.handleCashflowReport)
			r.Get("/sales", a.handleSalesReport)
			r.Get("/profit", a.handleProfitReport)
			r.Get("/shifts", a.handleShiftSummary)
		})
		r.Route("/shifts", func(r chi.Router) {
			r.Post("/open", a.handleShiftOpen)
			r.Post("/{shiftID}/close", a.handleShiftClose)
			r.Get("/active", a.handleShiftActive)
		})
		r.Route("/stock", func(r chi.Router) {
			r.Post("/movements", a.handleStockMovement)
			r.Post("/adjustments", a.handleStockAdjustment)
			r.Get("/low", a.handleLowStock)
			r.Get("/out", a.handleOutOfStock)
			r.Get("/verify", a.handleStockVerify)
			r.Get("/{productID}/history", a.handleStockHistory)
		})
	})

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCashflowReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CashflowReport(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.SalesReport(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ProfitReport(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleShiftSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.ShiftSummary(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

type shiftOpenRequest struct {
	CashierID    string `json:"cashier_id"`
	CashierName  string `json:"cashier_name"`
	StartingCash int64  `json:"starting_cash"`
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req shiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	opened, err := a.service.OpenShift(r.Context(), shift.OpenRequest{
		CashierID:    req.CashierID,
		CashierName:  req.CashierName,
		StartingCash: req.StartingCash,
	})
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shift": opened})
}

type shiftCloseRequest struct {
	ActualCash *int64 `json:"actual_cash"`
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req shiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ActualCash == nil {
		a.writeError(w, http.StatusBadRequest, errors.New("actual_cash is required"))
		return
	}

	closed, err := a.service.CloseShift(r.Context(), chi.URLParam(r, "shiftID"), *req.ActualCash)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": closed})
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	shifts, err := a.service.ActiveShifts(r.Context(), r.URL.Query().Get("cashier_id"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (a *API) handleStockMovement(w http.ResponseWriter, r *http.Request) {
	var req stock.MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	movement, err := a.service.RecordMovement(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"movement": movement})
}

type stockAdjustmentRequest struct {
	ProductID  string `json:"product_id"`
	Delta      int    `json:"delta"`
	ChangeType string `json:"change_type"`
	Reason     string `json:"reason"`
	Actor      string `json:"actor"`
}

func (a *API) handleStockAdjustment(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	movement, err := a.service.AdjustStock(r.Context(), req.ProductID, req.Delta, req.ChangeType, req.Reason, req.Actor)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"movement": movement})
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.StockHistory(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.writeError(w, http.StatusBadRequest, errors.New("threshold must be a non-negative integer"))
			return
		}
		threshold = parsed
	}

	products, err := a.service.LowStock(r.Context(), threshold, r.URL.Query().Get("branch"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleOutOfStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.OutOfStock(r.Context(), r.URL.Query().Get("branch"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStockVerify(w http.ResponseWriter, r *http.Request) {
	drifts, err := a.service.VerifyStock(r.Context())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consistent": len(drifts) == 0, "drifts": drifts})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrShiftAlreadyActive), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNegativeStock),
		errors.Is(err, domain.ErrShiftClosed),
		errors.Is(err, domain.ErrMalformedRecord):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
