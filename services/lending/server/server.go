package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lendledger/services/lending/engine"
)

const requestLimit = 1 << 20 // 1 MiB

// CallerFunc resolves the authenticated identity of a request.
type CallerFunc func(*http.Request) (string, bool)

// Route describes one endpoint of the lending API. Mutating routes require an
// authenticated caller.
type Route struct {
	Name     string
	Method   string
	Pattern  string
	Mutating bool
	Handler  http.HandlerFunc
}

// Service exposes the lending engine over HTTP.
type Service struct {
	engine  engine.Engine
	logger  *slog.Logger
	caller  CallerFunc
	timeout time.Duration
}

// New constructs a new lending service instance.
func New(eng engine.Engine, logger *slog.Logger, caller CallerFunc) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: eng, logger: logger, caller: caller, timeout: 10 * time.Second}
}

// Routes lists every endpoint served under /v1.
func (s *Service) Routes() []Route {
	return []Route{
		{Name: "deposit_collateral", Method: http.MethodPost, Pattern: "/v1/collateral/deposit", Mutating: true, Handler: s.depositCollateral},
		{Name: "withdraw_collateral", Method: http.MethodPost, Pattern: "/v1/collateral/withdraw", Mutating: true, Handler: s.withdrawCollateral},
		{Name: "borrow", Method: http.MethodPost, Pattern: "/v1/loans/borrow", Mutating: true, Handler: s.borrow},
		{Name: "repay_loan", Method: http.MethodPost, Pattern: "/v1/loans/repay", Mutating: true, Handler: s.repayLoan},
		{Name: "update_interest_rate", Method: http.MethodPost, Pattern: "/v1/admin/interest-rate", Mutating: true, Handler: s.updateInterestRate},
		{Name: "config", Method: http.MethodGet, Pattern: "/v1/config", Handler: s.getConfig},
		{Name: "position", Method: http.MethodGet, Pattern: "/v1/accounts/{account}/position", Handler: s.getPosition},
	}
}

// Mount registers the routes on r without extra middleware.
func (s *Service) Mount(r chi.Router) {
	for _, route := range s.Routes() {
		r.Method(route.Method, route.Pattern, route.Handler)
	}
}

type collateralRequest struct {
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type rateRequest struct {
	NewRate string `json:"new_rate"`
}

func (s *Service) depositCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	s.action(w, r, &req, func(ctx context.Context, caller string) (engine.Result, error) {
		return s.engine.DepositCollateral(ctx, caller, req.TokenAddress, req.Amount)
	})
}

func (s *Service) withdrawCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	s.action(w, r, &req, func(ctx context.Context, caller string) (engine.Result, error) {
		return s.engine.WithdrawCollateral(ctx, caller, req.TokenAddress, req.Amount)
	})
}

func (s *Service) borrow(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	s.action(w, r, &req, func(ctx context.Context, caller string) (engine.Result, error) {
		return s.engine.Borrow(ctx, caller, req.Amount)
	})
}

func (s *Service) repayLoan(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	s.action(w, r, &req, func(ctx context.Context, caller string) (engine.Result, error) {
		return s.engine.RepayLoan(ctx, caller, req.Amount)
	})
}

func (s *Service) updateInterestRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	s.action(w, r, &req, func(ctx context.Context, caller string) (engine.Result, error) {
		return s.engine.UpdateInterestRate(ctx, caller, req.NewRate)
	})
}

func (s *Service) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	cfg, err := s.engine.GetConfig(ctx)
	if err != nil {
		s.writeError(w, "config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Service) getPosition(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(chi.URLParam(r, "account"))
	if account == "" {
		writeBadRequest(w, "account required")
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	position, err := s.engine.GetPosition(ctx, account)
	if err != nil {
		s.writeError(w, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

// action decodes the body into req, resolves the caller and runs fn.
func (s *Service) action(w http.ResponseWriter, r *http.Request, req interface{}, fn func(context.Context, string) (engine.Result, error)) {
	if s.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lending engine unavailable", Kind: "unavailable"})
		return
	}
	caller, ok := s.resolveCaller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required", Kind: "unauthenticated"})
		return
	}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	res, err := fn(ctx, caller)
	if err != nil {
		s.writeError(w, routeName(r), err)
		return
	}
	if res.Transfers == nil {
		res.Transfers = []engine.Transfer{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) resolveCaller(r *http.Request) (string, bool) {
	if s.caller == nil {
		return "", false
	}
	caller, ok := s.caller(r)
	caller = strings.TrimSpace(caller)
	return caller, ok && caller != ""
}

func (s *Service) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func routeName(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

func decodeRequest(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Kind: "bad_request"})
}
