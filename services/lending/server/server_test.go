package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"lendledger/native/lending"
	"lendledger/services/lending/engine"
)

type call struct {
	method string
	args   []string
}

type fakeEngine struct {
	mu       sync.Mutex
	calls    []call
	err      error
	config   engine.Config
	position engine.Position
}

func (f *fakeEngine) record(method string, args ...string) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, args: args})
	if f.err != nil {
		return engine.Result{}, f.err
	}
	return engine.Result{Action: method, Attributes: map[string]string{"action": method}}, nil
}

func (f *fakeEngine) Instantiate(_ context.Context, owner, baseRate string) (engine.Result, error) {
	return f.record("instantiate", owner, baseRate)
}

func (f *fakeEngine) DepositCollateral(_ context.Context, caller, token, amount string) (engine.Result, error) {
	return f.record("deposit_collateral", caller, token, amount)
}

func (f *fakeEngine) WithdrawCollateral(_ context.Context, caller, token, amount string) (engine.Result, error) {
	return f.record("withdraw_collateral", caller, token, amount)
}

func (f *fakeEngine) Borrow(_ context.Context, caller, amount string) (engine.Result, error) {
	res, err := f.record("borrow", caller, amount)
	if err == nil {
		res.Transfers = []engine.Transfer{{ID: "t1", To: caller, Amount: amount, Currency: "usdc"}}
	}
	return res, err
}

func (f *fakeEngine) RepayLoan(_ context.Context, caller, amount string) (engine.Result, error) {
	return f.record("repay_loan", caller, amount)
}

func (f *fakeEngine) UpdateInterestRate(_ context.Context, caller, rate string) (engine.Result, error) {
	return f.record("update_interest_rate", caller, rate)
}

func (f *fakeEngine) GetConfig(context.Context) (engine.Config, error) {
	if f.err != nil {
		return engine.Config{}, f.err
	}
	return f.config, nil
}

func (f *fakeEngine) GetPosition(_ context.Context, account string) (engine.Position, error) {
	if f.err != nil {
		return engine.Position{}, f.err
	}
	pos := f.position
	pos.Account = account
	return pos, nil
}

func headerCaller(r *http.Request) (string, bool) {
	caller := r.Header.Get("X-Test-Caller")
	return caller, caller != ""
}

func newTestServer(t *testing.T, eng engine.Engine) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(eng, nil, headerCaller).Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, caller, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Test-Caller", caller)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestActionsForwardCallerAndBody(t *testing.T) {
	fake := &fakeEngine{}
	srv := newTestServer(t, fake)

	cases := []struct {
		path   string
		body   string
		method string
		args   []string
	}{
		{"/v1/collateral/deposit", `{"token_address":"atom","amount":"100"}`, "deposit_collateral", []string{"lend1alice", "atom", "100"}},
		{"/v1/collateral/withdraw", `{"token_address":"atom","amount":"40"}`, "withdraw_collateral", []string{"lend1alice", "atom", "40"}},
		{"/v1/loans/borrow", `{"amount":"50"}`, "borrow", []string{"lend1alice", "50"}},
		{"/v1/loans/repay", `{"amount":"53"}`, "repay_loan", []string{"lend1alice", "53"}},
		{"/v1/admin/interest-rate", `{"new_rate":"0.07"}`, "update_interest_rate", []string{"lend1alice", "0.07"}},
	}
	for i, tc := range cases {
		resp := post(t, srv, tc.path, "lend1alice", tc.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.StatusCode)
		}
		var res engine.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if res.Action != tc.method || res.Transfers == nil {
			t.Fatalf("%s: unexpected result %+v", tc.path, res)
		}
		got := fake.calls[i]
		if got.method != tc.method || fmt.Sprint(got.args) != fmt.Sprint(tc.args) {
			t.Fatalf("%s: unexpected engine call %+v", tc.path, got)
		}
	}
}

func TestBorrowReturnsTransfers(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})
	resp := post(t, srv, "/v1/loans/borrow", "lend1bob", `{"amount":"7"}`)
	var res struct {
		Transfers []map[string]string `json:"transfers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Transfers) != 1 {
		t.Fatalf("unexpected transfers %+v", res.Transfers)
	}
	transfer := res.Transfers[0]
	if transfer["to"] != "lend1bob" || transfer["amount"] != "7" || transfer["currency"] != "usdc" {
		t.Fatalf("unexpected transfer wire form %v", transfer)
	}
}

func TestActionRequiresCaller(t *testing.T) {
	fake := &fakeEngine{}
	srv := newTestServer(t, fake)
	resp := post(t, srv, "/v1/loans/borrow", "", `{"amount":"1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("engine must not be called without a caller")
	}
}

func TestActionRejectsMalformedBody(t *testing.T) {
	fake := &fakeEngine{}
	srv := newTestServer(t, fake)
	for _, body := range []string{"", "{", `{"amount":"1","extra":true}`, `{"amount":1}`} {
		resp := post(t, srv, "/v1/loans/repay", "lend1alice", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(fake.calls) != 0 {
		t.Fatalf("engine must not be called for malformed bodies")
	}
}

func TestActionMapsEngineErrors(t *testing.T) {
	fake := &fakeEngine{err: fmt.Errorf("%w: amount 10 is below total due 10.5", lending.ErrInsufficientPayment)}
	srv := newTestServer(t, fake)
	resp := post(t, srv, "/v1/loans/repay", "lend1alice", `{"amount":"10"}`)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != lending.KindInsufficientPayment || !strings.Contains(body.Error, "total due") {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestQueries(t *testing.T) {
	fake := &fakeEngine{
		config: engine.Config{Owner: "lend1owner", BaseInterestRate: "0.05"},
		position: engine.Position{
			Collateral: &engine.Collateral{TokenAddress: "atom", Amount: "100"},
		},
	}
	srv := newTestServer(t, fake)

	resp, err := srv.Client().Get(srv.URL + "/v1/config")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	defer resp.Body.Close()
	var cfg engine.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Owner != "lend1owner" || cfg.BaseInterestRate != "0.05" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	resp2, err := srv.Client().Get(srv.URL + "/v1/accounts/lend1alice/position")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	defer resp2.Body.Close()
	var pos engine.Position
	if err := json.NewDecoder(resp2.Body).Decode(&pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if pos.Account != "lend1alice" || pos.Collateral == nil || pos.Loan != nil {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestQueryConfigBeforeInstantiate(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{err: fmt.Errorf("%w: config", lending.ErrNotFound)})
	resp, err := srv.Client().Get(srv.URL + "/v1/config")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNilEngineUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := post(t, srv, "/v1/loans/borrow", "lend1alice", `{"amount":"1"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
