package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tripartite/core/events"
	"tripartite/core/ledger"
	"tripartite/core/state"
	"tripartite/native/arbitration"
	"tripartite/observability"
	"tripartite/storage"
	"tripartite/storage/eventlog"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "arbitrationd"
	testAudience = "arbitration-clients"

	consumerHex = "0x1111111111111111111111111111111111111111"
	providerHex = "0x2222222222222222222222222222222222222222"
	arbiterHex  = "0x3333333333333333333333333333333333333333"
	adminHex    = "0x9999999999999999999999999999999999999999"
)

type testServer struct {
	t      *testing.T
	srv    *Server
	ledger *ledger.Ledger
	clock  time.Time
	tokens map[string]string
}

func newTestServer(t *testing.T, limit RateLimit) *testServer {
	t.Helper()
	ts := &testServer{t: t, clock: time.Unix(1_700_000_000, 0)}

	manager := state.NewManager(storage.NewMemDB())
	ts.ledger = ledger.New(manager)
	ts.ledger.SetClock(func() time.Time { return ts.clock })

	elog, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = elog.Close() })

	idem, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idempotency.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })

	engine := arbitration.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ts.ledger)
	engine.SetNowFunc(ts.ledger.Now)
	engine.SetEmitter(events.MultiEmitter{elog, observability.EventMetricsEmitter{}})
	require.NoError(t, engine.SetParams(arbitration.Params{FeeUnit: big.NewInt(100), ProcedureUnit: 60}))

	verifier, err := NewVerifier(AuthConfig{Issuer: testIssuer, Audience: testAudience, Secret: []byte(testSecret)})
	require.NoError(t, err)

	ts.srv, err = New(Config{
		Engine:      engine,
		Accounts:    ts.ledger,
		Events:      elog,
		Verifier:    verifier,
		Idempotency: idem,
		RateLimit:   limit,
	})
	require.NoError(t, err)

	ts.tokens = map[string]string{
		"consumer": signToken(t, consumerHex, ""),
		"provider": signToken(t, providerHex, ""),
		"arbiter":  signToken(t, arbiterHex, "participant"),
		"admin":    signToken(t, adminHex, "admin"),
	}
	return ts
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, who string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := ts.tokens[who]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) advance(seconds int64) {
	ts.clock = ts.clock.Add(time.Duration(seconds) * time.Second)
}

func (ts *testServer) fund(addr string, amount string) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/admin/accounts/"+addr+"/credit", "admin", map[string]string{"amount": amount}, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) create() agreementView {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/agreements", "consumer", createRequest{
		Provider:         providerHex,
		Arbiter:          arbiterHex,
		ContractDuration: 600,
		Evidence:         "ipfs://brief",
		Value:            "500",
	}, nil)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(ts.t, rec)
}

func (ts *testServer) bind(id string) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/agreements/"+id+"/provider-fee", "provider", valueRequest{Value: "100"}, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/v1/agreements/"+id+"/arbiter-confirmation", "arbiter", nil, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(ts.t, "execution", decodeView(ts.t, rec).Status)
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) agreementView {
	t.Helper()
	var view agreementView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func balanceOf(t *testing.T, ts *testServer, addr string) string {
	t.Helper()
	rec := ts.do(http.MethodGet, "/v1/accounts/"+addr, "consumer", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["balance"]
}

func TestHappyPathRelease(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")

	created := ts.create()
	require.EqualValues(t, 0, created.ID)
	require.Equal(t, "binding", created.Status)
	require.Equal(t, "delivery", created.Window)
	require.EqualValues(t, 780, created.Deadlines.DecisionClose)
	ts.bind("0")

	rec := ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, nil)
	require.Equal(t, http.StatusTooEarly, rec.Code)
	require.Equal(t, "timing", decodeError(t, rec).Kind)

	ts.advance(661)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	require.Equal(t, "concluded", view.Status)
	require.True(t, view.Settled)
	require.Equal(t, "0", view.Residual)

	require.Equal(t, "1500", balanceOf(t, ts, providerHex))
	require.Equal(t, "500", balanceOf(t, ts, consumerHex))

	rec = ts.do(http.MethodGet, "/v1/agreements/0/status", "arbiter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"concluded"`)

	rec = ts.do(http.MethodGet, "/v1/agreements/0/events", "consumer", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Events []eventView `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	types := make([]string, 0, len(listed.Events))
	for _, evt := range listed.Events {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		arbitration.EventTypeAgreementCreated,
		arbitration.EventTypeEvidenceRecorded,
		arbitration.EventTypeStatusChanged,
		arbitration.EventTypeStatusChanged,
		arbitration.EventTypePayout,
	}, types)
}

func TestDisputeFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")

	rec := ts.do(http.MethodPost, "/v1/agreements/0/dispute", "provider", disputeRequest{Evidence: "x", Value: "100"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "authorization", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/dispute", "consumer", disputeRequest{Evidence: "ipfs://complaint", Value: "100"}, nil)
	require.Equal(t, http.StatusTooEarly, rec.Code)

	ts.advance(601)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/dispute", "consumer", disputeRequest{Evidence: "ipfs://complaint", Value: "99"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "amount", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/dispute", "consumer", disputeRequest{Evidence: "ipfs://complaint", Value: "100"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "dispute", decodeView(t, rec).Status)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/evidence", "provider", evidenceRequest{Evidence: "ipfs://proof"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ts.advance(120)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/evidence", "provider", evidenceRequest{Evidence: "late"}, nil)
	require.Equal(t, http.StatusTooEarly, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/decision", "arbiter", decisionRequest{Outcome: "maybe"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/decision", "arbiter", decisionRequest{Outcome: "provider"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	require.Equal(t, "concluded", view.Status)
	require.Equal(t, "provider", view.Decision)
	require.False(t, view.Settled)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/decision", "arbiter", decisionRequest{Outcome: "consumer"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already-set", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/refund", "consumer", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	ts.advance(60)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "1500", balanceOf(t, ts, providerHex))
	require.Equal(t, "100", decodeView(t, rec).Residual)
}

func TestPartialSettlementOverHTTP(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")

	rec := ts.do(http.MethodPost, "/v1/agreements/0/partial-refund-offers", "provider", valueRequest{Value: "100"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Settled   bool          `json:"settled"`
		Agreement agreementView `json:"agreement"`
	}
	rec = ts.do(http.MethodPost, "/v1/agreements/0/partial-settlement", "consumer", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Settled)
	require.Equal(t, "execution", resp.Agreement.Status)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/partial-refund-offers", "provider", valueRequest{Value: "200"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/partial-settlement", "consumer", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Settled)
	require.Equal(t, "concluded", resp.Agreement.Status)

	// Three fee units settle at 50 percent of the 500 price. The offered
	// units stay in custody.
	require.Equal(t, "300", resp.Agreement.Residual)
	require.Equal(t, "750", balanceOf(t, ts, consumerHex))
	require.Equal(t, "950", balanceOf(t, ts, providerHex))
}

func TestProviderErrorOverHTTP(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")

	rec := ts.do(http.MethodPost, "/v1/agreements/0/provider-error", "consumer", nil, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/provider-error", "provider", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1000", balanceOf(t, ts, consumerHex))
	require.Equal(t, "1000", balanceOf(t, ts, providerHex))
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.create()

	rec := ts.do(http.MethodGet, "/v1/agreements/7", "consumer", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not-found", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodGet, "/v1/agreements/abc", "consumer", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/arbiter-confirmation", "arbiter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/arbiter-confirmation", "arbiter", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already-set", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/provider-fee", "provider", valueRequest{Value: "100"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "transfer", decodeError(t, rec).Kind)

	rec = ts.do(http.MethodPost, "/v1/agreements", "consumer", createRequest{Provider: "nope", Arbiter: arbiterHex, ContractDuration: 1, Value: "1"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/agreements", "consumer", createRequest{Provider: consumerHex, Arbiter: arbiterHex, ContractDuration: 1, Value: "1"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid-argument", decodeError(t, rec).Kind)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	rec := ts.do(http.MethodGet, "/v1/agreements/0", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/agreements/0", "", nil, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/accounts/"+consumerHex+"/credit", "consumer", map[string]string{"amount": "5"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifierRejectsNonAddressSubject(t *testing.T) {
	verifier, err := NewVerifier(AuthConfig{Secret: []byte(testSecret)})
	require.NoError(t, err)
	_, err = verifier.Verify(signToken(t, "alice", ""))
	require.Error(t, err)

	claims, err := verifier.Verify(signToken(t, adminHex, "ADMIN"))
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)

	_, err = verifier.Verify(signToken(t, adminHex, "root"))
	require.Error(t, err)

	_, err = NewVerifier(AuthConfig{})
	require.Error(t, err)
}

func TestIdempotentCreate(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "10000")
	body := createRequest{Provider: providerHex, Arbiter: arbiterHex, ContractDuration: 600, Value: "500"}
	headers := map[string]string{idempotencyHeader: "create-1"}

	first := ts.do(http.MethodPost, "/v1/agreements", "consumer", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := ts.do(http.MethodPost, "/v1/agreements", "consumer", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, "9500", balanceOf(t, ts, consumerHex))

	body.Value = "600"
	conflict := ts.do(http.MethodPost, "/v1/agreements", "consumer", body, headers)
	require.Equal(t, http.StatusUnprocessableEntity, conflict.Code)

	// Keys are scoped per caller.
	ts.fund(providerHex, "10000")
	other := ts.do(http.MethodPost, "/v1/agreements", "provider", createRequest{Provider: consumerHex, Arbiter: arbiterHex, ContractDuration: 600, Value: "500"}, headers)
	require.Equal(t, http.StatusCreated, other.Code)
	require.EqualValues(t, 1, decodeView(t, other).ID)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, RateLimit{RequestsPerMinute: 1, Burst: 1})
	rec := ts.do(http.MethodGet, "/v1/agreements/0", "consumer", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/v1/agreements/0", "consumer", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Budgets are per caller.
	rec = ts.do(http.MethodGet, "/v1/agreements/0", "provider", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	cases := map[arbitration.Kind]int{
		arbitration.KindAuthorization: http.StatusForbidden,
		arbitration.KindPhase:         http.StatusConflict,
		arbitration.KindAlreadySet:    http.StatusConflict,
		arbitration.KindTiming:        http.StatusTooEarly,
		arbitration.KindAmount:        http.StatusBadRequest,
		arbitration.KindArgument:      http.StatusBadRequest,
		arbitration.KindNotFound:      http.StatusNotFound,
		arbitration.KindTransfer:      http.StatusBadGateway,
		arbitration.KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusForKind(kind), kind)
	}
}

func TestTimingFailuresAreNotReplayed(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")
	headers := map[string]string{idempotencyHeader: "release-1"}

	rec := ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, headers)
	require.Equal(t, http.StatusTooEarly, rec.Code)

	ts.advance(661)
	rec = ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, rec.Header().Get("Idempotent-Replay"))
	require.Equal(t, "concluded", decodeView(t, rec).Status)

	rec = ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotent-Replay"))
	require.Equal(t, "1500", balanceOf(t, ts, providerHex))
}

func TestRateLimitIgnoresAddressCase(t *testing.T) {
	ts := newTestServer(t, RateLimit{RequestsPerMinute: 1, Burst: 1})
	ts.tokens["lower"] = signToken(t, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", "")
	ts.tokens["upper"] = signToken(t, "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD", "")

	rec := ts.do(http.MethodGet, "/v1/agreements/0", "lower", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/v1/agreements/0", "upper", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEventFeed(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")

	type feed struct {
		Events []eventView `json:"events"`
		Next   int64       `json:"next"`
	}
	var page feed
	rec := ts.do(http.MethodGet, "/v1/events?limit=2", "arbiter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Events, 2)
	require.Equal(t, arbitration.EventTypeAgreementCreated, page.Events[0].Type)
	require.Equal(t, page.Events[1].Sequence, page.Next)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/v1/events?after=%d", page.Next), "arbiter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rest feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rest))
	require.Len(t, rest.Events, 1)
	require.Equal(t, arbitration.EventTypeStatusChanged, rest.Events[0].Type)
	require.Greater(t, rest.Events[0].Sequence, page.Next)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/v1/events?after=%d", rest.Next), "arbiter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	require.Empty(t, empty.Events)
	require.Equal(t, rest.Next, empty.Next)

	rec = ts.do(http.MethodGet, "/v1/events?after=-1", "arbiter", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodGet, "/v1/events?limit=zero", "arbiter", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsEventLogFailures(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	rec := ts.do(http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","eventLogFailures":0}`, rec.Body.String())
}

func TestOperationsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ts := newTestServer(t, RateLimit{})
	ts.fund(consumerHex, "1000")
	ts.fund(providerHex, "1000")
	ts.create()
	ts.bind("0")

	rec := ts.do(http.MethodPost, "/v1/agreements/0/release", "provider", nil, nil)
	require.Equal(t, http.StatusTooEarly, rec.Code)

	var release sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "arbitration.release_funds" {
			release = span
		}
	}
	require.NotNil(t, release)
	outcome := ""
	for _, kv := range release.Attributes() {
		if kv.Key == "arbitration.outcome" {
			outcome = kv.Value.AsString()
		}
	}
	require.Equal(t, string(arbitration.KindTiming), outcome)
}
