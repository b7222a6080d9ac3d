package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"tripartite/native/arbitration"
	"tripartite/observability/logging"
	telemetry "tripartite/observability/otel"
)

const (
	maxBodyBytes = 1 << 20

	defaultFeedLimit = 100
	maxFeedLimit     = 500
)

type createRequest struct {
	Provider         string `json:"provider"`
	Arbiter          string `json:"arbiter"`
	ContractDuration int64  `json:"contractDuration"`
	Evidence         string `json:"evidence"`
	Value            string `json:"value"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type disputeRequest struct {
	Evidence string `json:"evidence"`
	Value    string `json:"value"`
}

type evidenceRequest struct {
	Evidence string `json:"evidence"`
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
}

type creditRequest struct {
	Amount string `json:"amount"`
}

func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// caller returns the authenticated address or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	claims, err := FromContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return [20]byte{}, false
	}
	return claims.Address, true
}

func agreementID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid agreement id", string(arbitration.KindArgument))
		return 0, false
	}
	telemetry.AnnotateAgreement(r.Context(), id)
	return id, true
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err.Error(), string(arbitration.KindArgument))
}

// respondAgreement writes the agreement snapshot after a successful mutation.
func (s *Server) respondAgreement(w http.ResponseWriter, status int, id uint64) {
	view, err := s.snapshot(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	consumer, ok := caller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	provider, err := parseAddress(req.Provider)
	if err != nil {
		badRequest(w, err)
		return
	}
	arbiter, err := parseAddress(req.Arbiter)
	if err != nil {
		badRequest(w, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		badRequest(w, err)
		return
	}
	var created *arbitration.Agreement
	err = s.run(r.Context(), "create", func(e *arbitration.Engine) error {
		var err error
		created, err = e.Create(consumer, provider, arbiter, req.ContractDuration, req.Evidence, value)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("agreement created",
		slog.Uint64("agreement", created.ID),
		slog.String("consumer", arbitration.FormatAddress(consumer)),
		logging.MaskField("evidence", req.Evidence))
	s.respondAgreement(w, http.StatusCreated, created.ID)
}

func (s *Server) handleProviderFee(w http.ResponseWriter, r *http.Request) {
	s.valueOperation(w, r, "deposit_provider_fee", func(e *arbitration.Engine, id uint64, who [20]byte, value *big.Int) error {
		return e.DepositProviderFee(id, who, value)
	})
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	s.valueOperation(w, r, "offer_partial_refund", func(e *arbitration.Engine, id uint64, who [20]byte, value *big.Int) error {
		return e.OfferPartialRefund(id, who, value)
	})
}

func (s *Server) valueOperation(w http.ResponseWriter, r *http.Request, operation string, op func(*arbitration.Engine, uint64, [20]byte, *big.Int) error) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.run(r.Context(), operation, func(e *arbitration.Engine) error { return op(e, id, who, value) }); err != nil {
		writeEngineError(w, err)
		return
	}
	s.respondAgreement(w, http.StatusOK, id)
}

func (s *Server) handleConfirmArbiter(w http.ResponseWriter, r *http.Request) {
	s.simpleOperation(w, r, "confirm_arbiter", (*arbitration.Engine).ConfirmArbiter)
}

func (s *Server) handleProviderError(w http.ResponseWriter, r *http.Request) {
	s.simpleOperation(w, r, "declare_provider_error", (*arbitration.Engine).DeclareProviderError)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.simpleOperation(w, r, "release_funds", (*arbitration.Engine).ReleaseFunds)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.simpleOperation(w, r, "refund_funds", (*arbitration.Engine).RefundFunds)
}

func (s *Server) simpleOperation(w http.ResponseWriter, r *http.Request, operation string, op func(*arbitration.Engine, uint64, [20]byte) error) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	if err := s.run(r.Context(), operation, func(e *arbitration.Engine) error { return op(e, id, who) }); err != nil {
		writeEngineError(w, err)
		return
	}
	s.respondAgreement(w, http.StatusOK, id)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	var req disputeRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.run(r.Context(), "raise_dispute", func(e *arbitration.Engine) error {
		return e.RaiseDispute(id, who, req.Evidence, value)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("dispute raised", slog.Uint64("agreement", id), logging.MaskField("evidence", req.Evidence))
	s.respondAgreement(w, http.StatusOK, id)
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.run(r.Context(), "submit_evidence", func(e *arbitration.Engine) error {
		return e.SubmitEvidence(id, who, req.Evidence)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": id, "accepted": true})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	outcome, err := arbitration.ParseDecision(req.Outcome)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.run(r.Context(), "render_decision", func(e *arbitration.Engine) error {
		return e.RenderDecision(id, who, outcome)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	s.respondAgreement(w, http.StatusOK, id)
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	var settled bool
	if err := s.run(r.Context(), "accept_partial_settlement", func(e *arbitration.Engine) error {
		var err error
		settled, err = e.AcceptPartialSettlement(id, who)
		return err
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	view, err := s.snapshot(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Settled   bool          `json:"settled"`
		Agreement agreementView `json:"agreement"`
	}{Settled: settled, Agreement: view})
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	s.respondAgreement(w, http.StatusOK, id)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	status, err := s.engine.Status(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": status.String()})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}
	if s.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event log not configured", "unavailable")
		return
	}
	s.mu.Lock()
	_, err := s.engine.Status(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	records, err := s.events.ByAgreement(r.Context(), id)
	if err != nil {
		s.logger.Error("query events failed", slog.Uint64("agreement", id), slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "internal error", string(arbitration.KindInternal))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "events": newEventViews(records)})
}

// handleEventFeed pages through the whole event log in sequence order.
// Clients resume by passing the returned next cursor as after.
func (s *Server) handleEventFeed(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event log not configured", "unavailable")
		return
	}
	query := r.URL.Query()
	var after int64
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			badRequest(w, fmt.Errorf("invalid cursor %q", raw))
			return
		}
		after = parsed
	}
	limit := defaultFeedLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if parsed > maxFeedLimit {
			parsed = maxFeedLimit
		}
		limit = parsed
	}
	records, err := s.events.Since(r.Context(), after, limit)
	if err != nil {
		s.logger.Error("query event feed failed", slog.Int64("after", after), slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "internal error", string(arbitration.KindInternal))
		return
	}
	next := after
	if len(records) > 0 {
		next = records[len(records)-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": newEventViews(records), "next": next})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.events != nil {
		failures := s.events.Failures()
		resp["eventLogFailures"] = failures
		if failures > 0 {
			resp["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	balance, err := s.accounts.Balance(addr)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("balance lookup failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "internal error", string(arbitration.KindInternal))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": arbitration.FormatAddress(addr),
		"balance": amountString(balance),
	})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, err)
		return
	}
	var req creditRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	if amount.Sign() <= 0 {
		badRequest(w, errors.New("amount must be positive"))
		return
	}
	s.mu.Lock()
	err = s.accounts.Credit(addr, amount)
	var balance *big.Int
	if err == nil {
		balance, err = s.accounts.Balance(addr)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("credit failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "internal error", string(arbitration.KindInternal))
		return
	}
	s.logger.Info("account credited", slog.String("address", arbitration.FormatAddress(addr)), slog.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]string{
		"address": arbitration.FormatAddress(addr),
		"balance": amountString(balance),
	})
}
