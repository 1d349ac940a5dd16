package ricod

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	salestate "rico/core/state"
	"rico/gateway/middleware"
	"rico/native/bank"
	nativecommon "rico/native/common"
	"rico/native/sale"
	"rico/native/token"
	"rico/observability"
)

const maxRequestBody = 1 << 16

// Pausable module names accepted by the admin endpoints.
var pausableModules = map[string]struct{}{
	"sale":          {},
	bank.ModuleName: {},
	"token":         {},
}

// Server exposes the sale engine over HTTP. It serialises every engine call:
// mutations take the write lock, queries the read lock.
type Server struct {
	mu      sync.RWMutex
	engine  *sale.Engine
	state   *salestate.Manager
	vault   *bank.Vault
	token   *token.Ledger
	pauses  *nativecommon.Pauses
	ticks   sale.TickSource
	hub     *EventHub
	metrics *observability.SaleMetrics
	logger  *slog.Logger

	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	cors    middleware.CORSConfig
}

// ServerOptions wires a Server. Engine, State, Vault, Token, Pauses and Ticks
// are required.
type ServerOptions struct {
	Engine        *sale.Engine
	State         *salestate.Manager
	Vault         *bank.Vault
	Token         *token.Ledger
	Pauses        *nativecommon.Pauses
	Ticks         sale.TickSource
	Hub           *EventHub
	Logger        *slog.Logger
	Auth          middleware.AuthConfig
	RateLimit     middleware.RateLimit
	CORSOrigins   []string
	LogRequests   bool
	TraceRequests bool
}

// NewServer validates the options and builds the server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Engine == nil || opts.State == nil || opts.Vault == nil || opts.Token == nil || opts.Pauses == nil || opts.Ticks == nil {
		return nil, fmt.Errorf("ricod: engine, state, vault, token, pauses and ticks are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewEventHub()
	}
	s := &Server{
		engine:  opts.Engine,
		state:   opts.State,
		vault:   opts.Vault,
		token:   opts.Token,
		pauses:  opts.Pauses,
		ticks:   opts.Ticks,
		hub:     hub,
		metrics: observability.Sale(),
		logger:  logger,
		auth:    middleware.NewAuthenticator(opts.Auth, logger),
		limiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"mutations": opts.RateLimit,
		}, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "ricod",
			LogRequests: opts.LogRequests,
			Enabled:     true,
		}, logger),
		cors: middleware.CORSConfig{AllowedOrigins: opts.CORSOrigins},
	}
	s.metrics.ObserveEngine(s.engine)
	return s, nil
}

// Hub returns the event hub the engine should emit into.
func (s *Server) Hub() *EventHub { return s.hub }

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(s.cors))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.obs.Middleware("schedule")).Get("/schedule", s.handleSchedule)
		v1.With(s.obs.Middleware("totals")).Get("/totals", s.handleTotals)
		v1.With(s.obs.Middleware("stage_totals")).Get("/stages/{stage}", s.handleStageTotals)
		v1.With(s.obs.Middleware("transfers")).Get("/transfers", s.handleTransfers)
		v1.Get("/events/ws", s.handleEventsWS)

		v1.Route("/participants/{address}", func(pr chi.Router) {
			pr.Use(s.obs.Middleware("participant"))
			pr.Get("/", s.handleParticipant)
			pr.Get("/stages/{stage}", s.handleParticipantStage)
			pr.Get("/contributions", s.handleContributions)
			pr.Get("/decisions", s.handleDecisions)
			pr.Group(func(w chi.Router) {
				w.Use(s.auth.Middleware(middleware.ScopeContribute), s.limiter.Middleware("mutations"))
				w.Post("/cancel", s.handleParticipantCancel)
				w.Post("/claim", s.handleClaim)
			})
		})

		v1.Group(func(w chi.Router) {
			w.Use(s.obs.Middleware("contribute"))
			w.Use(s.auth.Middleware(middleware.ScopeContribute), s.limiter.Middleware("mutations"))
			w.Post("/contributions", s.handleContribute)
		})
		v1.Group(func(w chi.Router) {
			w.Use(s.obs.Middleware("committee"))
			w.Use(s.auth.Middleware(middleware.ScopeDecide), s.limiter.Middleware("mutations"))
			w.Post("/committee/decisions", s.handleDecision)
			w.Post("/committee/cancel-sale", s.handleCancelSale)
		})
		v1.Group(func(w chi.Router) {
			w.Use(s.obs.Middleware("project"))
			w.Use(s.auth.Middleware(middleware.ScopeWithdraw), s.limiter.Middleware("mutations"))
			w.Post("/project/withdrawals", s.handleProjectWithdraw)
		})
		v1.Group(func(w chi.Router) {
			w.Use(s.obs.Middleware("admin"))
			w.Use(s.auth.Middleware(middleware.ScopeAdmin))
			w.Get("/admin/pauses", s.handlePauses)
			w.Post("/admin/pause", s.handlePause(true))
			w.Post("/admin/resume", s.handlePause(false))
		})
	})

	return otelhttp.NewHandler(r, "ricod")
}

// mutate runs fn under the write lock, records the outcome and persists a
// snapshot when fn succeeded.
func (s *Server) mutate(operation string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn()
	s.metrics.RecordOperation(operation, err)
	s.metrics.ObserveEngine(s.engine)
	if err != nil {
		return err
	}
	if perr := s.state.PutSaleSnapshot(s.engine.Snapshot()); perr != nil {
		s.logger.Error("persist sale snapshot", "operation", operation, "error", perr)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	halted := s.engine.Halted()
	s.mu.RUnlock()
	if halted != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: halted.Error(), Class: sale.ClassFatal.String()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	stages := s.engine.Schedule().Stages()
	out := make([]stageView, 0, len(stages))
	for _, st := range stages {
		out = append(out, newStageView(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	current := s.ticks.CurrentTick()
	s.mu.RLock()
	totals := s.engine.Totals()
	view := globalView{
		totalsView:       newTotalsView(totals.Totals),
		ProjectWithdrawn: totals.ProjectWithdrawn.Dec(),
		Withdrawable:     totals.Withdrawable().Dec(),
		Dust:             totals.Dust.Dec(),
		LastTick:         s.engine.LastTick(),
		CurrentTick:      current,
		Cancelled:        s.engine.Cancelled(),
		Participants:     len(s.engine.Participants()),
	}
	if halted := s.engine.Halted(); halted != nil {
		view.Halted = halted.Error()
	}
	s.mu.RUnlock()
	if st, ok := s.engine.Schedule().StageAt(current); ok {
		index := st.Index
		view.Stage = &index
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStageTotals(w http.ResponseWriter, r *http.Request) {
	stage, ok := stageParam(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	totals, err := s.engine.StageTotals(stage)
	s.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTotalsView(totals))
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	var transfers []sale.Transfer
	s.mu.RLock()
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		if !common.IsHexAddress(raw) {
			s.mu.RUnlock()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address"})
			return
		}
		transfers = s.engine.TransfersTo(common.HexToAddress(raw))
	} else {
		transfers = s.engine.Transfers()
	}
	s.mu.RUnlock()
	if raw := strings.TrimSpace(r.URL.Query().Get("id")); raw != "" {
		id, err := bank.ParseReference(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		matched := transfers[:0:0]
		for _, tr := range transfers {
			if tr.ID == id {
				matched = append(matched, tr)
			}
		}
		transfers = matched
	}
	writeJSON(w, http.StatusOK, newTransferViews(transfers))
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	p, found := s.engine.Participant(addr)
	s.mu.RUnlock()
	if !found {
		writeError(w, sale.ErrUnknownParticipant)
		return
	}
	writeJSON(w, http.StatusOK, newParticipantView(p))
}

func (s *Server) handleParticipantStage(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	stage, ok := stageParam(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	totals, err := s.engine.ParticipantStage(addr, stage)
	s.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTotalsView(totals))
}

func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	contributions := s.engine.Contributions(addr)
	s.mu.RUnlock()
	out := make([]contributionView, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, newContributionView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	decisions := s.engine.Decisions(addr)
	s.mu.RUnlock()
	out := make([]decisionView, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, newDecisionView(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleContribute deposits the amount into the vault and records it with
// the engine. A rejected contribution is paid straight back.
func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil || amount.IsZero() {
		writeError(w, sale.ErrInvalidAmount)
		return
	}
	var resp contributeResponse
	err = s.mutate("contribute", func() error {
		if err := s.vault.Deposit(caller, amount, s.ticks.CurrentTick()); err != nil {
			return err
		}
		contribution, settlement, err := s.engine.Contribute(caller, amount)
		if err != nil {
			if rerr := s.vault.Return(caller, amount); rerr != nil {
				s.logger.Error("return rejected deposit", "participant", caller.Hex(), "amount", amount.Dec(), "error", rerr)
			}
			return err
		}
		if contribution != nil {
			view := newContributionView(*contribution)
			resp.Contribution = &view
		}
		resp.Settlement = newSettlementView(settlement)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleParticipantCancel(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.selfOnly(w, r)
	if !ok {
		return
	}
	var settlement *sale.Settlement
	err := s.mutate("participant_cancel", func() error {
		var err error
		settlement, err = s.engine.ApplyDecision(caller, addr, sale.DecisionParticipantCancel)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementView(settlement))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	_, addr, ok := s.selfOnly(w, r)
	if !ok {
		return
	}
	var transfer *sale.Transfer
	err := s.mutate("claim_refund", func() error {
		var err error
		transfer, err = s.engine.ClaimRefund(addr)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransferView(*transfer))
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, known := sale.ParseDecisionKind(strings.TrimSpace(req.Decision))
	if !known {
		writeError(w, sale.ErrUnsupportedDecision)
		return
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Participant)) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid participant address"})
		return
	}
	participant := common.HexToAddress(strings.TrimSpace(req.Participant))
	var settlement *sale.Settlement
	err := s.mutate(kind.String(), func() error {
		var err error
		settlement, err = s.engine.ApplyDecision(caller, participant, kind)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementView(settlement))
}

func (s *Server) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	if err := s.mutate("cancel_sale", func() error { return s.engine.CancelSale(caller) }); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjectWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, sale.ErrInvalidAmount)
		return
	}
	var transfer *sale.Transfer
	err = s.mutate("project_withdraw", func() error {
		var err error
		transfer, err = s.engine.WithdrawAccepted(caller, amount)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransferView(*transfer))
}

func (s *Server) handlePauses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pauses.Snapshot())
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pauseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		module := strings.ToLower(strings.TrimSpace(req.Module))
		if _, ok := pausableModules[module]; !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown module %q", req.Module)})
			return
		}
		if err := s.setPaused(module, paused); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Warn("module pause toggled", "module", module, "paused", paused)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) setPaused(module string, paused bool) error {
	if module == "token" {
		if err := s.state.SetTokenMintPaused(s.token.Symbol(), paused); err != nil {
			return err
		}
	}
	s.pauses.Set(module, paused)
	return nil
}

// selfOnly resolves the path participant and requires it to be the caller.
func (s *Server) selfOnly(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, bool) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	addr, ok := addressParam(w, r)
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	if addr != caller {
		writeError(w, sale.ErrUnauthorized)
		return common.Address{}, common.Address{}, false
	}
	return caller, addr, true
}

func callerOrReject(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "caller unknown"})
		return common.Address{}, false
	}
	return caller, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func stageParam(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	stage, err := strconv.ParseUint(chi.URLParam(r, "stage"), 10, 8)
	if err != nil {
		writeError(w, sale.ErrInvalidStage)
		return 0, false
	}
	return uint8(stage), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// statusFor maps an engine or collaborator error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, sale.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, sale.ErrUnknownParticipant):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrStaleTick):
		return http.StatusConflict
	}
	switch sale.Classify(err) {
	case sale.ClassStage, sale.ClassDecision:
		return http.StatusConflict
	case sale.ClassWithdrawal:
		return http.StatusUnprocessableEntity
	case sale.ClassFatal:
		return http.StatusInternalServerError
	case sale.ClassInput:
		if errors.Is(err, sale.ErrCollaboratorMissing) {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Class: sale.Classify(err).String()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
