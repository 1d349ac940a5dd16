package sale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"rico/core/events"
	nativecommon "rico/native/common"
)

// moduleName is the key under which operators pause the sale.
const moduleName = "sale"

// TickSource supplies the external, monotonic sale time (block height in a
// chain deployment). The engine never advances it.
type TickSource interface {
	CurrentTick() uint64
}

// TickFunc adapts a function to the TickSource interface.
type TickFunc func() uint64

// CurrentTick implements TickSource.
func (f TickFunc) CurrentTick() uint64 { return f() }

// TokenLedger mints and burns the sale token on accept and reject decisions.
type TokenLedger interface {
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	BalanceOf(holder common.Address) (*uint256.Int, error)
}

// FundSender moves contributed money out of the sale.
type FundSender interface {
	Send(to common.Address, amount *uint256.Int) error
}

// Engine is the staged, reversible sale accounting engine. It is a single
// writer: callers must serialise every call. Each mutating call stages its
// changes on copies and commits them only when the call succeeds.
type Engine struct {
	settings Settings
	schedule *Schedule

	ticks   TickSource
	tokens  TokenLedger
	funds   FundSender
	emitter events.Emitter
	logger  *slog.Logger
	pauses  nativecommon.PauseView

	lastTick      uint64
	cancelled     bool
	participants  map[common.Address]*Participant
	order         []common.Address
	contributions map[common.Address][]Contribution
	totals        GlobalTotals
	stageTotals   []Totals
	transfers     []Transfer
	decisions     []DecisionRecord

	halted             error
	haltedParticipants map[common.Address]error
}

// NewEngine validates the settings and builds an engine with a no-op emitter.
// Tick source, token ledger and fund sender must be configured before use.
func NewEngine(settings Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	schedule, err := ScheduleFromSettings(settings)
	if err != nil {
		return nil, err
	}
	return &Engine{
		settings:           settings,
		schedule:           schedule,
		emitter:            events.NoopEmitter{},
		logger:             slog.Default(),
		participants:       make(map[common.Address]*Participant),
		contributions:      make(map[common.Address][]Contribution),
		stageTotals:        make([]Totals, schedule.Len()),
		haltedParticipants: make(map[common.Address]error),
	}, nil
}

// SetTickSource configures the external time source.
func (e *Engine) SetTickSource(ticks TickSource) { e.ticks = ticks }

// SetTokenLedger configures the token collaborator.
func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

// SetFundSender configures the fund transfer collaborator.
func (e *Engine) SetFundSender(funds FundSender) { e.funds = funds }

// SetPauses wires the operator pause switch. A paused engine rejects every
// mutating call and keeps serving queries.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the logger used for fatal violations and failed refund
// pushes.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// txn is the scratch copy a mutating call works on.
type txn struct {
	tick        uint64
	addr        common.Address
	participant *Participant
	created     bool
	log         []Contribution
	totals      GlobalTotals
	stages      []Totals
	transfers   []Transfer
	decisions   []DecisionRecord
	events      []events.Event
	cancelSale  bool

	tokenOp func() error
	payout  func() error
	refund  *refundPlan
}

// refundPlan is the money a call returns to its participant, split per stage,
// and the index of the transfer recording it.
type refundPlan struct {
	transfer int
	byStage  []uint256.Int
}

func (e *Engine) observeTick() (uint64, error) {
	if e.ticks == nil {
		return 0, fmt.Errorf("%w: tick source", ErrCollaboratorMissing)
	}
	tick := e.ticks.CurrentTick()
	if tick < e.lastTick {
		return 0, fmt.Errorf("%w: %d < %d", ErrStaleTick, tick, e.lastTick)
	}
	return tick, nil
}

// begin stages a call for addr. When create is false the participant must
// already exist.
func (e *Engine) begin(addr common.Address, create bool) (*txn, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.halted != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineHalted, e.halted)
	}
	if err, ok := e.haltedParticipants[addr]; ok {
		return nil, fmt.Errorf("%w: %v", ErrEngineHalted, err)
	}
	tick, err := e.observeTick()
	if err != nil {
		return nil, err
	}
	tx := e.beginGlobal(tick)
	tx.addr = addr
	if existing, ok := e.participants[addr]; ok {
		tx.participant = existing.Clone()
		tx.log = append([]Contribution(nil), e.contributions[addr]...)
		return tx, nil
	}
	if !create {
		return nil, ErrUnknownParticipant
	}
	tx.participant = newParticipant(addr, e.schedule.Len())
	tx.created = true
	return tx, nil
}

func (e *Engine) beginGlobal(tick uint64) *txn {
	return &txn{
		tick:   tick,
		totals: e.totals,
		stages: append([]Totals(nil), e.stageTotals...),
	}
}

func (e *Engine) beginGlobalChecked() (*txn, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.halted != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineHalted, e.halted)
	}
	tick, err := e.observeTick()
	if err != nil {
		return nil, err
	}
	return e.beginGlobal(tick), nil
}

// buckets returns every Totals a per-participant change at stage must touch.
func (tx *txn) buckets(stage uint8) []*Totals {
	return []*Totals{
		&tx.participant.Totals,
		&tx.participant.Stages[stage],
		&tx.totals.Totals,
		&tx.stages[stage],
	}
}

func (tx *txn) credit(stage uint8, field func(*Totals) *uint256.Int, amount *uint256.Int) error {
	for _, b := range tx.buckets(stage) {
		if err := addTo(field(b), amount); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txn) debit(stage uint8, field func(*Totals) *uint256.Int, amount *uint256.Int) error {
	for _, b := range tx.buckets(stage) {
		if err := subFrom(field(b), amount); err != nil {
			return err
		}
	}
	return nil
}

func received(t *Totals) *uint256.Int       { return &t.Received }
func returned(t *Totals) *uint256.Int       { return &t.Returned }
func accepted(t *Totals) *uint256.Int       { return &t.Accepted }
func withdrawn(t *Totals) *uint256.Int      { return &t.Withdrawn }
func pending(t *Totals) *uint256.Int        { return &t.Pending }
func tokensReserved(t *Totals) *uint256.Int { return &t.TokensReserved }
func tokensAwarded(t *Totals) *uint256.Int  { return &t.TokensAwarded }

func (e *Engine) addTransfer(tx *txn, kind TransferType, to common.Address, amount *uint256.Int) int {
	seq := uint64(len(e.transfers) + len(tx.transfers))
	tr := Transfer{
		Seq:    seq,
		Type:   kind,
		To:     to,
		Amount: *amount,
		Tick:   tx.tick,
	}
	tr.ID = transferID(seq, kind, to, amount)
	tx.transfers = append(tx.transfers, tr)
	return len(tx.transfers) - 1
}

func transferID(seq uint64, kind TransferType, to common.Address, amount *uint256.Int) [32]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	amountBytes := amount.Bytes32()
	return ethcrypto.Keccak256Hash(seqBytes[:], []byte{byte(kind)}, to.Bytes(), amountBytes[:])
}

func (e *Engine) addDecision(tx *txn, kind DecisionKind, s *Settlement) {
	tx.decisions = append(tx.decisions, DecisionRecord{
		Seq:            uint64(len(e.decisions) + len(tx.decisions)),
		Participant:    tx.addr,
		Kind:           kind,
		Tick:           tx.tick,
		Accepted:       s.Accepted,
		Returned:       s.Returned,
		TokensAwarded:  s.TokensAwarded,
		TokensReversed: s.TokensReversed,
	})
}

// planRefund attaches a refund of byStage to the transfer at index.
func (tx *txn) planRefund(index int, byStage []uint256.Int) {
	tx.refund = &refundPlan{transfer: index, byStage: byStage}
}

// commit verifies the staged state, runs the external token operation or
// payout, pushes any refund and finally swaps the staged copies in. Nothing is
// written to the engine before the external operation has succeeded.
func (e *Engine) commit(tx *txn) error {
	if err := e.verify(tx); err != nil {
		return e.fail(tx, err)
	}
	if tx.tokenOp != nil {
		if err := tx.tokenOp(); err != nil {
			return err
		}
	}
	if tx.payout != nil {
		if err := tx.payout(); err != nil {
			return err
		}
	}
	if tx.refund != nil {
		e.pushRefund(tx)
	}
	if p := tx.participant; p != nil {
		if tx.created {
			e.order = append(e.order, p.Address)
		}
		e.participants[p.Address] = p
		e.contributions[p.Address] = tx.log
	}
	e.totals = tx.totals
	e.stageTotals = tx.stages
	e.transfers = append(e.transfers, tx.transfers...)
	e.decisions = append(e.decisions, tx.decisions...)
	if tx.cancelSale {
		e.cancelled = true
	}
	e.lastTick = tx.tick
	for _, tr := range tx.transfers {
		tx.events = append(tx.events, transferEvent(tr))
	}
	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	return nil
}

// pushRefund tries to deliver the planned refund. A failed push is not an
// error: the amount stays owed and can be claimed later.
func (e *Engine) pushRefund(tx *txn) {
	plan := tx.refund
	tr := &tx.transfers[plan.transfer]
	if e.funds == nil {
		e.logger.Warn("sale refund left owed", "participant", tr.To.Hex(), "amount", tr.Amount.Dec(), "reason", "fund sender not configured")
		return
	}
	if err := e.funds.Send(tr.To, new(uint256.Int).Set(&tr.Amount)); err != nil {
		e.logger.Warn("sale refund left owed", "participant", tr.To.Hex(), "amount", tr.Amount.Dec(), "error", err)
		return
	}
	for stage := range plan.byStage {
		amount := &plan.byStage[stage]
		if amount.IsZero() {
			continue
		}
		// Returned was raised by the same amount in this call, so the
		// increment cannot overtake it.
		if err := tx.credit(uint8(stage), withdrawn, amount); err != nil {
			e.logger.Error("sale refund bookkeeping failed", "participant", tr.To.Hex(), "error", err)
		}
	}
	tr.Delivered = true
}

// fail converts arithmetic underflows and invariant violations into fatal
// errors and halts the affected state. Other errors pass through untouched.
func (e *Engine) fail(tx *txn, err error) error {
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		if !errors.Is(err, ErrNegativeBalance) {
			return err
		}
		fatal = &FatalError{Participant: tx.addr, Check: "checked subtraction", Err: err}
	}
	if fatal.Participant == (common.Address{}) {
		e.halted = fatal
	} else {
		e.haltedParticipants[fatal.Participant] = fatal
	}
	e.logger.Error("sale invariant violated", "participant", fatal.Participant.Hex(), "check", fatal.Check, "error", fatal.Err)
	return fatal
}

// Settings returns the settings the engine was built with.
func (e *Engine) Settings() Settings { return e.settings }

// Schedule returns the immutable stage schedule.
func (e *Engine) Schedule() *Schedule { return e.schedule }

// LastTick is the tick of the last committed mutation.
func (e *Engine) LastTick() uint64 { return e.lastTick }

// Cancelled reports whether the committee closed the sale.
func (e *Engine) Cancelled() bool { return e.cancelled }

// Halted returns the global fatal error, if any.
func (e *Engine) Halted() error { return e.halted }

// Participant returns a copy of the participant ledger entry.
func (e *Engine) Participant(addr common.Address) (*Participant, bool) {
	p, ok := e.participants[addr]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ParticipantStage returns the participant totals for a single stage.
func (e *Engine) ParticipantStage(addr common.Address, stage uint8) (Totals, error) {
	p, ok := e.participants[addr]
	if !ok {
		return Totals{}, ErrUnknownParticipant
	}
	if int(stage) >= len(p.Stages) {
		return Totals{}, ErrInvalidStage
	}
	return p.Stages[stage], nil
}

// Participants lists participant addresses in first-contribution order.
func (e *Engine) Participants() []common.Address {
	return append([]common.Address(nil), e.order...)
}

// Contributions returns a copy of the participant's contribution log.
func (e *Engine) Contributions(addr common.Address) []Contribution {
	return append([]Contribution(nil), e.contributions[addr]...)
}

// Pending returns the unresolved contributions of a participant in receipt
// order.
func (e *Engine) Pending(addr common.Address) []Contribution {
	var out []Contribution
	for _, c := range e.contributions[addr] {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

// StageTotals returns the global totals of one stage.
func (e *Engine) StageTotals(stage uint8) (Totals, error) {
	if int(stage) >= len(e.stageTotals) {
		return Totals{}, ErrInvalidStage
	}
	return e.stageTotals[stage], nil
}

// Totals returns the global totals.
func (e *Engine) Totals() GlobalTotals { return e.totals }

// Transfers returns the full transfer audit trail.
func (e *Engine) Transfers() []Transfer {
	return append([]Transfer(nil), e.transfers...)
}

// TransfersTo returns the audit trail entries addressed to addr.
func (e *Engine) TransfersTo(addr common.Address) []Transfer {
	var out []Transfer
	for _, tr := range e.transfers {
		if tr.To == addr {
			out = append(out, tr)
		}
	}
	return out
}

// Decisions returns the decisions applied to addr.
func (e *Engine) Decisions(addr common.Address) []DecisionRecord {
	var out []DecisionRecord
	for _, d := range e.decisions {
		if d.Participant == addr {
			out = append(out, d)
		}
	}
	return out
}
