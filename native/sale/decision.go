package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/events"
)

// ApplyDecision resolves the participant's entire pending queue according to
// kind. Committee decisions must come from the whitelist controller; a
// participant cancel must come from the participant itself. On error the
// engine state is unchanged.
func (e *Engine) ApplyDecision(caller, participant common.Address, kind DecisionKind) (*Settlement, error) {
	switch kind {
	case DecisionWhitelistAccept, DecisionWhitelistReject, DecisionCommitAccept:
		if caller != e.settings.WhitelistController {
			return nil, ErrUnauthorized
		}
	case DecisionParticipantCancel:
		if caller != participant {
			return nil, ErrUnauthorized
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDecision, kind)
	}
	tx, err := e.begin(participant, false)
	if err != nil {
		return nil, err
	}
	var settlement *Settlement
	switch kind {
	case DecisionWhitelistAccept:
		settlement, err = e.whitelistAccept(tx)
	case DecisionWhitelistReject:
		settlement, err = e.whitelistReject(tx)
	case DecisionParticipantCancel:
		settlement, err = e.participantCancel(tx)
	case DecisionCommitAccept:
		settlement, err = e.commitAccept(tx)
	}
	if err != nil {
		return nil, e.fail(tx, err)
	}
	if settlement == nil {
		// Idempotent repeat of a marker decision.
		return &Settlement{Decision: kind, Participant: participant, Status: tx.participant.Status}, nil
	}
	settlement.Status = tx.participant.Status
	e.addDecision(tx, kind, settlement)
	tx.events = append(tx.events, events.SaleDecisionApplied{
		Participant:    participant,
		Decision:       kind.String(),
		Status:         settlement.Status.String(),
		Accepted:       u256(&settlement.Accepted),
		Returned:       u256(&settlement.Returned),
		TokensAwarded:  u256(&settlement.TokensAwarded),
		TokensReversed: u256(&settlement.TokensReversed),
		Tick:           tx.tick,
	})
	if err := e.commit(tx); err != nil {
		return nil, err
	}
	settlement.Transfers = append([]Transfer(nil), tx.transfers...)
	return settlement, nil
}

// CancelPending lets a participant take back its own pending contributions.
func (e *Engine) CancelPending(participant common.Address) (*Settlement, error) {
	return e.ApplyDecision(participant, participant, DecisionParticipantCancel)
}

func (e *Engine) whitelistAccept(tx *txn) (*Settlement, error) {
	if tx.participant.Status != StatusUnset {
		return nil, ErrAlreadyResolved
	}
	if e.cancelled {
		return nil, ErrSaleCancelled
	}
	tx.participant.Status = StatusWhitelisted
	return e.acceptPending(tx, DecisionWhitelistAccept)
}

// acceptPending accepts every pending contribution in receipt order at the
// price of the stage it arrived in. The part of a contribution above the
// acceptance room is returned with an automatic refund. Awarded tokens are
// minted in a single ledger call at commit.
func (e *Engine) acceptPending(tx *txn, kind DecisionKind) (*Settlement, error) {
	s := &Settlement{Decision: kind, Participant: tx.addr}
	byStage := make([]uint256.Int, e.schedule.Len())
	for i := range tx.log {
		c := &tx.log[i]
		if c.Resolved {
			continue
		}
		stage, ok := e.schedule.Stage(c.Stage)
		if !ok {
			return nil, &FatalError{Participant: tx.addr, Check: "contribution stage outside schedule", Err: ErrInvariantViolation}
		}
		take := c.Amount
		room, bounded := e.acceptanceRoom(tx, stage)
		if bounded && room.Lt(&take) {
			take = room
		}
		overflow, err := subChecked(&c.Amount, &take)
		if err != nil {
			return nil, err
		}
		tokens, dust := TokensFor(&take, &stage.UnitPrice)
		released, err := subChecked(&c.TokensReserved, &tokens)
		if err != nil {
			return nil, err
		}
		if err := tx.debit(c.Stage, pending, &c.Amount); err != nil {
			return nil, err
		}
		if err := tx.credit(c.Stage, accepted, &take); err != nil {
			return nil, err
		}
		if err := tx.credit(c.Stage, returned, &overflow); err != nil {
			return nil, err
		}
		if err := tx.debit(c.Stage, tokensReserved, &released); err != nil {
			return nil, err
		}
		if err := tx.credit(c.Stage, tokensAwarded, &tokens); err != nil {
			return nil, err
		}
		if err := addTo(&tx.totals.Dust, &dust); err != nil {
			return nil, err
		}
		c.Resolved = true
		c.ResolvedTick = tx.tick
		c.Accepted = take
		c.Returned = overflow
		c.TokensReserved = tokens
		c.TokensAwarded = tokens
		c.Dust = dust
		if err := addTo(&s.Accepted, &take); err != nil {
			return nil, err
		}
		if err := addTo(&s.Returned, &overflow); err != nil {
			return nil, err
		}
		if err := addTo(&s.TokensAwarded, &tokens); err != nil {
			return nil, err
		}
		if err := addTo(&byStage[c.Stage], &overflow); err != nil {
			return nil, err
		}
		tx.events = append(tx.events, events.SaleContributionAccepted{
			Participant: tx.addr,
			Seq:         c.Seq,
			Stage:       c.Stage,
			Accepted:    u256(&take),
			Returned:    u256(&overflow),
			Tokens:      u256(&tokens),
			Tick:        tx.tick,
		})
	}
	if !s.Returned.IsZero() {
		idx := e.addTransfer(tx, TransferAutomaticRefund, tx.addr, &s.Returned)
		tx.planRefund(idx, byStage)
	}
	if !s.TokensAwarded.IsZero() {
		if err := e.requireTokens(); err != nil {
			return nil, err
		}
		to, amount := tx.addr, s.TokensAwarded
		tx.tokenOp = func() error {
			if err := e.tokens.Mint(to, &amount); err != nil {
				return wrapCollaborator(ErrTokenLedgerFailure, err)
			}
			return nil
		}
	}
	return s, nil
}

// acceptanceRoom is the largest amount that may still be accepted for the
// participant at stage. bounded is false when no ceiling applies.
func (e *Engine) acceptanceRoom(tx *txn, stage Stage) (uint256.Int, bool) {
	var room uint256.Int
	bounded := false
	limit := func(ceiling, used *uint256.Int) {
		var left uint256.Int
		if used.Lt(ceiling) {
			left.Sub(ceiling, used)
		}
		if !bounded || left.Lt(&room) {
			room = left
		}
		bounded = true
	}
	p := tx.participant
	if ceiling := &e.settings.ParticipantCap; !ceiling.IsZero() {
		limit(ceiling, &p.Accepted)
	}
	if ceiling := &e.settings.ParticipantStageCap; !ceiling.IsZero() {
		limit(ceiling, &p.Stages[stage.Index].Accepted)
	}
	if ceiling := &e.settings.SaleCap; !ceiling.IsZero() {
		limit(ceiling, &tx.totals.Accepted)
	}
	if supply := &e.settings.TokenSupply; !supply.IsZero() {
		var tokensLeft uint256.Int
		if tx.totals.TokensAwarded.Lt(supply) {
			tokensLeft.Sub(supply, &tx.totals.TokensAwarded)
		}
		// An overflowing product is larger than any amount, so it imposes no
		// ceiling.
		if moneyLeft, err := mulChecked(&tokensLeft, &stage.UnitPrice); err == nil {
			var zero uint256.Int
			limit(&moneyLeft, &zero)
		}
	}
	return room, bounded
}

func (e *Engine) whitelistReject(tx *txn) (*Settlement, error) {
	p := tx.participant
	switch p.Status {
	case StatusUnset:
		p.Status = StatusRejected
		return e.returnPending(tx, DecisionWhitelistReject, TransferWhitelistCancel)
	case StatusWhitelisted:
		if p.Committed {
			if p.Pending.IsZero() {
				return nil, ErrAlreadyResolved
			}
			return e.returnPending(tx, DecisionWhitelistReject, TransferWhitelistCancel)
		}
		p.Status = StatusCancelled
		return e.reverseParticipant(tx)
	default:
		if p.Pending.IsZero() {
			return nil, ErrAlreadyResolved
		}
		return e.returnPending(tx, DecisionWhitelistReject, TransferWhitelistCancel)
	}
}

func (e *Engine) participantCancel(tx *txn) (*Settlement, error) {
	if tx.participant.Pending.IsZero() {
		return nil, ErrNoPendingContributions
	}
	return e.returnPending(tx, DecisionParticipantCancel, TransferParticipantCancel)
}

// commitAccept marks the accepted funds of a whitelisted participant as final.
// A repeat returns a nil settlement and leaves the state untouched.
func (e *Engine) commitAccept(tx *txn) (*Settlement, error) {
	p := tx.participant
	switch p.Status {
	case StatusUnset:
		return nil, ErrNotWhitelisted
	case StatusRejected, StatusCancelled:
		return nil, ErrAlreadyResolved
	}
	if p.Committed {
		return nil, nil
	}
	p.Committed = true
	p.CommittedTick = tx.tick
	s := &Settlement{Decision: DecisionCommitAccept, Participant: tx.addr, Accepted: p.Accepted, TokensAwarded: p.TokensAwarded}
	return s, nil
}

// returnPending resolves every pending contribution back to the participant
// and records one transfer of kind for the whole amount.
func (e *Engine) returnPending(tx *txn, decision DecisionKind, kind TransferType) (*Settlement, error) {
	s := &Settlement{Decision: decision, Participant: tx.addr}
	byStage := make([]uint256.Int, e.schedule.Len())
	if err := e.returnPendingInto(tx, s, byStage, decision.String()); err != nil {
		return nil, err
	}
	if !s.Returned.IsZero() {
		idx := e.addTransfer(tx, kind, tx.addr, &s.Returned)
		tx.planRefund(idx, byStage)
	}
	return s, nil
}

func (e *Engine) returnPendingInto(tx *txn, s *Settlement, byStage []uint256.Int, reason string) error {
	for i := range tx.log {
		c := &tx.log[i]
		if c.Resolved {
			continue
		}
		if err := tx.debit(c.Stage, pending, &c.Amount); err != nil {
			return err
		}
		if err := tx.credit(c.Stage, returned, &c.Amount); err != nil {
			return err
		}
		if err := tx.debit(c.Stage, tokensReserved, &c.TokensReserved); err != nil {
			return err
		}
		c.Resolved = true
		c.ResolvedTick = tx.tick
		c.Returned = c.Amount
		c.TokensReserved = uint256.Int{}
		if err := addTo(&s.Returned, &c.Amount); err != nil {
			return err
		}
		if err := addTo(&byStage[c.Stage], &c.Amount); err != nil {
			return err
		}
		tx.events = append(tx.events, events.SaleContributionReturned{
			Participant: tx.addr,
			Seq:         c.Seq,
			Stage:       c.Stage,
			Amount:      u256(&c.Amount),
			Reason:      reason,
			Tick:        tx.tick,
		})
	}
	return nil
}

// reverseParticipant returns both pending and previously accepted money of a
// whitelisted participant. The participant must still hold every awarded
// token; they are burned at commit.
func (e *Engine) reverseParticipant(tx *txn) (*Settlement, error) {
	s := &Settlement{Decision: DecisionWhitelistReject, Participant: tx.addr}
	byStage := make([]uint256.Int, e.schedule.Len())
	if err := e.returnPendingInto(tx, s, byStage, DecisionWhitelistReject.String()); err != nil {
		return nil, err
	}
	for i := range tx.log {
		c := &tx.log[i]
		if c.Accepted.IsZero() && c.TokensAwarded.IsZero() {
			continue
		}
		if err := tx.debit(c.Stage, accepted, &c.Accepted); err != nil {
			return nil, err
		}
		if err := tx.credit(c.Stage, returned, &c.Accepted); err != nil {
			return nil, err
		}
		if err := tx.debit(c.Stage, tokensAwarded, &c.TokensAwarded); err != nil {
			return nil, err
		}
		if err := tx.debit(c.Stage, tokensReserved, &c.TokensReserved); err != nil {
			return nil, err
		}
		if err := subFrom(&tx.totals.Dust, &c.Dust); err != nil {
			return nil, err
		}
		if err := addTo(&s.Returned, &c.Accepted); err != nil {
			return nil, err
		}
		if err := addTo(&byStage[c.Stage], &c.Accepted); err != nil {
			return nil, err
		}
		if err := addTo(&s.TokensReversed, &c.TokensAwarded); err != nil {
			return nil, err
		}
		tx.events = append(tx.events, events.SaleContributionReturned{
			Participant: tx.addr,
			Seq:         c.Seq,
			Stage:       c.Stage,
			Amount:      u256(&c.Accepted),
			Reason:      "accepted_reversed",
			Tick:        tx.tick,
		})
		if err := addTo(&c.Returned, &c.Accepted); err != nil {
			return nil, err
		}
		c.Accepted = uint256.Int{}
		c.TokensAwarded = uint256.Int{}
		c.TokensReserved = uint256.Int{}
		c.Dust = uint256.Int{}
	}
	if tx.totals.Accepted.Lt(&tx.totals.ProjectWithdrawn) {
		return nil, fmt.Errorf("%w: project already withdrew %s of %s accepted after reversal",
			ErrInsufficientAcceptedBalance, tx.totals.ProjectWithdrawn.Dec(), tx.totals.Accepted.Dec())
	}
	if !s.TokensReversed.IsZero() {
		if err := e.requireTokens(); err != nil {
			return nil, err
		}
		balance, err := e.tokens.BalanceOf(tx.addr)
		if err != nil {
			return nil, wrapCollaborator(ErrTokenLedgerFailure, err)
		}
		if balance == nil || balance.Lt(&s.TokensReversed) {
			return nil, fmt.Errorf("%w: holds %s, owes %s", ErrInsufficientTokenReturn, formatAmount(balance), s.TokensReversed.Dec())
		}
		from, amount := tx.addr, s.TokensReversed
		tx.tokenOp = func() error {
			if err := e.tokens.Burn(from, &amount); err != nil {
				return wrapCollaborator(ErrTokenLedgerFailure, err)
			}
			return nil
		}
	}
	if !s.Returned.IsZero() {
		idx := e.addTransfer(tx, TransferWhitelistCancel, tx.addr, &s.Returned)
		tx.planRefund(idx, byStage)
	}
	return s, nil
}

func (e *Engine) requireTokens() error {
	if e.tokens == nil {
		return fmt.Errorf("%w: token ledger", ErrCollaboratorMissing)
	}
	return nil
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
