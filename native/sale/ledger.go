package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/events"
)

// Contribute records amount received from participant at the current tick.
// Contributions outside the schedule fail with ErrOutOfSale and leave no trace;
// the caller must hand the funds straight back. Contributions from a
// whitelisted participant are accepted within the same call and the returned
// settlement describes that acceptance.
func (e *Engine) Contribute(participant common.Address, amount *uint256.Int) (*Contribution, *Settlement, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, ErrInvalidAmount
	}
	if participant == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: zero participant address", ErrInvalidAmount)
	}
	tx, err := e.begin(participant, true)
	if err != nil {
		return nil, nil, err
	}
	if e.cancelled {
		return nil, nil, ErrSaleCancelled
	}
	stage, ok := e.schedule.StageAt(tx.tick)
	if !ok {
		return nil, nil, fmt.Errorf("%w: tick %d outside [%d, %d)", ErrOutOfSale, tx.tick, e.schedule.Start(), e.schedule.End())
	}
	if amount.Lt(&e.settings.MinContribution) {
		return nil, nil, ErrContributionTooSmall
	}
	idx, err := e.recordContribution(tx, stage, amount)
	if err != nil {
		return nil, nil, e.fail(tx, err)
	}
	var settlement *Settlement
	if tx.participant.Status == StatusWhitelisted {
		settlement, err = e.acceptPending(tx, DecisionWhitelistAccept)
		if err != nil {
			return nil, nil, e.fail(tx, err)
		}
	}
	if err := e.commit(tx); err != nil {
		return nil, nil, err
	}
	contribution := tx.log[idx]
	if settlement != nil {
		settlement.Transfers = append([]Transfer(nil), tx.transfers...)
	}
	return &contribution, settlement, nil
}

// recordContribution folds a new pending contribution into the staged ledger.
// The reserved token estimate uses the stage price and is final only once the
// contribution is resolved.
func (e *Engine) recordContribution(tx *txn, stage Stage, amount *uint256.Int) (int, error) {
	p := tx.participant
	if p.ContributionsCount >= e.settings.maxContributions() {
		return 0, ErrTooManyContributions
	}
	reserved, _ := TokensFor(amount, &stage.UnitPrice)
	c := Contribution{
		Seq:            p.ContributionsCount,
		Participant:    p.Address,
		Stage:          stage.Index,
		Amount:         *amount,
		Tick:           tx.tick,
		TokensReserved: reserved,
	}
	if err := tx.credit(stage.Index, received, amount); err != nil {
		return 0, err
	}
	if err := tx.credit(stage.Index, pending, amount); err != nil {
		return 0, err
	}
	if err := tx.credit(stage.Index, tokensReserved, &reserved); err != nil {
		return 0, err
	}
	p.ContributionsCount++
	tx.log = append(tx.log, c)
	tx.events = append(tx.events, events.SaleContributionNew{
		Participant: p.Address,
		Seq:         c.Seq,
		Stage:       c.Stage,
		Amount:      u256(amount),
		Tick:        tx.tick,
	})
	return len(tx.log) - 1, nil
}
