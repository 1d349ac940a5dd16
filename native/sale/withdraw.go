package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/events"
)

// WithdrawAccepted moves amount of the accepted pool to the project wallet.
// The money is sent before anything is recorded; a failed send leaves the
// engine untouched.
func (e *Engine) WithdrawAccepted(caller common.Address, amount *uint256.Int) (*Transfer, error) {
	if caller != e.settings.ProjectWallet {
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if e.funds == nil {
		return nil, fmt.Errorf("%w: fund sender", ErrCollaboratorMissing)
	}
	tx, err := e.beginGlobalChecked()
	if err != nil {
		return nil, err
	}
	available := tx.totals.Withdrawable()
	if available.Lt(amount) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientAcceptedBalance, amount.Dec(), available.Dec())
	}
	if err := addTo(&tx.totals.ProjectWithdrawn, amount); err != nil {
		return nil, err
	}
	idx := e.addTransfer(tx, TransferProjectWithdraw, e.settings.ProjectWallet, amount)
	tx.transfers[idx].Delivered = true
	to, value := e.settings.ProjectWallet, *amount
	tx.payout = func() error {
		if err := e.funds.Send(to, &value); err != nil {
			return wrapCollaborator(ErrFundTransferFailure, err)
		}
		return nil
	}
	if err := e.commit(tx); err != nil {
		return nil, err
	}
	tr := tx.transfers[idx]
	return &tr, nil
}

// ClaimRefund delivers everything returned to participant but not yet paid
// out, typically after an earlier automatic push failed. Anyone may trigger it;
// the money only ever goes to the participant.
func (e *Engine) ClaimRefund(participant common.Address) (*Transfer, error) {
	if e.funds == nil {
		return nil, fmt.Errorf("%w: fund sender", ErrCollaboratorMissing)
	}
	tx, err := e.begin(participant, false)
	if err != nil {
		return nil, err
	}
	p := tx.participant
	owed := p.Owed()
	if owed.IsZero() {
		return nil, ErrNothingOwed
	}
	for i := range p.Stages {
		stageOwed := p.Stages[i].Owed()
		if stageOwed.IsZero() {
			continue
		}
		if err := tx.credit(uint8(i), withdrawn, stageOwed); err != nil {
			return nil, e.fail(tx, err)
		}
	}
	idx := e.addTransfer(tx, TransferParticipantWithdraw, participant, owed)
	tx.transfers[idx].Delivered = true
	value := *owed
	tx.payout = func() error {
		if err := e.funds.Send(participant, &value); err != nil {
			return wrapCollaborator(ErrFundTransferFailure, err)
		}
		return nil
	}
	if err := e.commit(tx); err != nil {
		return nil, err
	}
	tr := tx.transfers[idx]
	return &tr, nil
}

// CancelSale closes the sale for new contributions and whitelist acceptance.
// Pending contributions can still be rejected or cancelled so their money
// goes back.
func (e *Engine) CancelSale(caller common.Address) error {
	if caller != e.settings.WhitelistController {
		return ErrUnauthorized
	}
	if e.cancelled {
		return ErrSaleCancelled
	}
	tx, err := e.beginGlobalChecked()
	if err != nil {
		return err
	}
	tx.cancelSale = true
	tx.events = append(tx.events, events.SaleCancelled{Caller: caller, Tick: tx.tick})
	return e.commit(tx)
}
