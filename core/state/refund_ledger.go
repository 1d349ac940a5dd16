package state

import (
	"fmt"
	"math/big"
)

var refundLedgerPrefix = []byte("refund/thread/")

// RefundLedger links the money a participant paid into the sale vault with
// the refunds paid back out, and refuses refunds above the deposited total.
type RefundLedger struct {
	manager *Manager
}

// RefundRecord captures the stored state for a given depositor.
type RefundRecord struct {
	Depositor          [20]byte
	Deposited          *big.Int
	LastDepositTick    uint64
	CumulativeRefunded *big.Int
	Refunds            []RefundLink
}

// RefundLink describes an individual refund entry. Reference is the vault
// payout reference carried by the matching transfer event.
type RefundLink struct {
	Reference [32]byte
	Amount    *big.Int
	Tick      uint64
}

type storedRefundRecord struct {
	Deposited          *big.Int
	LastDepositTick    uint64
	CumulativeRefunded *big.Int
	Refunds            []storedRefundLink
}

type storedRefundLink struct {
	Reference [32]byte
	Amount    *big.Int
	Tick      uint64
}

// RefundLedger returns a refund ledger helper bound to the manager.
func (m *Manager) RefundLedger() *RefundLedger {
	if m == nil {
		return nil
	}
	return &RefundLedger{manager: m}
}

// RecordDeposit adds amount to the depositor's running total. Amounts must be
// strictly positive.
func (l *RefundLedger) RecordDeposit(depositor [20]byte, amount *big.Int, tick uint64) (*RefundRecord, error) {
	if l == nil || l.manager == nil {
		return nil, fmt.Errorf("refund: ledger unavailable")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("refund: deposit amount must be positive")
	}
	stored, ok, err := l.load(depositor)
	if err != nil {
		return nil, err
	}
	if !ok {
		stored = &storedRefundRecord{
			Deposited:          big.NewInt(0),
			CumulativeRefunded: big.NewInt(0),
			Refunds:            make([]storedRefundLink, 0),
		}
	}
	stored.Deposited = new(big.Int).Add(stored.Deposited, amount)
	stored.LastDepositTick = tick
	if err := l.manager.KVPut(refundLedgerKey(depositor), stored); err != nil {
		return nil, err
	}
	return refundRecordFromStored(depositor, stored), nil
}

// ValidateRefund ensures the requested refund will not exceed the deposited
// amount.
func (l *RefundLedger) ValidateRefund(depositor [20]byte, amount *big.Int) error {
	if l == nil || l.manager == nil {
		return fmt.Errorf("refund: ledger unavailable")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("refund: refund amount must be positive")
	}
	stored, ok, err := l.load(depositor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refund: depositor %x not found", depositor)
	}
	next := new(big.Int).Add(stored.CumulativeRefunded, amount)
	if next.Cmp(stored.Deposited) > 0 {
		return fmt.Errorf("refund: cumulative refunds %s exceed deposits %s", next.String(), stored.Deposited.String())
	}
	return nil
}

// ApplyRefund records a refund entry and updates the cumulative refunded
// amount. Validation should be performed via ValidateRefund prior to calling
// this method to avoid mid-transfer failures.
func (l *RefundLedger) ApplyRefund(depositor [20]byte, reference [32]byte, amount *big.Int, tick uint64) (*RefundRecord, error) {
	if err := l.ValidateRefund(depositor, amount); err != nil {
		return nil, err
	}
	stored, _, err := l.load(depositor)
	if err != nil {
		return nil, err
	}
	stored.CumulativeRefunded = new(big.Int).Add(stored.CumulativeRefunded, amount)
	stored.Refunds = append(stored.Refunds, storedRefundLink{
		Reference: reference,
		Amount:    new(big.Int).Set(amount),
		Tick:      tick,
	})
	if err := l.manager.KVPut(refundLedgerKey(depositor), stored); err != nil {
		return nil, err
	}
	return refundRecordFromStored(depositor, stored), nil
}

// Thread returns the complete refund record for the depositor.
func (l *RefundLedger) Thread(depositor [20]byte) (*RefundRecord, bool, error) {
	if l == nil || l.manager == nil {
		return nil, false, fmt.Errorf("refund: ledger unavailable")
	}
	stored, ok, err := l.load(depositor)
	if err != nil || !ok {
		return nil, false, err
	}
	return refundRecordFromStored(depositor, stored), true, nil
}

func (l *RefundLedger) load(depositor [20]byte) (*storedRefundRecord, bool, error) {
	var stored storedRefundRecord
	ok, err := l.manager.KVGet(refundLedgerKey(depositor), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.Deposited == nil {
		stored.Deposited = big.NewInt(0)
	}
	if stored.CumulativeRefunded == nil {
		stored.CumulativeRefunded = big.NewInt(0)
	}
	if stored.Refunds == nil {
		stored.Refunds = make([]storedRefundLink, 0)
	}
	return &stored, true, nil
}

func refundLedgerKey(depositor [20]byte) []byte {
	key := make([]byte, len(refundLedgerPrefix)+len(depositor))
	copy(key, refundLedgerPrefix)
	copy(key[len(refundLedgerPrefix):], depositor[:])
	return key
}

func refundRecordFromStored(depositor [20]byte, stored *storedRefundRecord) *RefundRecord {
	record := &RefundRecord{
		Depositor:          depositor,
		Deposited:          new(big.Int).Set(stored.Deposited),
		LastDepositTick:    stored.LastDepositTick,
		CumulativeRefunded: new(big.Int).Set(stored.CumulativeRefunded),
		Refunds:            make([]RefundLink, 0, len(stored.Refunds)),
	}
	for _, link := range stored.Refunds {
		amount := big.NewInt(0)
		if link.Amount != nil {
			amount = new(big.Int).Set(link.Amount)
		}
		record.Refunds = append(record.Refunds, RefundLink{
			Reference: link.Reference,
			Amount:    amount,
			Tick:      link.Tick,
		})
	}
	return record
}
