package state

import (
	"math/big"
	"testing"
)

func TestRefundLedgerDepositAndRefund(t *testing.T) {
	manager := newTestManager(t)
	ledger := manager.RefundLedger()
	if ledger == nil {
		t.Fatalf("expected refund ledger")
	}

	var depositor [20]byte
	copy(depositor[:], []byte("depositor-0000000000"))
	if _, err := ledger.RecordDeposit(depositor, big.NewInt(600), 10); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if _, err := ledger.RecordDeposit(depositor, big.NewInt(400), 11); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if err := ledger.ValidateRefund(depositor, big.NewInt(1_001)); err == nil {
		t.Fatalf("expected refund above deposits to fail")
	}

	var ref [32]byte
	copy(ref[:], []byte("transfer-id-00000000000000000000"))
	if _, err := ledger.ApplyRefund(depositor, ref, big.NewInt(700), 12); err != nil {
		t.Fatalf("apply refund: %v", err)
	}
	if _, err := ledger.ApplyRefund(depositor, ref, big.NewInt(301), 13); err == nil {
		t.Fatalf("expected cumulative refund above deposits to fail")
	}

	thread, ok, err := ledger.Thread(depositor)
	if err != nil || !ok {
		t.Fatalf("thread: ok=%v err=%v", ok, err)
	}
	if thread.Deposited.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected deposited amount %s", thread.Deposited)
	}
	if thread.LastDepositTick != 11 {
		t.Fatalf("unexpected deposit tick %d", thread.LastDepositTick)
	}
	if thread.CumulativeRefunded.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("unexpected cumulative refund %s", thread.CumulativeRefunded)
	}
	if len(thread.Refunds) != 1 || thread.Refunds[0].Reference != ref {
		t.Fatalf("unexpected refund links %+v", thread.Refunds)
	}

	var stranger [20]byte
	if err := ledger.ValidateRefund(stranger, big.NewInt(1)); err == nil {
		t.Fatalf("expected unknown depositor to fail")
	}
}
