package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"rico/core/events"
	salestate "rico/core/state"
	nativecommon "rico/native/common"
	"rico/native/sale"
	"rico/storage"
)

var (
	vaultAccount = common.HexToAddress("0x0000000000000000000000000000000000000aa0")
	projectAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	depositor    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

var _ sale.FundSender = (*Vault)(nil)

func newTestVault(t *testing.T) (*Vault, *salestate.Manager) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := salestate.NewManager(db)
	vault, err := NewVault(mgr, "eth", vaultAccount, projectAddr)
	require.NoError(t, err)
	return vault, mgr
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, byte(0xab), ref[0])

	_, err = ParseReference("")
	require.Error(t, err)
	_, err = ParseReference("0x1234")
	require.Error(t, err)
	_, err = ParseReference("zz" + "00000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestVaultRefundsBoundedByDeposits(t *testing.T) {
	vault, mgr := newTestVault(t)
	require.NoError(t, vault.Deposit(depositor, uint256.NewInt(1_000), 5))

	held, err := vault.Balance(vaultAccount)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), held)

	require.NoError(t, vault.Send(depositor, uint256.NewInt(300)))
	require.Error(t, vault.Send(depositor, uint256.NewInt(701)))
	require.NoError(t, vault.Send(projectAddr, uint256.NewInt(700)))
	require.ErrorIs(t, vault.Send(projectAddr, uint256.NewInt(1)), ErrInsufficientFunds)

	paid, err := vault.Balance(depositor)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), paid)

	thread, ok, err := mgr.RefundLedger().Thread(depositor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big.NewInt(300), thread.CumulativeRefunded)
	require.Len(t, thread.Refunds, 1)
}

func TestPausedVaultRefusesPayouts(t *testing.T) {
	vault, _ := newTestVault(t)
	pauses := nativecommon.NewPauses()
	vault.SetPauses(pauses)
	require.NoError(t, vault.Deposit(depositor, uint256.NewInt(10), 1))

	pauses.Set(ModuleName, true)
	err := vault.Send(depositor, uint256.NewInt(10))
	require.True(t, errors.Is(err, nativecommon.ErrModulePaused))

	pauses.Set(ModuleName, false)
	require.NoError(t, vault.Send(depositor, uint256.NewInt(10)))
}

func TestReturnIgnoresPauseButStaysBounded(t *testing.T) {
	vault, _ := newTestVault(t)
	pauses := nativecommon.NewPauses()
	vault.SetPauses(pauses)
	require.NoError(t, vault.Deposit(depositor, uint256.NewInt(50), 1))

	pauses.Set(ModuleName, true)
	require.Error(t, vault.Return(depositor, uint256.NewInt(51)))
	require.Error(t, vault.Return(projectAddr, uint256.NewInt(1)))
	require.NoError(t, vault.Return(depositor, uint256.NewInt(50)))

	held, err := vault.Balance(vaultAccount)
	require.NoError(t, err)
	require.Zero(t, held.Sign())
	back, err := vault.Balance(depositor)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), back)
}

func TestRefundEntryMatchesTransfer(t *testing.T) {
	vault, mgr := newTestVault(t)
	rec := &events.Recorder{}
	vault.SetEmitter(rec)
	vault.SetTickSource(sale.TickFunc(func() uint64 { return 321 }))
	require.NoError(t, vault.Deposit(depositor, uint256.NewInt(80), 300))
	require.NoError(t, vault.Send(depositor, uint256.NewInt(30)))

	var sent events.Transfer
	for _, evt := range rec.Events() {
		if transfer, ok := evt.(events.Transfer); ok && transfer.To == depositor {
			sent = transfer
		}
	}
	thread, ok, err := mgr.RefundLedger().Thread(depositor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, thread.Refunds, 1)
	require.Equal(t, uint64(321), thread.Refunds[0].Tick)
	require.Equal(t, sent.Reference, thread.Refunds[0].Reference)
	require.NotEqual(t, [32]byte{}, sent.Reference)
}

func TestReferencesSurviveVaultRestart(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := salestate.NewManager(db)

	first, err := NewVault(mgr, "eth", vaultAccount, projectAddr)
	require.NoError(t, err)
	require.NoError(t, first.Deposit(depositor, uint256.NewInt(10), 1))
	require.NoError(t, first.Send(depositor, uint256.NewInt(5)))

	second, err := NewVault(mgr, "eth", vaultAccount, projectAddr)
	require.NoError(t, err)
	require.NoError(t, second.Send(depositor, uint256.NewInt(5)))

	thread, ok, err := mgr.RefundLedger().Thread(depositor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, thread.Refunds, 2)
	require.NotEqual(t, thread.Refunds[0].Reference, thread.Refunds[1].Reference)
}
