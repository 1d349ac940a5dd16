package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"rico/core/events"
	"rico/core/state"
	"rico/native/sale"
	"rico/storage"
)

var (
	saleOperator = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	holder       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	recipient    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

var _ sale.TokenLedger = (*Ledger)(nil)

func newTestLedger(t *testing.T) (*Ledger, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger, err := NewLedger(state.NewManager(db), Config{
		Symbol:           "RICO",
		Name:             "Reversible ICO Token",
		Decimals:         18,
		DefaultOperators: []common.Address{saleOperator},
	})
	require.NoError(t, err)
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	return ledger, rec
}

func TestLedgerMetadata(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.Equal(t, "Reversible ICO Token", ledger.Name())
	require.Equal(t, "RICO", ledger.Symbol())
	require.Equal(t, uint8(18), ledger.Decimals())
	require.Equal(t, big.NewInt(1), ledger.Granularity())
	require.Equal(t, []common.Address{saleOperator}, ledger.DefaultOperators())

	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.True(t, supply.IsZero())
}

func TestMintBurnTracksSupply(t *testing.T) {
	ledger, rec := newTestLedger(t)
	require.NoError(t, ledger.Mint(holder, uint256.NewInt(1_000)))

	balance, err := ledger.BalanceOf(holder)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000), balance)

	require.NoError(t, ledger.Burn(holder, uint256.NewInt(400)))
	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(600), supply)

	require.ErrorIs(t, ledger.Burn(holder, uint256.NewInt(601)), ErrInsufficientBalance)
	require.ErrorIs(t, ledger.Mint(holder, new(uint256.Int)), ErrInvalidAmount)
	require.ErrorIs(t, ledger.Mint(common.Address{}, uint256.NewInt(1)), ErrZeroAddress)
	require.Equal(t, []string{
		events.TypeTransfer, events.TypeTokenMinted,
		events.TypeTransfer, events.TypeTokenBurned,
	}, rec.Types())
}

func TestSupplyEventsCarryTick(t *testing.T) {
	ledger, rec := newTestLedger(t)
	ledger.SetTickSource(sale.TickFunc(func() uint64 { return 77 }))
	require.NoError(t, ledger.Mint(holder, uint256.NewInt(30)))
	require.NoError(t, ledger.Burn(holder, uint256.NewInt(10)))

	var supply []events.TokenSupplyChanged
	for _, evt := range rec.Events() {
		if changed, ok := evt.(events.TokenSupplyChanged); ok {
			supply = append(supply, changed)
		}
	}
	require.Len(t, supply, 2)
	require.False(t, supply[0].Burned)
	require.Equal(t, uint256.NewInt(30), supply[0].Amount)
	require.True(t, supply[1].Burned)
	require.Equal(t, uint256.NewInt(10), supply[1].Amount)
	require.Equal(t, uint256.NewInt(20), supply[1].Supply)
	require.Equal(t, holder, supply[1].Holder)
	require.Equal(t, uint64(77), supply[1].Tick)
}

func TestMintPaused(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := state.NewManager(db)
	ledger, err := NewLedger(mgr, Config{Symbol: "RICO", Name: "Reversible ICO Token", Decimals: 18})
	require.NoError(t, err)
	require.NoError(t, mgr.SetTokenMintPaused("RICO", true))
	require.ErrorIs(t, ledger.Mint(holder, uint256.NewInt(1)), ErrMintPaused)
}

func TestOperators(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.NoError(t, ledger.Mint(holder, uint256.NewInt(100)))

	require.True(t, ledger.IsOperatorFor(holder, holder))
	require.True(t, ledger.IsOperatorFor(saleOperator, holder))
	require.False(t, ledger.IsOperatorFor(stranger, holder))
	require.ErrorIs(t, ledger.OperatorSend(stranger, holder, recipient, uint256.NewInt(1)), ErrNotOperator)

	require.NoError(t, ledger.AuthorizeOperator(holder, stranger))
	require.NoError(t, ledger.OperatorSend(stranger, holder, recipient, uint256.NewInt(10)))
	require.NoError(t, ledger.RevokeOperator(holder, stranger))
	require.False(t, ledger.IsOperatorFor(stranger, holder))

	require.NoError(t, ledger.RevokeOperator(holder, saleOperator))
	require.False(t, ledger.IsOperatorFor(saleOperator, holder))
	require.NoError(t, ledger.AuthorizeOperator(holder, saleOperator))
	require.True(t, ledger.IsOperatorFor(saleOperator, holder))
	require.ErrorIs(t, ledger.AuthorizeOperator(holder, holder), ErrSelfOperator)

	require.NoError(t, ledger.Send(holder, recipient, uint256.NewInt(5)))
	balance, err := ledger.BalanceOf(recipient)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(15), balance)
	require.ErrorIs(t, ledger.Send(holder, recipient, uint256.NewInt(86)), ErrInsufficientBalance)
}

func TestGranularity(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	ledger, err := NewLedger(state.NewManager(db), Config{Symbol: "RICO", Name: "Reversible ICO Token", Granularity: big.NewInt(10)})
	require.NoError(t, err)
	require.ErrorIs(t, ledger.Mint(holder, uint256.NewInt(15)), ErrGranularity)
	require.NoError(t, ledger.Mint(holder, uint256.NewInt(20)))
}
