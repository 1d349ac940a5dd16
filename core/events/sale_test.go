package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestSaleEventsRenderAttributes(t *testing.T) {
	participant := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	evt := SaleContributionAccepted{
		Participant: participant,
		Seq:         3,
		Stage:       1,
		Accepted:    uint256.NewInt(2_000),
		Tokens:      uint256.NewInt(2),
		Tick:        77,
	}.Event()
	require.Equal(t, TypeSaleContributionAccepted, evt.Type)
	require.Equal(t, uint64(77), evt.Tick)
	require.Equal(t, participant.Hex(), evt.Attributes["participant"])
	require.Equal(t, "3", evt.Attributes["seq"])
	require.Equal(t, "2000", evt.Attributes["accepted"])
	require.Equal(t, "0", evt.Attributes["returned"])

	transfer := SaleTransferRecorded{ID: [32]byte{0xab}, Kind: "automatic_refund", Amount: uint256.NewInt(5)}.Event()
	require.Equal(t, "false", transfer.Attributes["delivered"])
	require.Equal(t, "automatic_refund", transfer.Attributes["type"])
	require.Len(t, transfer.Attributes["id"], 64)
}

func TestRecorderAndFanout(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	fan := Fanout{first, nil, second}
	fan.Emit(SaleCancelled{Tick: 1})
	fan.Emit(SaleContributionNew{Tick: 2})
	require.Equal(t, []string{TypeSaleCancelled, TypeSaleContributionNew}, first.Types())
	require.Len(t, second.Events(), 2)

	evt := second.Events()[0].(Payload).Event().Clone()
	require.Equal(t, TypeSaleCancelled, evt.Type)
}
