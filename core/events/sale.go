package events

import (
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/types"
)

const (
	TypeSaleContributionNew      = "sale.contribution.new"
	TypeSaleContributionAccepted = "sale.contribution.accepted"
	TypeSaleContributionReturned = "sale.contribution.returned"
	TypeSaleDecisionApplied      = "sale.decision.applied"
	TypeSaleTransferRecorded     = "sale.transfer.recorded"
	TypeSaleCancelled            = "sale.cancelled"
)

// SaleContributionNew is emitted when funds are recorded as a pending
// contribution.
type SaleContributionNew struct {
	Participant common.Address
	Seq         uint32
	Stage       uint8
	Amount      *uint256.Int
	Tick        uint64
}

func (SaleContributionNew) EventType() string { return TypeSaleContributionNew }

func (e SaleContributionNew) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleContributionNew,
		Tick: e.Tick,
		Attributes: map[string]string{
			"participant": e.Participant.Hex(),
			"seq":         uintToString(uint64(e.Seq)),
			"stage":       uintToString(uint64(e.Stage)),
			"amount":      formatU256(e.Amount),
		},
	}
}

// SaleContributionAccepted is emitted per contribution resolved in favour of
// the project. Returned is non-zero when a ceiling clipped the contribution.
type SaleContributionAccepted struct {
	Participant common.Address
	Seq         uint32
	Stage       uint8
	Accepted    *uint256.Int
	Returned    *uint256.Int
	Tokens      *uint256.Int
	Tick        uint64
}

func (SaleContributionAccepted) EventType() string { return TypeSaleContributionAccepted }

func (e SaleContributionAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleContributionAccepted,
		Tick: e.Tick,
		Attributes: map[string]string{
			"participant": e.Participant.Hex(),
			"seq":         uintToString(uint64(e.Seq)),
			"stage":       uintToString(uint64(e.Stage)),
			"accepted":    formatU256(e.Accepted),
			"returned":    formatU256(e.Returned),
			"tokens":      formatU256(e.Tokens),
		},
	}
}

// SaleContributionReturned is emitted per contribution resolved back to the
// participant.
type SaleContributionReturned struct {
	Participant common.Address
	Seq         uint32
	Stage       uint8
	Amount      *uint256.Int
	Reason      string
	Tick        uint64
}

func (SaleContributionReturned) EventType() string { return TypeSaleContributionReturned }

func (e SaleContributionReturned) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleContributionReturned,
		Tick: e.Tick,
		Attributes: map[string]string{
			"participant": e.Participant.Hex(),
			"seq":         uintToString(uint64(e.Seq)),
			"stage":       uintToString(uint64(e.Stage)),
			"amount":      formatU256(e.Amount),
			"reason":      e.Reason,
		},
	}
}

// SaleDecisionApplied summarises a committee or participant decision.
type SaleDecisionApplied struct {
	Participant    common.Address
	Decision       string
	Status         string
	Accepted       *uint256.Int
	Returned       *uint256.Int
	TokensAwarded  *uint256.Int
	TokensReversed *uint256.Int
	Tick           uint64
}

func (SaleDecisionApplied) EventType() string { return TypeSaleDecisionApplied }

func (e SaleDecisionApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleDecisionApplied,
		Tick: e.Tick,
		Attributes: map[string]string{
			"participant":    e.Participant.Hex(),
			"decision":       e.Decision,
			"status":         e.Status,
			"accepted":       formatU256(e.Accepted),
			"returned":       formatU256(e.Returned),
			"tokensAwarded":  formatU256(e.TokensAwarded),
			"tokensReversed": formatU256(e.TokensReversed),
		},
	}
}

// SaleTransferRecorded mirrors an entry appended to the transfer audit trail.
type SaleTransferRecorded struct {
	ID        [32]byte
	Seq       uint64
	Kind      string
	To        common.Address
	Amount    *uint256.Int
	Delivered bool
	Tick      uint64
}

func (SaleTransferRecorded) EventType() string { return TypeSaleTransferRecorded }

func (e SaleTransferRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleTransferRecorded,
		Tick: e.Tick,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"seq":       uintToString(e.Seq),
			"type":      e.Kind,
			"to":        e.To.Hex(),
			"amount":    formatU256(e.Amount),
			"delivered": strconv.FormatBool(e.Delivered),
		},
	}
}

// SaleCancelled is emitted once when the committee closes the sale.
type SaleCancelled struct {
	Caller common.Address
	Tick   uint64
}

func (SaleCancelled) EventType() string { return TypeSaleCancelled }

func (e SaleCancelled) Event() *types.Event {
	return &types.Event{
		Type:       TypeSaleCancelled,
		Tick:       e.Tick,
		Attributes: map[string]string{"caller": e.Caller.Hex()},
	}
}
