package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/types"
)

const (
	TypeTokenMinted = "token.minted"
	TypeTokenBurned = "token.burned"
)

// TokenSupplyChanged reports tokens awarded to or reversed from a sale
// participant, with the circulating supply left afterwards.
type TokenSupplyChanged struct {
	Token  string
	Holder common.Address
	Amount *uint256.Int
	Supply *uint256.Int
	Burned bool
	Tick   uint64
}

func (e TokenSupplyChanged) EventType() string {
	if e.Burned {
		return TypeTokenBurned
	}
	return TypeTokenMinted
}

func (e TokenSupplyChanged) Event() *types.Event {
	attrs := map[string]string{
		"holder": e.Holder.Hex(),
		"amount": formatU256(e.Amount),
		"supply": formatU256(e.Supply),
	}
	if token := normalizeAsset(e.Token); token != "" {
		attrs["token"] = token
	}
	return &types.Event{Type: e.EventType(), Tick: e.Tick, Attributes: attrs}
}
