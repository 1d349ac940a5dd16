package events

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"rico/core/types"
)

const (
	// TypeTransfer is emitted for sale token and vault currency movements.
	TypeTransfer = "transfer.asset"
)

// Transfer records a balance movement. Operator is set when a third party
// moved the funds on the holder's behalf; Reference identifies a vault payout
// and matches the refund ledger entry it produced.
type Transfer struct {
	Asset     string
	Operator  common.Address
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Reference [32]byte
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	if e.Operator != (common.Address{}) {
		attrs["operator"] = e.Operator.Hex()
	}
	attrs["from"] = e.From.Hex()
	attrs["to"] = e.To.Hex()
	attrs["amount"] = formatAmount(e.Amount)
	if !zeroBytes(e.Reference[:]) {
		attrs["reference"] = "0x" + strings.ToLower(hex.EncodeToString(e.Reference[:]))
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
