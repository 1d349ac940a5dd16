package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestTokenSupplyChangedEvent(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	minted := TokenSupplyChanged{
		Token:  "rico",
		Holder: holder,
		Amount: uint256.NewInt(250),
		Supply: uint256.NewInt(5000),
		Tick:   42,
	}.Event()
	if minted.Type != TypeTokenMinted || minted.Tick != 42 {
		t.Fatalf("unexpected event: %+v", minted)
	}
	if minted.Attributes["token"] != "RICO" || minted.Attributes["holder"] != holder.Hex() {
		t.Fatalf("unexpected attrs: %+v", minted.Attributes)
	}
	if minted.Attributes["amount"] != "250" || minted.Attributes["supply"] != "5000" {
		t.Fatalf("unexpected amounts: %+v", minted.Attributes)
	}

	burned := TokenSupplyChanged{Holder: holder, Burned: true}.Event()
	if burned.Type != TypeTokenBurned {
		t.Fatalf("unexpected type: %s", burned.Type)
	}
	if burned.Attributes["amount"] != "0" || burned.Attributes["supply"] != "0" {
		t.Fatalf("nil amounts should render as zero: %+v", burned.Attributes)
	}
	if _, ok := burned.Attributes["token"]; ok {
		t.Fatalf("expected no token attribute")
	}
}

func TestTransferEventOmitsEmptyFields(t *testing.T) {
	evt := Transfer{Asset: "eth", Amount: big.NewInt(9)}.Event()
	if evt.Type != TypeTransfer {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["asset"] != "ETH" || evt.Attributes["amount"] != "9" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if _, ok := evt.Attributes["operator"]; ok {
		t.Fatalf("expected no operator attribute")
	}
	if _, ok := evt.Attributes["reference"]; ok {
		t.Fatalf("expected no reference attribute")
	}
}
