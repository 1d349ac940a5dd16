package bank

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"rico/core/events"
	salestate "rico/core/state"
	nativecommon "rico/native/common"
)

const referenceHexLength = 64

var noncePrefix = []byte("bank/nonce/")

// ModuleName is the pause key of the vault.
const ModuleName = "bank"

var (
	ErrInsufficientFunds = errors.New("bank: vault holds insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
)

// ParseReference normalises and validates a payout reference expressed as a
// hex string. The returned array always contains the raw 32-byte hash.
func ParseReference(ref string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return hash, fmt.Errorf("bank: reference required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != referenceHexLength {
		return hash, fmt.Errorf("bank: reference must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, fmt.Errorf("bank: decode reference: %w", err)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// Vault custodies contributed currency. Deposits are credited to the vault
// account; payouts to anyone but the project wallet are refunds and may never
// exceed what the recipient deposited.
type Vault struct {
	mu      sync.Mutex
	state   *salestate.Manager
	asset   string
	account common.Address
	project common.Address
	pauses  nativecommon.PauseView
	emitter events.Emitter
	ticks   TickSource
}

// TickSource reports the sale tick recorded against refunds.
type TickSource interface {
	CurrentTick() uint64
}

// NewVault binds a vault for asset. The asset is registered in state when it
// is not known yet.
func NewVault(manager *salestate.Manager, asset string, account, project common.Address) (*Vault, error) {
	if manager == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	if !manager.TokenExists(asset) {
		if err := manager.RegisterToken(salestate.TokenMetadata{Symbol: asset, Name: asset, Decimals: 18}); err != nil {
			return nil, err
		}
	}
	return &Vault{
		state:   manager,
		asset:   strings.ToUpper(strings.TrimSpace(asset)),
		account: account,
		project: project,
		emitter: events.NoopEmitter{},
	}, nil
}

// SetPauses wires the operator pause switch. A paused vault refuses payouts,
// which leaves sale refunds owed until it resumes.
func (v *Vault) SetPauses(p nativecommon.PauseView) { v.pauses = p }

// SetEmitter configures the event emitter.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	v.emitter = emitter
}

// SetTickSource configures the tick stamped on refund entries.
func (v *Vault) SetTickSource(ticks TickSource) { v.ticks = ticks }

// Deposit records money received from depositor.
func (v *Vault) Deposit(depositor common.Address, amount *uint256.Int, tick uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	value := amount.ToBig()
	if _, err := v.state.RefundLedger().RecordDeposit(depositor, value, tick); err != nil {
		return err
	}
	if err := v.credit(v.account, value); err != nil {
		return err
	}
	v.emitter.Emit(events.Transfer{Asset: v.asset, From: depositor, To: v.account, Amount: value})
	return nil
}

// Send pays amount out of the vault. It satisfies the sale engine's fund
// sender.
func (v *Vault) Send(to common.Address, amount *uint256.Int) error {
	if err := nativecommon.Guard(v.pauses, ModuleName); err != nil {
		return err
	}
	return v.pay(to, amount)
}

// Return hands a deposit that never entered the sale back to its depositor.
// It ignores the pause switch: the money was only held for the duration of a
// rejected call. The refund ledger still bounds it by what to deposited.
func (v *Vault) Return(to common.Address, amount *uint256.Int) error {
	if to == v.project {
		return fmt.Errorf("bank: project wallet holds no deposits")
	}
	return v.pay(to, amount)
}

func (v *Vault) pay(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	value := amount.ToBig()
	held, err := v.state.Balance(v.account.Bytes(), v.asset)
	if err != nil {
		return err
	}
	if held.Cmp(value) < 0 {
		return fmt.Errorf("%w: holds %s, sending %s", ErrInsufficientFunds, held, value)
	}
	ledger := v.state.RefundLedger()
	if to != v.project {
		if err := ledger.ValidateRefund(to, value); err != nil {
			return err
		}
	}
	ref, err := v.nextReference(to, value)
	if err != nil {
		return err
	}
	if to != v.project {
		if _, err := ledger.ApplyRefund(to, ref, value, v.currentTick()); err != nil {
			return err
		}
	}
	if err := v.state.SetBalance(v.account.Bytes(), v.asset, new(big.Int).Sub(held, value)); err != nil {
		return err
	}
	if err := v.credit(to, value); err != nil {
		return err
	}
	v.emitter.Emit(events.Transfer{Asset: v.asset, From: v.account, To: to, Amount: value, Reference: ref})
	return nil
}

// Balance returns the asset balance of addr. The vault account holds the
// undistributed pool.
func (v *Vault) Balance(addr common.Address) (*big.Int, error) {
	return v.state.Balance(addr.Bytes(), v.asset)
}

// Account is the address holding the pooled funds.
func (v *Vault) Account() common.Address { return v.account }

func (v *Vault) credit(addr common.Address, value *big.Int) error {
	balance, err := v.state.Balance(addr.Bytes(), v.asset)
	if err != nil {
		return err
	}
	return v.state.SetBalance(addr.Bytes(), v.asset, new(big.Int).Add(balance, value))
}

func (v *Vault) currentTick() uint64 {
	if v.ticks == nil {
		return 0
	}
	return v.ticks.CurrentTick()
}

// nextReference derives a payout reference from a counter kept in state so
// references stay unique across restarts.
func (v *Vault) nextReference(to common.Address, value *big.Int) ([32]byte, error) {
	key := append(append([]byte{}, noncePrefix...), v.account.Bytes()...)
	var counter uint64
	if _, err := v.state.KVGet(key, &counter); err != nil {
		return [32]byte{}, fmt.Errorf("bank: load nonce: %w", err)
	}
	counter++
	if err := v.state.KVPut(key, counter); err != nil {
		return [32]byte{}, fmt.Errorf("bank: store nonce: %w", err)
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], counter)
	return ethcrypto.Keccak256Hash(v.account.Bytes(), to.Bytes(), value.Bytes(), nonce[:]), nil
}
