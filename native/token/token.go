package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/core/events"
	"rico/core/state"
)

var (
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrGranularity         = errors.New("token: amount not a multiple of granularity")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrNotOperator         = errors.New("token: caller is not an operator for holder")
	ErrSelfOperator        = errors.New("token: holder is always its own operator")
	ErrZeroAddress         = errors.New("token: zero address")
	ErrMintPaused          = errors.New("token: minting paused")
)

// Config describes the sale token.
type Config struct {
	Symbol           string
	Name             string
	Decimals         uint8
	Granularity      *big.Int
	DefaultOperators []common.Address
}

// Ledger is an ERC777-style fungible token kept in state. Only the sale engine
// mints and burns; holders move tokens with Send or through operators.
type Ledger struct {
	mu      sync.Mutex
	state   *state.Manager
	meta    state.TokenMetadata
	emitter events.Emitter
	ticks   TickSource
}

// TickSource stamps supply events with the sale tick.
type TickSource interface {
	CurrentTick() uint64
}

// NewLedger loads the token from state, registering it on first use.
func NewLedger(mgr *state.Manager, cfg Config) (*Ledger, error) {
	if mgr == nil {
		return nil, fmt.Errorf("token: state manager required")
	}
	meta, err := mgr.Token(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		operators := make([][]byte, 0, len(cfg.DefaultOperators))
		for _, op := range cfg.DefaultOperators {
			operators = append(operators, op.Bytes())
		}
		if err := mgr.RegisterToken(state.TokenMetadata{
			Symbol:           cfg.Symbol,
			Name:             cfg.Name,
			Decimals:         cfg.Decimals,
			Granularity:      cfg.Granularity,
			DefaultOperators: operators,
		}); err != nil {
			return nil, err
		}
		if meta, err = mgr.Token(cfg.Symbol); err != nil {
			return nil, err
		}
	}
	return &Ledger{state: mgr, meta: *meta, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter. Passing nil restores the no-op
// emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetTickSource configures the tick recorded on supply events. Without one
// events carry tick 0.
func (l *Ledger) SetTickSource(ticks TickSource) { l.ticks = ticks }

func (l *Ledger) Name() string { return l.meta.Name }

func (l *Ledger) Symbol() string { return l.meta.Symbol }

func (l *Ledger) Decimals() uint8 { return l.meta.Decimals }

// Granularity is the smallest indivisible unit every amount must be a
// multiple of.
func (l *Ledger) Granularity() *big.Int {
	return new(big.Int).Set(l.meta.Granularity)
}

// DefaultOperators lists the operators every holder starts with.
func (l *Ledger) DefaultOperators() []common.Address {
	out := make([]common.Address, 0, len(l.meta.DefaultOperators))
	for _, op := range l.meta.DefaultOperators {
		out = append(out, common.BytesToAddress(op))
	}
	return out
}

// TotalSupply returns the circulating supply.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	supply, err := l.state.Supply(l.meta.Symbol)
	if err != nil {
		return nil, err
	}
	return toU256(supply)
}

// BalanceOf returns the holder's balance.
func (l *Ledger) BalanceOf(holder common.Address) (*uint256.Int, error) {
	balance, err := l.state.Balance(holder.Bytes(), l.meta.Symbol)
	if err != nil {
		return nil, err
	}
	return toU256(balance)
}

func operatorRole(holder common.Address) string {
	return "token/operator/" + strings.ToLower(holder.Hex())
}

func revokedRole(holder common.Address) string {
	return "token/revoked/" + strings.ToLower(holder.Hex())
}

func (l *Ledger) isDefaultOperator(operator common.Address) bool {
	for _, op := range l.meta.DefaultOperators {
		if common.BytesToAddress(op) == operator {
			return true
		}
	}
	return false
}

// IsOperatorFor reports whether operator may move holder's tokens.
func (l *Ledger) IsOperatorFor(operator, holder common.Address) bool {
	if operator == holder {
		return true
	}
	if l.isDefaultOperator(operator) {
		return !l.state.HasRole(revokedRole(holder), operator.Bytes())
	}
	return l.state.HasRole(operatorRole(holder), operator.Bytes())
}

// AuthorizeOperator lets operator move holder's tokens.
func (l *Ledger) AuthorizeOperator(holder, operator common.Address) error {
	if holder == operator {
		return ErrSelfOperator
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isDefaultOperator(operator) {
		return l.state.RemoveRole(revokedRole(holder), operator.Bytes())
	}
	return l.state.SetRole(operatorRole(holder), operator.Bytes())
}

// RevokeOperator withdraws operator's right to move holder's tokens.
func (l *Ledger) RevokeOperator(holder, operator common.Address) error {
	if holder == operator {
		return ErrSelfOperator
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isDefaultOperator(operator) {
		return l.state.SetRole(revokedRole(holder), operator.Bytes())
	}
	return l.state.RemoveRole(operatorRole(holder), operator.Bytes())
}

// Send moves amount from holder to recipient.
func (l *Ledger) Send(from, to common.Address, amount *uint256.Int) error {
	return l.OperatorSend(from, from, to, amount)
}

// OperatorSend moves amount from holder to recipient on behalf of operator.
func (l *Ledger) OperatorSend(operator, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) || from == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.checkAmount(amount); err != nil {
		return err
	}
	if !l.IsOperatorFor(operator, from) {
		return ErrNotOperator
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	value := amount.ToBig()
	fromBal, err := l.state.Balance(from.Bytes(), l.meta.Symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(value) < 0 {
		return fmt.Errorf("%w: holds %s, sending %s", ErrInsufficientBalance, fromBal, value)
	}
	toBal, err := l.state.Balance(to.Bytes(), l.meta.Symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from.Bytes(), l.meta.Symbol, new(big.Int).Sub(fromBal, value)); err != nil {
		return err
	}
	if err := l.state.SetBalance(to.Bytes(), l.meta.Symbol, new(big.Int).Add(toBal, value)); err != nil {
		return err
	}
	evt := events.Transfer{Asset: l.meta.Symbol, From: from, To: to, Amount: value}
	if operator != from {
		evt.Operator = operator
	}
	l.emitter.Emit(evt)
	return nil
}

// Mint creates amount new tokens for recipient.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, err := l.state.Token(l.meta.Symbol)
	if err != nil {
		return err
	}
	if meta != nil && meta.MintPaused {
		return ErrMintPaused
	}
	return l.adjust(to, amount.ToBig())
}

// Burn destroys amount of holder's tokens.
func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	if err := l.checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjust(from, new(big.Int).Neg(amount.ToBig()))
}

func (l *Ledger) adjust(holder common.Address, delta *big.Int) error {
	balance, err := l.state.Balance(holder.Bytes(), l.meta.Symbol)
	if err != nil {
		return err
	}
	supply, err := l.state.Supply(l.meta.Symbol)
	if err != nil {
		return err
	}
	nextBalance := new(big.Int).Add(balance, delta)
	if nextBalance.Sign() < 0 {
		return fmt.Errorf("%w: holds %s, burning %s", ErrInsufficientBalance, balance, new(big.Int).Neg(delta))
	}
	nextSupply := new(big.Int).Add(supply, delta)
	supplyU256, err := toU256(nextSupply)
	if err != nil {
		return err
	}
	amount, err := toU256(new(big.Int).Abs(delta))
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(holder.Bytes(), l.meta.Symbol, nextBalance); err != nil {
		return err
	}
	if err := l.state.SetSupply(l.meta.Symbol, nextSupply); err != nil {
		return err
	}
	evt := events.Transfer{Asset: l.meta.Symbol, Amount: new(big.Int).Abs(delta)}
	if delta.Sign() > 0 {
		evt.To = holder
	} else {
		evt.From = holder
	}
	l.emitter.Emit(evt)
	var tick uint64
	if l.ticks != nil {
		tick = l.ticks.CurrentTick()
	}
	l.emitter.Emit(events.TokenSupplyChanged{
		Token:  l.meta.Symbol,
		Holder: holder,
		Amount: amount,
		Supply: supplyU256,
		Burned: delta.Sign() < 0,
		Tick:   tick,
	})
	return nil
}

func (l *Ledger) checkAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if new(big.Int).Mod(amount.ToBig(), l.meta.Granularity).Sign() != 0 {
		return ErrGranularity
	}
	return nil
}

func toU256(v *big.Int) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("token: amount %s exceeds 256 bits", v)
	}
	return out, nil
}
