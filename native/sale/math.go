package sale

import "github.com/holiman/uint256"

func addChecked(a, b *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(a, b); overflow {
		return uint256.Int{}, ErrAmountOverflow
	}
	return z, nil
}

// subChecked fails with ErrNegativeBalance on underflow: a negative
// intermediate is always an engine bug.
func subChecked(a, b *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(a, b); underflow {
		return uint256.Int{}, ErrNegativeBalance
	}
	return z, nil
}

func mulChecked(a, b *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(a, b); overflow {
		return uint256.Int{}, ErrAmountOverflow
	}
	return z, nil
}

func addTo(dst *uint256.Int, v *uint256.Int) error {
	sum, err := addChecked(dst, v)
	if err != nil {
		return err
	}
	*dst = sum
	return nil
}

func subFrom(dst *uint256.Int, v *uint256.Int) error {
	diff, err := subChecked(dst, v)
	if err != nil {
		return err
	}
	*dst = diff
	return nil
}

// TokensFor converts amount at price into whole token units. The remainder is
// returned as dust so callers can record it; it is never dropped silently.
func TokensFor(amount, price *uint256.Int) (tokens, dust uint256.Int) {
	if price == nil || price.IsZero() {
		return uint256.Int{}, *amount
	}
	tokens.DivMod(amount, price, &dust)
	return tokens, dust
}

func u256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
