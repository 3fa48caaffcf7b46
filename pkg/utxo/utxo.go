// Package utxo picks unspent outputs to fund a payment.
package utxo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
)

// CoinDecimals is the number of decimal places in one coin.
const CoinDecimals = 8

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidOutpoint   = errors.New("invalid outpoint")
)

// UTXO is an unspent transaction output owned by the agent.
type UTXO struct {
	TxID    string          `json:"txid"`
	Vout    uint32          `json:"vout"`
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// OutPoint returns the wire outpoint referenced by u.
func (u UTXO) OutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil || len(u.TxID) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("%w: txid %q", ErrInvalidOutpoint, u.TxID)
	}
	return wire.NewOutPoint(hash, u.Vout), nil
}

// Selection is the result of coin selection. Total = Target + Fee + Change.
type Selection struct {
	Inputs []UTXO
	Total  decimal.Decimal
	Target decimal.Decimal
	Fee    decimal.Decimal
	Change decimal.Decimal
}

// HasChange reports whether the selection needs a change output.
func (s *Selection) HasChange() bool {
	return s.Change.IsPositive()
}

// SelectLargestFirst spends the largest outputs first until they cover
// target plus fees, where the fee is baseFee + feePerInput per selected input.
// Whatever is left over is returned as change.
func SelectLargestFirst(utxos []UTXO, target, feePerInput, baseFee decimal.Decimal) (*Selection, error) {
	if !target.IsPositive() {
		return nil, fmt.Errorf("%w: target must be positive, got %s", ErrInvalidAmount, target)
	}
	if err := checkCoins("target", target); err != nil {
		return nil, err
	}
	if feePerInput.IsNegative() || baseFee.IsNegative() {
		return nil, fmt.Errorf("%w: fees cannot be negative", ErrInvalidAmount)
	}
	if err := checkCoins("fee per input", feePerInput); err != nil {
		return nil, err
	}
	if err := checkCoins("base fee", baseFee); err != nil {
		return nil, err
	}

	candidates := make([]UTXO, 0, len(utxos))
	seen := make(map[wire.OutPoint]struct{}, len(utxos))
	available := decimal.Zero
	for _, u := range utxos {
		op, err := u.OutPoint()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[*op]; dup {
			return nil, fmt.Errorf("%w: duplicate outpoint %s", ErrInvalidOutpoint, op)
		}
		seen[*op] = struct{}{}
		if !u.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: output %s has non-positive amount %s", ErrInvalidAmount, op, u.Amount)
		}
		if err := checkCoins("output "+op.String(), u.Amount); err != nil {
			return nil, err
		}
		candidates = append(candidates, u)
		available = available.Add(u.Amount)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].Amount.Cmp(candidates[j].Amount); c != 0 {
			return c > 0
		}
		if candidates[i].TxID != candidates[j].TxID {
			return candidates[i].TxID < candidates[j].TxID
		}
		return candidates[i].Vout < candidates[j].Vout
	})

	total := decimal.Zero
	for i, u := range candidates {
		total = total.Add(u.Amount)
		fee := baseFee.Add(feePerInput.Mul(decimal.NewFromInt(int64(i + 1))))
		needed := target.Add(fee)
		if total.GreaterThanOrEqual(needed) {
			return &Selection{
				Inputs: candidates[:i+1],
				Total:  total,
				Target: target,
				Fee:    fee,
				Change: total.Sub(needed),
			}, nil
		}
	}

	fee := baseFee.Add(feePerInput.Mul(decimal.NewFromInt(int64(len(candidates)))))
	return nil, fmt.Errorf("%w: need %s plus fee %s, have %s",
		ErrInsufficientFunds, target.StringFixed(CoinDecimals), fee.StringFixed(CoinDecimals), available.StringFixed(CoinDecimals))
}

// ToSatoshis converts a coin amount to its integer base-unit value.
func ToSatoshis(amount decimal.Decimal) (int64, error) {
	if err := checkCoins("amount", amount); err != nil {
		return 0, err
	}
	return amount.Shift(CoinDecimals).IntPart(), nil
}

// FromSatoshis converts base units to a coin amount.
func FromSatoshis(sats int64) decimal.Decimal {
	return decimal.New(sats, -CoinDecimals)
}

func checkCoins(what string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(CoinDecimals)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrInvalidAmount, what, d, CoinDecimals)
	}
	return nil
}
