package domain

import (
	"errors"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals between wei and ether.
const EtherDecimals = 18

// WeiPerEther is 10^18.
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

var ErrInvalidAmount = errors.New("invalid amount")

// FormatEther renders wei as a decimal ether string without trailing zeros.
// Used only at the presentation edge.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	whole, frac := new(big.Int).QuoRem(abs, WeiPerEther, new(big.Int))
	out := whole.String()
	if frac.Sign() != 0 {
		fs := frac.String()
		fs = strings.Repeat("0", EtherDecimals-len(fs)) + fs
		out += "." + strings.TrimRight(fs, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseEther converts a non-negative decimal ether string into wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, ErrInvalidAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > EtherDecimals || strings.Contains(frac, ".") {
		return nil, ErrInvalidAmount
	}

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	w.Mul(w, WeiPerEther)

	if frac != "" {
		f, ok := new(big.Int).SetString(frac+strings.Repeat("0", EtherDecimals-len(frac)), 10)
		if !ok || f.Sign() < 0 {
			return nil, ErrInvalidAmount
		}
		w.Add(w, f)
	}
	return w, nil
}
