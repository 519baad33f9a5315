package payment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bizbook/backend/internal/domain/shared"
)

// WalletType identifies the mobile-money carrier behind a phone number
type WalletType string

const (
	WalletEVCPlus WalletType = "EVCPLUS"
	WalletZaad    WalletType = "ZAAD"
	WalletSahal   WalletType = "SAHAL"
	WalletEDahab  WalletType = "EDAHAB"
)

// CountryCode is the dialing code prefixed to wallet account numbers
const CountryCode = "252"

// localNumberLength is the length of a mobile number without the country code
const localNumberLength = 9

// walletPrefixes lists the two-digit network prefixes each carrier issues
var walletPrefixes = map[WalletType][]string{
	WalletEVCPlus: {"61", "68", "77"},
	WalletZaad:    {"63"},
	WalletSahal:   {"90"},
	WalletEDahab:  {"62", "65", "66"},
}

// IsValid returns true if the wallet type is supported
func (w WalletType) IsValid() bool {
	_, ok := walletPrefixes[w]
	return ok
}

// SupportedWallets returns the wallet types in a stable order
func SupportedWallets() []WalletType {
	out := make([]WalletType, 0, len(walletPrefixes))
	for w := range walletPrefixes {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseWalletType parses a wallet type, defaulting to EVC Plus when empty
func ParseWalletType(s string) (WalletType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return WalletEVCPlus, nil
	}
	w := WalletType(strings.ReplaceAll(s, "-", ""))
	if !w.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("unsupported wallet type %q", s))
	}
	return w, nil
}

// NormalizePhone validates a phone number against the wallet's numbering
// scheme and returns it in gateway account format (country code + local number).
func NormalizePhone(phone string, wallet WalletType) (string, error) {
	prefixes, ok := walletPrefixes[wallet]
	if !ok {
		return "", shared.NewValidationError(fmt.Sprintf("unsupported wallet type %q", wallet))
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		if r == ' ' || r == '-' || r == '+' || r == '(' || r == ')' {
			return -1
		}
		return 'x'
	}, phone)
	if strings.ContainsRune(digits, 'x') || digits == "" {
		return "", shared.NewValidationError("phone number may only contain digits")
	}

	local := digits
	switch {
	case strings.HasPrefix(local, "00"+CountryCode):
		local = strings.TrimPrefix(local, "00"+CountryCode)
	case strings.HasPrefix(local, CountryCode) && len(local) == len(CountryCode)+localNumberLength:
		local = strings.TrimPrefix(local, CountryCode)
	case strings.HasPrefix(local, "0") && len(local) == localNumberLength+1:
		local = strings.TrimPrefix(local, "0")
	}

	if len(local) != localNumberLength {
		return "", shared.NewValidationError(fmt.Sprintf("phone number must have %d digits after the country code", localNumberLength))
	}
	for _, p := range prefixes {
		if strings.HasPrefix(local, p) {
			return CountryCode + local, nil
		}
	}
	return "", shared.NewValidationError(fmt.Sprintf("phone number is not a %s number (expected prefix %s)",
		wallet, strings.Join(prefixes, ", ")))
}
