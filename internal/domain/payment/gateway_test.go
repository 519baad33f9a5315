package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGatewayResult(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		state     string
		want      Outcome
		wantKnown bool
	}{
		{"approved", "2001", "APPROVED", OutcomeSuccess, true},
		{"approved lowercase state", "2001", " approved ", OutcomeSuccess, true},
		{"success code without state", "2001", "", OutcomeSuccess, true},
		{"success code with blank state", "2001", "  ", OutcomeSuccess, true},
		{"success code with pending state", "2001", "PENDING", "", false},
		{"issuer failure", "5206", "", OutcomeFailed, true},
		{"issuer declined", "5206", "DECLINED", OutcomeFailed, true},
		{"insufficient funds", "5207", "DECLINED", OutcomeFailed, true},
		{"payer rejected", "5310", "CANCELLED", OutcomeFailed, true},
		{"payer timeout", "5309", "TIMEOUT", OutcomeFailed, true},
		{"invalid account", "5306", "FAILED", OutcomeFailed, true},
		{"invalid request", "5001", "", OutcomeFailed, true},
		{"failure code with approved state is not guessed", "5206", "APPROVED", "", false},
		{"unknown code", "9999", "APPROVED", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := ClassifyGatewayResult(tt.code, tt.state)
			assert.Equal(t, tt.wantKnown, known)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGatewayOutcomesOnlyUseOnlineVocabulary(t *testing.T) {
	for code, outcome := range gatewayOutcomes {
		assert.True(t, outcome.ValidFor(TypeOnline), "code %+v maps to %s", code, outcome)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		wallet  WalletType
		want    string
		wantErr bool
	}{
		{"local EVC number", "615123456", WalletEVCPlus, "252615123456", false},
		{"with country code", "252615123456", WalletEVCPlus, "252615123456", false},
		{"with plus and spaces", "+252 61 512 3456", WalletEVCPlus, "252615123456", false},
		{"with trunk zero", "0771234567", WalletEVCPlus, "252771234567", false},
		{"with international prefix", "00252631234567", WalletZaad, "252631234567", false},
		{"sahal", "907654321", WalletSahal, "252907654321", false},
		{"edahab", "651234567", WalletEDahab, "252651234567", false},
		{"wrong carrier prefix", "631234567", WalletEVCPlus, "", true},
		{"too short", "61512345", WalletEVCPlus, "", true},
		{"too long", "6151234567", WalletEVCPlus, "", true},
		{"letters", "61512a456", WalletEVCPlus, "", true},
		{"empty", "", WalletEVCPlus, "", true},
		{"unknown wallet", "615123456", WalletType("MPESA"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.phone, tt.wallet)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWalletType(t *testing.T) {
	w, err := ParseWalletType("")
	require.NoError(t, err)
	assert.Equal(t, WalletEVCPlus, w)

	w, err = ParseWalletType("evc-plus")
	require.NoError(t, err)
	assert.Equal(t, WalletEVCPlus, w)

	w, err = ParseWalletType("zaad")
	require.NoError(t, err)
	assert.Equal(t, WalletZaad, w)

	_, err = ParseWalletType("visa")
	assert.Error(t, err)

	assert.Equal(t, []WalletType{WalletEDahab, WalletEVCPlus, WalletSahal, WalletZaad}, SupportedWallets())
}
