package waafipay

import (
	"errors"
	"strings"
	"time"

	"github.com/bizbook/backend/internal/infrastructure/config"
)

// DefaultBaseURL is the production API endpoint
const DefaultBaseURL = "https://api.waafipay.net/asm"

// Config contains merchant credentials for the WaafiPay API
type Config struct {
	// MerchantUID identifies the merchant account (e.g. M0910291)
	MerchantUID string
	// APIUserID is the API user issued with the merchant account
	APIUserID string
	// APIKey authenticates the API user
	APIKey string
	// BaseURL is the API endpoint; defaults to DefaultBaseURL
	BaseURL string
	// Timeout bounds every API call
	Timeout time.Duration
	// WebhookSecret enables HMAC verification of callbacks when set
	WebhookSecret string
}

// Errors for configuration validation
var (
	ErrMissingMerchantUID = errors.New("waafipay: missing merchant UID")
	ErrMissingAPIUserID   = errors.New("waafipay: missing API user ID")
	ErrMissingAPIKey      = errors.New("waafipay: missing API key")
)

// FromAppConfig builds adapter config from the application settings snapshot
func FromAppConfig(c config.WaafiPayConfig) Config {
	return Config{
		MerchantUID:   c.MerchantUID,
		APIUserID:     c.APIUserID,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		WebhookSecret: c.WebhookSecret,
	}
}

// Configured returns true when every credential is present
func (c Config) Configured() bool {
	return c.Validate() == nil
}

// Validate reports the first missing credential
func (c Config) Validate() error {
	if strings.TrimSpace(c.MerchantUID) == "" {
		return ErrMissingMerchantUID
	}
	if strings.TrimSpace(c.APIUserID) == "" {
		return ErrMissingAPIUserID
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Config) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}
