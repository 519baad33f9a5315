// Package waafipay is the mobile-wallet gateway adapter for the WaafiPay API.
package waafipay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	maxBodyBytes    = 1 << 20
	timestampLayout = "2006-01-02 15:04:05"
)

// SignatureHeader carries the hex HMAC-SHA256 of a callback body
const SignatureHeader = "X-Waafi-Signature"

// Adapter implements payment.Gateway against the WaafiPay HTTP API
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithLogger sets the adapter logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an adapter. Missing credentials are allowed: the
// adapter then reports IsConfigured() == false and refuses to charge.
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	a := &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsConfigured reports whether merchant credentials are present
func (a *Adapter) IsConfigured() bool {
	return a.config.Configured()
}

// Charge sends an API_PURCHASE request debiting the payer's wallet
func (a *Adapter) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.GatewayResult, error) {
	if !a.IsConfigured() {
		return nil, payment.ErrGatewayNotConfigured
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "waafipay", "purchase", telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReferenceID, req.ReferenceID, "wallet_type", string(req.WalletType))

	invoiceID := req.InvoiceID
	if invoiceID == "" {
		invoiceID = req.ReferenceID
	}
	body := a.envelope(servicePurchase)
	body.ServiceParams.PaymentMethod = paymentMethodWallet
	body.ServiceParams.PayerInfo = &payerInfo{
		AccountNo:   req.AccountNo,
		AccountName: req.CustomerName,
	}
	body.ServiceParams.TransactionInfo = &transactionInfo{
		ReferenceID: req.ReferenceID,
		InvoiceID:   invoiceID,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Description: req.Description,
	}

	result, err := a.call(ctx, body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result.ReferenceID == "" {
		result.ReferenceID = req.ReferenceID
	}
	telemetry.SetAttributes(span, "response_code", result.ResponseCode, "state", result.State)
	return result, nil
}

// QueryStatus asks the gateway for the current state of a charge
func (a *Adapter) QueryStatus(ctx context.Context, referenceID string) (*payment.GatewayResult, error) {
	if !a.IsConfigured() {
		return nil, payment.ErrGatewayNotConfigured
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "waafipay", "get_transaction", telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReferenceID, referenceID)

	body := a.envelope(serviceGetTransaction)
	body.ServiceParams.ReferenceID = referenceID

	result, err := a.call(ctx, body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result.ReferenceID == "" {
		result.ReferenceID = referenceID
	}
	return result, nil
}

func (a *Adapter) envelope(service string) apiRequest {
	return apiRequest{
		SchemaVersion: schemaVersion,
		RequestID:     uuid.NewString(),
		Timestamp:     a.now().UTC().Format(timestampLayout),
		ChannelName:   channelName,
		ServiceName:   service,
		ServiceParams: serviceParams{
			MerchantUID: a.config.MerchantUID,
			APIUserID:   a.config.APIUserID,
			APIKey:      a.config.APIKey,
		},
	}
}

// call posts body and decodes the envelope. Gateway-level declines come
// back as a result, not an error; only transport and protocol failures
// are errors.
func (a *Adapter) call(ctx context.Context, body apiRequest) (*payment.GatewayResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("waafipay: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.baseURL(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("waafipay: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("waafipay: failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", payment.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", payment.ErrGatewayRequestFailed, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrGatewayInvalidResponse, err)
	}
	if parsed.ResponseCode == "" {
		return nil, fmt.Errorf("%w: missing responseCode", payment.ErrGatewayInvalidResponse)
	}

	a.logger.Debug("WaafiPay response",
		zap.String("service", body.ServiceName),
		zap.String("response_code", parsed.ResponseCode),
		zap.String("state", parsed.Params.State),
		zap.String("reference_id", parsed.Params.ReferenceID))

	return &payment.GatewayResult{
		ReferenceID:   parsed.Params.ReferenceID,
		TransactionID: parsed.Params.TransactionID,
		ResponseCode:  parsed.ResponseCode,
		State:         strings.ToUpper(parsed.Params.State),
		ResponseMsg:   parsed.ResponseMsg,
		Raw:           respBody,
	}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ParseCallback decodes a webhook body into a gateway result. The raw body
// is kept so unmapped states can be stored verbatim.
func ParseCallback(body []byte) (*payment.GatewayResult, error) {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrGatewayInvalidResponse, err)
	}
	result := &payment.GatewayResult{
		ReferenceID:   cb.ReferenceID,
		TransactionID: cb.TransactionID,
		ResponseCode:  normalizeCode(cb.ResponseCode),
		State:         strings.ToUpper(strings.TrimSpace(cb.State)),
		ResponseMsg:   cb.ResponseMsg,
		Raw:           body,
	}
	if p := cb.Params; p != nil {
		if result.ReferenceID == "" {
			result.ReferenceID = p.ReferenceID
		}
		if result.TransactionID == "" {
			result.TransactionID = p.TransactionID
		}
		if result.State == "" {
			result.State = strings.ToUpper(strings.TrimSpace(p.State))
		}
	}
	result.ReferenceID = strings.TrimSpace(result.ReferenceID)
	return result, nil
}

// normalizeCode accepts responseCode as a JSON string or number
func normalizeCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time. With an
// empty secret verification is disabled and every body is accepted.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return payment.ErrGatewayInvalidCallback
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return payment.ErrGatewayInvalidCallback
	}
	return nil
}

var _ payment.Gateway = (*Adapter)(nil)
