package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway errors
var (
	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayUnavailable     = errors.New("payment: gateway temporarily unavailable")
	ErrGatewayTimeout         = errors.New("payment: gateway request timed out")
	ErrGatewayRequestFailed   = errors.New("payment: gateway request failed")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrGatewayInvalidCallback = errors.New("payment: invalid callback signature")
)

// ChargeRequest asks the wallet gateway to debit a payer's wallet
type ChargeRequest struct {
	ReferenceID  string
	InvoiceID    string
	AccountNo    string
	WalletType   WalletType
	Amount       decimal.Decimal
	Currency     string
	Description  string
	CustomerName string
}

// GatewayResult is the gateway's view of a charge, as returned by the
// initiate and status APIs or posted to the webhook
type GatewayResult struct {
	ReferenceID   string
	TransactionID string
	ResponseCode  string
	State         string
	ResponseMsg   string
	Raw           []byte
}

// Gateway is the port to the mobile-wallet payment provider
type Gateway interface {
	// IsConfigured returns false when merchant credentials are missing
	IsConfigured() bool
	// Charge initiates a wallet debit. A timeout returns ErrGatewayTimeout
	// and must leave the transaction pending.
	Charge(ctx context.Context, req ChargeRequest) (*GatewayResult, error)
	// QueryStatus polls the gateway for the state of a previous charge
	QueryStatus(ctx context.Context, referenceID string) (*GatewayResult, error)
}

// gatewayCode identifies a gateway response by code and state
type gatewayCode struct {
	ResponseCode string
	State        string
}

// Gateway response codes
const (
	ResponseCodeSuccess          = "2001"
	ResponseCodeIssuerFailure    = "5206"
	ResponseCodeInvalidAccount   = "5306"
	ResponseCodePayerTimeout     = "5309"
	ResponseCodePayerRejected    = "5310"
	ResponseCodeInvalidRequest   = "5001"
	ResponseCodeInsufficientFund = "5207"
)

// gatewayOutcomes is the complete list of gateway code/state pairs the
// engine acts on. Pairs not listed here are recorded without a transition.
var gatewayOutcomes = map[gatewayCode]Outcome{
	{ResponseCodeSuccess, ""}:         OutcomeSuccess,
	{ResponseCodeSuccess, "APPROVED"}: OutcomeSuccess,

	{ResponseCodeIssuerFailure, ""}:         OutcomeFailed,
	{ResponseCodeIssuerFailure, "DECLINED"}: OutcomeFailed,
	{ResponseCodeIssuerFailure, "FAILED"}:   OutcomeFailed,

	{ResponseCodeInsufficientFund, ""}:         OutcomeFailed,
	{ResponseCodeInsufficientFund, "DECLINED"}: OutcomeFailed,

	{ResponseCodeInvalidAccount, ""}:       OutcomeFailed,
	{ResponseCodeInvalidAccount, "FAILED"}: OutcomeFailed,

	{ResponseCodePayerTimeout, ""}:        OutcomeFailed,
	{ResponseCodePayerTimeout, "TIMEOUT"}: OutcomeFailed,

	{ResponseCodePayerRejected, ""}:          OutcomeFailed,
	{ResponseCodePayerRejected, "CANCELLED"}: OutcomeFailed,
	{ResponseCodePayerRejected, "DECLINED"}:  OutcomeFailed,

	{ResponseCodeInvalidRequest, ""}: OutcomeFailed,
}

// ClassifyGatewayResult maps a gateway response code and state to an outcome.
// known is false for combinations outside the table.
func ClassifyGatewayResult(responseCode, state string) (outcome Outcome, known bool) {
	key := gatewayCode{
		ResponseCode: strings.TrimSpace(responseCode),
		State:        strings.ToUpper(strings.TrimSpace(state)),
	}
	outcome, known = gatewayOutcomes[key]
	return outcome, known
}
