package waafipay

import "encoding/json"

const (
	schemaVersion = "1.0"
	channelName   = "WEB"

	servicePurchase       = "API_PURCHASE"
	serviceGetTransaction = "API_GETTRANINFO"

	paymentMethodWallet = "MWALLET_ACCOUNT"
)

// apiRequest is the envelope every WaafiPay call uses
type apiRequest struct {
	SchemaVersion string        `json:"schemaVersion"`
	RequestID     string        `json:"requestId"`
	Timestamp     string        `json:"timestamp"`
	ChannelName   string        `json:"channelName"`
	ServiceName   string        `json:"serviceName"`
	ServiceParams serviceParams `json:"serviceParams"`
}

type serviceParams struct {
	MerchantUID     string           `json:"merchantUid"`
	APIUserID       string           `json:"apiUserId"`
	APIKey          string           `json:"apiKey"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	PayerInfo       *payerInfo       `json:"payerInfo,omitempty"`
	TransactionInfo *transactionInfo `json:"transactionInfo,omitempty"`
	ReferenceID     string           `json:"referenceId,omitempty"`
}

type payerInfo struct {
	AccountNo   string `json:"accountNo"`
	AccountType string `json:"accountType,omitempty"`
	AccountName string `json:"accountHolder,omitempty"`
}

type transactionInfo struct {
	ReferenceID string `json:"referenceId"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// apiResponse is the synchronous reply to initiate and status calls
type apiResponse struct {
	SchemaVersion string         `json:"schemaVersion"`
	Timestamp     string         `json:"timestamp"`
	ResponseID    string         `json:"responseId"`
	ResponseCode  string         `json:"responseCode"`
	ErrorCode     string         `json:"errorCode"`
	ResponseMsg   string         `json:"responseMsg"`
	Params        responseParams `json:"params"`
}

type responseParams struct {
	State         string `json:"state"`
	ReferenceID   string `json:"referenceId"`
	TransactionID string `json:"transactionId"`
	IssuerTransID string `json:"issuerTransactionId"`
	TxAmount      string `json:"txAmount"`
}

// callback is an asynchronous notification. WaafiPay posts either a flat
// object or the same envelope as a synchronous response; both are accepted.
type callback struct {
	ReferenceID   string          `json:"referenceId"`
	TransactionID string          `json:"transactionId"`
	ResponseCode  json.RawMessage `json:"responseCode"`
	State         string          `json:"state"`
	ResponseMsg   string          `json:"responseMsg"`
	Params        *responseParams `json:"params"`
}
