package webhook

// Header names used by Bitnovo Pay webhook deliveries.
const (
	HeaderNonce     = "X-NONCE"
	HeaderSignature = "X-SIGNATURE"
)

// Machine-readable error codes returned to webhook callers.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeAuthError       = "AUTH_ERROR"
	CodeReplayError     = "REPLAY_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Payload is the Bitnovo webhook payment notification schema. Identifier and
// status are required; everything else depends on payment type and state.
type Payload struct {
	Identifier string `json:"identifier" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=NR PE AC IA OC CO CA EX FA RF"`

	FiatAmount          *float64 `json:"fiat_amount,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	Reference           string   `json:"reference,omitempty"`
	CreatedAt           string   `json:"created_at,omitempty"`
	ExpiredAt           string   `json:"expired_at,omitempty"`
	ExpectedInputAmount *float64 `json:"expected_input_amount,omitempty"`
	InputAmount         *float64 `json:"input_amount,omitempty"`
	ConfirmedAmount     *float64 `json:"confirmed_amount,omitempty"`
	UnconfirmedAmount   *float64 `json:"unconfirmed_amount,omitempty"`
	CryptoAmount        *float64 `json:"crypto_amount,omitempty"`
	ExchangeRate        *float64 `json:"exchange_rate,omitempty"`
	NetworkFee          *float64 `json:"network_fee,omitempty"`
	ExpiredTime         string   `json:"expired_time,omitempty"`
	Address             string   `json:"address,omitempty"`
	TagMemo             string   `json:"tag_memo,omitempty"`
	InputCurrency       string   `json:"input_currency,omitempty"`
	Fiat                string   `json:"fiat,omitempty"`
	Language            string   `json:"language,omitempty"`
	PaymentURI          string   `json:"payment_uri,omitempty"`
	WebURL              string   `json:"web_url,omitempty"`
	GoodFee             *bool    `json:"good_fee,omitempty"`
}

// SuccessResponse is the JSON body for processed deliveries.
type SuccessResponse struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	Validated bool   `json:"validated"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the JSON body for rejected deliveries.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Timestamp string `json:"timestamp"`
}
