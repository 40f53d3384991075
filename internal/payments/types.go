package payments

// CreatePaymentRequest is the body for POST /api/v1/orders/. Amounts are in
// the fiat currency. InputCurrency selects an on-chain crypto; leave it empty
// to create a redirect payment link where the customer picks the currency.
type CreatePaymentRequest struct {
	ExpectedOutputAmount float64 `json:"expected_output_amount"`
	InputCurrency        string  `json:"input_currency,omitempty"`
	Fiat                 string  `json:"fiat,omitempty"`
	Language             string  `json:"language,omitempty"`
	Notes                string  `json:"notes,omitempty"`
	Reference            string  `json:"reference,omitempty"`
}

// Payment is the gateway's response to order creation.
type Payment struct {
	Identifier          string  `json:"identifier"`
	Reference           string  `json:"reference,omitempty"`
	WebURL              string  `json:"web_url,omitempty"`
	Address             string  `json:"address,omitempty"`
	TagMemo             string  `json:"tag_memo,omitempty"`
	PaymentURI          string  `json:"payment_uri,omitempty"`
	InputCurrency       string  `json:"input_currency,omitempty"`
	ExpectedInputAmount float64 `json:"expected_input_amount,omitempty"`
	Rate                float64 `json:"rate,omitempty"`
}

// PaymentInfo is the gateway's view of an existing order, returned by
// GET /api/v1/orders/info/{identifier}.
type PaymentInfo struct {
	Identifier        string  `json:"identifier"`
	Status            Status  `json:"status"`
	FiatAmount        float64 `json:"fiat_amount,omitempty"`
	Fiat              string  `json:"fiat,omitempty"`
	CryptoAmount      float64 `json:"crypto_amount,omitempty"`
	Currency          string  `json:"currency_id,omitempty"`
	Address           string  `json:"address,omitempty"`
	TagMemo           string  `json:"tag_memo,omitempty"`
	ConfirmedAmount   float64 `json:"confirmed_amount,omitempty"`
	UnconfirmedAmount float64 `json:"unconfirmed_amount,omitempty"`
	ExpiredTime       string  `json:"expired_time,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
	Notes             string  `json:"notes,omitempty"`
}

// Currency is a payable crypto currency from GET /api/v1/currencies/.
type Currency struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	MinAmount  float64 `json:"min_amount,string"`
	MaxAmount  float64 `json:"max_amount,string"`
	Image      string  `json:"image,omitempty"`
	Blockchain string  `json:"blockchain,omitempty"`
}
