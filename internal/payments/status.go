package payments

// Status is a Bitnovo payment status code as delivered by the orders API and
// webhook payloads.
type Status string

const (
	StatusNotReady        Status = "NR" // order created, address not assigned yet
	StatusPending         Status = "PE" // waiting for the customer to pay
	StatusAwaitingConfirm Status = "AC" // detected on-chain, awaiting confirmations
	StatusInsufficient    Status = "IA" // paid less than the expected amount
	StatusOutOfCondition  Status = "OC" // paid outside the accepted conditions
	StatusCompleted       Status = "CO" // confirmed and settled
	StatusCancelled       Status = "CA" // cancelled by merchant or gateway
	StatusExpired         Status = "EX" // payment window elapsed unpaid
	StatusFailed          Status = "FA" // processing failed
	StatusRefunded        Status = "RF" // amount returned to the customer
)

var statusDescriptions = map[Status]string{
	StatusNotReady:        "Not ready",
	StatusPending:         "Pending payment",
	StatusAwaitingConfirm: "Awaiting confirmation",
	StatusInsufficient:    "Insufficient amount",
	StatusOutOfCondition:  "Out of condition",
	StatusCompleted:       "Completed",
	StatusCancelled:       "Cancelled",
	StatusExpired:         "Expired",
	StatusFailed:          "Failed",
	StatusRefunded:        "Refunded",
}

// Valid reports whether s is a known status code.
func (s Status) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

// Description returns a human-readable label for the status.
func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return "Unknown status"
}

// IsFinal reports whether the payment can no longer change state.
func (s Status) IsFinal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// IsPaid reports whether funds were received and settled.
func (s Status) IsPaid() bool {
	return s == StatusCompleted
}
