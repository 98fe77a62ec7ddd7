package domain

// ReceiptStatus is the finalization state a mutation acknowledgment carries.
type ReceiptStatus string

const (
	ReceiptStatusPending   ReceiptStatus = "pending"
	ReceiptStatusConfirmed ReceiptStatus = "confirmed"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

// Receipt acknowledges a mutation (create market, place bet). The gateway does
// not poll for finalization; tracking a pending receipt is the caller's job.
type Receipt struct {
	ID     string
	Status ReceiptStatus
}
