package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "billtrack/pkg/domain"
)

// IncomeRecord is written exactly once, on a document's first transition to
// Paid. It is never mutated and survives document cancellation.
type IncomeRecord struct {
	ID               id.IncomeRecordID `json:"id"`
	DocumentID       id.DocumentID     `json:"document_id"`
	BillID           id.BillID         `json:"bill_id"`
	BillNumber       string            `json:"bill_number"`
	OwnerID          id.UserID         `json:"owner_id"`
	Amount           decimal.Decimal   `json:"amount"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	RecordedAt       time.Time         `json:"recorded_at"`
}

// Report summarises income over a period.
type Report struct {
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Records []IncomeRecord  `json:"records"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
}

// NewReport totals records.
func NewReport(start, end time.Time, records []IncomeRecord) Report {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	if records == nil {
		records = []IncomeRecord{}
	}
	return Report{Start: start, End: end, Records: records, Total: total, Count: len(records)}
}
