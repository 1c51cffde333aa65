package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

// ElectionType classifies the election a bill is raised for.
type ElectionType string

const (
	ElectionByElection      ElectionType = "by-election"
	ElectionProjectElection ElectionType = "project-election"
)

func (e ElectionType) IsValid() bool {
	return e == ElectionByElection || e == ElectionProjectElection
}

// maxAmount matches NUMERIC(10,2).
var maxAmount = decimal.RequireFromString("99999999.99")

// Bill is a billable record for an election-related service.
// Its lifecycle status lives on the invoice document.
type Bill struct {
	ID               id.BillID       `json:"id"`
	Number           string          `json:"bill_number"`
	ElectionType     ElectionType    `json:"election_type"`
	ElectionName     string          `json:"election_name"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          time.Time       `json:"due_date"`
	Description      string          `json:"description,omitempty"`
	RecipientName    string          `json:"recipient_name"`
	RecipientAddress string          `json:"recipient_address"`
	RecipientEmail   string          `json:"recipient_email,omitempty"`
	RecipientPhone   string          `json:"recipient_phone,omitempty"`
	CreatedBy        id.UserID       `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewBill validates input and builds a bill.
func NewBill(in BillInput, number string, createdBy id.UserID, now time.Time) (*Bill, error) {
	in.ElectionName = strings.TrimSpace(in.ElectionName)
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.RecipientAddress = strings.TrimSpace(in.RecipientAddress)

	if !in.ElectionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "election type must be by-election or project-election")
	}
	if in.ElectionName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "election name is required")
	}
	if !in.Amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "amount must be greater than zero")
	}
	if in.Amount.GreaterThan(maxAmount) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "amount exceeds the maximum billable value")
	}
	if in.Amount.Exponent() < -2 && !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "amount must have at most two decimal places")
	}
	if in.DueDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "due date is required")
	}
	if in.RecipientName == "" || in.RecipientAddress == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recipient name and address are required")
	}

	return &Bill{
		ID:               id.NewBillID(),
		Number:           number,
		ElectionType:     in.ElectionType,
		ElectionName:     in.ElectionName,
		Amount:           in.Amount.Round(2),
		DueDate:          in.DueDate,
		Description:      strings.TrimSpace(in.Description),
		RecipientName:    in.RecipientName,
		RecipientAddress: in.RecipientAddress,
		RecipientEmail:   strings.TrimSpace(in.RecipientEmail),
		RecipientPhone:   strings.TrimSpace(in.RecipientPhone),
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// BillInput carries the caller-provided fields of a new bill.
type BillInput struct {
	ElectionType     ElectionType
	ElectionName     string
	Amount           decimal.Decimal
	DueDate          time.Time
	Description      string
	RecipientName    string
	RecipientAddress string
	RecipientEmail   string
	RecipientPhone   string
}

// ContactFor returns the recipient contact used by channel.
func (b *Bill) ContactFor(channel Channel) (string, error) {
	var contact string
	switch channel {
	case ChannelEmail:
		contact = b.RecipientEmail
	case ChannelSMS:
		contact = b.RecipientPhone
	case ChannelPost, ChannelHandDelivery:
		contact = b.RecipientAddress
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown delivery channel")
	}
	if contact == "" {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("bill has no recipient contact for %s", channel))
	}
	return contact, nil
}

// Number prefixes for human-readable identifiers.
const (
	PrefixBill     = "BILL"
	PrefixDocument = "DOC"
	PrefixTracking = "TRK"
)

// FormatNumber renders PREFIX-YYYYMMDD-NNNN.
func FormatNumber(prefix string, now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, now.Format("20060102"), seq)
}
