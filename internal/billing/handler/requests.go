package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billtrack/internal/billing/models"
	dErrors "billtrack/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// createBillRequest accepts amount as a JSON string or number.
type createBillRequest struct {
	ElectionType     string          `json:"election_type"`
	ElectionName     string          `json:"election_name"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          string          `json:"due_date"`
	Description      string          `json:"description"`
	RecipientName    string          `json:"recipient_name"`
	RecipientAddress string          `json:"recipient_address"`
	RecipientEmail   string          `json:"recipient_email"`
	RecipientPhone   string          `json:"recipient_phone"`
}

func (r *createBillRequest) toInput(loc *time.Location) (models.BillInput, error) {
	if strings.TrimSpace(r.DueDate) == "" {
		return models.BillInput{}, dErrors.New(dErrors.CodeValidation, "due_date is required")
	}
	due, err := time.ParseInLocation(dateLayout, strings.TrimSpace(r.DueDate), loc)
	if err != nil {
		return models.BillInput{}, dErrors.New(dErrors.CodeValidation, "due_date must be YYYY-MM-DD")
	}
	return models.BillInput{
		ElectionType:     models.ElectionType(strings.TrimSpace(r.ElectionType)),
		ElectionName:     r.ElectionName,
		Amount:           r.Amount,
		DueDate:          due,
		Description:      strings.TrimSpace(r.Description),
		RecipientName:    r.RecipientName,
		RecipientAddress: r.RecipientAddress,
		RecipientEmail:   strings.TrimSpace(r.RecipientEmail),
		RecipientPhone:   strings.TrimSpace(r.RecipientPhone),
	}, nil
}

type createBillResponse struct {
	Bill     *models.Bill     `json:"bill"`
	Document *models.Document `json:"document"`
}
