// Package bill persists bills. Bills are written once; lifecycle state lives
// on the invoice document.
package bill

import (
	"billtrack/internal/billing/models"
	id "billtrack/pkg/domain"
)

// Filter narrows ListBills. Zero values match everything.
type Filter struct {
	CreatedBy    id.UserID
	ElectionType models.ElectionType
	Limit        int
}

func (f Filter) matches(b *models.Bill) bool {
	if !f.CreatedBy.IsNil() && b.CreatedBy != f.CreatedBy {
		return false
	}
	if f.ElectionType != "" && b.ElectionType != f.ElectionType {
		return false
	}
	return true
}
