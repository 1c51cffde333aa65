// Package store persists income records. Append enforces one record per
// document and returns sentinel.ErrAlreadyUsed for a second one.
package store

import (
	"time"

	id "billtrack/pkg/domain"
)

// Query selects records with start <= recorded_at < end. A non-nil Owner
// restricts results to bills that user created.
type Query struct {
	Start time.Time
	End   time.Time
	Owner id.UserID
}
