// Package domain holds identifier and actor types shared by every module.
//
// IDs are distinct named types over uuid.UUID so a DocumentID can never be
// passed where a BillID is expected.
package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dErrors "billtrack/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	BillID         uuid.UUID
	DocumentID     uuid.UUID
	AttemptID      uuid.UUID
	IncomeRecordID uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseBillID(s string) (BillID, error) {
	u, err := parseUUID("bill id", s)
	return BillID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document id", s)
	return DocumentID(u), err
}

func ParseAttemptID(s string) (AttemptID, error) {
	u, err := parseUUID("attempt id", s)
	return AttemptID(u), err
}

func ParseIncomeRecordID(s string) (IncomeRecordID, error) {
	u, err := parseUUID("income record id", s)
	return IncomeRecordID(u), err
}

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewBillID() BillID                 { return BillID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewAttemptID() AttemptID           { return AttemptID(uuid.New()) }
func NewIncomeRecordID() IncomeRecordID { return IncomeRecordID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id BillID) String() string         { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id AttemptID) String() string      { return uuid.UUID(id).String() }
func (id IncomeRecordID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id BillID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttemptID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id IncomeRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// JSON encodes IDs as canonical strings.

func (id UserID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id BillID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id AttemptID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id IncomeRecordID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error         { return unmarshalText((*uuid.UUID)(id), b) }
func (id *BillID) UnmarshalText(b []byte) error         { return unmarshalText((*uuid.UUID)(id), b) }
func (id *DocumentID) UnmarshalText(b []byte) error     { return unmarshalText((*uuid.UUID)(id), b) }
func (id *AttemptID) UnmarshalText(b []byte) error      { return unmarshalText((*uuid.UUID)(id), b) }
func (id *IncomeRecordID) UnmarshalText(b []byte) error { return unmarshalText((*uuid.UUID)(id), b) }

func unmarshalText(dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("parse id: %w", err)
	}
	*dst = u
	return nil
}

// SQL drivers see IDs as uuid.UUID.

func (id UserID) Value() (driver.Value, error)         { return uuid.UUID(id).Value() }
func (id BillID) Value() (driver.Value, error)         { return uuid.UUID(id).Value() }
func (id DocumentID) Value() (driver.Value, error)     { return uuid.UUID(id).Value() }
func (id AttemptID) Value() (driver.Value, error)      { return uuid.UUID(id).Value() }
func (id IncomeRecordID) Value() (driver.Value, error) { return uuid.UUID(id).Value() }

func (id *UserID) Scan(src any) error         { return (*uuid.UUID)(id).Scan(src) }
func (id *BillID) Scan(src any) error         { return (*uuid.UUID)(id).Scan(src) }
func (id *DocumentID) Scan(src any) error     { return (*uuid.UUID)(id).Scan(src) }
func (id *AttemptID) Scan(src any) error      { return (*uuid.UUID)(id).Scan(src) }
func (id *IncomeRecordID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
