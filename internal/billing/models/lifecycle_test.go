package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/testutil"
)

func TestInvoiceLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	bill, err := NewBill(validInput(), "BILL-20260301-0002", id.NewUserID(), now)
	require.NoError(t, err)

	testutil.Given(t, "a posted invoice", func(t *testing.T) {
		doc := NewInvoice(bill, "DOC-20260301-0002", now)
		attemptID := id.NewAttemptID()
		doc.AddAttempt(DeliveryAttempt{ID: attemptID, Channel: ChannelPost, TrackingNumber: "EF123456789TH"}, now)
		require.NoError(t, doc.ApplyDispatchSuccess(attemptID, "EF123456789TH", now))

		testutil.When(t, "the carrier reports a return", func(t *testing.T) {
			attempt := doc.AttemptByTrackingNumber("EF123456789TH")
			require.NotNil(t, attempt)
			require.NoError(t, doc.ApplyDeliveryFailed(attempt, "ผู้รับย้ายที่อยู่", now.Add(time.Hour)))

			testutil.Then(t, "the document stays sent", func(t *testing.T) {
				assert.Equal(t, StatusSent, doc.Status)
				assert.Equal(t, AttemptFailed, attempt.Status)
			})
		})

		testutil.When(t, "delivery and payment follow", func(t *testing.T) {
			attempt := doc.AttemptByReference("EF123456789TH")
			require.NoError(t, doc.ApplyDelivered(attempt, now.Add(2*time.Hour), now.Add(2*time.Hour)))
			require.NoError(t, doc.ApplyPaid(now.Add(3*time.Hour)))

			testutil.Then(t, "the document is paid and cannot be cancelled", func(t *testing.T) {
				assert.Equal(t, StatusPaid, doc.Status)
				err := doc.Cancel(now.Add(4 * time.Hour))
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
				assert.Equal(t, StatusPaid, doc.Status)
			})
		})
	})
}
