package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtrack/internal/billing/models"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	out   *sesv2.SendEmailOutput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return f.out, f.err
}

var message = Message{
	DocumentNumber:   "DOC-20260601-0001",
	TrackingNumber:   "TRK-20260601-0001",
	RecipientName:    "เทศบาลตำบลบางพระ",
	RecipientContact: "finance@bangphra.go.th",
	Subject:          "ใบเรียกเก็บเงิน",
	Body:             "กรุณาชำระเงิน",
}

func TestEmailSender(t *testing.T) {
	t.Run("returns the SES message id", func(t *testing.T) {
		ses := &fakeSES{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}}
		sender, err := NewEmailSender(ses, "billing@example.go.th")
		require.NoError(t, err)

		ref, err := sender.Send(context.Background(), message)
		require.NoError(t, err)
		assert.Equal(t, "ses-123", ref)
		assert.Equal(t, []string{"finance@bangphra.go.th"}, ses.input.Destination.ToAddresses)
		assert.Equal(t, "ใบเรียกเก็บเงิน", *ses.input.Content.Simple.Subject.Data)
	})

	t.Run("rejected message is permanent", func(t *testing.T) {
		ses := &fakeSES{err: &types.MessageRejected{Message: aws.String("address blacklisted")}}
		sender, _ := NewEmailSender(ses, "billing@example.go.th")

		_, err := sender.Send(context.Background(), message)
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})

	t.Run("throttling is retryable", func(t *testing.T) {
		ses := &fakeSES{err: errors.New("connection reset")}
		sender, _ := NewEmailSender(ses, "billing@example.go.th")

		_, err := sender.Send(context.Background(), message)
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})

	t.Run("sender address required", func(t *testing.T) {
		_, err := NewEmailSender(&fakeSES{}, "")
		assert.Error(t, err)
	})
}

func TestSMSSender(t *testing.T) {
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(gatewayResponse{ID: "sms-9"})
	}))
	defer srv.Close()

	ref, err := NewSMSSender(srv.URL, "key", srv.Client()).Send(context.Background(), message)
	require.NoError(t, err)
	assert.Equal(t, "sms-9", ref)
	assert.Equal(t, message.TrackingNumber, got.Reference)
}

func TestGatewayErrorClassification(t *testing.T) {
	for status, retryable := range map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnprocessableEntity: false,
		http.StatusTooManyRequests:     true,
		http.StatusBadGateway:          true,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := NewPostSender(srv.URL, "", srv.Client()).Send(context.Background(), message)
		srv.Close()

		require.Error(t, err, "status %d", status)
		assert.Equal(t, retryable, IsRetryable(err), "status %d", status)
	}
}

func TestPostTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments/EMS123TH", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"EMS123TH","status":"delivered","delivered_at":"2026-06-03T10:00:00Z","updated_at":"2026-06-03T10:05:00Z"}`))
	}))
	defer srv.Close()

	st, err := NewPostSender(srv.URL, "", srv.Client()).Track(context.Background(), "EMS123TH")
	require.NoError(t, err)
	assert.Equal(t, TrackingDelivered, st.Status)
	require.NotNil(t, st.DeliveredAt)
	assert.Equal(t, 3, st.DeliveredAt.Day())
}

func TestHandDeliveryUsesTrackingNumber(t *testing.T) {
	ref, err := HandDeliverySender{}.Send(context.Background(), message)
	require.NoError(t, err)
	assert.Equal(t, message.TrackingNumber, ref)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry().Register(models.ChannelHandDelivery, HandDeliverySender{})

	_, err := r.For(models.ChannelHandDelivery)
	require.NoError(t, err)

	_, err = r.For(models.ChannelSMS)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
