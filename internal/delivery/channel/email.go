package channel

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"billtrack/internal/billing/models"
)

// SESAPI is the part of the SES v2 client the email channel uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailSender delivers documents through Amazon SES. The SES message id is
// the external reference.
type EmailSender struct {
	client SESAPI
	from   string
}

func NewEmailSender(client SESAPI, from string) (*EmailSender, error) {
	if from == "" {
		return nil, errors.New("email sender address is required")
	}
	return &EmailSender{client: client, from: from}, nil
}

// NewSESEmailSender builds the sender from a loaded AWS config.
func NewSESEmailSender(cfg aws.Config, from string) (*EmailSender, error) {
	return NewEmailSender(sesv2.NewFromConfig(cfg), from)
}

func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.RecipientContact},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("tracking_number"), Value: aws.String(msg.TrackingNumber)},
		},
	})
	if err != nil {
		return "", classifySES(err)
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return "", transient(models.ChannelEmail, errors.New("ses returned no message id"))
	}
	return *out.MessageId, nil
}

// classifySES treats rejected messages and bad requests as permanent.
func classifySES(err error) error {
	var (
		rejected *types.MessageRejected
		badReq   *types.BadRequestException
		notFound *types.NotFoundException
	)
	if errors.As(err, &rejected) || errors.As(err, &badReq) || errors.As(err, &notFound) {
		return permanent(models.ChannelEmail, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return permanent(models.ChannelEmail, err)
	}
	return transient(models.ChannelEmail, err)
}
