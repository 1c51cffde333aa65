package models

import (
	"strings"

	dErrors "billtrack/pkg/domain-errors"
)

// Channel is a delivery mechanism for a document.
type Channel string

const (
	ChannelEmail        Channel = "email"
	ChannelSMS          Channel = "sms"
	ChannelPost         Channel = "post"
	ChannelHandDelivery Channel = "hand_delivery"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPost, ChannelHandDelivery:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown delivery channel")
	}
	return c, nil
}

// AttemptStatus is the outcome of a single hand-off to a channel.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)
