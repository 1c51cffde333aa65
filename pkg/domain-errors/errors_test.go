package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("Is matches the outermost code only", func(t *testing.T) {
		inner := New(CodeNotFound, "document not found")
		outer := Wrap(inner, CodeUnknownDocument, "unknown document")

		assert.True(t, Is(outer, CodeUnknownDocument))
		assert.False(t, Is(outer, CodeNotFound))
	})

	t.Run("HasCode walks the whole chain", func(t *testing.T) {
		inner := New(CodeNotFound, "document not found")
		outer := Wrap(inner, CodeUnknownDocument, "unknown document")

		assert.True(t, HasCode(outer, CodeNotFound))
		assert.True(t, HasCode(fmt.Errorf("load: %w", outer), CodeUnknownDocument))
		assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
	})

	t.Run("CodeOf defaults to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.Equal(t, CodeStaleEvent, CodeOf(New(CodeStaleEvent, "stale")))
	})

	t.Run("wrapped cause is reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeChannelUnavailable, "sms gateway unavailable")

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "sms gateway unavailable: connection refused", err.Error())
		assert.Equal(t, "sms gateway unavailable", MessageOf(err))
	})
}
