package circuit

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errGateway = errors.New("gateway 502")

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		outcomes  []error
		want      []Transition
		wantState State
	}{
		{
			name:      "opens on the threshold failure",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []error{errGateway, errGateway, errGateway},
			want:      []Transition{NoChange, NoChange, Opened},
			wantState: StateOpen,
		},
		{
			name:      "success restarts the failure streak",
			opts:      []Option{WithFailureThreshold(2)},
			outcomes:  []error{errGateway, nil, errGateway},
			want:      []Transition{NoChange, NoChange, NoChange},
			wantState: StateClosed,
		},
		{
			name:      "failures while open are not new trips",
			opts:      []Option{WithFailureThreshold(1)},
			outcomes:  []error{errGateway, errGateway, errGateway},
			want:      []Transition{Opened, NoChange, NoChange},
			wantState: StateOpen,
		},
		{
			name:      "closes after the success threshold",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []error{errGateway, nil, nil},
			want:      []Transition{Opened, NoChange, Closed},
			wantState: StateClosed,
		},
		{
			name:      "failure while open restarts the success streak",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []error{errGateway, nil, errGateway, nil},
			want:      []Transition{Opened, NoChange, NoChange, NoChange},
			wantState: StateOpen,
		},
		{
			name:      "non-positive thresholds keep defaults",
			opts:      []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			outcomes:  []error{errGateway, errGateway, errGateway, errGateway, errGateway},
			want:      []Transition{NoChange, NoChange, NoChange, NoChange, Opened},
			wantState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("sms", tt.opts...)
			got := make([]Transition, 0, len(tt.outcomes))
			for _, err := range tt.outcomes {
				got = append(got, b.Record(err))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantState, b.State())
		})
	}
}

func TestBreakerResetKeepsTrips(t *testing.T) {
	b := New("post", WithFailureThreshold(1))
	require.Equal(t, Opened, b.Record(errGateway))

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, Counts{Trips: 1}, b.Counts())
	assert.Equal(t, "post", b.Name())
}

func TestBreakerConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("email", WithFailureThreshold(10))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Record(errGateway) == Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, b.Counts().Trips)
}
