package ranged

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(2, 10*time.Millisecond, 100*time.Millisecond)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"attempts exhausted", errors.New("boom"), 3, false},
		{"canceled", fmt.Errorf("wrap: %w", context.Canceled), 1, false},
		{"decompress", &pipeline.FetchError{Err: errDecompress}, 1, false},
		{"503", &pipeline.FetchError{StatusCode: 503}, 1, true},
		{"429", &pipeline.FetchError{StatusCode: 429}, 2, true},
		{"404", &pipeline.FetchError{StatusCode: 404}, 1, false},
		{"net timeout", &pipeline.FetchError{Err: timeoutErr{timeout: true}}, 1, true},
		{"net non-timeout", &pipeline.FetchError{Err: timeoutErr{timeout: false}}, 1, false},
		{"other transport", &pipeline.FetchError{Err: errors.New("connection reset")}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestExponentialRetryPolicyBackoffBounded(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 10*time.Millisecond, 40*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
}
