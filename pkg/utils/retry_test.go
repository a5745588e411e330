package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatmod/chatmod/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary error")

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		failures      int
		expectedCalls int
		expectedErr   error
	}{
		{
			name:          "succeeds first try",
			failures:      0,
			expectedCalls: 1,
		},
		{
			name:          "succeeds after retries",
			failures:      2,
			expectedCalls: 3,
		},
		{
			name:          "fails all retries",
			failures:      10,
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			operation := func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errTemporary
				}

				return "ok", nil
			}

			opts := utils.RetryOptions{
				MaxElapsedTime:  time.Second,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
				MaxRetries:      3,
			}

			result, err := utils.WithRetry(context.Background(), operation, opts)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", result)
			}

			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}
