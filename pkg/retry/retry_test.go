package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type flaggedErr struct{ retryable bool }

func (e flaggedErr) Error() string     { return "flagged" }
func (e flaggedErr) IsRetryable() bool { return e.retryable }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestStorageConfig_DisablesSameTypeEscalation(t *testing.T) {
	cfg := StorageConfig(6, 20*time.Millisecond)
	assert.Equal(t, 6, cfg.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.InitialDelay)
	assert.Zero(t, cfg.MaxSameErrorType)
}

func TestDoWithResult_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastConfig(2), func() (int, error) {
		calls++
		return 0, errors.New("i/o timeout")
	})

	require.Error(t, err)
	assert.Equal(t, "i/o timeout", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	_, err := DoWithResult(ctx, cfg, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("i/o timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		return "", errors.New("HTTP 404 not found")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("i/o timeout")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), true},
		{"503", errors.New("status 503"), true},
		{"constraint", errors.New("UNIQUE constraint failed: users.username"), false},
		{"explicit retryable", flaggedErr{retryable: true}, true},
		{"explicit permanent wins over pattern", flaggedErr{retryable: false}, false},
		{"wrapped explicit", errors.Join(errors.New("ctx"), flaggedErr{retryable: true}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable_NonRetryableError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return flaggedErr{retryable: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(4), func() error {
		calls++
		if calls < 4 {
			return flaggedErr{retryable: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("upstream returned 503")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated error")
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_ExhaustedReturnsLastError(t *testing.T) {
	calls := 0
	last := flaggedErr{retryable: true}
	err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
		calls++
		return last
	})

	assert.Equal(t, last, err)
	assert.Equal(t, 3, calls)
}
