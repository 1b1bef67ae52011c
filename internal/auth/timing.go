package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig bounds the random delay applied after a failed authentication
type TimingConfig struct {
	MinDelay       time.Duration
	MaxDelay       time.Duration
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay slows down failed attempts by a random amount so that
// password guessing is rate-bound and failures are harder to time
type TimingDelay struct {
	config TimingConfig
	sleep  func(ctx context.Context, d time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	if config.MaxDelay < config.MinDelay {
		config.MaxDelay = config.MinDelay
	}
	return &TimingDelay{config: config, sleep: sleepContext}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// Delay returns the duration Wait would sleep for an attempt with this outcome
func (td *TimingDelay) Delay(success bool) time.Duration {
	if success && !td.config.DelayOnSuccess {
		return 0
	}

	d := td.config.MinDelay
	if spread := int64(td.config.MaxDelay - td.config.MinDelay); spread > 0 {
		if n, err := cryptoRandIntn(spread + 1); err == nil {
			d += time.Duration(n)
		}
	}
	return d
}

// Wait sleeps for the attempt's delay or until ctx is done
func (td *TimingDelay) Wait(ctx context.Context, success bool) {
	if d := td.Delay(success); d > 0 {
		td.sleep(ctx, d)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
