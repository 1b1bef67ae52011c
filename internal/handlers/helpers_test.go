package handlers_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/lockout"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/store"
)

var testNow = time.Unix(1_700_000_000, 0)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine registers brute force (locks on the third failure) and
// anti-spam (five second minimum, one link) on a fake clock
func newTestEngine(t *testing.T) (*policy.Engine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testNow)
	s := store.NewMemoryStore(clk)
	deps := policy.Deps{Counters: s, Locks: lockout.NewManager(s, 0), Clock: clk}
	rules := inspector.DefaultRuleSets()

	reg, err := policy.NewRegistry(
		policy.NewBruteForce(policy.BruteForceConfig{
			Limits: policy.Limits{Threshold: 2, Window: 5 * time.Minute, LockDuration: 15 * time.Minute},
		}, deps),
		policy.NewAntispam(policy.AntispamConfig{
			Limits:     policy.Limits{Threshold: 10, Window: time.Hour, LockDuration: time.Hour},
			MinSeconds: 5 * time.Second,
			MaxLinks:   1,
			Rules:      rules.Spam,
		}, deps),
	)
	require.NoError(t, err)
	return policy.NewEngine(reg, nil), clk
}
