// internal/renewal/runner_test.go
package renewal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/relist-cli/internal/config"
)

func newTestRunner(t *testing.T, cfg *config.Config, site *fakeSite, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(site, cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return r
}

func artifacts(t *testing.T, cfg *config.Config, pattern string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(cfg.Artifacts.Dir, pattern))
	require.NoError(t, err)
	return matches
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("renews found listings and retries the rest once", func(t *testing.T) {
		cfg := testConfig(t, "2401", "2403", "9999")
		site := newFakeSite(cfg, makePages(12, 3, map[string][2]int{
			"2401": {1, 2},
			"2403": {3, 1},
		}))

		s, err := newTestRunner(t, cfg, site).Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 3, s.Total)
		assert.Equal(t, 2, s.Succeeded)
		assert.Equal(t, []string{"9999"}, s.FirstPassFailed)
		assert.Equal(t, []string{"9999"}, s.Failed)
		assert.False(t, s.Aborted)
		assert.NotEmpty(t, s.RunID)
		assert.Equal(t, []string{"N2401", "N2403"}, site.renewed)

		require.Len(t, s.Outcomes, 3)
		assert.True(t, s.Outcomes[0].Succeeded)
		assert.Equal(t, 1, s.Outcomes[0].Attempts)
		require.NotNil(t, s.Outcomes[1].Match)
		assert.Equal(t, 3, s.Outcomes[1].Match.Page)
		missing := s.Outcomes[2]
		assert.False(t, missing.Succeeded)
		assert.Equal(t, 2, missing.Attempts)
		assert.Contains(t, missing.Error, "after 10 page(s)")
		assert.NotEmpty(t, missing.Screenshot)

		assert.Len(t, artifacts(t, cfg, "listing_9999_*.png"), 1)
		assert.Len(t, artifacts(t, cfg, "multi_automation_*.png"), 1)
		assert.Equal(t, s.Screenshot, artifacts(t, cfg, "multi_automation_*.png")[0])
		assert.Len(t, site.callsMatching("Navigate "+cfg.Site.LoginURL), 1, "sign in happens once per run")
	})

	t.Run("listing recovers on the retry pass", func(t *testing.T) {
		cfg := testConfig(t, "2401", "2402")
		site := newFakeSite(cfg, makePages(1, 4, map[string][2]int{
			"2401": {1, 1},
			"2402": {1, 3},
		}))
		site.missingEnd["N2401"] = 1

		s, err := newTestRunner(t, cfg, site).Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, s.Succeeded)
		assert.Equal(t, []string{"2401"}, s.FirstPassFailed)
		assert.Empty(t, s.Failed)
		assert.Equal(t, 2, s.Outcomes[0].Attempts)
		assert.Empty(t, s.Outcomes[0].Error)
		assert.Empty(t, s.Outcomes[0].Screenshot)
		assert.Equal(t, []string{"N2402", "N2401"}, site.renewed)
		assert.Empty(t, artifacts(t, cfg, "listing_*.png"))
	})

	t.Run("failed sign-in aborts before any listing", func(t *testing.T) {
		cfg := testConfig(t, "2401")
		site := newFakeSite(cfg, makePages(1, 2, map[string][2]int{"2401": {1, 1}}))
		site.validPW = "rotated"

		s, err := newTestRunner(t, cfg, site).Run(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
		require.NotNil(t, s)
		assert.True(t, s.Aborted)
		assert.Contains(t, s.AbortReason, "login failed")
		assert.Zero(t, s.Outcomes[0].Attempts)
		assert.Empty(t, s.Failed)
		assert.Empty(t, site.callsMatching("Navigate "+cfg.Site.ListingsURL))
		assert.Len(t, artifacts(t, cfg, "login_failed_*.png"), 1)
	})

	t.Run("panic in one listing is contained", func(t *testing.T) {
		cfg := testConfig(t, "2401", "2402")
		site := newFakeSite(cfg, makePages(1, 4, map[string][2]int{
			"2401": {1, 1},
			"2402": {1, 2},
		}))
		site.panicOn = "N2401"

		s, err := newTestRunner(t, cfg, site).Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, s.Succeeded)
		assert.Equal(t, []string{"2401"}, s.Failed)
		assert.Contains(t, s.Outcomes[0].Error, "unexpected failure: renderer crashed")
		assert.Equal(t, 2, s.Outcomes[0].Attempts)
		assert.Zero(t, site.policies.Depth())
	})

	t.Run("no listings", func(t *testing.T) {
		cfg := testConfig(t)
		site := newFakeSite(cfg, nil)

		s, err := newTestRunner(t, cfg, site).Run(ctx)

		require.NoError(t, err)
		assert.Zero(t, s.Total)
		assert.Empty(t, s.Screenshot)
		assert.Empty(t, site.calls)
	})

	t.Run("cancellation ends the run with a summary", func(t *testing.T) {
		cfg := testConfig(t, "2401", "2402")
		cfg.Run.Simulate = true
		cfg.Timing.SimulateStepDelay = time.Hour
		site := newFakeSite(cfg, makePages(1, 4, map[string][2]int{
			"2401": {1, 1},
			"2402": {1, 2},
		}))
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := newTestRunner(t, cfg, site, WithObserver(func(StepEvent) { cancel() }))
		s, err := r.Run(cctx)

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, s)
		assert.True(t, s.Aborted)
		assert.Contains(t, s.AbortReason, "interrupted")
		assert.Equal(t, 1, s.Outcomes[0].Attempts)
		assert.Zero(t, s.Outcomes[1].Attempts)
		assert.NotEmpty(t, s.Screenshot, "the final screenshot survives cancellation")
	})

	t.Run("simulation never mutates listings", func(t *testing.T) {
		cfg := testConfig(t, "2401", "2402")
		cfg.Run.Simulate = true
		site := newFakeSite(cfg, makePages(1, 4, map[string][2]int{
			"2401": {1, 1},
			"2402": {1, 2},
		}))
		var events []StepEvent

		r := newTestRunner(t, cfg, site, WithObserver(func(ev StepEvent) { events = append(events, ev) }))
		s, err := r.Run(ctx)

		require.NoError(t, err)
		assert.True(t, s.Simulated)
		assert.Equal(t, 2, s.Succeeded)
		assert.Len(t, events, 10)
		assert.Empty(t, site.callsMatching("ForceClick"))
		assert.Equal(t, []string{"Click " + cfg.Site.Selectors.LoginSubmit}, site.callsMatching("Click"))
		assert.Empty(t, site.ended)
		assert.Empty(t, site.renewed)
	})

	t.Run("pauses between listings but not before the first", func(t *testing.T) {
		const delay = 150 * time.Millisecond
		cfg := testConfig(t, "2401", "2402", "2403")
		cfg.Run.Simulate = true
		cfg.Timing.ItemDelay = delay
		site := newFakeSite(cfg, makePages(1, 4, map[string][2]int{
			"2401": {1, 1},
			"2402": {1, 2},
			"2403": {1, 3},
		}))
		var starts []time.Time
		observer := func(ev StepEvent) {
			if ev.Step == 1 {
				starts = append(starts, time.Now())
			}
		}

		r := newTestRunner(t, cfg, site, WithObserver(observer))
		begin := time.Now()
		s, err := r.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 3, s.Succeeded)
		require.Len(t, starts, 3)
		assert.Less(t, starts[0].Sub(begin), delay, "the first listing starts without the pause")
		for i := 1; i < len(starts); i++ {
			assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), delay, "listing %d", i+1)
		}
	})

	t.Run("custom stage", func(t *testing.T) {
		cfg := testConfig(t, "2401")
		site := newFakeSite(cfg, makePages(1, 1, map[string][2]int{"2401": {1, 1}}))
		stage := NewSimulatedStage(0, nil, zaptest.NewLogger(t))

		s, err := newTestRunner(t, cfg, site, WithStage(stage)).Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, s.Succeeded)
		assert.Empty(t, site.renewed)
	})
}

func TestNewRunner_ArtifactsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Artifacts.Dir = filepath.Join(t.TempDir(), "nested", "shots")

	_, err := NewRunner(newFakeSite(cfg, nil), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.DirExists(t, cfg.Artifacts.Dir)
}
