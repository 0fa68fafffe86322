// internal/renewal/runner.go
// Package renewal signs in to the listing-management site and renews listings
// one at a time.
package renewal

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/browser/overlay"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// Option configures a Runner.
type Option func(*Runner)

// WithObserver receives every step event.
func WithObserver(o StepObserver) Option {
	return func(r *Runner) { r.observer = o }
}

// WithStage replaces the stage chosen from configuration.
func WithStage(s Stage) Option {
	return func(r *Runner) { r.stage = s }
}

// Runner processes the configured listings serially on one page.
type Runner struct {
	page      browser.Page
	auth      *Authenticator
	locator   *Locator
	stage     Stage
	shots     *Screenshots
	listings  []string
	timing    config.TimingConfig
	simulated bool
	observer  StepObserver
	now       func() time.Time
	logger    *zap.Logger
}

// NewRunner wires the workflow for cfg on top of page.
func NewRunner(page browser.Page, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Runner, error) {
	log := logger.Named("renewal")
	shots, err := NewScreenshots(page, cfg.Artifacts, log)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		page:      page,
		shots:     shots,
		listings:  append([]string(nil), cfg.Run.Listings...),
		timing:    cfg.Timing,
		simulated: cfg.Run.Simulate,
		now:       time.Now,
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}

	suppressor := overlay.New(page, cfg.Site.Overlay, cfg.Timing.OverlayTimeout, log)
	r.auth = NewAuthenticator(page, cfg, log)
	r.locator = NewLocator(page, cfg, suppressor, log)
	if r.stage == nil {
		if cfg.Run.Simulate {
			r.stage = NewSimulatedStage(cfg.Timing.SimulateStepDelay, r.observer, log)
		} else {
			r.stage = NewLiveStage(page, cfg, r.locator, suppressor, r.observer, log)
		}
	}
	return r, nil
}

// Run signs in once, processes every listing, retries the failures once and
// returns the summary. Only a failed sign-in or a canceled ctx end the run
// early; both still return a summary alongside the error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	s := &Summary{
		RunID:           uuid.New().String(),
		StartedAt:       r.now(),
		Simulated:       r.simulated,
		FirstPassFailed: []string{},
		Failed:          []string{},
	}
	for _, id := range r.listings {
		s.Outcomes = append(s.Outcomes, Outcome{ListingID: id})
	}
	log := r.logger.With(zap.String("run_id", s.RunID))
	log.Info("Run started.", zap.Int("listings", len(r.listings)), zap.String("stage", r.stage.Name()))

	if len(r.listings) == 0 {
		log.Warn("No listings to process.")
		return r.finish(ctx, s, false), nil
	}

	if err := r.auth.Login(ctx); err != nil {
		s.Aborted = true
		s.AbortReason = err.Error()
		r.shots.LoginFailed(ctx)
		log.Error("Sign-in failed; aborting run.", zap.Error(err))
		return r.finish(ctx, s, true), err
	}

	// Main pass.
	var failed []string
	for i, id := range r.listings {
		if i > 0 {
			if err := browser.Sleep(ctx, r.timing.ItemDelay); err != nil {
				return r.interrupted(ctx, s, err)
			}
		}
		log.Info("Processing listing.", zap.String("listing_id", id), zap.Int("index", i+1), zap.Int("of", len(r.listings)))
		if !r.attempt(ctx, s, id, false) {
			failed = append(failed, id)
		}
		if ctx.Err() != nil {
			return r.interrupted(ctx, s, ctx.Err())
		}
	}

	// Retry pass, exactly once per first-pass failure.
	s.FirstPassFailed = append(s.FirstPassFailed, failed...)
	if len(failed) > 0 {
		log.Info("Retrying failed listings.", zap.Strings("listings", failed))
	}
	for i, id := range failed {
		if i > 0 {
			if err := browser.Sleep(ctx, r.timing.RetryItemDelay); err != nil {
				return r.interrupted(ctx, s, err)
			}
		}
		if err := browser.Sleep(ctx, r.timing.RetrySettle); err != nil {
			return r.interrupted(ctx, s, err)
		}
		log.Info("Retrying listing.", zap.String("listing_id", id), zap.Int("index", i+1), zap.Int("of", len(failed)))
		r.attempt(ctx, s, id, true)
		if ctx.Err() != nil {
			return r.interrupted(ctx, s, ctx.Err())
		}
	}

	return r.finish(ctx, s, true), nil
}

// attempt processes one listing and records the outcome. A failure on the
// final attempt is captured as a screenshot.
func (r *Runner) attempt(ctx context.Context, s *Summary, id string, final bool) bool {
	o := s.outcome(id)
	o.Attempts++
	started := r.now()

	m, err := r.process(ctx, id)
	o.Match = m
	log := r.logger.With(zap.String("listing_id", id), zap.Int("attempt", o.Attempts))
	if err != nil {
		o.Succeeded = false
		o.Error = err.Error()
		log.Error("Listing failed.", zap.Error(err))
		if final && ctx.Err() == nil {
			o.Screenshot = r.shots.Listing(ctx, id)
		}
		return false
	}
	o.Succeeded = true
	o.Error = ""
	log.Info("Listing done.", zap.Duration("took", r.now().Sub(started)))
	return true
}

// process finds and renews one listing. Panics are turned into errors so one
// listing cannot take the run down.
func (r *Runner) process(ctx context.Context, id string) (m *Match, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic while processing listing.",
				zap.String("listing_id", id),
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("unexpected failure: %v", p)
		}
	}()

	m, err = r.locator.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.stage.Execute(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}

func (r *Runner) interrupted(ctx context.Context, s *Summary, err error) (*Summary, error) {
	s.Aborted = true
	s.AbortReason = fmt.Sprintf("interrupted: %v", err)
	r.logger.Warn("Run interrupted.", zap.Error(err))
	return r.finish(ctx, s, true), err
}

func (r *Runner) finish(ctx context.Context, s *Summary, screenshot bool) *Summary {
	if screenshot {
		s.Screenshot = r.shots.Final(ctx)
	}
	s.tally()
	s.FinishedAt = r.now()
	r.logger.Info("Run finished.",
		zap.String("run_id", s.RunID),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("total", s.Total),
		zap.Strings("failed", s.Failed),
	)
	return s
}
