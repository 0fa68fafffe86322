// internal/renewal/live.go
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// LiveStage performs the renewal workflow against the site. A failure part way
// through leaves the listing in whatever state the site reached; nothing is
// rolled back.
type LiveStage struct {
	page     browser.Page
	sel      config.SelectorConfig
	site     config.SiteConfig
	timing   config.TimingConfig
	strict   bool
	locator  *Locator
	overlays OverlaySuppressor
	observer StepObserver
	logger   *zap.Logger
}

// NewLiveStage creates the live workflow. overlays and observer may be nil.
func NewLiveStage(page browser.Page, cfg *config.Config, locator *Locator, overlays OverlaySuppressor, observer StepObserver, logger *zap.Logger) *LiveStage {
	return &LiveStage{
		page:     page,
		sel:      cfg.Site.Selectors,
		site:     cfg.Site,
		timing:   cfg.Timing,
		strict:   cfg.Run.StrictReadvertise,
		locator:  locator,
		overlays: overlays,
		observer: observer,
		logger:   logger.Named("live"),
	}
}

func (s *LiveStage) Name() string { return "live" }

// Execute runs the five steps in order and stops at the first failure.
func (s *LiveStage) Execute(ctx context.Context, m *Match) error {
	steps := []func(context.Context, *Match) error{
		s.endExposure,
		s.endAdvertisement,
		s.readvertise,
		s.registerAd,
		s.pay,
	}
	for i, step := range steps {
		emit(s.observer, s.logger, StepEvent{ListingID: m.ID, Step: i + 1, Name: Steps[i]})
		if err := step(ctx, m); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, Steps[i], err)
		}
		s.logger.Info("Step complete.", zap.String("listing_id", m.ID), zap.Int("step", i+1))
	}
	s.logger.Info("Listing renewed.", zap.String("listing_id", m.ID))
	return nil
}

// endExposure clicks the row's end-exposure button and accepts the confirmation.
func (s *LiveStage) endExposure(ctx context.Context, m *Match) error {
	button := within(m.RowSelector, s.sel.EndExposure)
	present, err := s.page.Exists(ctx, button)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: end-exposure button in row %d", ErrControlMissing, m.Row)
	}

	events := make(chan browser.DialogEvent, 1)
	restore := s.page.SetDialogPolicy(browser.AcceptPolicy("end-exposure", events))
	defer restore()

	if err := s.page.ForceClick(ctx, button); err != nil {
		return err
	}

	timer := time.NewTimer(s.timing.DialogWindow)
	defer timer.Stop()
	select {
	case ev := <-events:
		s.logger.Info("Confirmation accepted.", zap.String("listing_id", m.ID), zap.String("message", ev.Message))
	case <-timer.C:
		s.logger.Warn("No confirmation dialog appeared.", zap.String("listing_id", m.ID), zap.Duration("window", s.timing.DialogWindow))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// endAdvertisement switches the table to the ended listings.
func (s *LiveStage) endAdvertisement(ctx context.Context, _ *Match) error {
	if err := s.page.WaitVisible(ctx, s.sel.StatusAdEnd, s.timing.StatusFilterTimeout); err != nil {
		return fmt.Errorf("status filter: %w", err)
	}
	before := s.locator.tableSignature(ctx)

	s.suppress(ctx)
	if err := s.page.Click(ctx, s.sel.StatusAdEnd); err != nil {
		return err
	}

	// The active table stays on screen until the filter re-renders it.
	err := s.locator.waitTableChange(ctx, "ended listings table", before, s.timing.EndedTableTimeout)
	if !errors.Is(err, browser.ErrTimeout) {
		return err
	}
	present, perr := s.page.Exists(ctx, s.sel.TableRows)
	if perr != nil {
		return perr
	}
	if !present {
		return fmt.Errorf("ended listings table: %w", err)
	}
	s.logger.Warn("Listings table unchanged after the status filter; continuing.", zap.Duration("waited", s.timing.EndedTableTimeout))
	return nil
}

// readvertise clicks re-register on the listing's row in the ended table. A
// missing row is only a warning unless strict mode is on.
func (s *LiveStage) readvertise(ctx context.Context, m *Match) error {
	ended, err := s.locator.ScanCurrentPage(ctx, m.ID)
	if err == nil {
		button := within(ended.RowSelector, s.sel.Readvertise)
		present, perr := s.page.Exists(ctx, button)
		if perr != nil {
			return perr
		}
		if present {
			return s.page.Click(ctx, button)
		}
		err = fmt.Errorf("%w: no re-register control in row %d", ErrReadvertiseNotFound, ended.Row)
	} else if errors.Is(err, ErrListingNotFound) {
		err = fmt.Errorf("%w: %s", ErrReadvertiseNotFound, m.ID)
	} else {
		return err
	}

	if s.strict {
		return err
	}
	s.logger.Warn("Re-advertise skipped; continuing.", zap.String("listing_id", m.ID), zap.Error(err))
	return nil
}

// registerAd waits for the registration page and clicks the advertise control.
func (s *LiveStage) registerAd(ctx context.Context, _ *Match) error {
	err := browser.Poll(ctx, "registration page", s.timing.RegistrationTimeout, s.timing.PollInterval,
		func(ctx context.Context) (bool, error) {
			u, err := s.page.URL(ctx)
			if err != nil {
				return false, nil
			}
			return strings.Contains(u, s.site.RegistrationPath), nil
		})
	if err != nil {
		return err
	}

	s.suppress(ctx)
	if err := s.page.WaitVisible(ctx, s.sel.Advertise, s.timing.ControlTimeout); err != nil {
		return fmt.Errorf("advertise control: %w", err)
	}
	return s.page.Click(ctx, s.sel.Advertise)
}

// pay ticks the consent box from script and submits payment when offered.
func (s *LiveStage) pay(ctx context.Context, _ *Match) error {
	err := browser.Poll(ctx, "consent checkbox", s.timing.ControlTimeout, s.timing.PollInterval,
		func(ctx context.Context) (bool, error) {
			return s.page.Exists(ctx, s.sel.Consent)
		})
	if errors.Is(err, browser.ErrTimeout) {
		return fmt.Errorf("%w: consent checkbox: %w", ErrControlMissing, err)
	}
	if err != nil {
		return err
	}
	if err := s.page.ForceClick(ctx, s.sel.Consent); err != nil {
		return err
	}

	present, err := s.page.Exists(ctx, s.sel.PaymentSubmit)
	if err != nil {
		return err
	}
	if !present {
		s.logger.Info("No payment control; nothing to submit.")
		return nil
	}
	if err := s.page.Click(ctx, s.sel.PaymentSubmit); err != nil {
		return err
	}

	err = browser.Poll(ctx, "payment submission", s.timing.PaymentSettle, s.timing.PollInterval,
		func(ctx context.Context) (bool, error) {
			still, err := s.page.Exists(ctx, s.sel.PaymentSubmit)
			return err == nil && !still, nil
		})
	if errors.Is(err, browser.ErrTimeout) {
		s.logger.Warn("Payment control still present after submit.", zap.Error(err))
		return nil
	}
	return err
}

func (s *LiveStage) suppress(ctx context.Context) {
	if s.overlays != nil {
		s.overlays.Suppress(ctx)
	}
}
