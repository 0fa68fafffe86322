// internal/renewal/stage.go
package renewal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
)

// Steps of the renewal workflow, in order.
var Steps = []string{
	"end exposure",
	"end advertisement",
	"re-advertise",
	"ad registration",
	"payment",
}

// StepEvent reports that a workflow step started.
type StepEvent struct {
	ListingID string `json:"listing_id"`
	Step      int    `json:"step"`
	Name      string `json:"name"`
	Simulated bool   `json:"simulated"`
}

// StepObserver receives step events. It is called synchronously.
type StepObserver func(StepEvent)

// Stage runs the renewal workflow for a matched listing.
type Stage interface {
	Name() string
	Execute(ctx context.Context, m *Match) error
}

func emit(observer StepObserver, logger *zap.Logger, ev StepEvent) {
	logger.Info("Step started.",
		zap.String("listing_id", ev.ListingID),
		zap.Int("step", ev.Step),
		zap.String("name", ev.Name),
		zap.Bool("simulated", ev.Simulated),
	)
	if observer != nil {
		observer(ev)
	}
}

// SimulatedStage walks the steps without touching the page.
type SimulatedStage struct {
	delay    time.Duration
	observer StepObserver
	logger   *zap.Logger
}

// NewSimulatedStage returns a stage that waits delay between consecutive steps.
func NewSimulatedStage(delay time.Duration, observer StepObserver, logger *zap.Logger) *SimulatedStage {
	return &SimulatedStage{delay: delay, observer: observer, logger: logger.Named("simulate")}
}

func (s *SimulatedStage) Name() string { return "simulated" }

// Execute emits one event per step and succeeds unless ctx is canceled.
func (s *SimulatedStage) Execute(ctx context.Context, m *Match) error {
	for i, name := range Steps {
		if i > 0 {
			if err := browser.Sleep(ctx, s.delay); err != nil {
				return err
			}
		}
		emit(s.observer, s.logger, StepEvent{ListingID: m.ID, Step: i + 1, Name: name, Simulated: true})
	}
	s.logger.Info("Simulation complete.", zap.String("listing_id", m.ID))
	return nil
}
