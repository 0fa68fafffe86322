// internal/browser/session/session.go
// Package session drives a single Chrome tab over the DevTools protocol and
// exposes it as a browser.Page.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/browser/stealth"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	launchTimeout = 60 * time.Second
)

// Session is one headless Chrome process with one tab.
type Session struct {
	id     string
	ctx    context.Context // tab context, carries the chromedp target
	cancel context.CancelFunc
	// allocCancel tears down the browser process.
	allocCancel context.CancelFunc
	logger      *zap.Logger

	navigationTimeout time.Duration
	actionTimeout     time.Duration

	dialogs   *browser.DialogPolicies
	closeOnce sync.Once
}

var _ browser.Page = (*Session)(nil)

// New launches the browser and opens its tab. The process lives until Close is
// called; ctx only bounds the launch itself.
func New(ctx context.Context, cfg config.BrowserConfig, timing config.TimingConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), allocatorOptions(cfg)...)

	sugar := log.Sugar()
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:                id,
		ctx:               tabCtx,
		cancel:            tabCancel,
		allocCancel:       allocCancel,
		logger:            log,
		navigationTimeout: timing.NavigationTimeout,
		actionTimeout:     timing.ControlTimeout,
		dialogs:           browser.NewDialogPolicies(),
	}
	if s.navigationTimeout <= 0 {
		s.navigationTimeout = 60 * time.Second
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = 10 * time.Second
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			// Answering must not happen on the event goroutine.
			go s.answerDialog(e)
		}
	})

	// An empty Run starts the browser, so launch failures surface here.
	if err := s.run(ctx, launchTimeout, "browser launch"); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}

	if cfg.Stealth.Enabled {
		if err := s.run(ctx, launchTimeout, "apply persona", stealth.Apply(stealth.PersonaFromConfig(cfg), log)); err != nil {
			tabCancel()
			allocCancel()
			return nil, err
		}
	}

	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless), zap.Bool("stealth", cfg.Stealth.Enabled))
	return s, nil
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	width, height := cfg.Viewport["width"], cfg.Viewport["height"]
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.WindowSize(width, height),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// answerDialog resolves a native dialog through the current policy. If the
// chosen answer cannot be delivered the dialog is dismissed so the page never
// stays blocked.
func (s *Session) answerDialog(e *page.EventJavascriptDialogOpening) {
	policy := s.dialogs.Current()
	ev := browser.DialogEvent{
		Type:          string(e.Type),
		Message:       e.Message,
		DefaultPrompt: e.DefaultPrompt,
		URL:           e.URL,
	}
	decision := policy.Decide(ev)

	log := s.logger.With(
		zap.String("policy", policy.Name()),
		zap.String("dialog_type", ev.Type),
		zap.String("message", ev.Message),
	)

	handle := page.HandleJavaScriptDialog(decision.Accept)
	if decision.Accept && e.Type == page.DialogTypePrompt {
		handle = handle.WithPromptText(decision.PromptText)
	}
	if err := s.run(context.Background(), s.actionTimeout, "answer dialog", handle); err != nil {
		log.Warn("Could not answer dialog, dismissing.", zap.Error(err))
		if err := s.run(context.Background(), s.actionTimeout, "dismiss dialog", page.HandleJavaScriptDialog(false)); err != nil {
			log.Error("Failed to dismiss dialog.", zap.Error(err))
		}
		return
	}
	log.Info("Dialog answered.", zap.Bool("accepted", decision.Accept))
}

// SetDialogPolicy makes p answer dialogs until restore is called.
func (s *Session) SetDialogPolicy(p browser.DialogPolicy) (restore func()) {
	return s.dialogs.Push(p)
}

// ID returns the session identifier used in log fields.
func (s *Session) ID() string { return s.id }

// run executes actions against the tab, bounded by timeout and by both ctx and
// the session lifetime. An expired timeout is reported as browser.ErrTimeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()
	runCtx, runCancel := CombineContext(s.ctx, opCtx)
	defer runCancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s canceled: %w", what, ctx.Err())
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s timed out after %v: %w", what, timeout, browser.ErrTimeout)
	case s.ctx.Err() != nil:
		return fmt.Errorf("%s: browser session closed: %w", what, s.ctx.Err())
	default:
		return fmt.Errorf("%s failed: %w", what, err)
	}
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session.")
		// Cancel closes the tab and the browser gracefully and waits for both.
		if cerr := chromedp.Cancel(s.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("closing browser: %w", cerr)
		}
		s.cancel()
		s.allocCancel()
	})
	return err
}
