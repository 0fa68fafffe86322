// internal/browser/overlay/suppressor.go
// Package overlay clears promotional layers that cover the listing pages.
package overlay

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// Method names how an overlay was cleared.
type Method string

const (
	MethodNone         Method = ""
	MethodCloseControl Method = "close-control"
	MethodEscape       Method = "escape"
	MethodRemoval      Method = "removal"
)

// Result reports what a Suppress call found and did.
type Result struct {
	Detected bool
	Method   Method
	Removed  int
}

// Suppressor detects and clears DOM overlays. It never fails the caller.
type Suppressor struct {
	page    browser.Page
	cfg     config.OverlayConfig
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a suppressor. timeout bounds a whole Suppress call.
func New(page browser.Page, cfg config.OverlayConfig, timeout time.Duration, logger *zap.Logger) *Suppressor {
	return &Suppressor{
		page:    page,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.Named("overlay"),
	}
}

// Suppress clears visible overlays by trying, in order, a close control, the
// Escape key, and script removal. Each step rechecks before the next runs.
func (s *Suppressor) Suppress(ctx context.Context) Result {
	if !s.cfg.Enabled || len(s.cfg.Selectors) == 0 {
		return Result{}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	visible, err := s.visible(ctx)
	if err != nil {
		s.logger.Debug("Overlay check failed.", zap.Error(err))
		return Result{}
	}
	if visible == 0 {
		return Result{}
	}
	s.logger.Info("Overlay detected.", zap.Int("count", visible))
	res := Result{Detected: true}

	if s.tryCloseControls(ctx) {
		if n, err := s.visible(ctx); err == nil && n == 0 {
			res.Method = MethodCloseControl
			s.logger.Info("Overlay closed.", zap.String("method", string(res.Method)))
			return res
		}
	}

	if err := s.page.PressKey(ctx, browser.KeyEscape); err != nil {
		s.logger.Debug("Escape key failed.", zap.Error(err))
	} else if n, err := s.visible(ctx); err == nil && n == 0 {
		res.Method = MethodEscape
		s.logger.Info("Overlay closed.", zap.String("method", string(res.Method)))
		return res
	}

	var removed int
	if err := s.page.Evaluate(ctx, removalScript(s.cfg.Selectors, s.cfg.ZIndexThreshold), &removed); err != nil {
		s.logger.Warn("Overlay removal failed.", zap.Error(err))
		return res
	}
	res.Method = MethodRemoval
	res.Removed = removed
	s.logger.Info("Overlay removed from the page.", zap.Int("removed", removed))
	return res
}

func (s *Suppressor) tryCloseControls(ctx context.Context) bool {
	for _, sel := range s.cfg.CloseSelectors {
		ok, err := s.page.Exists(ctx, sel)
		if err != nil || !ok {
			continue
		}
		if err := s.page.ForceClick(ctx, sel); err != nil {
			s.logger.Debug("Close control click failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		s.logger.Debug("Clicked close control.", zap.String("selector", sel))
		return true
	}
	return false
}

func (s *Suppressor) visible(ctx context.Context) (int, error) {
	var n int
	if err := s.page.Evaluate(ctx, visibleScript(s.cfg.Selectors), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func jsList(selectors []string) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(selectors)
	if err != nil {
		return "[]"
	}
	return string(b)
}

const isShownJS = `const shown = (el) => {
  const st = window.getComputedStyle(el);
  if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
};
const matches = (sels) => {
  const out = new Set();
  for (const sel of sels) {
    try { document.querySelectorAll(sel).forEach((el) => out.add(el)); } catch (e) {}
  }
  return Array.from(out);
};`

func visibleScript(selectors []string) string {
	return fmt.Sprintf(`(() => {
%s
return matches(%s).filter(shown).length;
})()`, isShownJS, jsList(selectors))
}

func removalScript(selectors []string, zIndexThreshold int) string {
	return fmt.Sprintf(`(() => {
%s
const doomed = new Set(matches(%s).filter(shown));
const threshold = %d;
if (threshold > 0) {
  document.querySelectorAll('body *').forEach((el) => {
    const st = window.getComputedStyle(el);
    if ((st.position === 'fixed' || st.position === 'absolute') && (parseInt(st.zIndex, 10) || 0) > threshold && shown(el)) {
      doomed.add(el);
    }
  });
}
let removed = 0;
doomed.forEach((el) => { if (el.isConnected) { el.remove(); removed++; } });
document.body.style.overflow = '';
return removed;
})()`, isShownJS, jsList(selectors), zIndexThreshold)
}
