// internal/browser/session/interaction.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
)

// by picks the chromedp query strategy for a selector.
func by(selector string) chromedp.QueryOption {
	if browser.IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.run(ctx, s.navigationTimeout, "navigation to "+url, chromedp.Navigate(url)); err != nil {
		return err
	}
	return nil
}

// WaitVisible blocks until selector matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, fmt.Sprintf("waiting for %q to be visible", selector),
		chromedp.WaitVisible(selector, by(selector)))
}

// Exists reports whether selector matches at least one element right now.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := s.Count(ctx, selector)
	return n > 0, err
}

// Count returns how many elements currently match selector. It never waits.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := s.eval(ctx, "count "+selector, countScript(selector), &n); err != nil {
		return 0, err
	}
	return n, nil
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// Text returns the trimmed text of the first match.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var res textResult
	if err := s.eval(ctx, "text of "+selector, textScript(selector), &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
	}
	return strings.TrimSpace(res.Text), nil
}

type attributeResult struct {
	Found   bool   `json:"found"`
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

// Attribute reads an attribute of the first match.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var res attributeResult
	if err := s.eval(ctx, "attribute of "+selector, attributeScript(selector, name), &res); err != nil {
		return "", false, err
	}
	if !res.Found {
		return "", false, fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
	}
	return res.Value, res.Present, nil
}

// Fill clears the field and types value into it.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, s.actionTimeout, fmt.Sprintf("fill %q", selector),
		chromedp.WaitVisible(selector, by(selector)),
		chromedp.Clear(selector, by(selector)),
		chromedp.SendKeys(selector, value, by(selector)),
	)
}

// Click clicks the first visible match with a synthesized mouse event.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking.", zap.String("selector", selector))
	return s.run(ctx, s.actionTimeout, fmt.Sprintf("click %q", selector),
		chromedp.Click(selector, by(selector), chromedp.NodeVisible))
}

// ForceClick calls click() on the first match from script.
func (s *Session) ForceClick(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking from script.", zap.String("selector", selector))
	var found bool
	if err := s.eval(ctx, "script click "+selector, clickScript(selector), &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
	}
	return nil
}

// PressKey sends a single key to the focused element.
func (s *Session) PressKey(ctx context.Context, key string) error {
	keys := key
	switch key {
	case browser.KeyEscape:
		keys = kb.Escape
	case browser.KeyEnter:
		keys = kb.Enter
	}
	return s.run(ctx, s.actionTimeout, "press "+key, chromedp.KeyEvent(keys))
}

// Evaluate runs script in the page. A nil res discards the result, including
// undefined or null values.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	if res == nil {
		var discard interface{}
		err := s.eval(ctx, "evaluate", script, &discard)
		if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
			return nil
		}
		return err
	}
	return s.eval(ctx, "evaluate", script, res)
}

func (s *Session) eval(ctx context.Context, what, script string, res interface{}) error {
	return s.run(ctx, s.actionTimeout, what, chromedp.Evaluate(script, res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}))
}

// URL returns the current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, s.actionTimeout, "read location", chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.actionTimeout, "read title", chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.navigationTimeout, "capture screenshot", chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}
