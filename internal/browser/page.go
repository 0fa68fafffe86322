// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned by every bounded wait that expires.
	ErrTimeout = errors.New("timed out")
	// ErrElementNotFound is returned when an operation needs an element that is absent.
	ErrElementNotFound = errors.New("element not found")
)

// Key names accepted by Page.PressKey.
const (
	KeyEscape = "Escape"
	KeyEnter  = "Enter"
)

// Page is the single browser tab the renewal workflow drives. Selectors are
// CSS unless IsXPath reports true for them.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the element is visible or timeout passes.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
	// Text returns the trimmed text of the first match, or ErrElementNotFound.
	Text(ctx context.Context, selector string) (string, error)
	// Attribute reports the attribute value and whether the attribute is present.
	// A missing element yields ErrElementNotFound.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ForceClick dispatches a click from script, bypassing anything layered above the element.
	ForceClick(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string) error
	// Evaluate runs script in the page and decodes its result into res, which may be nil.
	Evaluate(ctx context.Context, script string, res interface{}) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// SetDialogPolicy makes p answer native dialogs until the returned restore is called.
	SetDialogPolicy(p DialogPolicy) (restore func())
}

// IsXPath reports whether selector should be resolved as XPath.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}
