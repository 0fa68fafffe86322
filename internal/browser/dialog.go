// internal/browser/dialog.go
package browser

import (
	"sync"
)

// Dialog types as reported by the browser.
const (
	DialogAlert        = "alert"
	DialogConfirm      = "confirm"
	DialogPrompt       = "prompt"
	DialogBeforeUnload = "beforeunload"
)

// DialogEvent describes a native dialog the page opened.
type DialogEvent struct {
	Type          string
	Message       string
	DefaultPrompt string
	URL           string
}

// DialogDecision is how a policy answers a dialog.
type DialogDecision struct {
	Accept     bool
	PromptText string
}

// DialogPolicy decides the answer to native dialogs. Name labels log lines.
type DialogPolicy interface {
	Name() string
	Decide(ev DialogEvent) DialogDecision
}

type acceptPolicy struct {
	label  string
	events chan<- DialogEvent
}

// AcceptPolicy accepts every dialog, answering prompts with empty text. When
// events is non-nil each dialog is also published to it without blocking.
func AcceptPolicy(label string, events chan<- DialogEvent) DialogPolicy {
	return &acceptPolicy{label: label, events: events}
}

func (p *acceptPolicy) Name() string { return p.label }

func (p *acceptPolicy) Decide(ev DialogEvent) DialogDecision {
	if p.events != nil {
		select {
		case p.events <- ev:
		default:
		}
	}
	return DialogDecision{Accept: true}
}

// DialogPolicies is a stack of scoped policies. The top entry answers dialogs;
// with nothing pushed the fallback accepts everything.
type DialogPolicies struct {
	mu       sync.Mutex
	stack    []*policyEntry
	fallback DialogPolicy
}

type policyEntry struct {
	policy DialogPolicy
}

// NewDialogPolicies returns an empty stack whose fallback accepts all dialogs.
func NewDialogPolicies() *DialogPolicies {
	return &DialogPolicies{fallback: AcceptPolicy("default", nil)}
}

// Push makes p current. The returned restore removes exactly this entry and is
// safe to call more than once, so policies released out of order still leave
// the remaining ones intact.
func (d *DialogPolicies) Push(p DialogPolicy) (restore func()) {
	entry := &policyEntry{policy: p}
	d.mu.Lock()
	d.stack = append(d.stack, entry)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i := len(d.stack) - 1; i >= 0; i-- {
				if d.stack[i] == entry {
					d.stack = append(d.stack[:i], d.stack[i+1:]...)
					return
				}
			}
		})
	}
}

// Current returns the policy that answers the next dialog.
func (d *DialogPolicies) Current() DialogPolicy {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.stack); n > 0 {
		return d.stack[n-1].policy
	}
	if d.fallback == nil {
		d.fallback = AcceptPolicy("default", nil)
	}
	return d.fallback
}

// Depth reports how many scoped policies are active.
func (d *DialogPolicies) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stack)
}
