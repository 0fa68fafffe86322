// internal/renewal/fakepage_test.go
package renewal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

const (
	fakeHomeURL     = "https://www.aipartner.com/main"
	fakeRegisterURL = "https://www.aipartner.com/offerings/ad_regist?from=reReg"
)

type fakeRow struct {
	number, name, trade, price string
	noNumber                   bool
	noEndButton                bool
	noReReg                    bool
}

// fakeSite is an in-memory model of the listing-management site that
// implements browser.Page against the default selectors.
type fakeSite struct {
	mu  sync.Mutex
	sel config.SelectorConfig
	cfg *config.Config

	validID, validPW string
	// keepLoginForm leaves the ID field on the page after a successful redirect.
	keepLoginForm bool
	noDialog      bool
	noPayment     bool
	panicOn       string
	// missingEnd hides the end-exposure button for the given number of attempts.
	missingEnd map[string]int

	pages   [][]fakeRow
	ended   []fakeRow
	view    string
	pageIdx int
	url     string
	title   string

	filled   map[string]string
	loggedIn bool
	current  string
	renewed  []string

	calls      []string
	mutations  int
	nextClicks int
	dialogs    []browser.DialogEvent
	policies   *browser.DialogPolicies
}

var rowSel = regexp.MustCompile(`^table tbody tr:nth-child\((\d+)\)(.*)$`)
var cellSel = regexp.MustCompile(`^ > td:nth-child\((\d+)\)$`)

func newFakeSite(cfg *config.Config, pages [][]fakeRow) *fakeSite {
	return &fakeSite{
		sel:        cfg.Site.Selectors,
		cfg:        cfg,
		validID:    cfg.Run.LoginID,
		validPW:    cfg.Run.Password,
		missingEnd: map[string]int{},
		pages:      pages,
		view:       "blank",
		url:        "about:blank",
		filled:     map[string]string{},
		policies:   browser.NewDialogPolicies(),
	}
}

// makePages builds n pages of perPage filler rows and places the given
// listing numbers at (page, row), both 1-based.
func makePages(n, perPage int, place map[string][2]int) [][]fakeRow {
	pages := make([][]fakeRow, n)
	for p := range pages {
		for r := 0; r < perPage; r++ {
			pages[p] = append(pages[p], fakeRow{
				number: fmt.Sprintf("F-%d-%d", p+1, r+1),
				name:   fmt.Sprintf("Filler %d/%d", p+1, r+1),
				trade:  "매매",
				price:  "1억",
			})
		}
	}
	for id, at := range place {
		pages[at[0]-1][at[1]-1] = fakeRow{number: "N" + id, name: "Listing " + id, trade: "전세", price: "3억"}
	}
	return pages
}

func testConfig(t *testing.T, listings ...string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Run.LoginID = "agent01"
	cfg.Run.Password = "secret"
	cfg.Run.Listings = listings
	cfg.Artifacts.Dir = t.TempDir()

	tm := &cfg.Timing
	tm.NavigationTimeout = 50 * time.Millisecond
	tm.LoginFieldTimeout = 50 * time.Millisecond
	tm.LoginOutcomeTimeout = 20 * time.Millisecond
	tm.TableTimeout = 50 * time.Millisecond
	tm.PageTurnTimeout = 50 * time.Millisecond
	tm.DialogWindow = 20 * time.Millisecond
	tm.StatusFilterTimeout = 50 * time.Millisecond
	tm.EndedTableTimeout = 50 * time.Millisecond
	tm.RegistrationTimeout = 30 * time.Millisecond
	tm.ControlTimeout = 30 * time.Millisecond
	tm.PaymentSettle = 30 * time.Millisecond
	tm.OverlayTimeout = 50 * time.Millisecond
	tm.PollInterval = time.Millisecond
	tm.SimulateStepDelay = 0
	tm.ItemDelay = 0
	tm.RetryItemDelay = 0
	tm.RetrySettle = 0
	return cfg
}

func (f *fakeSite) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// rows returns the rows of the table currently shown.
func (f *fakeSite) rows() []fakeRow {
	switch f.view {
	case "list":
		if f.pageIdx < len(f.pages) {
			return f.pages[f.pageIdx]
		}
	case "ended":
		return f.ended
	}
	return nil
}

// row resolves a row-relative selector.
func (f *fakeSite) row(sel string) (fakeRow, string, bool) {
	m := rowSel.FindStringSubmatch(sel)
	if m == nil {
		return fakeRow{}, "", false
	}
	n, _ := strconv.Atoi(m[1])
	rows := f.rows()
	if n < 1 || n > len(rows) {
		return fakeRow{}, "", false
	}
	return rows[n-1], m[2], true
}

func (f *fakeSite) exists(sel string) bool {
	switch sel {
	case f.sel.IDInput, f.sel.PasswordInput, f.sel.LoginSubmit:
		return f.view == "login" || (f.keepLoginForm && f.view == "home")
	case f.sel.TableRows:
		return len(f.rows()) > 0
	case f.sel.NextPage, f.sel.StatusAdEnd:
		return f.view == "list"
	case f.sel.Advertise:
		return f.view == "register"
	case f.sel.Consent:
		return f.view == "advertise"
	case f.sel.PaymentSubmit:
		return f.view == "advertise" && !f.noPayment
	}

	r, rest, ok := f.row(sel)
	if !ok {
		return false
	}
	switch {
	case rest == " "+f.sel.ListingNumber:
		return !r.noNumber
	case rest == " > "+f.sel.ListingCells:
		return true
	case cellSel.MatchString(rest):
		return true
	case rest == " "+f.sel.EndExposure:
		return f.view == "list" && !r.noEndButton && f.missingEnd[r.number] == 0
	case rest == " "+f.sel.Readvertise:
		return f.view == "ended" && !r.noReReg
	}
	return false
}

func (f *fakeSite) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Navigate %s", url)
	switch url {
	case f.cfg.Site.LoginURL:
		f.view, f.url, f.title = "login", url, "로그인 | AIPartner"
	case f.cfg.Site.ListingsURL:
		if !f.loggedIn {
			f.view, f.url, f.title = "login", f.cfg.Site.LoginURL, "로그인 | AIPartner"
			return nil
		}
		f.view, f.url, f.title, f.pageIdx = "list", url, "광고관리", 0
	default:
		return fmt.Errorf("navigation to %s failed: net::ERR_NAME_NOT_RESOLVED", url)
	}
	return nil
}

func (f *fakeSite) WaitVisible(_ context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WaitVisible %s", selector)
	if f.exists(selector) {
		return nil
	}
	return fmt.Errorf("waiting for %q timed out after %v: %w", selector, timeout, browser.ErrTimeout)
}

func (f *fakeSite) Exists(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	present := f.exists(selector)
	if r, rest, ok := f.row(selector); ok && rest == " "+f.sel.EndExposure && f.missingEnd[r.number] > 0 {
		f.missingEnd[r.number]--
	}
	return present, nil
}

func (f *fakeSite) Count(_ context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector == f.sel.TableRows {
		return len(f.rows()), nil
	}
	if _, rest, ok := f.row(selector); ok && rest == " > "+f.sel.ListingCells {
		return 6, nil
	}
	if f.exists(selector) {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSite) Text(_ context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, rest, ok := f.row(selector)
	if ok && f.exists(selector) {
		if rest == " "+f.sel.ListingNumber {
			return r.number, nil
		}
		if m := cellSel.FindStringSubmatch(rest); m != nil {
			switch m[1] {
			case "2":
				return r.name, nil
			case "4":
				return r.trade, nil
			case "5":
				return r.price, nil
			}
			return "", nil
		}
	}
	return "", fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
}

func (f *fakeSite) Attribute(_ context.Context, selector, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector == f.sel.NextPage && name == "class" && f.exists(selector) {
		if f.pageIdx >= len(f.pages)-1 {
			return "btn next disabled", true, nil
		}
		return "btn next", true, nil
	}
	return "", false, fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
}

func (f *fakeSite) Fill(_ context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Fill %s", selector)
	f.mutations++
	if !f.exists(selector) {
		return fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
	}
	f.filled[selector] = value
	return nil
}

func (f *fakeSite) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Click %s", selector)
	f.mutations++
	if !f.exists(selector) {
		return fmt.Errorf("click %q: %w", selector, browser.ErrElementNotFound)
	}

	switch selector {
	case f.sel.LoginSubmit:
		if f.filled[f.sel.IDInput] == f.validID && f.filled[f.sel.PasswordInput] == f.validPW {
			f.loggedIn = true
			f.view, f.url, f.title = "home", fakeHomeURL, "AIPartner"
		}
		return nil
	case f.sel.NextPage:
		if f.pageIdx < len(f.pages)-1 {
			f.pageIdx++
			f.nextClicks++
		}
		return nil
	case f.sel.StatusAdEnd:
		f.view = "ended"
		return nil
	case f.sel.Advertise:
		f.view = "advertise"
		return nil
	case f.sel.PaymentSubmit:
		f.renewed = append(f.renewed, f.current)
		f.view = "paid"
		return nil
	}

	if r, rest, ok := f.row(selector); ok && rest == " "+f.sel.Readvertise {
		f.current = r.number
		f.view, f.url = "register", fakeRegisterURL
		return nil
	}
	return nil
}

func (f *fakeSite) ForceClick(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ForceClick %s", selector)
	f.mutations++
	if !f.exists(selector) {
		return fmt.Errorf("%q: %w", selector, browser.ErrElementNotFound)
	}
	if selector == f.sel.Consent {
		return nil
	}

	r, rest, ok := f.row(selector)
	if !ok || rest != " "+f.sel.EndExposure {
		return nil
	}
	if r.number == f.panicOn {
		panic("renderer crashed")
	}
	accepted := true
	if !f.noDialog {
		ev := browser.DialogEvent{Type: browser.DialogConfirm, Message: "노출을 종료하시겠습니까?", URL: f.url}
		f.dialogs = append(f.dialogs, ev)
		accepted = f.policies.Current().Decide(ev).Accept
	}
	if accepted {
		f.endListing(r.number)
	}
	return nil
}

// endListing moves a row from the active pages to the ended table.
func (f *fakeSite) endListing(number string) {
	for p := range f.pages {
		for i, r := range f.pages[p] {
			if r.number == number {
				f.pages[p] = append(f.pages[p][:i:i], f.pages[p][i+1:]...)
				f.ended = append(f.ended, r)
				return
			}
		}
	}
}

func (f *fakeSite) PressKey(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PressKey %s", key)
	f.mutations++
	return nil
}

// Evaluate only answers the overlay visibility probe: nothing is covering the page.
func (f *fakeSite) Evaluate(_ context.Context, script string, res interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := res.(*int); ok {
		*n = 0
	}
	return nil
}

func (f *fakeSite) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeSite) Title(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeSite) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (f *fakeSite) SetDialogPolicy(p browser.DialogPolicy) func() {
	return f.policies.Push(p)
}

func (f *fakeSite) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

var _ browser.Page = (*fakeSite)(nil)
