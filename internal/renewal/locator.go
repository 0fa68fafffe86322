// internal/renewal/locator.go
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/browser/overlay"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// OverlaySuppressor clears popups that cover the page.
type OverlaySuppressor interface {
	Suppress(ctx context.Context) overlay.Result
}

// Locator finds a listing's row in the paginated listings table.
type Locator struct {
	page        browser.Page
	sel         config.SelectorConfig
	listingsURL string
	maxPages    int
	timing      config.TimingConfig
	overlays    OverlaySuppressor
	logger      *zap.Logger
}

// NewLocator creates a locator. overlays may be nil.
func NewLocator(page browser.Page, cfg *config.Config, overlays OverlaySuppressor, logger *zap.Logger) *Locator {
	maxPages := cfg.Run.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Locator{
		page:        page,
		sel:         cfg.Site.Selectors,
		listingsURL: cfg.Site.ListingsURL,
		maxPages:    maxPages,
		timing:      cfg.Timing,
		overlays:    overlays,
		logger:      logger.Named("locator"),
	}
}

// Find opens the listings table and pages through it until a row matches id.
// At most maxPages pages are scanned.
func (l *Locator) Find(ctx context.Context, id string) (*Match, error) {
	log := l.logger.With(zap.String("listing_id", id))

	if err := l.page.Navigate(ctx, l.listingsURL); err != nil {
		return nil, fmt.Errorf("open listings: %w", err)
	}
	l.suppress(ctx)

	scanned := 0
	for pageNo := 1; pageNo <= l.maxPages; pageNo++ {
		log.Info("Scanning page.", zap.Int("page", pageNo))
		m, err := l.scan(ctx, id, pageNo, l.timing.TableTimeout)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNo, err)
		}
		scanned = pageNo
		if m != nil {
			return m, nil
		}
		if pageNo == l.maxPages {
			log.Warn("Page limit reached.", zap.Int("max_pages", l.maxPages))
			break
		}

		advanced, err := l.nextPage(ctx, pageNo)
		if err != nil {
			return nil, fmt.Errorf("turn to page %d: %w", pageNo+1, err)
		}
		if !advanced {
			log.Info("Reached the last page.", zap.Int("page", pageNo))
			break
		}
	}
	return nil, fmt.Errorf("%w: %s after %d page(s)", ErrListingNotFound, id, scanned)
}

// ScanCurrentPage looks for id in the table as currently shown, without paging.
func (l *Locator) ScanCurrentPage(ctx context.Context, id string) (*Match, error) {
	m, err := l.scan(ctx, id, 0, l.timing.TableTimeout)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s on the current page", ErrListingNotFound, id)
	}
	return m, nil
}

// scan returns nil, nil when the page holds no matching row.
func (l *Locator) scan(ctx context.Context, id string, pageNo int, wait time.Duration) (*Match, error) {
	if err := l.page.WaitVisible(ctx, l.sel.TableRows, wait); err != nil {
		return nil, fmt.Errorf("listing table: %w", err)
	}
	rows, err := l.page.Count(ctx, l.sel.TableRows)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	l.logger.Debug("Rows on page.", zap.Int("page", pageNo), zap.Int("rows", rows))

	for i := 1; i <= rows; i++ {
		row := rowSelector(l.sel.TableRows, i)
		text, err := l.page.Text(ctx, within(row, l.sel.ListingNumber))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, browser.ErrElementNotFound) {
				l.logger.Warn("Skipping unreadable row.", zap.Int("row", i), zap.Error(err))
			}
			continue
		}
		if !MatchesListing(text, id) {
			continue
		}

		m := &Match{ID: id, Page: pageNo, Row: i, RowSelector: row}
		l.describe(ctx, m)
		l.logger.Info("Listing found.",
			zap.String("listing_id", id),
			zap.Int("page", pageNo),
			zap.Int("row", i),
			zap.String("name", m.Name),
			zap.String("trade_type", m.TradeType),
			zap.String("price", m.Price),
		)
		return m, nil
	}
	return nil, nil
}

// describe fills the row details when the row has the full set of columns.
func (l *Locator) describe(ctx context.Context, m *Match) {
	cells, err := l.page.Count(ctx, m.RowSelector+" > "+l.sel.ListingCells)
	if err != nil || cells < 6 {
		return
	}
	read := func(n int) string {
		text, err := l.page.Text(ctx, cellSelector(m.RowSelector, l.sel.ListingCells, n))
		if err != nil {
			l.logger.Debug("Row detail unreadable.", zap.Int("cell", n), zap.Error(err))
			return ""
		}
		return strings.TrimSpace(text)
	}
	m.Name = read(2)
	m.TradeType = read(4)
	m.Price = read(5)
}

// nextPage clicks the next-page control and waits for the table to change.
// It reports false when the control is absent or disabled.
func (l *Locator) nextPage(ctx context.Context, current int) (bool, error) {
	present, err := l.page.Exists(ctx, l.sel.NextPage)
	if err != nil {
		return false, err
	}
	if !present {
		l.logger.Info("No next-page control.")
		return false, nil
	}
	class, _, err := l.page.Attribute(ctx, l.sel.NextPage, "class")
	if err != nil {
		return false, err
	}
	if l.sel.DisabledClass != "" && strings.Contains(class, l.sel.DisabledClass) {
		return false, nil
	}

	before := l.tableSignature(ctx)

	restore := l.page.SetDialogPolicy(browser.AcceptPolicy("pagination", nil))
	defer restore()

	l.suppress(ctx)
	if err := l.page.Click(ctx, l.sel.NextPage); err != nil {
		return false, err
	}

	err = l.waitTableChange(ctx, fmt.Sprintf("page %d", current+1), before, l.timing.PageTurnTimeout)
	if errors.Is(err, browser.ErrTimeout) {
		// Identical pages are possible; the click went through, so move on.
		l.logger.Warn("Table unchanged after page turn; continuing.", zap.Int("page", current+1))
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// tableSignature joins the listing-number text of every row. Unreadable rows
// contribute an empty field, so the row count still shows in the result.
func (l *Locator) tableSignature(ctx context.Context) string {
	rows, err := l.page.Count(ctx, l.sel.TableRows)
	if err != nil || rows == 0 {
		return ""
	}
	fields := make([]string, rows)
	for i := 1; i <= rows; i++ {
		text, err := l.page.Text(ctx, within(rowSelector(l.sel.TableRows, i), l.sel.ListingNumber))
		if err == nil {
			fields[i-1] = strings.TrimSpace(text)
		}
	}
	return strings.Join(fields, "|")
}

// waitTableChange polls until the table has rows and its signature differs
// from before.
func (l *Locator) waitTableChange(ctx context.Context, what, before string, timeout time.Duration) error {
	return browser.Poll(ctx, what, timeout, l.timing.PollInterval,
		func(ctx context.Context) (bool, error) {
			after := l.tableSignature(ctx)
			return after != "" && after != before, nil
		})
}

func (l *Locator) suppress(ctx context.Context) {
	if l.overlays != nil {
		l.overlays.Suppress(ctx)
	}
}
