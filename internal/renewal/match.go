// internal/renewal/match.go
package renewal

import (
	"fmt"
	"strings"
)

// MatchesListing reports whether a listing-number cell refers to id. Matching
// is substring containment, so "123" matches "AB123CD". An empty id never matches.
func MatchesListing(cellText, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return strings.Contains(strings.TrimSpace(cellText), id)
}

// Match is a row that refers to the listing being renewed.
type Match struct {
	ID   string `json:"id"`
	Page int    `json:"page"`
	Row  int    `json:"row"`

	// Row details, best effort.
	Name      string `json:"name,omitempty"`
	TradeType string `json:"trade_type,omitempty"`
	Price     string `json:"price,omitempty"`

	// RowSelector addresses the matched row while the page is unchanged.
	RowSelector string `json:"-"`
}

func rowSelector(rows string, n int) string {
	return fmt.Sprintf("%s:nth-child(%d)", rows, n)
}

func within(row, sel string) string {
	return row + " " + sel
}

func cellSelector(row, cells string, n int) string {
	return fmt.Sprintf("%s > %s:nth-child(%d)", row, cells, n)
}
