// internal/renewal/errors.go
package renewal

import "errors"

var (
	// ErrAuthenticationFailed aborts the whole run.
	ErrAuthenticationFailed = errors.New("login failed")
	// ErrListingNotFound means the listing was not in any scanned page.
	ErrListingNotFound = errors.New("listing not found")
	// ErrControlMissing means a control the workflow cannot skip was absent.
	ErrControlMissing = errors.New("required control missing")
	// ErrReadvertiseNotFound is returned in strict mode when the ended table has no matching row.
	ErrReadvertiseNotFound = errors.New("listing not found in ended table")
)
