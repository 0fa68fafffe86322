// internal/renewal/auth.go
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// Authenticator signs in to the listing-management site.
type Authenticator struct {
	page     browser.Page
	site     config.SiteConfig
	timing   config.TimingConfig
	loginID  string
	password string
	logger   *zap.Logger
}

// NewAuthenticator creates an authenticator for the credentials in cfg.
func NewAuthenticator(page browser.Page, cfg *config.Config, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		page:     page,
		site:     cfg.Site,
		timing:   cfg.Timing,
		loginID:  cfg.Run.LoginID,
		password: cfg.Run.Password,
		logger:   logger.Named("auth"),
	}
}

// Login makes a single sign-in attempt. Every failure, including network
// errors and timeouts, wraps ErrAuthenticationFailed.
func (a *Authenticator) Login(ctx context.Context) error {
	sel := a.site.Selectors
	a.logger.Info("Signing in.", zap.String("login_id", a.loginID))

	if err := a.page.Navigate(ctx, a.site.LoginURL); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if err := a.page.WaitVisible(ctx, sel.IDInput, a.timing.LoginFieldTimeout); err != nil {
		return fmt.Errorf("%w: login form: %w", ErrAuthenticationFailed, err)
	}
	if err := a.page.Fill(ctx, sel.IDInput, a.loginID); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if err := a.page.Fill(ctx, sel.PasswordInput, a.password); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if err := a.page.Click(ctx, sel.LoginSubmit); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrAuthenticationFailed, err)
	}

	// Wait for the redirect away from the login page. Staying put is not an
	// error here; the checks below decide.
	err := browser.Poll(ctx, "login redirect", a.timing.LoginOutcomeTimeout, a.timing.PollInterval,
		func(ctx context.Context) (bool, error) {
			u, err := a.page.URL(ctx)
			if err != nil {
				return false, nil
			}
			return !a.onLoginURL(u), nil
		})
	if err != nil && !errors.Is(err, browser.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	if reason, failed := a.stillOnLoginPage(ctx); failed {
		a.logger.Error("Login rejected.", zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, reason)
	}

	a.logger.Info("Signed in.")
	return nil
}

// stillOnLoginPage applies the post-submit heuristic. A present ID field
// decides failure regardless of URL and title.
func (a *Authenticator) stillOnLoginPage(ctx context.Context) (string, bool) {
	present, err := a.page.Exists(ctx, a.site.Selectors.IDInput)
	if err != nil {
		return fmt.Sprintf("could not inspect page: %v", err), true
	}
	if present {
		return "login form is still present", true
	}

	if u, err := a.page.URL(ctx); err != nil {
		return fmt.Sprintf("could not read location: %v", err), true
	} else if a.onLoginURL(u) {
		return "still on the login URL " + u, true
	}

	title, err := a.page.Title(ctx)
	if err != nil {
		return fmt.Sprintf("could not read title: %v", err), true
	}
	if a.site.LoginTitleMarker != "" && strings.Contains(title, a.site.LoginTitleMarker) {
		return fmt.Sprintf("page title %q is a login page", title), true
	}
	return "", false
}

func (a *Authenticator) onLoginURL(u string) bool {
	marker := strings.ToLower(a.site.LoginURLMarker)
	return marker != "" && strings.Contains(strings.ToLower(u), marker)
}
