// internal/renewal/screenshots.go
package renewal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

const (
	timestampLayout   = "20060102_150405"
	screenshotTimeout = 30 * time.Second
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Screenshots writes PNG captures of the page. Capture failures are logged and
// never returned.
type Screenshots struct {
	page     browser.Page
	dir      string
	prefix   string
	failures bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewScreenshots prepares the artifact directory, expanding a leading "~".
func NewScreenshots(page browser.Page, cfg config.ArtifactsConfig, logger *zap.Logger) (*Screenshots, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expand artifacts dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	prefix := cfg.FinalPrefix
	if prefix == "" {
		prefix = "multi_automation"
	}
	return &Screenshots{
		page:     page,
		dir:      dir,
		prefix:   prefix,
		failures: cfg.CaptureFailures,
		now:      time.Now,
		logger:   logger.Named("screenshots"),
	}, nil
}

// Final captures the end-of-run screenshot.
func (s *Screenshots) Final(ctx context.Context) string {
	return s.capture(ctx, fmt.Sprintf("%s_%s.png", s.prefix, s.now().Format(timestampLayout)))
}

// Listing captures a listing's terminal failure.
func (s *Screenshots) Listing(ctx context.Context, id string) string {
	if !s.failures {
		return ""
	}
	name := unsafeName.ReplaceAllString(id, "_")
	return s.capture(ctx, fmt.Sprintf("listing_%s_%s.png", name, s.now().Format(timestampLayout)))
}

// LoginFailed captures the page after a rejected sign-in.
func (s *Screenshots) LoginFailed(ctx context.Context) string {
	if !s.failures {
		return ""
	}
	return s.capture(ctx, fmt.Sprintf("login_failed_%s.png", s.now().Format(timestampLayout)))
}

// capture runs even when ctx is canceled so interrupted runs still leave a picture.
func (s *Screenshots) capture(ctx context.Context, name string) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	png, err := s.page.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Screenshot failed.", zap.String("name", name), zap.Error(err))
		return ""
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		s.logger.Warn("Could not save screenshot.", zap.String("path", path), zap.Error(err))
		return ""
	}
	s.logger.Info("Screenshot saved.", zap.String("path", path))
	return path
}
