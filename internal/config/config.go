// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when the login ID or password is absent.
// It is fatal and must be reported before any browser is launched.
var ErrMissingCredentials = errors.New("login ID and password are required (set LOGIN_ID and LOGIN_PASSWORD)")

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Run       RunConfig       `mapstructure:"run" yaml:"run"`
	Timing    TimingConfig    `mapstructure:"timing" yaml:"timing"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless Chrome instance.
type BrowserConfig struct {
	Headless  bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath  string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string       `mapstructure:"args" yaml:"args"`
	Viewport  map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Debug     bool           `mapstructure:"debug" yaml:"debug"`
	Stealth   StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
}

// StealthConfig makes the tab present itself like a regular Korean desktop browser.
type StealthConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// SiteConfig describes the target site. Every value here is an assumption about
// markup we do not own.
type SiteConfig struct {
	LoginURL         string         `mapstructure:"login_url" yaml:"login_url"`
	ListingsURL      string         `mapstructure:"listings_url" yaml:"listings_url"`
	RegistrationPath string         `mapstructure:"registration_path" yaml:"registration_path"`
	LoginURLMarker   string         `mapstructure:"login_url_marker" yaml:"login_url_marker"`
	LoginTitleMarker string         `mapstructure:"login_title_marker" yaml:"login_title_marker"`
	Selectors        SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
	Overlay          OverlayConfig  `mapstructure:"overlay" yaml:"overlay"`
}

// SelectorConfig lists every selector the workflow touches. Selectors starting
// with "/" or "(" are XPath, everything else is CSS.
//
// Rows are addressed as "<table_rows>:nth-child(i)", so table_rows must be CSS
// matching the rows of a single table body. listing_number, listing_cells,
// end_exposure and readvertise are appended to a row selector and must be CSS
// as well.
type SelectorConfig struct {
	IDInput       string `mapstructure:"id_input" yaml:"id_input"`
	PasswordInput string `mapstructure:"password_input" yaml:"password_input"`
	LoginSubmit   string `mapstructure:"login_submit" yaml:"login_submit"`
	TableRows     string `mapstructure:"table_rows" yaml:"table_rows"`
	ListingNumber string `mapstructure:"listing_number" yaml:"listing_number"`
	ListingCells  string `mapstructure:"listing_cells" yaml:"listing_cells"`
	NextPage      string `mapstructure:"next_page" yaml:"next_page"`
	DisabledClass string `mapstructure:"disabled_class" yaml:"disabled_class"`
	EndExposure   string `mapstructure:"end_exposure" yaml:"end_exposure"`
	StatusAdEnd   string `mapstructure:"status_ad_end" yaml:"status_ad_end"`
	Readvertise   string `mapstructure:"readvertise" yaml:"readvertise"`
	Advertise     string `mapstructure:"advertise" yaml:"advertise"`
	Consent       string `mapstructure:"consent" yaml:"consent"`
	PaymentSubmit string `mapstructure:"payment_submit" yaml:"payment_submit"`
}

// OverlayConfig tunes the DOM overlay suppressor.
type OverlayConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	Selectors       []string `mapstructure:"selectors" yaml:"selectors"`
	CloseSelectors  []string `mapstructure:"close_selectors" yaml:"close_selectors"`
	ZIndexThreshold int      `mapstructure:"z_index_threshold" yaml:"z_index_threshold"`
}

// RunConfig holds the credentials and the listings to renew.
type RunConfig struct {
	LoginID           string   `mapstructure:"login_id" yaml:"login_id"`
	Password          string   `mapstructure:"password" yaml:"-"`
	Listings          []string `mapstructure:"listings" yaml:"listings"`
	Simulate          bool     `mapstructure:"simulate" yaml:"simulate"`
	MaxPages          int      `mapstructure:"max_pages" yaml:"max_pages"`
	StrictReadvertise bool     `mapstructure:"strict_readvertise" yaml:"strict_readvertise"`
	ReportPath        string   `mapstructure:"report_path" yaml:"report_path"`
}

// TimingConfig holds every bounded wait and pacing delay.
type TimingConfig struct {
	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LoginFieldTimeout   time.Duration `mapstructure:"login_field_timeout" yaml:"login_field_timeout"`
	LoginOutcomeTimeout time.Duration `mapstructure:"login_outcome_timeout" yaml:"login_outcome_timeout"`
	TableTimeout        time.Duration `mapstructure:"table_timeout" yaml:"table_timeout"`
	PageTurnTimeout     time.Duration `mapstructure:"page_turn_timeout" yaml:"page_turn_timeout"`
	DialogWindow        time.Duration `mapstructure:"dialog_window" yaml:"dialog_window"`
	StatusFilterTimeout time.Duration `mapstructure:"status_filter_timeout" yaml:"status_filter_timeout"`
	EndedTableTimeout   time.Duration `mapstructure:"ended_table_timeout" yaml:"ended_table_timeout"`
	RegistrationTimeout time.Duration `mapstructure:"registration_timeout" yaml:"registration_timeout"`
	ControlTimeout      time.Duration `mapstructure:"control_timeout" yaml:"control_timeout"`
	PaymentSettle       time.Duration `mapstructure:"payment_settle" yaml:"payment_settle"`
	OverlayTimeout      time.Duration `mapstructure:"overlay_timeout" yaml:"overlay_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	SimulateStepDelay time.Duration `mapstructure:"simulate_step_delay" yaml:"simulate_step_delay"`
	ItemDelay         time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
	RetryItemDelay    time.Duration `mapstructure:"retry_item_delay" yaml:"retry_item_delay"`
	RetrySettle       time.Duration `mapstructure:"retry_settle" yaml:"retry_settle"`
}

// ArtifactsConfig controls where screenshots and reports land.
type ArtifactsConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	FinalPrefix     string `mapstructure:"final_prefix" yaml:"final_prefix"`
	CaptureFailures bool   `mapstructure:"capture_failures" yaml:"capture_failures"`
}

// legacyEnv maps config keys to the environment names the deployment already uses.
var legacyEnv = map[string]string{
	"run.login_id": "LOGIN_ID",
	"run.password": "LOGIN_PASSWORD",
	"run.listings": "PROPERTY_NUMBERS",
	"run.simulate": "TEST_MODE",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "relist")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("browser.args", []string{"no-sandbox", "disable-setuid-sandbox", "disable-dev-shm-usage"})
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.stealth.enabled", true)
	v.SetDefault("browser.stealth.platform", "Win32")
	v.SetDefault("browser.stealth.languages", []string{"ko-KR", "ko", "en-US"})
	v.SetDefault("browser.stealth.timezone", "Asia/Seoul")
	v.SetDefault("browser.stealth.locale", "ko-KR")

	// -- Site --
	v.SetDefault("site.login_url", "https://www.aipartner.com/integrated/login?serviceCode=1000")
	v.SetDefault("site.listings_url", "https://www.aipartner.com/offerings/ad_list")
	v.SetDefault("site.registration_path", "/offerings/ad_regist")
	v.SetDefault("site.login_url_marker", "login")
	v.SetDefault("site.login_title_marker", "로그인")
	v.SetDefault("site.selectors.id_input", "#member-id")
	v.SetDefault("site.selectors.password_input", "#member-pw")
	v.SetDefault("site.selectors.login_submit", "#integrated-login > a")
	v.SetDefault("site.selectors.table_rows", "table tbody tr")
	v.SetDefault("site.selectors.listing_number", "td:nth-child(3) > div.numberN")
	v.SetDefault("site.selectors.listing_cells", "td")
	v.SetDefault("site.selectors.next_page",
		"#wrap > div > div > div > div.sectionWrap > div.singleSection.listSection > div.pagination > span:nth-child(5) > a")
	v.SetDefault("site.selectors.disabled_class", "disabled")
	v.SetDefault("site.selectors.end_exposure", "#naverEnd")
	v.SetDefault("site.selectors.status_ad_end", ".statusAdEnd")
	v.SetDefault("site.selectors.readvertise", "#reReg")
	v.SetDefault("site.selectors.advertise", "//*[normalize-space(text())='광고하기']")
	v.SetDefault("site.selectors.consent", "#consentMobile2")
	v.SetDefault("site.selectors.payment_submit", "#naverSendSave")
	v.SetDefault("site.overlay.enabled", true)
	v.SetDefault("site.overlay.selectors", []string{
		".layerPopup", ".popup_wrap", ".modal_wrap", "[class*='imgPopup']", "[id*='popup']",
	})
	v.SetDefault("site.overlay.close_selectors", []string{
		".layerPopup .btn_close", ".popup_wrap .close", "[class*='popup'] [class*='close']",
		"[class*='modal'] [class*='close']", "button[aria-label='닫기']", "button[aria-label='close']",
	})
	v.SetDefault("site.overlay.z_index_threshold", 1000)

	// -- Run --
	v.SetDefault("run.simulate", false)
	v.SetDefault("run.max_pages", 10)
	v.SetDefault("run.strict_readvertise", false)
	v.SetDefault("run.report_path", "")

	// -- Timing --
	v.SetDefault("timing.navigation_timeout", "60s")
	v.SetDefault("timing.login_field_timeout", "30s")
	v.SetDefault("timing.login_outcome_timeout", "10s")
	v.SetDefault("timing.table_timeout", "30s")
	v.SetDefault("timing.page_turn_timeout", "10s")
	v.SetDefault("timing.dialog_window", "5s")
	v.SetDefault("timing.status_filter_timeout", "10s")
	v.SetDefault("timing.ended_table_timeout", "10s")
	v.SetDefault("timing.registration_timeout", "30s")
	v.SetDefault("timing.control_timeout", "10s")
	v.SetDefault("timing.payment_settle", "5s")
	v.SetDefault("timing.overlay_timeout", "3s")
	v.SetDefault("timing.poll_interval", "250ms")
	v.SetDefault("timing.simulate_step_delay", "1s")
	v.SetDefault("timing.item_delay", "5s")
	v.SetDefault("timing.retry_item_delay", "3s")
	v.SetDefault("timing.retry_settle", "3s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", ".")
	v.SetDefault("artifacts.final_prefix", "multi_automation")
	v.SetDefault("artifacts.capture_failures", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Run.LoginID = strings.TrimSpace(cfg.Run.LoginID)
	cfg.Run.Listings = ParseListings(cfg.Run.Listings...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ParseListings splits every raw value on commas, trims the parts and drops
// empties and repeats. Order of first occurrence is kept.
func ParseListings(raw ...string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Run.LoginID == "" || c.Run.Password == "" {
		return ErrMissingCredentials
	}
	if c.Run.MaxPages <= 0 {
		return fmt.Errorf("run.max_pages must be a positive integer")
	}
	if c.Site.LoginURL == "" || c.Site.ListingsURL == "" {
		return fmt.Errorf("site.login_url and site.listings_url are required")
	}
	if err := c.Site.Selectors.Validate(); err != nil {
		return fmt.Errorf("selector configuration invalid: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing configuration invalid: %w", err)
	}
	return nil
}

// Validate rejects XPath in the selectors that get composed with a row selector.
func (s *SelectorConfig) Validate() error {
	rowScoped := []struct{ name, value string }{
		{"table_rows", s.TableRows},
		{"listing_number", s.ListingNumber},
		{"listing_cells", s.ListingCells},
		{"end_exposure", s.EndExposure},
		{"readvertise", s.Readvertise},
	}
	for _, sel := range rowScoped {
		v := strings.TrimSpace(sel.value)
		if v == "" {
			return fmt.Errorf("%s is required", sel.name)
		}
		if strings.HasPrefix(v, "/") || strings.HasPrefix(v, "(") {
			return fmt.Errorf("%s must be a CSS selector, got XPath %q", sel.name, v)
		}
	}
	return nil
}

// Validate checks that every bounded wait is positive. Pacing delays may be zero.
func (t *TimingConfig) Validate() error {
	bounded := map[string]time.Duration{
		"navigation_timeout":    t.NavigationTimeout,
		"login_field_timeout":   t.LoginFieldTimeout,
		"login_outcome_timeout": t.LoginOutcomeTimeout,
		"table_timeout":         t.TableTimeout,
		"page_turn_timeout":     t.PageTurnTimeout,
		"dialog_window":         t.DialogWindow,
		"status_filter_timeout": t.StatusFilterTimeout,
		"ended_table_timeout":   t.EndedTableTimeout,
		"registration_timeout":  t.RegistrationTimeout,
		"control_timeout":       t.ControlTimeout,
		"payment_settle":        t.PaymentSettle,
		"overlay_timeout":       t.OverlayTimeout,
		"poll_interval":         t.PollInterval,
	}
	for name, d := range bounded {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	pacing := map[string]time.Duration{
		"simulate_step_delay": t.SimulateStepDelay,
		"item_delay":          t.ItemDelay,
		"retry_item_delay":    t.RetryItemDelay,
		"retry_settle":        t.RetrySettle,
	}
	for name, d := range pacing {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
