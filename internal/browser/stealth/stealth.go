// internal/browser/stealth/stealth.go
// Package stealth makes an automated tab look like an ordinary desktop browser.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/config"
)

//go:embed evasions.js
var evasionsScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"-"`
	Locale    string   `json:"-"`
}

// DefaultPersona is a Korean Windows desktop Chrome.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"ko-KR", "ko", "en-US"},
	Timezone:  "Asia/Seoul",
	Locale:    "ko-KR",
}

// PersonaFromConfig fills the persona from cfg, keeping defaults for blanks.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	s := cfg.Stealth
	if s.Platform != "" {
		p.Platform = s.Platform
	}
	if len(s.Languages) > 0 {
		p.Languages = append([]string(nil), s.Languages...)
	}
	if s.Timezone != "" {
		p.Timezone = s.Timezone
	}
	if s.Locale != "" {
		p.Locale = s.Locale
	}
	return p
}

// AcceptLanguage renders the languages as an Accept-Language header value with
// descending quality weights.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Script returns the evasion script bound to this persona.
func (p Persona) Script() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode persona: %w", err)
	}
	return fmt.Sprintf("(function(persona){%s})(%s);", evasionsScript, data), nil
}

// Apply returns the actions that install the persona on the current tab. They
// must run before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.String("timezone", p.Timezone),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage()).
			WithPlatform(p.Platform),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.Script()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}))
	}
	return tasks
}
