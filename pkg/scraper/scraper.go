// Package scraper fetches page content over a headless Chrome browser.
// The browser process is launched lazily on the first scrape and reused
// for the life of the service.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const navigateTimeout = 30 * time.Second

// Config holds the options for creating a Scraper
type Config struct {
	Logger    zerolog.Logger
	Headless  bool
	NoSandbox bool
}

// Scraper navigates pages and extracts text content. It implements the
// workflow executor's Scraper interface.
type Scraper struct {
	logger    zerolog.Logger
	headless  bool
	noSandbox bool

	mu      sync.Mutex
	browser *rod.Browser
}

// New creates a scraper; no browser is launched until the first call
func New(cfg Config) *Scraper {
	return &Scraper{
		logger:    cfg.Logger,
		headless:  cfg.Headless,
		noSandbox: cfg.NoSandbox,
	}
}

func (s *Scraper) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	l := launcher.New().Headless(s.headless)
	if s.noSandbox {
		l = l.NoSandbox(true)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s.logger.Info().Bool("headless", s.headless).Msg("Browser launched")
	s.browser = browser
	return browser, nil
}

// Scrape navigates to the URL and returns visible text. A non-empty
// selector narrows extraction to the first matching element; otherwise
// the whole body text is returned.
func (s *Scraper) Scrape(ctx context.Context, url, selector string) (string, error) {
	browser, err := s.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(navigateTimeout)

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load timeout for %s: %w", url, err)
	}

	if selector != "" {
		elem, err := page.Element(selector)
		if err != nil {
			return "", fmt.Errorf("element not found: %s", selector)
		}
		text, err := elem.Text()
		if err != nil {
			return "", fmt.Errorf("failed to extract element text: %w", err)
		}
		return text, nil
	}

	result, err := page.Eval(`() => document.body.innerText`)
	if err != nil {
		return "", fmt.Errorf("failed to extract page text: %w", err)
	}
	return result.Value.String(), nil
}

// Close shuts the browser down if it was launched
func (s *Scraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}
