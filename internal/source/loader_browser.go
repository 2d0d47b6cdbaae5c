package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// questionListReady is evaluated until the listing has rendered.
const questionListReady = `() => document.querySelector("div.s-post-summary") !== null ||
	document.querySelector("#questions") !== null`

// BrowserLoader renders listing pages in headless Chrome through Rod with
// stealth patches applied to each tab. The browser starts lazily on the
// first Load and lives until Close.
type BrowserLoader struct {
	cfg HTMLConfig
	log logger.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserLoader creates a loader; Chrome is not started yet.
func NewBrowserLoader(cfg HTMLConfig, log logger.Logger) *BrowserLoader {
	return &BrowserLoader{cfg: cfg.WithDefaults(), log: log.With(logger.Component("browser_loader"))}
}

func (l *BrowserLoader) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser, nil
	}

	wsURL := l.cfg.RemoteURL
	if wsURL == "" {
		lnch := launcher.New().
			Headless(l.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("user-agent", l.cfg.UserAgent)

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		l.lnch = lnch
		l.log.Info("Launched local chrome", logger.Bool("headless", l.cfg.Headless))
	} else {
		l.log.Info("Connecting to remote chrome", logger.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// Load opens a stealth tab, navigates, waits for the listing and returns
// the serialized DOM.
func (l *BrowserLoader) Load(ctx context.Context, pageURL string) ([]byte, error) {
	b, err := l.connect()
	if err != nil {
		return nil, ClassifyNetworkError(err, pageURL)
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, ClassifyNetworkError(fmt.Errorf("browser: create tab: %w", err), pageURL)
	}
	defer func() { _ = page.Close() }()

	navCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	p := page.Context(navCtx)
	if navErr := p.Navigate(pageURL); navErr != nil {
		return nil, classifyBrowserError(navErr, pageURL)
	}
	if loadErr := p.WaitLoad(); loadErr != nil {
		return nil, classifyBrowserError(loadErr, pageURL)
	}
	if waitErr := p.Wait(rod.Eval(questionListReady)); waitErr != nil {
		return nil, classifyBrowserError(waitErr, pageURL)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, classifyBrowserError(err, pageURL)
	}
	return []byte(res.Value.Str()), nil
}

func classifyBrowserError(err error, pageURL string) *PageError {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "net::ERR_TIMED_OUT") {
		return &PageError{Type: ErrTypeTimeout, Level: LevelWarn, URL: pageURL, Cause: err}
	}
	if strings.Contains(err.Error(), "net::ERR_") {
		return ClassifyNetworkError(err, pageURL)
	}
	return &PageError{Type: ErrTypeUnexpected, Level: LevelError, URL: pageURL, Cause: err}
}

// Close shuts down the browser and any locally launched Chrome.
func (l *BrowserLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	l.cleanupLocked()
	return err
}

func (l *BrowserLoader) cleanupLocked() {
	if l.lnch != nil {
		l.lnch.Kill()
		l.lnch = nil
	}
}
