package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// CollyLoader fetches listing pages over plain HTTP with a colly collector.
type CollyLoader struct {
	collector *colly.Collector
}

// NewCollyLoader builds a synchronous collector from cfg. Extra options
// are appended after the defaults.
func NewCollyLoader(cfg HTMLConfig, opts ...colly.CollectorOption) *CollyLoader {
	cfg = cfg.WithDefaults()

	base := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	c := colly.NewCollector(append(base, opts...)...)
	c.SetRequestTimeout(cfg.Timeout)

	return &CollyLoader{collector: c}
}

// Load visits pageURL and returns the response body.
func (l *CollyLoader) Load(ctx context.Context, pageURL string) ([]byte, error) {
	c := l.collector.Clone()
	colly.StdlibContext(ctx)(c)

	var (
		body    []byte
		status  int
		loadErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		loadErr = err
	})

	visitErr := c.Visit(pageURL)
	if loadErr == nil {
		loadErr = visitErr
	}

	switch {
	case status >= http.StatusBadRequest:
		return nil, ClassifyHTTPStatus(status, pageURL)
	case loadErr != nil:
		if errors.Is(loadErr, context.Canceled) {
			return nil, &PageError{Type: ErrTypeNetwork, Level: LevelWarn, URL: pageURL, Cause: loadErr}
		}
		return nil, ClassifyNetworkError(loadErr, pageURL)
	case body == nil:
		return nil, ClassifyParseError(errors.New("empty response body"), pageURL)
	}
	return body, nil
}

// Close is a no-op; colly keeps no process-level session.
func (l *CollyLoader) Close() error { return nil }
