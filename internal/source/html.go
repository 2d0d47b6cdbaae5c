package source

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// PageLoader retrieves the rendered HTML of one listing page.
// Errors must be classified *PageError values.
type PageLoader interface {
	Load(ctx context.Context, pageURL string) ([]byte, error)
	Close() error
}

// HTMLSource scrapes the question listing pages.
type HTMLSource struct {
	cfg    HTMLConfig
	loader PageLoader
	log    logger.Logger
	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

// NewHTMLSource creates a listing-page source over loader.
func NewHTMLSource(cfg HTMLConfig, loader PageLoader, log logger.Logger) *HTMLSource {
	return &HTMLSource{
		cfg:    cfg.WithDefaults(),
		loader: loader,
		log:    log.With(logger.Component("html_source")),
		now:    time.Now,
		jitter: func(n time.Duration) time.Duration { return rand.N(n) },
	}
}

// Name identifies the source in logs and audits.
func (s *HTMLSource) Name() string { return KindHTML }

// PageDelay returns a uniform random delay in [MinDelay, MaxDelay].
func (s *HTMLSource) PageDelay() time.Duration {
	span := s.cfg.MaxDelay - s.cfg.MinDelay
	if span <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + s.jitter(span+1)
}

// Close releases the loader.
func (s *HTMLSource) Close() error { return s.loader.Close() }

// Open starts a cursor at page 1.
func (s *HTMLSource) Open(q Query) Cursor {
	return &htmlCursor{src: s, query: q, page: 1}
}

// PageURL builds the listing URL for page.
func (s *HTMLSource) PageURL(tags []string, page int) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	params := url.Values{}
	params.Set("tab", s.cfg.Sort)
	params.Set("page", strconv.Itoa(page))

	if len(tags) == 0 {
		return base + "/questions?" + params.Encode()
	}

	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "["+url.PathEscape(t)+"]")
	}
	return base + "/questions/tagged/" + strings.Join(parts, "+") + "?" + params.Encode()
}

type htmlCursor struct {
	src   *HTMLSource
	query Query
	page  int
}

func (c *htmlCursor) NextPage(ctx context.Context) PageResult {
	page := c.page
	pageURL := c.src.PageURL(c.query.Tags, page)

	body, err := c.src.loader.Load(ctx, pageURL)
	if err != nil {
		return Failure(page, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Failure(page, ClassifyParseError(fmt.Errorf("parse html: %w", err), pageURL))
	}

	items, failures, seen := ExtractPage(doc, c.src.cfg.BaseURL, c.src.now())
	for _, f := range failures {
		c.src.log.Warn("Skipping question element", logger.Int("page", page), logger.Error(f))
	}

	if seen == 0 {
		c.src.log.Warn("No questions found on page", logger.Int("page", page), logger.String("url", pageURL))
		return Empty(page)
	}

	c.page++
	c.src.log.Info("Page extracted",
		logger.Int("page", page),
		logger.Int("questions", len(items)),
		logger.Int("skipped", len(failures)),
	)
	return Success(page, items, len(failures))
}
