package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// maxLookupIDs is the Stack Exchange limit of ids per /questions/{ids} call.
const maxLookupIDs = 100

// maxResponseBytes bounds one API response body.
const maxResponseBytes = 16 * 1024 * 1024

type apiResponse struct {
	Items          []apiQuestion `json:"items"`
	HasMore        bool          `json:"has_more"`
	QuotaRemaining int           `json:"quota_remaining"`
	Backoff        int           `json:"backoff"`
	ErrorID        int           `json:"error_id"`
	ErrorName      string        `json:"error_name"`
	ErrorMessage   string        `json:"error_message"`
}

type apiOwner struct {
	DisplayName string `json:"display_name"`
	Reputation  int    `json:"reputation"`
	Link        string `json:"link"`
}

type apiQuestion struct {
	QuestionID   int64    `json:"question_id"`
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Body         string   `json:"body"`
	BodyMarkdown string   `json:"body_markdown"`
	Tags         []string `json:"tags"`
	Owner        apiOwner `json:"owner"`
	CreationDate int64    `json:"creation_date"`
	ViewCount    int      `json:"view_count"`
	Score        int      `json:"score"`
	AnswerCount  int      `json:"answer_count"`
}

var errMissingID = errors.New("missing question_id")

// APISource reads questions from the Stack Exchange REST API.
type APISource struct {
	cfg       APIConfig
	client    *http.Client
	summarize Summarizer
	log       logger.Logger
}

// NewAPISource creates a REST source. A nil client gets one with cfg.Timeout.
func NewAPISource(cfg APIConfig, client *http.Client, summarize Summarizer, log logger.Logger) *APISource {
	cfg = cfg.WithDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if summarize == nil {
		summarize, _ = NewSummarizer(SummaryText, cfg.SummaryLength)
	}
	if cfg.Key != "" {
		log.Info("Using API key for extended quota")
	}
	return &APISource{cfg: cfg, client: client, summarize: summarize, log: log.With(logger.Component("api_source"))}
}

// Name identifies the source in logs and audits.
func (s *APISource) Name() string { return KindAPI }

// PageDelay is the fixed inter-request delay.
func (s *APISource) PageDelay() time.Duration { return s.cfg.RequestDelay }

// Close releases idle connections.
func (s *APISource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Open starts a cursor at page 1.
func (s *APISource) Open(q Query) Cursor {
	pageSize := s.cfg.PageSize
	if q.MaxCount > 0 && q.MaxCount < pageSize {
		pageSize = q.MaxCount
	}
	return &apiCursor{src: s, query: q, page: 1, pageSize: pageSize}
}

type apiCursor struct {
	src      *APISource
	query    Query
	page     int
	pageSize int
	done     bool
}

func (c *apiCursor) NextPage(ctx context.Context) PageResult {
	page := c.page
	if c.done {
		return Empty(page)
	}

	params := c.src.baseParams()
	params.Set("order", c.src.cfg.Order)
	params.Set("sort", c.src.cfg.Sort)
	params.Set("page", strconv.Itoa(page))
	params.Set("pagesize", strconv.Itoa(c.pageSize))
	if len(c.query.Tags) > 0 {
		params.Set("tagged", strings.Join(c.query.Tags, ";"))
	}

	resp, err := c.src.get(ctx, "/questions", params)
	if err != nil {
		return Failure(page, err)
	}

	if len(resp.Items) == 0 {
		return Empty(page)
	}

	items, skipped := c.src.convertAll(resp.Items)
	c.page++
	c.done = !resp.HasMore

	result := Success(page, items, skipped)
	if resp.Backoff > 0 {
		result.Backoff = time.Duration(resp.Backoff) * time.Second
	}
	return result
}

// Lookup fetches the current state of questions by id, in batches of 100.
// It stops at the first failed batch and returns what it has with the error.
func (s *APISource) Lookup(ctx context.Context, ids []int64) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for start := 0; start < len(ids); start += maxLookupIDs {
		end := min(start+maxLookupIDs, len(ids))

		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}

		params := s.baseParams()
		params.Set("pagesize", strconv.Itoa(maxLookupIDs))

		resp, err := s.get(ctx, "/questions/"+strings.Join(parts, ";"), params)
		if err != nil {
			return out, err
		}
		items, _ := s.convertAll(resp.Items)
		out = append(out, items...)
	}
	return out, nil
}

func (s *APISource) baseParams() url.Values {
	params := url.Values{}
	params.Set("site", s.cfg.Site)
	params.Set("filter", s.cfg.Filter)
	if s.cfg.Key != "" {
		params.Set("key", s.cfg.Key)
	}
	return params
}

func (s *APISource) get(ctx context.Context, path string, params url.Values) (*apiResponse, error) {
	reqURL := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, ClassifyParseError(fmt.Errorf("build request: %w", err), reqURL)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, ClassifyNetworkError(err, reqURL)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, ClassifyNetworkError(err, reqURL)
	}

	if res.StatusCode != http.StatusOK {
		pe := ClassifyHTTPStatus(res.StatusCode, reqURL)
		var apiErr apiResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorMessage != "" {
			pe.Cause = fmt.Errorf("HTTP %d: %s: %s", res.StatusCode, apiErr.ErrorName, apiErr.ErrorMessage)
		}
		return nil, pe
	}

	var resp apiResponse
	if decodeErr := json.Unmarshal(body, &resp); decodeErr != nil {
		return nil, ClassifyParseError(decodeErr, reqURL)
	}

	s.log.Debug("API page received",
		logger.String("path", path),
		logger.Int("items", len(resp.Items)),
		logger.Bool("has_more", resp.HasMore),
		logger.Int("quota_remaining", resp.QuotaRemaining),
	)
	return &resp, nil
}

func (s *APISource) convertAll(items []apiQuestion) ([]domain.Question, int) {
	out := make([]domain.Question, 0, len(items))
	skipped := 0
	for i := range items {
		q, err := s.convert(i, items[i])
		if err != nil {
			skipped++
			s.log.Warn("Skipping API record", logger.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out, skipped
}

func (s *APISource) convert(index int, item apiQuestion) (domain.Question, error) {
	if item.QuestionID <= 0 {
		return domain.Question{}, &ExtractionError{Index: index, Field: "question_id", Cause: errMissingID}
	}

	author := html.UnescapeString(item.Owner.DisplayName)
	if author == "" {
		author = domain.UnknownAuthor
	}

	body := item.Body
	if body == "" {
		body = item.BodyMarkdown
	}

	var published time.Time
	if item.CreationDate > 0 {
		published = time.Unix(item.CreationDate, 0).UTC()
	}

	return domain.Question{
		ID:               item.QuestionID,
		Title:            html.UnescapeString(item.Title),
		URL:              item.Link,
		Summary:          s.summarize(body),
		Tags:             domain.NewTags(item.Tags...),
		AuthorName:       author,
		AuthorReputation: item.Owner.Reputation,
		AuthorProfileURL: item.Owner.Link,
		PublicationDate:  published,
		ViewCount:        item.ViewCount,
		VoteCount:        item.Score,
		AnswerCount:      item.AnswerCount,
	}, nil
}
