// Package search hands scoped questions to an Elasticsearch index as one
// of the downstream analyzers.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

const (
	defaultIndex     = "so_questions"
	defaultBatchSize = 500
	maxErrorBody     = 4096
)

// ErrBulkRejected is returned when the bulk endpoint answers with an error status.
var ErrBulkRejected = errors.New("bulk request rejected")

// Config configures the index handoff.
type Config struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	BatchSize int      `mapstructure:"batch_size"`
}

// NewClient builds an Elasticsearch client from cfg. Addresses without a
// scheme get http://.
func NewClient(cfg Config, transport http.RoundTripper) (*es.Client, error) {
	addresses := make([]string, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			addr = "http://" + addr
		}
		addresses = append(addresses, addr)
	}

	client, err := es.NewClient(es.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

type questionDocument struct {
	ID               int64      `json:"question_id"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	Summary          string     `json:"summary"`
	Tags             []string   `json:"tags"`
	Author           string     `json:"author"`
	AuthorReputation int        `json:"author_reputation"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	ViewCount        int        `json:"view_count"`
	VoteCount        int        `json:"vote_count"`
	AnswerCount      int        `json:"answer_count"`
	RunID            string     `json:"run_id"`
}

func newDocument(q domain.Question, runID string) questionDocument {
	doc := questionDocument{
		ID:               q.ID,
		Title:            q.Title,
		URL:              q.URL,
		Summary:          q.Summary,
		Tags:             []string(q.Tags),
		Author:           q.AuthorName,
		AuthorReputation: q.AuthorReputation,
		ViewCount:        q.ViewCount,
		VoteCount:        q.VoteCount,
		AnswerCount:      q.AnswerCount,
		RunID:            runID,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if !q.PublicationDate.IsZero() {
		published := q.PublicationDate.UTC()
		doc.PublishedAt = &published
	}
	return doc
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "question_id":       {"type": "long"},
      "title":             {"type": "text"},
      "url":               {"type": "keyword"},
      "summary":           {"type": "text"},
      "tags":              {"type": "keyword"},
      "author":            {"type": "keyword"},
      "author_reputation": {"type": "integer"},
      "published_at":      {"type": "date"},
      "view_count":        {"type": "integer"},
      "vote_count":        {"type": "integer"},
      "answer_count":      {"type": "integer"},
      "run_id":            {"type": "keyword"}
    }
  }
}`

// Indexer bulk-indexes the scoped questions. Document ids are question ids,
// so re-indexing a question replaces it.
type Indexer struct {
	client    *es.Client
	questions store.QuestionStore
	index     string
	batchSize int
	log       logger.Logger
}

// NewIndexer creates the index handoff analyzer.
func NewIndexer(client *es.Client, questions store.QuestionStore, cfg Config, log logger.Logger) *Indexer {
	index := cfg.Index
	if index == "" {
		index = defaultIndex
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Indexer{
		client:    client,
		questions: questions,
		index:     index,
		batchSize: batch,
		log:       log.With(logger.Component("search_indexer"), logger.String("index", index)),
	}
}

// Name implements analysis.Analyzer.
func (i *Indexer) Name() string { return "search_index" }

// Analyze implements analysis.Analyzer. Per-document failures are counted in
// the result; a transport or status failure returns an error.
func (i *Indexer) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	var ids []int64
	if req.IDs != nil {
		if req.IDs.Len() == 0 {
			return analysis.Result{"index": i.index, "indexed": 0, "failed": 0}, nil
		}
		ids = req.IDs.Sorted()
	}

	questions, err := i.questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: load questions: %w", err)
	}

	if ensureErr := i.EnsureIndex(ctx); ensureErr != nil {
		return nil, ensureErr
	}

	indexed, failed := 0, 0
	for start := 0; start < len(questions); start += i.batchSize {
		end := min(start+i.batchSize, len(questions))
		ok, bad, bulkErr := i.bulk(ctx, questions[start:end], req.Run.RunID)
		indexed += ok
		failed += bad
		if bulkErr != nil {
			return analysis.Result{"index": i.index, "indexed": indexed, "failed": failed}, bulkErr
		}
	}

	i.log.Info("Questions indexed", logger.Int("indexed", indexed), logger.Int("failed", failed))
	return analysis.Result{"index": i.index, "indexed": indexed, "failed": failed}, nil
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", i.index, err)
	}
	_ = res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("failed to check index %s: status %d", i.index, res.StatusCode)
	}

	created, err := i.client.Indices.Create(i.index,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.index, err)
	}
	defer func() { _ = created.Body.Close() }()

	if created.IsError() {
		body, _ := io.ReadAll(io.LimitReader(created.Body, maxErrorBody))
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("failed to create index %s: [%d] %s", i.index, created.StatusCode, body)
	}
	i.log.Info("Created index")
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (i *Indexer) bulk(ctx context.Context, questions []domain.Question, runID string) (int, int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, q := range questions {
		meta := map[string]any{"index": map[string]any{"_index": i.index, "_id": strconv.FormatInt(q.ID, 10)}}
		if err := enc.Encode(meta); err != nil {
			return 0, 0, fmt.Errorf("search: encode bulk meta: %w", err)
		}
		if err := enc.Encode(newDocument(q, runID)); err != nil {
			return 0, 0, fmt.Errorf("search: encode question %d: %w", q.ID, err)
		}
	}

	res, err := i.client.Bulk(bytes.NewReader(buf.Bytes()), i.client.Bulk.WithContext(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("search: bulk request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return 0, 0, fmt.Errorf("%w: [%d] %s", ErrBulkRejected, res.StatusCode, body)
	}

	var parsed bulkResponse
	if decodeErr := json.NewDecoder(res.Body).Decode(&parsed); decodeErr != nil {
		return 0, 0, fmt.Errorf("search: decode bulk response: %w", decodeErr)
	}

	indexed, failed := 0, 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil || result.Status >= http.StatusBadRequest {
				failed++
				reason := ""
				if result.Error != nil {
					reason = result.Error.Type + ": " + result.Error.Reason
				}
				i.log.Warn("Document rejected", logger.String("id", result.ID), logger.Int("status", result.Status), logger.String("reason", reason))
				continue
			}
			indexed++
		}
	}
	return indexed, failed, nil
}
