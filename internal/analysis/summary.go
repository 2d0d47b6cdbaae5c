package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

const (
	defaultTopTags    = 20
	defaultTopAuthors = 10
)

// TagCount is one entry of the tag frequency table.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AuthorCount is one entry of the top author table.
type AuthorCount struct {
	Name          string `json:"name"`
	QuestionCount int    `json:"question_count"`
	Reputation    int    `json:"reputation"`
}

// Stats are descriptive statistics over a set of questions.
type Stats struct {
	Questions      int           `json:"questions"`
	MeanViews      float64       `json:"mean_views"`
	MeanVotes      float64       `json:"mean_votes"`
	MeanAnswers    float64       `json:"mean_answers"`
	UnansweredRate float64       `json:"unanswered_rate"`
	UniqueTags     int           `json:"unique_tags"`
	TopTags        []TagCount    `json:"top_tags"`
	Earliest       *time.Time    `json:"earliest,omitempty"`
	Latest         *time.Time    `json:"latest,omitempty"`
	TopAuthors     []AuthorCount `json:"top_authors"`
}

// SummaryConfig sizes the frequency tables.
type SummaryConfig struct {
	TopTags    int `mapstructure:"top_tags"`
	TopAuthors int `mapstructure:"top_authors"`
}

// Summary computes Stats from the store.
type Summary struct {
	questions store.QuestionStore
	authors   store.AuthorStore
	cfg       SummaryConfig
	log       logger.Logger
}

// NewSummary creates the summary analyzer.
func NewSummary(questions store.QuestionStore, authors store.AuthorStore, cfg SummaryConfig, log logger.Logger) *Summary {
	if cfg.TopTags <= 0 {
		cfg.TopTags = defaultTopTags
	}
	if cfg.TopAuthors <= 0 {
		cfg.TopAuthors = defaultTopAuthors
	}
	return &Summary{questions: questions, authors: authors, cfg: cfg, log: log.With(logger.Component("summary_analyzer"))}
}

// Name implements Analyzer.
func (s *Summary) Name() string { return "summary" }

// Analyze implements Analyzer.
func (s *Summary) Analyze(ctx context.Context, req Request) (Result, error) {
	stats, err := s.Compute(ctx, req)
	if err != nil {
		return nil, err
	}
	return Result{"stats": stats}, nil
}

// Compute loads the scoped questions and derives Stats.
func (s *Summary) Compute(ctx context.Context, req Request) (Stats, error) {
	if req.IDs != nil && req.IDs.Len() == 0 {
		return Stats{TopTags: []TagCount{}, TopAuthors: []AuthorCount{}}, nil
	}

	questions, err := s.questions.FindByIDs(ctx, req.idList())
	if err != nil {
		return Stats{}, fmt.Errorf("summary: load questions: %w", err)
	}

	stats := Describe(questions, s.cfg.TopTags)

	top, err := s.authors.TopAuthors(ctx, s.cfg.TopAuthors)
	if err != nil {
		return Stats{}, fmt.Errorf("summary: load top authors: %w", err)
	}
	for _, a := range top {
		stats.TopAuthors = append(stats.TopAuthors, AuthorCount{Name: a.Name, QuestionCount: a.QuestionCount, Reputation: a.Reputation})
	}

	s.log.Info("Summary computed",
		logger.Int("questions", stats.Questions),
		logger.Bool("all", req.All()),
		logger.Int("unique_tags", stats.UniqueTags),
	)
	return stats, nil
}

// Describe computes the question-level statistics. topTags bounds the tag table.
func Describe(questions []domain.Question, topTags int) Stats {
	stats := Stats{Questions: len(questions), TopTags: []TagCount{}, TopAuthors: []AuthorCount{}}
	if len(questions) == 0 {
		return stats
	}

	var views, votes, answers, unanswered int
	tagCounts := make(map[string]int)
	var earliest, latest time.Time

	for _, q := range questions {
		views += q.ViewCount
		votes += q.VoteCount
		answers += q.AnswerCount
		if q.AnswerCount == 0 {
			unanswered++
		}
		for _, tag := range q.Tags {
			tagCounts[tag]++
		}
		if q.PublicationDate.IsZero() {
			continue
		}
		if earliest.IsZero() || q.PublicationDate.Before(earliest) {
			earliest = q.PublicationDate
		}
		if latest.IsZero() || q.PublicationDate.After(latest) {
			latest = q.PublicationDate
		}
	}

	n := float64(len(questions))
	stats.MeanViews = float64(views) / n
	stats.MeanVotes = float64(votes) / n
	stats.MeanAnswers = float64(answers) / n
	stats.UnansweredRate = float64(unanswered) / n
	stats.UniqueTags = len(tagCounts)

	for tag, count := range tagCounts {
		stats.TopTags = append(stats.TopTags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(stats.TopTags, func(i, j int) bool {
		if stats.TopTags[i].Count != stats.TopTags[j].Count {
			return stats.TopTags[i].Count > stats.TopTags[j].Count
		}
		return stats.TopTags[i].Tag < stats.TopTags[j].Tag
	})
	if topTags > 0 && len(stats.TopTags) > topTags {
		stats.TopTags = stats.TopTags[:topTags]
	}

	if !earliest.IsZero() {
		stats.Earliest = &earliest
		stats.Latest = &latest
	}
	return stats
}
