package source

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// Summary formats.
const (
	SummaryText     = "text"
	SummaryMarkdown = "markdown"
)

// DefaultSummaryLength is the rune limit applied to question bodies.
const DefaultSummaryLength = 500

const ellipsis = "..."

// Summarizer turns a question body (HTML) into the stored summary.
type Summarizer func(body string) string

// NewSummarizer returns the summarizer for format. limit <= 0 disables truncation.
func NewSummarizer(format string, limit int) (Summarizer, error) {
	switch format {
	case "", SummaryText:
		policy := bluemonday.StrictPolicy()
		return func(body string) string {
			return Truncate(plainText(policy, body), limit)
		}, nil
	case SummaryMarkdown:
		conv := converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
		fallback := bluemonday.StrictPolicy()
		return func(body string) string {
			md, err := conv.ConvertString(body)
			if err != nil || strings.TrimSpace(md) == "" {
				return Truncate(plainText(fallback, body), limit)
			}
			return Truncate(strings.TrimSpace(md), limit)
		}, nil
	default:
		return nil, fmt.Errorf("unknown summary format %q", format)
	}
}

// plainText strips every tag and decodes entities.
func plainText(policy *bluemonday.Policy, body string) string {
	if body == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(body)))
}

// Truncate cuts s to limit runes and appends "..." when it was longer.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + ellipsis
}
