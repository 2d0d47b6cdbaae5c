package source

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
)

// Listing page selectors.
const (
	selQuestion     = "div.s-post-summary"
	selTitleLink    = "h3.s-post-summary--content-title a"
	selExcerpt      = "div.s-post-summary--content-excerpt"
	selTags         = "div.s-post-summary--meta-tags a.post-tag"
	selStatItem     = "div.s-post-summary--stats-item"
	selStatNumber   = "span.s-post-summary--stats-item-number"
	selAuthorLink   = "div.s-user-card--link a"
	selUserCardSpan = "div.s-user-card span"
	selRelativeTime = "span.relativetime"
)

// relativeTimeLayout matches titles like "2025-08-06 10:39:52Z".
const relativeTimeLayout = "2006-01-02 15:04:05Z"

var errNoQuestionID = errors.New("href has no question id")

// ExtractPage parses a listing page and returns the questions it holds,
// the per-element extraction errors, and the number of question elements seen.
func ExtractPage(doc *goquery.Document, baseURL string, now time.Time) ([]domain.Question, []error, int) {
	elements := doc.Find(selQuestion)

	questions := make([]domain.Question, 0, elements.Length())
	var failures []error

	elements.Each(func(i int, sel *goquery.Selection) {
		q, ok, err := ExtractQuestion(i, sel, baseURL, now)
		if err != nil {
			failures = append(failures, err)
			return
		}
		if ok {
			questions = append(questions, q)
		}
	})

	return questions, failures, elements.Length()
}

// ExtractQuestion turns one listing element into a Question. It returns
// ok=false without an error when the element carries no question link.
func ExtractQuestion(index int, sel *goquery.Selection, baseURL string, now time.Time) (domain.Question, bool, error) {
	link := sel.Find(selTitleLink).First()
	if link.Length() == 0 {
		return domain.Question{}, false, nil
	}

	href, _ := link.Attr("href")
	id, err := questionIDFromHref(href)
	if err != nil {
		return domain.Question{}, false, &ExtractionError{Index: index, Field: "question_id", Cause: err}
	}

	q := domain.Question{
		ID:              id,
		Title:           strings.TrimSpace(link.Text()),
		URL:             resolveURL(baseURL, href),
		Summary:         strings.TrimSpace(sel.Find(selExcerpt).First().Text()),
		AuthorName:      domain.UnknownAuthor,
		PublicationDate: now.UTC(),
	}

	var tags []string
	sel.Find(selTags).Each(func(_ int, t *goquery.Selection) {
		tags = append(tags, t.Text())
	})
	q.Tags = domain.NewTags(tags...)

	sel.Find(selStatItem).Each(func(_ int, item *goquery.Selection) {
		title := strings.ToLower(item.AttrOr("title", ""))
		value, parseErr := ParseCompactNumber(item.Find(selStatNumber).First().Text())
		if parseErr != nil {
			return
		}
		switch {
		case strings.Contains(title, "score"), strings.Contains(title, "vote"):
			q.VoteCount = value
		case strings.Contains(title, "answer"):
			q.AnswerCount = value
		case strings.Contains(title, "view"):
			q.ViewCount = value
		}
	})

	if author := sel.Find(selAuthorLink).First(); author.Length() > 0 {
		if name := strings.TrimSpace(author.Text()); name != "" {
			q.AuthorName = name
		}
		if profile, ok := author.Attr("href"); ok && profile != "" {
			q.AuthorProfileURL = resolveURL(baseURL, profile)
		}
	}

	sel.Find(selUserCardSpan).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(span.AttrOr("title", "")), "reputation") {
			return true
		}
		if rep, repErr := ParseCompactNumber(span.Text()); repErr == nil {
			q.AuthorReputation = rep
		}
		return false
	})

	if stamp, ok := sel.Find(selRelativeTime).First().Attr("title"); ok {
		if t, parseErr := time.Parse(relativeTimeLayout, strings.TrimSpace(stamp)); parseErr == nil {
			q.PublicationDate = t.UTC()
		}
	}

	return q, true, nil
}

// questionIDFromHref reads the id from "/questions/<id>/<slug>".
func questionIDFromHref(href string) (int64, error) {
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		href = u.Path
	}
	parts := strings.Split(href, "/")
	if len(parts) < 3 || parts[1] != "questions" {
		return 0, fmt.Errorf("%w: %q", errNoQuestionID, href)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errNoQuestionID, href)
	}
	return id, nil
}

func resolveURL(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// ParseCompactNumber parses counts such as "1,234", "12.5k" or "1.2m".
func ParseCompactNumber(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	if s == "" {
		return 0, errors.New("empty number")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return int(math.Round(f * multiplier)), nil
}
