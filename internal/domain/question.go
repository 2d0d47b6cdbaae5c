// Package domain holds the canonical records shared by every so-ingestor component.
package domain

import (
	"strings"
	"time"
)

// UnknownAuthor is the sentinel display name used when a source carries no owner.
const UnknownAuthor = "Unknown"

// Question is the canonical record produced by every source. It is not
// modified after fetch.
type Question struct {
	ID               int64     `db:"id"                 json:"question_id"`
	Title            string    `db:"title"              json:"title"`
	URL              string    `db:"url"                json:"url"`
	Summary          string    `db:"summary"            json:"summary"`
	Tags             Tags      `db:"tags"               json:"tags"`
	AuthorName       string    `db:"author_name"        json:"author_name"`
	AuthorReputation int       `db:"author_reputation"  json:"author_reputation"`
	AuthorProfileURL string    `db:"author_profile_url" json:"author_profile_url"`
	PublicationDate  time.Time `db:"publication_date"   json:"publication_date"`
	ViewCount        int       `db:"view_count"         json:"view_count"`
	VoteCount        int       `db:"vote_count"         json:"vote_count"`
	AnswerCount      int       `db:"answer_count"       json:"answer_count"`
}

// IsKnownAuthor reports whether name is a real display name rather than
// blank or the UnknownAuthor sentinel.
func IsKnownAuthor(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != UnknownAuthor
}

// HasKnownAuthor reports whether the question carries a real author name.
func (q Question) HasKnownAuthor() bool {
	return IsKnownAuthor(q.AuthorName)
}

// Author is the denormalized aggregate keyed by display name.
type Author struct {
	Name          string    `db:"author_name"   json:"author_name"`
	Reputation    int       `db:"reputation"    json:"reputation"`
	ProfileURL    string    `db:"profile_url"   json:"profile_url"`
	FirstSeen     time.Time `db:"first_seen"    json:"first_seen"`
	LastSeen      time.Time `db:"last_seen"     json:"last_seen"`
	QuestionCount int       `db:"question_count" json:"question_count"`
}

// IDs returns the ids of questions in order.
func IDs(questions []Question) []int64 {
	ids := make([]int64, 0, len(questions))
	for i := range questions {
		ids = append(ids, questions[i].ID)
	}
	return ids
}
