// Package note provides the note value type and pure functions over it.
// This package has NO dependencies on I/O or external packages.
package note

import (
	"errors"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for unknown note IDs.
	ErrNotFound = errors.New("note not found")
	// ErrVersionConflict is returned when an update names a stale version.
	ErrVersionConflict = errors.New("note version conflict")
)

// Note is one stored note (value type).
type Note struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	Pinned    bool      `json:"pinned"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with n.
func (n Note) Clone() Note {
	n.Tags = slices.Clone(n.Tags)
	return n
}

// ETag is the entity tag for the note's current version.
func (n Note) ETag() string {
	return strconv.Quote(strconv.FormatInt(n.Version, 10))
}

// OwnedBy reports whether principal owns the note.
func (n Note) OwnedBy(principal string) bool {
	return principal != "" && n.Owner == principal
}

// HasTag reports whether the note carries tag.
func (n Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Filter selects notes when listing. Zero values match everything.
type Filter struct {
	Owner  string
	Tag    string
	Pinned *bool
	Limit  int
	Offset int
}

// Matches reports whether n passes the filter.
func (f Filter) Matches(n Note) bool {
	if f.Owner != "" && n.Owner != f.Owner {
		return false
	}
	if f.Tag != "" && !n.HasTag(f.Tag) {
		return false
	}
	if f.Pinned != nil && n.Pinned != *f.Pinned {
		return false
	}
	return true
}

// Select filters, orders and pages notes. Pinned notes come first, then
// newest first; ties are broken by ID. It returns the page and the number
// of matches before paging.
func Select(notes []Note, f Filter) ([]Note, int) {
	matched := make([]Note, 0, len(notes))
	for _, n := range notes {
		if f.Matches(n) {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []Note{}, total
	}
	matched = matched[max(f.Offset, 0):]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total
}

// NormalizeTags lowercases and trims tags, dropping blanks and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MatchVersion checks an If-Match header value against version. An empty
// header or "*" always matches; weak tags compare by their opaque value.
func MatchVersion(ifMatch string, version int64) bool {
	ifMatch = strings.TrimSpace(ifMatch)
	if ifMatch == "" || ifMatch == "*" {
		return true
	}
	want := strconv.FormatInt(version, 10)
	for _, tag := range strings.Split(ifMatch, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if unq, err := strconv.Unquote(tag); err == nil {
			tag = unq
		}
		if tag == want {
			return true
		}
	}
	return false
}
