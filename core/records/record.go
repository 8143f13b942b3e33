// Package records persists device subscription records keyed by id.
//
// Every operation goes through a Backend with a full load or a full save; the
// Store serializes load-modify-save sequences so concurrent writers never lose
// updates.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the calendar date format of Record.RenewalDate.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when a record id is absent from the store.
	ErrNotFound = errors.New("records: not found")
	// ErrCorrupt marks a persisted document that cannot be decoded.
	ErrCorrupt = errors.New("records: corrupt document")
)

// UserID is a chat user identifier. The document stores it as a number but
// numeric strings are accepted on read.
type UserID int64

// UnmarshalJSON accepts 42 and "42".
func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("records: user id %s: %w", data, err)
	}
	*u = UserID(n)
	return nil
}

// Record is a single tracked subscription.
type Record struct {
	ID          string   `json:"-"`
	Status      string   `json:"status"`
	RenewalDate string   `json:"renewal_date"`
	FavoritedBy []UserID `json:"favorited_by"`
}

// HasFavorite reports whether user already favorited the record.
func (r Record) HasFavorite(user UserID) bool {
	return slices.Contains(r.FavoritedBy, user)
}

// Renewal parses RenewalDate. Empty or malformed dates return ok=false.
func (r Record) Renewal() (time.Time, bool) {
	return ParseRenewalDate(r.RenewalDate)
}

// Records maps record id to record.
type Records map[string]Record

// IDs returns the record ids in ascending order.
func (rs Records) IDs() []string {
	ids := make([]string, 0, len(rs))
	for id := range rs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Sorted returns the records ordered by id.
func (rs Records) Sorted() []Record {
	out := make([]Record, 0, len(rs))
	for _, id := range rs.IDs() {
		out = append(out, rs[id])
	}
	return out
}

func (rs Records) clone() Records {
	out := make(Records, len(rs))
	for id, rec := range rs {
		rec.FavoritedBy = slices.Clone(rec.FavoritedBy)
		out[id] = rec
	}
	return out
}

var upper = cases.Upper(language.Und)

// NormalizeID trims and uppercases a user supplied record id.
func NormalizeID(raw string) string {
	return upper.String(strings.TrimSpace(raw))
}

// ParseRenewalDate parses a YYYY-MM-DD date as a civil date in UTC.
func ParseRenewalDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// decode reads a document body. Ids are taken from the object keys.
func decode(body []byte) (Records, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Records{}, nil
	}
	var raw map[string]Record
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make(Records, len(raw))
	for id, rec := range raw {
		rec.ID = id
		out[id] = rec
	}
	return out, nil
}

// encode renders the document with 4-space indentation and unescaped non-ASCII text.
func encode(rs Records) ([]byte, error) {
	doc := make(map[string]Record, len(rs))
	for id, rec := range rs {
		if rec.FavoritedBy == nil {
			rec.FavoritedBy = []UserID{}
		}
		doc[id] = rec
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
