// Package incident defines the domain model for the incident register:
// structured records of motivated incidents, their evidencing sources, and
// the persisted collection document.
package incident

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date form incidents carry ("YYYY-MM-DD").
const DateLayout = "2006-01-02"

// Type classifies an incident into the closed set the register tracks.
type Type string

const (
	TypePhysicalAttack Type = "physical_attack"
	TypeVerbalAttack   Type = "verbal_attack"
	TypePropertyDamage Type = "property_damage"
	TypeOther          Type = "other"
)

// Status tracks whether an incident has been confirmed by an authority.
type Status string

const (
	// StatusUnverified means the incident is reported but not officially confirmed.
	StatusUnverified Status = "unverified"

	// StatusVerified means police or an official statement confirmed the incident.
	StatusVerified Status = "verified"
)

// Source is one (URL, publisher name) pair evidencing an incident's report.
type Source struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Incident is one structured record of a motivated incident in the monitored city.
type Incident struct {
	Date        string   `json:"date"` // YYYY-MM-DD occurrence date
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Type        Type     `json:"type"`
	Status      Status   `json:"status"`
	Sources     []Source `json:"sources"`
}

// Collection is the canonical persisted document: all known incidents plus
// the instant of the last mutation.
type Collection struct {
	Incidents   []*Incident `json:"incidents"`
	LastUpdated string      `json:"lastUpdated"` // RFC3339 UTC
}

// ValidType reports whether t is one of the closed incident types.
func ValidType(t Type) bool {
	switch t {
	case TypePhysicalAttack, TypeVerbalAttack, TypePropertyDamage, TypeOther:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known verification status.
func ValidStatus(s Status) bool {
	return s == StatusUnverified || s == StatusVerified
}

// DateOf parses the incident's occurrence date.
func (in *Incident) DateOf() (time.Time, error) {
	return time.Parse(DateLayout, in.Date)
}

// HasSourceURL reports whether any of the incident's sources carries the URL.
func (in *Incident) HasSourceURL(url string) bool {
	for _, s := range in.Sources {
		if s.URL == url {
			return true
		}
	}
	return false
}

// MergeSources appends every source whose URL the incident does not already
// carry and returns how many were added. Sources are never removed.
func (in *Incident) MergeSources(srcs []Source) int {
	added := 0
	for _, s := range srcs {
		if in.HasSourceURL(s.URL) {
			continue
		}
		in.Sources = append(in.Sources, s)
		added++
	}
	return added
}

// Validate checks the record satisfies the register's schema: all fields
// present, type and status from their closed sets, a parseable date, and at
// least one source.
func (in *Incident) Validate() error {
	var errs []error

	if in.Date == "" {
		errs = append(errs, errors.New("date is required"))
	} else if _, err := in.DateOf(); err != nil {
		errs = append(errs, fmt.Errorf("invalid date %q (must be YYYY-MM-DD)", in.Date))
	}
	if in.Location == "" {
		errs = append(errs, errors.New("location is required"))
	}
	if in.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if !ValidType(in.Type) {
		errs = append(errs, fmt.Errorf("unknown type %q", in.Type))
	}
	if !ValidStatus(in.Status) {
		errs = append(errs, fmt.Errorf("unknown status %q", in.Status))
	}
	if len(in.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Append adds incidents to the collection and stamps LastUpdated with now.
func (c *Collection) Append(now time.Time, incidents ...*Incident) {
	c.Incidents = append(c.Incidents, incidents...)
	c.LastUpdated = now.UTC().Format(time.RFC3339)
}

// SourceURLs returns the set of all source URLs across the collection.
func (c *Collection) SourceURLs() map[string]struct{} {
	urls := make(map[string]struct{})
	for _, in := range c.Incidents {
		for _, s := range in.Sources {
			urls[s.URL] = struct{}{}
		}
	}
	return urls
}
