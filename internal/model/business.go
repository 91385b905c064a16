// Package model defines the canonical business record and the raw shapes
// site adapters hand to the normalizer.
package model

import (
	"net/url"
	"strings"
	"time"
)

// Source identifies the directory site a record was scraped from.
type Source string

const (
	SourceYelp        Source = "yelp"
	SourceYellowPages Source = "yellowpages"
)

// String returns the source identifier.
func (s Source) String() string { return string(s) }

// BusinessRecord is the canonical, normalized business listing.
type BusinessRecord struct {
	ID        string `json:"id"`
	Source    Source `json:"source"`
	SourceID  string `json:"source_id,omitempty"`
	SourceURL string `json:"source_url"`

	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`

	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`

	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`

	Hours     WeeklyHours `json:"hours,omitempty"`
	Amenities []string    `json:"amenities,omitempty"`
	Images    []string    `json:"images,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UniqueKey returns the site-native identifier used for deduplication: the
// source id when present, otherwise the normalized source URL.
func (r *BusinessRecord) UniqueKey() string {
	if id := strings.TrimSpace(r.SourceID); id != "" {
		return id
	}
	return NormalizeURL(r.SourceURL)
}

// LockKey scopes UniqueKey by source so different sites never collide.
func (r *BusinessRecord) LockKey() string {
	return string(r.Source) + "|" + r.UniqueKey()
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r *BusinessRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// NormalizeURL lowercases scheme and host and strips the query, fragment and
// trailing slash. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
