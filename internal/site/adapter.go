// Package site holds the directory adapters. An adapter knows one site's URLs
// and markup; it never fetches, retries or persists.
package site

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-crawler/internal/fetch"
	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/resilience"
)

// Adapter is the per-site contract the crawl engine drives.
type Adapter interface {
	// SourceName identifies records produced by this adapter.
	SourceName() model.Source
	// BuildSearchRequest returns the listing request for a 1-based page.
	BuildSearchRequest(q Query, page int) fetch.Request
	// ParseListingPage extracts detail references in document order and
	// reports whether another listing page follows.
	ParseListingPage(p *fetch.Page) ([]DetailRef, bool, error)
	// ParseDetailPage extracts raw fields from a business page.
	ParseDetailPage(p *fetch.Page, ref DetailRef) (*model.RawExtraction, error)
}

// DetailRequester is implemented by adapters that need non-default fetch
// options for detail pages.
type DetailRequester interface {
	BuildDetailRequest(ref DetailRef) fetch.Request
}

// Query is one search: a category or keyword within a location.
type Query struct {
	Category string `yaml:"category" json:"category"`
	Location string `yaml:"location" json:"location"`
}

func (q Query) String() string {
	return q.Category + "@" + q.Location
}

// ParseQuery parses "Category@Location".
func ParseQuery(s string) (Query, error) {
	cat, loc, ok := strings.Cut(s, "@")
	cat, loc = strings.TrimSpace(cat), strings.TrimSpace(loc)
	if !ok || cat == "" || loc == "" {
		return Query{}, eris.Errorf("site: query %q must look like Category@Location", s)
	}
	return Query{Category: cat, Location: loc}, nil
}

// DetailRef points at a business detail page found on a listing page.
type DetailRef struct {
	URL      string
	SourceID string
	// Preview holds fields shown on the listing card. They fill gaps the
	// detail page leaves empty.
	Preview *model.RawExtraction
}

// ParseError reports a page whose shape the adapter does not recognize.
type ParseError struct {
	Source model.Source
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("site: %s: unrecognized page %s: %s", e.Source, e.URL, e.Reason)
}

// ErrorKind implements resilience.Classified.
func (e *ParseError) ErrorKind() resilience.ErrorKind { return resilience.KindParseStructural }

func parseDocument(src model.Source, p *fetch.Page) (*goquery.Document, error) {
	if p == nil || strings.TrimSpace(p.HTML) == "" {
		var u string
		if p != nil {
			u = p.URL
		}
		return nil, &ParseError{Source: src, URL: u, Reason: "empty document"}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, &ParseError{Source: src, URL: p.URL, Reason: "invalid html: " + err.Error()}
	}
	return doc, nil
}

// text returns the selection's text with whitespace collapsed.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// absURL resolves href against base and drops the query and fragment when
// strip is set.
func absURL(base, href string, strip bool) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := b.Parse(href)
	if err != nil {
		return ""
	}
	if strip {
		u.RawQuery = ""
		u.Fragment = ""
	}
	return u.String()
}

// collect returns the non-empty texts of a selection, de-duplicated in order.
func collect(s *goquery.Selection, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		t := text(el)
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}
