// Package normalize turns raw adapter output into canonical business records.
// Normalize never fails; fields that cannot be made valid are dropped and
// reported as degradations.
package normalize

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/directory-crawler/internal/model"
)

// Degradation records a field dropped or altered during normalization.
type Degradation struct {
	Field  string
	Reason string
}

func (d Degradation) String() string {
	return d.Field + ": " + d.Reason
}

// Normalize converts raw into a BusinessRecord for source. ID and timestamps
// are left for the persistence layer.
func Normalize(raw model.RawExtraction, source model.Source) (model.BusinessRecord, []Degradation) {
	n := &normalizer{}
	rec := model.BusinessRecord{
		Source:      source,
		SourceID:    clean(raw.SourceID),
		SourceURL:   model.NormalizeURL(clean(raw.SourceURL)),
		Name:        clean(raw.Name),
		Description: clean(raw.Description),
		Country:     countryName(clean(raw.Country)),
	}

	rec.Category = strings.Join(foldList(raw.Categories), ", ")
	rec.Amenities = sortedSet(foldList(raw.Amenities))

	rec.Rating = n.rating(raw.Rating)
	rec.ReviewCount = n.reviewCount(raw.ReviewCount)
	rec.Latitude, rec.Longitude = n.coordinates(raw.Latitude, raw.Longitude)

	n.address(&rec, raw)
	if rec.Country == "" {
		rec.Country = countryFromAddress(rec)
	}

	rec.Phone = n.phone(raw.Phone, regionFor(rec.Country))
	rec.Email = n.email(raw.Email)
	rec.Website = n.website(raw.Website)

	rec.Images = n.images(raw.Images)
	rec.Hours = n.hours(raw.Hours)

	for _, d := range n.degraded {
		zap.L().Warn("normalize: field degraded",
			zap.String("source", source.String()),
			zap.String("source_url", rec.SourceURL),
			zap.String("field", d.Field),
			zap.String("reason", d.Reason),
		)
	}
	return rec, n.degraded
}

type normalizer struct {
	degraded []Degradation
}

func (n *normalizer) degrade(field, format string, args ...any) {
	n.degraded = append(n.degraded, Degradation{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// clean trims and collapses internal whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldList splits entries on "," and "|", lowercases, trims and de-duplicates
// while keeping first-seen order.
func foldList(in []string) []string {
	lower := cases.Lower(language.Und)
	var out []string
	seen := make(map[string]bool)
	for _, entry := range in {
		for _, part := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == '|' }) {
			v := clean(lower.String(part))
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func (n *normalizer) rating(s string) *float64 {
	s = clean(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		n.degrade("rating", "unparseable value %q", s)
		return nil
	}
	if v < 0 || v > 5 {
		n.degrade("rating", "value %v outside [0,5]", v)
		return nil
	}
	return &v
}

func (n *normalizer) reviewCount(s string) *int {
	s = strings.Trim(clean(s), "()")
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(strings.NewReplacer(",", "", " ", "").Replace(s))
	if err != nil {
		n.degrade("review_count", "unparseable value %q", s)
		return nil
	}
	if v < 0 {
		n.degrade("review_count", "negative value %d", v)
		return nil
	}
	return &v
}

func (n *normalizer) coordinates(latS, lonS string) (*float64, *float64) {
	latS, lonS = clean(latS), clean(lonS)
	if latS == "" && lonS == "" {
		return nil, nil
	}
	if latS == "" || lonS == "" {
		n.degrade("coordinates", "only one of latitude/longitude present")
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(latS, 64)
	lon, errLon := strconv.ParseFloat(lonS, 64)
	if errLat != nil || errLon != nil {
		n.degrade("coordinates", "unparseable pair %q,%q", latS, lonS)
		return nil, nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		n.degrade("coordinates", "pair %v,%v out of range", lat, lon)
		return nil, nil
	}
	return &lat, &lon
}

func (n *normalizer) images(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	dropped := 0
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		u, err := url.Parse(s)
		if s == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			dropped++
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if dropped > 0 {
		n.degrade("images", "%d non-http(s) urls dropped", dropped)
	}
	return out
}

func (n *normalizer) hours(in model.WeeklyHours) model.WeeklyHours {
	if len(in) == 0 {
		return nil
	}
	out := make(model.WeeklyHours, len(in))
	for _, day := range in.Days() {
		valid := make([]model.TimeRange, 0, len(in[day]))
		for _, r := range in[day] {
			if !r.Valid() {
				n.degrade("hours", "invalid range %s-%s on %s", r.Open, r.Close, day)
				continue
			}
			valid = append(valid, r)
		}
		// A day whose every range was invalid is unknown, not closed.
		if len(valid) == 0 && len(in[day]) > 0 {
			continue
		}
		out[day] = valid
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
