package site

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/directory-crawler/internal/model"
)

// nonBusinessTypes are schema.org types that never describe the listed business.
var nonBusinessTypes = map[string]bool{
	"BreadcrumbList": true,
	"WebSite":        true,
	"WebPage":        true,
	"Organization":   true,
	"SearchAction":   true,
	"ItemList":       true,
	"Review":         true,
	"ImageObject":    true,
}

// extractLocalBusiness reads the first JSON-LD object that looks like a
// LocalBusiness (or one of its subtypes) and returns its fields as a raw
// extraction. Invalid script blocks are skipped.
func extractLocalBusiness(doc *goquery.Document) *model.RawExtraction {
	var found map[string]any
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		jsonText := strings.TrimSpace(s.Text())
		if jsonText == "" {
			return true
		}
		var jsonData any
		if err := json.Unmarshal([]byte(jsonText), &jsonData); err != nil {
			return true
		}
		for _, item := range normalizeJSONLDItems(jsonData) {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if graph, ok := obj["@graph"]; ok {
				for _, g := range normalizeJSONLDItems(graph) {
					if gm, ok := g.(map[string]any); ok && isBusiness(gm) {
						found = gm
						return false
					}
				}
			}
			if isBusiness(obj) {
				found = obj
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil
	}
	return businessFromJSONLD(found)
}

// normalizeJSONLDItems normalizes JSON-LD data to a slice of items.
func normalizeJSONLDItems(jsonData any) []any {
	switch v := jsonData.(type) {
	case []any:
		return v
	case map[string]any:
		return []any{v}
	default:
		return nil
	}
}

func isBusiness(obj map[string]any) bool {
	types := stringList(obj["@type"])
	if len(types) == 0 {
		return false
	}
	for _, t := range types {
		if strings.Contains(t, "LocalBusiness") {
			return true
		}
		if nonBusinessTypes[t] {
			return false
		}
	}
	// Subtypes such as Plumber or Restaurant carry an address or a phone.
	_, hasAddr := obj["address"]
	_, hasPhone := obj["telephone"]
	return hasAddr || hasPhone
}

func businessFromJSONLD(obj map[string]any) *model.RawExtraction {
	raw := &model.RawExtraction{
		Name:        str(obj["name"]),
		Description: str(obj["description"]),
		Phone:       str(obj["telephone"]),
		Email:       strings.TrimPrefix(str(obj["email"]), "mailto:"),
		Website:     str(obj["sameAs"]),
		Images:      imageList(obj["image"]),
	}
	if addr, ok := obj["address"].(map[string]any); ok {
		raw.Address = str(addr["streetAddress"])
		raw.City = str(addr["addressLocality"])
		raw.State = str(addr["addressRegion"])
		raw.PostalCode = str(addr["postalCode"])
		if c, ok := addr["addressCountry"].(map[string]any); ok {
			raw.Country = str(c["name"])
		} else {
			raw.Country = str(addr["addressCountry"])
		}
	} else {
		raw.Address = str(obj["address"])
	}
	if geo, ok := obj["geo"].(map[string]any); ok {
		raw.Latitude = str(geo["latitude"])
		raw.Longitude = str(geo["longitude"])
	}
	if agg, ok := obj["aggregateRating"].(map[string]any); ok {
		raw.Rating = str(agg["ratingValue"])
		raw.ReviewCount = str(agg["reviewCount"])
		if raw.ReviewCount == "" {
			raw.ReviewCount = str(agg["ratingCount"])
		}
	}
	raw.Hours = hoursFromJSONLD(obj)
	return raw
}

func hoursFromJSONLD(obj map[string]any) model.WeeklyHours {
	var h model.WeeklyHours
	for _, item := range normalizeJSONLDItems(obj["openingHoursSpecification"]) {
		spec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		open, okO := toClock(str(spec["opens"]))
		closing, okC := toClock(str(spec["closes"]))
		var days []model.Weekday
		for _, d := range stringList(spec["dayOfWeek"]) {
			d = d[strings.LastIndex(d, "/")+1:] // "https://schema.org/Monday"
			if wd, ok := model.ParseWeekday(d); ok {
				days = append(days, wd)
			}
		}
		if !okO || !okC {
			continue
		}
		h = addHours(h, days, []model.TimeRange{{Open: open, Close: closing}})
	}
	// "Mo-Fr 09:00-17:00" shorthand.
	for _, line := range stringList(obj["openingHours"]) {
		dayPart, timePart, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		ranges, ok := parseRanges(timePart)
		if !ok {
			continue
		}
		h = addHours(h, parseDays(dayPart), ranges)
	}
	return h
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			return str(t[0])
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Split(t, ",")
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s := str(x); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func imageList(v any) []string {
	var out []string
	for _, item := range normalizeJSONLDItems(v) {
		if m, ok := item.(map[string]any); ok {
			if u := str(m["url"]); u != "" {
				out = append(out, u)
			}
		}
	}
	if s, ok := v.(string); ok && s != "" {
		out = append(out, s)
	}
	if arr, ok := v.([]any); ok {
		for _, x := range arr {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
