package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/directory-crawler/internal/model"
)

// usStates maps lowercase state names to postal abbreviations.
var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

// caProvinces maps lowercase province and territory names to their codes.
var caProvinces = map[string]string{
	"alberta": "AB", "british columbia": "BC", "manitoba": "MB", "new brunswick": "NB",
	"newfoundland and labrador": "NL", "nova scotia": "NS", "ontario": "ON",
	"prince edward island": "PE", "quebec": "QC", "québec": "QC", "saskatchewan": "SK",
	"northwest territories": "NT", "nunavut": "NU", "yukon": "YT",
}

// knownCodes is every valid state or province abbreviation.
var knownCodes = func() map[string]bool {
	m := make(map[string]bool, len(usStates)+len(caProvinces))
	for _, c := range usStates {
		m[c] = true
	}
	for _, c := range caProvinces {
		m[c] = true
	}
	return m
}()

// caCodes is every Canadian province or territory abbreviation. None of
// them collide with a US state code.
var caCodes = func() map[string]bool {
	m := make(map[string]bool, len(caProvinces))
	for _, c := range caProvinces {
		m[c] = true
	}
	return m
}()

// trailingCountries are spelled-out country suffixes. Two-letter codes are
// left alone since "CA" is also California.
var trailingCountries = map[string]bool{
	"canada": true, "usa": true, "united states": true, "united states of america": true,
}

var (
	usZipRe    = regexp.MustCompile(`^(.*?)\s*(\d{5}(?:-\d{4})?)$`)
	caPostalRe = regexp.MustCompile(`(?i)^(.*?)\s*([A-Z]\d[A-Z])\s?(\d[A-Z]\d)$`)
)

// stateCode returns the abbreviation for a state or province given as a code
// or a full name, or "" when unknown.
func stateCode(s string) string {
	s = strings.TrimSpace(strings.Trim(s, "."))
	if s == "" {
		return ""
	}
	if up := strings.ToUpper(s); knownCodes[up] {
		return up
	}
	lower := strings.ToLower(s)
	if c, ok := usStates[lower]; ok {
		return c
	}
	return caProvinces[lower]
}

type addressParts struct {
	Street, City, State, Postal string
}

// parseAddress splits "street, city, ST 12345" and the Canadian
// "street, City, QC H3B 2Y5" forms. ok is false when the text does not end
// in a recognizable state or postal code.
func parseAddress(s string) (addressParts, bool) {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = clean(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 && trailingCountries[strings.ToLower(parts[len(parts)-1])] {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return addressParts{}, false
	}

	last := parts[len(parts)-1]
	var out addressParts
	statePart := last
	if m := caPostalRe.FindStringSubmatch(last); m != nil {
		statePart = m[1]
		out.Postal = strings.ToUpper(m[2] + " " + m[3])
	} else if m := usZipRe.FindStringSubmatch(last); m != nil {
		statePart = m[1]
		out.Postal = m[2]
	}
	out.State = stateCode(statePart)
	if out.State == "" {
		if out.Postal == "" {
			return addressParts{}, false
		}
		// "Montréal H3G 1H2" style: the state is missing, the rest is the city.
		out.City = statePart
		out.Street = strings.Join(parts[:len(parts)-1], ", ")
		return out, true
	}
	out.City = parts[len(parts)-2]
	out.Street = strings.Join(parts[:len(parts)-2], ", ")
	return out, true
}

// address fills City/State/PostalCode from the free-text address when they
// are missing, and upper-cases or maps the state.
func (n *normalizer) address(rec *model.BusinessRecord, raw model.RawExtraction) {
	rec.Address = clean(raw.Address)
	rec.City = clean(raw.City)
	rec.PostalCode = strings.ToUpper(clean(raw.PostalCode))
	rec.State = clean(raw.State)
	if rec.State != "" {
		if code := stateCode(rec.State); code != "" {
			rec.State = code
		}
	}

	if rec.Address == "" || (rec.City != "" && rec.State != "" && rec.PostalCode != "") {
		return
	}
	parsed, ok := parseAddress(rec.Address)
	if !ok {
		return
	}
	if rec.City == "" {
		rec.City = parsed.City
	}
	if rec.State == "" {
		rec.State = parsed.State
	}
	if rec.PostalCode == "" {
		rec.PostalCode = parsed.Postal
	}
	if parsed.Street != "" {
		rec.Address = parsed.Street
	}
}

// countryFromAddress infers the country from a normalized state code or
// postal code, or returns "" when neither identifies one.
func countryFromAddress(rec model.BusinessRecord) string {
	switch {
	case caCodes[rec.State]:
		return "Canada"
	case knownCodes[rec.State]:
		return "USA"
	case caPostalRe.MatchString(rec.PostalCode):
		return "Canada"
	case usZipRe.MatchString(rec.PostalCode):
		return "USA"
	}
	return ""
}
