package normalize

import (
	"net/mail"
	"net/url"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// phone parses s in region and returns E.164, or "" when invalid.
func (n *normalizer) phone(s, region string) string {
	s = clean(s)
	if s == "" {
		return ""
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		n.degrade("phone", "invalid number %q for region %s", s, region)
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func (n *normalizer) email(s string) string {
	s = strings.TrimPrefix(clean(s), "mailto:")
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		n.degrade("email", "unparseable address %q", s)
		return ""
	}
	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || !strings.Contains(strings.Trim(domain, "."), ".") {
		n.degrade("email", "address %q has no valid domain", s)
		return ""
	}
	return local + "@" + strings.ToLower(domain)
}

// website returns an absolute http(s) URL. Scheme-less hosts get https and
// directory redirect links are unwrapped to their target.
func (n *normalizer) website(s string) string {
	s = clean(s)
	if s == "" {
		return ""
	}
	if target := unwrapRedirect(s); target != "" {
		s = target
	}
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "/") && strings.Contains(s, ".") && !strings.Contains(s, " ") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || !strings.Contains(u.Host, ".") {
		n.degrade("website", "not an absolute http(s) url %q", s)
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// unwrapRedirect extracts the target of "/biz_redir?url=..." style links.
func unwrapRedirect(s string) string {
	u, err := url.Parse(s)
	if err != nil || !strings.Contains(u.Path, "redir") {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("url"))
}

// regionFor maps a stored country name to its phone numbering region.
// Unknown countries give "", which only accepts numbers in international
// format.
func regionFor(country string) string {
	switch country {
	case "Canada":
		return "CA"
	case "USA":
		return "US"
	}
	return ""
}

// countryName maps country codes and spellings to the stored names.
func countryName(s string) string {
	switch strings.ToLower(strings.Trim(s, ".")) {
	case "ca", "can", "canada":
		return "Canada"
	case "us", "usa", "u.s.a", "u.s", "united states", "united states of america":
		return "USA"
	}
	return s
}
