package site

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/directory-crawler/internal/fetch"
	"github.com/sells-group/directory-crawler/internal/model"
)

const (
	yelpBaseURL  = "https://www.yelp.ca"
	yelpPageSize = 10
)

var (
	yelpBizIDRe       = regexp.MustCompile(`/biz/([^/?#]+)`)
	yelpStarRe        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*star`)
	yelpReviewCountRe = regexp.MustCompile(`(?i)\(?([\d,]+)\s*reviews?`)
	yelpNumberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	phoneCharsRe      = regexp.MustCompile(`\+?[\d(][\d\s\-().]{5,}\d`)
)

// Yelp scrapes www.yelp.ca. Pages are rendered in a browser because result
// cards are built client-side.
type Yelp struct {
	baseURL string
}

// NewYelp creates the Yelp adapter.
func NewYelp() *Yelp {
	return &Yelp{baseURL: yelpBaseURL}
}

// SourceName implements Adapter.
func (y *Yelp) SourceName() model.Source { return model.SourceYelp }

// BuildSearchRequest implements Adapter. Yelp pages by result offset.
func (y *Yelp) BuildSearchRequest(q Query, page int) fetch.Request {
	v := url.Values{}
	v.Set("find_desc", q.Category)
	v.Set("find_loc", q.Location)
	if page > 1 {
		v.Set("start", strconv.Itoa((page-1)*yelpPageSize))
	}
	return fetch.Request{
		URL:             y.baseURL + "/search?" + v.Encode(),
		Render:          true,
		WaitForSelector: "main#main-content",
		SiteID:          model.SourceYelp.String(),
	}
}

// BuildDetailRequest implements DetailRequester.
func (y *Yelp) BuildDetailRequest(ref DetailRef) fetch.Request {
	return fetch.Request{
		URL:             ref.URL,
		Render:          true,
		WaitForSelector: "h1",
		SiteID:          model.SourceYelp.String(),
	}
}

// ParseListingPage implements Adapter.
func (y *Yelp) ParseListingPage(p *fetch.Page) ([]DetailRef, bool, error) {
	doc, err := parseDocument(model.SourceYelp, p)
	if err != nil {
		return nil, false, err
	}
	main := doc.Find("main#main-content").First()
	if main.Length() == 0 {
		return nil, false, &ParseError{Source: model.SourceYelp, URL: p.URL, Reason: "search results container not found"}
	}

	var refs []DetailRef
	seen := make(map[string]bool)
	main.Find("li").Each(func(_ int, card *goquery.Selection) {
		link := card.Find(`h3 a[href*="/biz/"]`).First()
		if link.Length() == 0 {
			return // ads, filters and spacer items
		}
		href, _ := link.Attr("href")
		detailURL := absURL(y.baseURL, href, true)
		if detailURL == "" || seen[detailURL] {
			return
		}
		seen[detailURL] = true

		preview := y.parseCard(card, link, detailURL)
		refs = append(refs, DetailRef{URL: detailURL, SourceID: preview.SourceID, Preview: preview})
	})

	if len(refs) == 0 {
		return nil, false, nil
	}
	hasNext := main.Find(`[class*="pagination"] a.next-link`).Length() > 0 ||
		doc.Find(`a.next-link[href]`).Length() > 0
	return refs, hasNext, nil
}

func (y *Yelp) parseCard(card, link *goquery.Selection, detailURL string) *model.RawExtraction {
	raw := &model.RawExtraction{
		SourceURL: detailURL,
		SourceID:  yelpSourceID(detailURL),
		Name:      text(link),
		Country:   "Canada",
	}

	card.Find(`[role="img"][aria-label]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		if m := yelpStarRe.FindStringSubmatch(label); m != nil {
			raw.Rating = m[1]
			return false
		}
		return true
	})
	if m := yelpReviewCountRe.FindStringSubmatch(text(card.Find(`[data-traffic-crawl-id="SearchResultBizRating"]`))); m != nil {
		raw.ReviewCount = strings.ReplaceAll(m[1], ",", "")
	}
	if cats := collect(card.Find(`[data-testid="serp-ia-categories"] button, [data-testid="serp-ia-categories"] a`), 0); len(cats) > 0 {
		raw.Categories = []string{strings.Join(cats, ", ")}
	}
	raw.Address = text(card.Find("address").First())
	raw.Amenities = collect(card.Find(`[data-testid="tag"]`), 0)
	if src, ok := card.Find("img[src]").First().Attr("src"); ok && src != "" {
		raw.Images = []string{src}
	}
	return raw
}

// ParseDetailPage implements Adapter.
func (y *Yelp) ParseDetailPage(p *fetch.Page, ref DetailRef) (*model.RawExtraction, error) {
	doc, err := parseDocument(model.SourceYelp, p)
	if err != nil {
		return nil, err
	}
	name := text(doc.Find("h1").First())
	if name == "" {
		return nil, &ParseError{Source: model.SourceYelp, URL: p.URL, Reason: "business name not found"}
	}

	pageURL := ref.URL
	if pageURL == "" {
		pageURL = p.URL
	}
	raw := &model.RawExtraction{
		SourceURL: absURL(y.baseURL, pageURL, true),
		SourceID:  yelpSourceID(pageURL),
		Name:      name,
		Country:   "Canada",
	}

	ratingText := text(doc.Find(`[data-testid="rating"]`).First())
	if label, ok := doc.Find(`[data-testid="rating"] [aria-label], [data-testid="rating"][aria-label]`).First().Attr("aria-label"); ok {
		if m := yelpStarRe.FindStringSubmatch(label); m != nil {
			raw.Rating = m[1]
		}
	}
	if raw.Rating == "" {
		raw.Rating = yelpNumberRe.FindString(ratingText)
	}
	if m := yelpReviewCountRe.FindStringSubmatch(ratingText); m != nil {
		raw.ReviewCount = strings.ReplaceAll(m[1], ",", "")
	}

	var addrParts []string
	doc.Find("address p").Each(func(_ int, s *goquery.Selection) {
		if t := text(s); t != "" {
			addrParts = append(addrParts, t)
		}
	})
	raw.Address = strings.Join(addrParts, ", ")

	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !strings.Contains(strings.ToLower(class), "phone") {
			return true
		}
		if m := phoneCharsRe.FindString(text(s)); m != "" {
			raw.Phone = strings.TrimSpace(m)
			return false
		}
		return true
	})

	raw.Website = y.website(doc)
	if cats := collect(doc.Find(`a[href*="/search?find_desc="]`), 5); len(cats) > 0 {
		raw.Categories = []string{strings.Join(cats, ", ")}
	}

	if ld := extractLocalBusiness(doc); ld != nil {
		ld.Name = "" // the visible heading wins
		raw.FillFrom(ld)
	}
	raw.FillFrom(ref.Preview)
	return raw, nil
}

// website prefers Yelp's redirect link, which the normalizer unwraps, and
// falls back to the first absolute link that leaves yelp.
func (y *Yelp) website(doc *goquery.Document) string {
	if href, ok := doc.Find(`a[href*="/biz_redir?"]`).First().Attr("href"); ok {
		return absURL(y.baseURL, href, false)
	}
	var site string
	doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil || strings.Contains(u.Host, "yelp.") || strings.Contains(href, "/biz") {
			return true
		}
		site = href
		return false
	})
	return site
}

func yelpSourceID(u string) string {
	if m := yelpBizIDRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
