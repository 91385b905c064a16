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

const yellowPagesBaseURL = "https://www.yellowpages.com"

var (
	ypMipIDRe  = regexp.MustCompile(`/mip/[^/?#]*?-(\d+)(?:[/?#]|$)`)
	ypCountRe  = regexp.MustCompile(`[\d,]+`)
	ypStarWord = map[string]float64{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5}
)

// YellowPages scrapes www.yellowpages.com. Its markup is server-rendered so
// raw HTTP bodies are enough.
type YellowPages struct {
	baseURL string
}

// NewYellowPages creates the YellowPages adapter.
func NewYellowPages() *YellowPages {
	return &YellowPages{baseURL: yellowPagesBaseURL}
}

// SourceName implements Adapter.
func (y *YellowPages) SourceName() model.Source { return model.SourceYellowPages }

// BuildSearchRequest implements Adapter.
func (y *YellowPages) BuildSearchRequest(q Query, page int) fetch.Request {
	v := url.Values{}
	v.Set("search_terms", q.Category)
	v.Set("geo_location_terms", q.Location)
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	return fetch.Request{
		URL:     y.baseURL + "/search?" + v.Encode(),
		SiteID:  model.SourceYellowPages.String(),
		Headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	}
}

// BuildDetailRequest implements DetailRequester.
func (y *YellowPages) BuildDetailRequest(ref DetailRef) fetch.Request {
	return fetch.Request{
		URL:     ref.URL,
		SiteID:  model.SourceYellowPages.String(),
		Headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	}
}

// ParseListingPage implements Adapter.
func (y *YellowPages) ParseListingPage(p *fetch.Page) ([]DetailRef, bool, error) {
	doc, err := parseDocument(model.SourceYellowPages, p)
	if err != nil {
		return nil, false, err
	}
	results := doc.Find("div.search-results").First()
	if results.Length() == 0 {
		return nil, false, &ParseError{Source: model.SourceYellowPages, URL: p.URL, Reason: "search results container not found"}
	}

	var refs []DetailRef
	seen := make(map[string]bool)
	results.Find("div.result").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.business-name").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
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
	hasNext := doc.Find(".pagination a.next").Length() > 0
	return refs, hasNext, nil
}

func (y *YellowPages) parseCard(card, link *goquery.Selection, detailURL string) *model.RawExtraction {
	id, _ := card.Attr("data-ypid")
	if id == "" {
		id, _ = card.Find("[data-ypid]").First().Attr("data-ypid")
	}
	if id == "" {
		id = ypSourceID(detailURL)
	}
	raw := &model.RawExtraction{
		SourceURL:  detailURL,
		SourceID:   id,
		Name:       text(link),
		Phone:      text(card.Find(".phones").First()),
		Address:    text(card.Find(".street-address").First()),
		Country:    "USA",
		Categories: collect(card.Find(".categories a"), 0),
	}
	if raw.Name == "" {
		raw.Name = text(card.Find("h2"))
	}
	raw.City, raw.State, raw.PostalCode = splitLocality(text(card.Find(".locality").First()))
	if href, ok := card.Find("a.track-visit-website").Attr("href"); ok {
		raw.Website = href
	}
	raw.Rating = ypRating(card.Find(".result-rating").First())
	if m := ypCountRe.FindString(text(card.Find(".result-rating + .count, .ratings .count").First())); m != "" {
		raw.ReviewCount = strings.ReplaceAll(m, ",", "")
	}
	if src, ok := card.Find(".media-thumbnail img[src]").Attr("src"); ok {
		raw.Images = []string{src}
	}
	return raw
}

// ParseDetailPage implements Adapter.
func (y *YellowPages) ParseDetailPage(p *fetch.Page, ref DetailRef) (*model.RawExtraction, error) {
	doc, err := parseDocument(model.SourceYellowPages, p)
	if err != nil {
		return nil, err
	}
	header := doc.Find("#main-header").First()
	nameSel := doc.Find("h1.business-name").First()
	if nameSel.Length() == 0 {
		nameSel = header.Find("h1").First()
	}
	name := text(nameSel)
	if name == "" {
		return nil, &ParseError{Source: model.SourceYellowPages, URL: p.URL, Reason: "business header not found"}
	}

	pageURL := ref.URL
	if pageURL == "" {
		pageURL = p.URL
	}
	// The listing id wins; related-business cards on the page carry their
	// own data-ypid.
	id := ref.SourceID
	if id == "" {
		id, _ = header.Attr("data-ypid")
	}
	if id == "" {
		id = ypSourceID(pageURL)
	}

	raw := &model.RawExtraction{
		SourceURL:   absURL(y.baseURL, pageURL, true),
		SourceID:    id,
		Name:        name,
		Country:     "USA",
		Description: text(doc.Find("dd.general-info").First()),
		Categories:  collect(doc.Find(".categories a"), 0),
		Amenities:   collect(doc.Find(".amenities-info span"), 0),
	}

	phone := doc.Find("a.phone").First()
	if phone.Length() == 0 {
		phone = doc.Find(".phone").First()
	}
	if href, ok := phone.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
		raw.Phone = strings.TrimPrefix(href, "tel:")
	} else {
		raw.Phone = text(phone)
	}

	addr := doc.Find(".address").First()
	if parts := collect(addr.Children(), 0); len(parts) > 1 {
		raw.Address = strings.Join(parts, ", ")
	} else {
		raw.Address = text(addr)
	}
	if href, ok := doc.Find("a.website-link").First().Attr("href"); ok {
		raw.Website = href
	}
	if href, ok := doc.Find("a.email-business").First().Attr("href"); ok {
		raw.Email = strings.TrimPrefix(href, "mailto:")
	}

	doc.Find(".open-details table tr").Each(func(_ int, row *goquery.Selection) {
		days := parseDays(text(row.Find("th").First()))
		ranges, ok := parseRanges(text(row.Find("td").First()))
		if ok {
			raw.Hours = addHours(raw.Hours, days, ranges)
		}
	})

	doc.Find("#gallery img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("data-src")
		if src == "" {
			src, _ = img.Attr("src")
		}
		if src = absURL(y.baseURL, src, false); src != "" {
			raw.Images = append(raw.Images, src)
		}
	})

	if ld := extractLocalBusiness(doc); ld != nil {
		ld.Name = ""
		raw.FillFrom(ld)
	}
	raw.FillFrom(ref.Preview)
	return raw, nil
}

// ypRating reads star ratings encoded as class words ("four half").
func ypRating(s *goquery.Selection) string {
	class, ok := s.Attr("class")
	if !ok {
		return ""
	}
	var stars float64
	for _, w := range strings.Fields(class) {
		if v, ok := ypStarWord[w]; ok {
			stars = v
		}
	}
	if stars == 0 {
		return ""
	}
	if strings.Contains(" "+class+" ", " half ") {
		stars += 0.5
	}
	return strconv.FormatFloat(stars, 'f', -1, 64)
}

// splitLocality splits "Austin, TX 78701" into its parts.
func splitLocality(s string) (city, state, postal string) {
	city, rest, ok := strings.Cut(s, ",")
	if !ok {
		return strings.TrimSpace(s), "", ""
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		state = fields[0]
	}
	if len(fields) > 1 {
		postal = strings.Join(fields[1:], " ")
	}
	return strings.TrimSpace(city), state, postal
}

func ypSourceID(u string) string {
	if m := ypMipIDRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
