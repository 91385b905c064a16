package model

// RawExtraction is what an adapter pulls off a page before normalization.
// Every field is optional; numeric fields stay as text so the normalizer owns
// parsing and range checks.
type RawExtraction struct {
	SourceID  string
	SourceURL string

	Name        string
	Categories  []string
	Description string
	Rating      string
	ReviewCount string

	Phone   string
	Email   string
	Website string

	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Latitude   string
	Longitude  string

	Hours     WeeklyHours
	Amenities []string
	Images    []string
}

// FillFrom copies fields from o into r wherever r is empty. Used to merge
// listing-card previews into a detail extraction.
func (r *RawExtraction) FillFrom(o *RawExtraction) {
	if o == nil {
		return
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&r.SourceID, o.SourceID)
	fill(&r.SourceURL, o.SourceURL)
	fill(&r.Name, o.Name)
	fill(&r.Description, o.Description)
	fill(&r.Rating, o.Rating)
	fill(&r.ReviewCount, o.ReviewCount)
	fill(&r.Phone, o.Phone)
	fill(&r.Email, o.Email)
	fill(&r.Website, o.Website)
	fill(&r.Address, o.Address)
	fill(&r.City, o.City)
	fill(&r.State, o.State)
	fill(&r.PostalCode, o.PostalCode)
	fill(&r.Country, o.Country)
	if r.Latitude == "" && r.Longitude == "" {
		r.Latitude, r.Longitude = o.Latitude, o.Longitude
	}
	if len(r.Categories) == 0 {
		r.Categories = append([]string(nil), o.Categories...)
	}
	if len(r.Hours) == 0 && len(o.Hours) > 0 {
		r.Hours = o.Hours
	}
	if len(r.Amenities) == 0 {
		r.Amenities = append([]string(nil), o.Amenities...)
	}
	if len(r.Images) == 0 {
		r.Images = append([]string(nil), o.Images...)
	}
}
