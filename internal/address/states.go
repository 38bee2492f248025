package address

import "strings"

// State pairs a USPS two-letter code with its lowercase full name.
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// The 50 states plus DC, the territories, and the military "states" USPS
// routes mail to.
var states = []State{
	{Code: "AL", Name: "alabama"},
	{Code: "AK", Name: "alaska"},
	{Code: "AS", Name: "american samoa"},
	{Code: "AZ", Name: "arizona"},
	{Code: "AR", Name: "arkansas"},
	{Code: "AA", Name: "armed forces americas"},
	{Code: "AE", Name: "armed forces europe"},
	{Code: "AP", Name: "armed forces pacific"},
	{Code: "CA", Name: "california"},
	{Code: "CO", Name: "colorado"},
	{Code: "CT", Name: "connecticut"},
	{Code: "DE", Name: "delaware"},
	{Code: "DC", Name: "district of columbia"},
	{Code: "FL", Name: "florida"},
	{Code: "GA", Name: "georgia"},
	{Code: "GU", Name: "guam"},
	{Code: "HI", Name: "hawaii"},
	{Code: "ID", Name: "idaho"},
	{Code: "IL", Name: "illinois"},
	{Code: "IN", Name: "indiana"},
	{Code: "IA", Name: "iowa"},
	{Code: "KS", Name: "kansas"},
	{Code: "KY", Name: "kentucky"},
	{Code: "LA", Name: "louisiana"},
	{Code: "ME", Name: "maine"},
	{Code: "MD", Name: "maryland"},
	{Code: "MA", Name: "massachusetts"},
	{Code: "MI", Name: "michigan"},
	{Code: "MN", Name: "minnesota"},
	{Code: "MS", Name: "mississippi"},
	{Code: "MO", Name: "missouri"},
	{Code: "MT", Name: "montana"},
	{Code: "NE", Name: "nebraska"},
	{Code: "NV", Name: "nevada"},
	{Code: "NH", Name: "new hampshire"},
	{Code: "NJ", Name: "new jersey"},
	{Code: "NM", Name: "new mexico"},
	{Code: "NY", Name: "new york"},
	{Code: "NC", Name: "north carolina"},
	{Code: "ND", Name: "north dakota"},
	{Code: "MP", Name: "northern mariana islands"},
	{Code: "OH", Name: "ohio"},
	{Code: "OK", Name: "oklahoma"},
	{Code: "OR", Name: "oregon"},
	{Code: "PA", Name: "pennsylvania"},
	{Code: "PR", Name: "puerto rico"},
	{Code: "RI", Name: "rhode island"},
	{Code: "SC", Name: "south carolina"},
	{Code: "SD", Name: "south dakota"},
	{Code: "TN", Name: "tennessee"},
	{Code: "TX", Name: "texas"},
	{Code: "UT", Name: "utah"},
	{Code: "VT", Name: "vermont"},
	{Code: "VI", Name: "virgin islands"},
	{Code: "VA", Name: "virginia"},
	{Code: "WA", Name: "washington"},
	{Code: "WV", Name: "west virginia"},
	{Code: "WI", Name: "wisconsin"},
	{Code: "WY", Name: "wyoming"},
}

// maxMatches bounds typeahead results so the UI never renders a full list.
const maxMatches = 5

// FindMatches returns up to five states matching the query, case-insensitive.
// A two-letter query that is an exact code returns just that state; any other
// query matches name substrings in table order.
func FindMatches(query string) []State {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if len(q) == 2 {
		for _, s := range states {
			if strings.ToLower(s.Code) == q {
				return []State{s}
			}
		}
	}

	var out []State
	for _, s := range states {
		if strings.Contains(s.Name, q) {
			out = append(out, s)
			if len(out) == maxMatches {
				break
			}
		}
	}
	return out
}

// StateCode resolves a state name or code to its two-letter code. The empty
// string means no exact match.
func StateCode(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ""
	}
	for _, s := range states {
		if strings.ToLower(s.Code) == q || s.Name == q {
			return s.Code
		}
	}
	return ""
}
