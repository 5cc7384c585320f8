// Package location normalizes raw (city, state, country) triples from the
// chapter sheet into display strings and lookup keys.
package location

import "strings"

var usStateAbbrev = map[string]string{
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

// abbrevToFull covers US states and Canadian provinces, lower-cased.
var abbrevToFull = map[string]string{
	"bc": "british columbia", "ab": "alberta", "mb": "manitoba",
	"nb": "new brunswick", "nl": "newfoundland", "ns": "nova scotia",
	"on": "ontario", "pe": "prince edward island", "qc": "quebec", "sk": "saskatchewan",
}

var countryNames = map[string]string{
	"AUS": "Australia",
	"MEX": "Mexico",
	"NZ":  "New Zealand",
	"CAN": "Canada",
}

// countryAliases folds the spellings seen in the sheet onto one code.
var countryAliases = map[string]string{
	"USA": "USA", "US": "USA", "UNITED STATES": "USA",
	"CAN": "CAN", "CA": "CAN", "CANADA": "CAN",
	"AUS": "AUS", "AU": "AUS", "AUSTRALIA": "AUS",
	"NZ": "NZ", "NEW ZEALAND": "NZ",
	"MEX": "MEX", "MX": "MEX", "MEXICO": "MEX",
}

func init() {
	for full, abbr := range usStateAbbrev {
		abbrevToFull[strings.ToLower(abbr)] = full
	}
}

// Format returns the canonical display string for a chapter:
// "Tempe, AZ" for US chapters, "Calgary, Alberta" for non-US chapters with a
// state, "Auckland, New Zealand" otherwise.
func Format(city, state, country string) string {
	city = strings.TrimSpace(city)
	state = strings.TrimSpace(state)
	country = strings.ToUpper(strings.TrimSpace(country))

	if IsUS(country) {
		if state == "" {
			return city
		}
		return city + ", " + StateAbbrev(state)
	}
	if state != "" {
		return city + ", " + state
	}
	if name, ok := countryNames[country]; ok {
		return city + ", " + name
	}
	return city + ", " + country
}

// IsUS reports whether the country field denotes the United States.
func IsUS(country string) bool {
	return NormalizeCountry(country) == "USA"
}

// StateAbbrev returns the two-letter code for a US state given either its
// full name or an abbreviation in any case. Unknown values pass through.
func StateAbbrev(state string) string {
	s := strings.TrimSpace(state)
	lower := strings.ToLower(s)
	if abbr, ok := usStateAbbrev[lower]; ok {
		return abbr
	}
	if full, ok := abbrevToFull[lower]; ok {
		if abbr, ok := usStateAbbrev[full]; ok {
			return abbr
		}
	}
	return s
}

// NormalizeState maps an abbreviation to its lower-cased full name so "AZ"
// and "Arizona" compare equal.
func NormalizeState(state string) string {
	lower := strings.ToLower(strings.TrimSpace(state))
	if full, ok := abbrevToFull[lower]; ok {
		return full
	}
	return lower
}

// NormalizeCountry returns the canonical upper-case country code. Unknown
// countries are upper-cased and returned as-is.
func NormalizeCountry(country string) string {
	upper := strings.ToUpper(strings.TrimSpace(country))
	if code, ok := countryAliases[upper]; ok {
		return code
	}
	return upper
}

// Key is the dedup key for a location, stable across abbreviation and
// casing differences: "tempe|arizona|usa".
func Key(city, state, country string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" +
		NormalizeState(state) + "|" +
		strings.ToLower(NormalizeCountry(country))
}
