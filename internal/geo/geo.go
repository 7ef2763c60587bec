// Package geo resolves free-text locations to a canonical (city, country)
// pair so that spelling variants of the same place compare equal.
package geo

import (
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"regexp"
	"sort"
	"strings"
)

var cityAliases = map[string]string{
	"bengaluru":              "bangalore",
	"bangaluru":              "bangalore",
	"blr":                    "bangalore",
	"bombay":                 "mumbai",
	"gurgaon":                "gurugram",
	"madras":                 "chennai",
	"calcutta":               "kolkata",
	"new delhi":              "delhi",
	"delhi ncr":              "delhi",
	"ncr":                    "delhi",
	"poona":                  "pune",
	"trivandrum":             "thiruvananthapuram",
	"cochin":                 "kochi",
	"nyc":                    "new york",
	"new york city":          "new york",
	"sf":                     "san francisco",
	"san francisco bay area": "san francisco",
	"la":                     "los angeles",
	"st petersburg":          "saint petersburg",
	"st. petersburg":         "saint petersburg",
	"spb":                    "saint petersburg",
	"msk":                    "moscow",
	"москва":                 "moscow",
	"санкт-петербург":        "saint petersburg",
	"münchen":                "munich",
	"muenchen":               "munich",
	"köln":                   "cologne",
}

var countryAliases = map[string]string{
	"in":                       "india",
	"bharat":                   "india",
	"us":                       "united states",
	"usa":                      "united states",
	"u.s":                      "united states",
	"u.s.a":                    "united states",
	"united states of america": "united states",
	"america":                  "united states",
	"uk":                       "united kingdom",
	"u.k":                      "united kingdom",
	"great britain":            "united kingdom",
	"england":                  "united kingdom",
	"gb":                       "united kingdom",
	"de":                       "germany",
	"deutschland":              "germany",
	"fr":                       "france",
	"ru":                       "russia",
	"россия":                   "russia",
	"russian federation":       "russia",
	"uae":                      "united arab emirates",
	"nl":                       "netherlands",
	"the netherlands":          "netherlands",
	"holland":                  "netherlands",
}

var knownCountries = map[string]bool{
	"india": true, "united states": true, "united kingdom": true, "germany": true,
	"france": true, "russia": true, "canada": true, "australia": true,
	"singapore": true, "netherlands": true, "spain": true, "italy": true,
	"poland": true, "ireland": true, "japan": true, "united arab emirates": true,
	"kazakhstan": true, "brazil": true, "mexico": true, "sweden": true,
}

// cityCountry lets a bare city still resolve its country.
var cityCountry = map[string]string{
	"bangalore": "india", "mumbai": "india", "delhi": "india", "gurugram": "india",
	"noida": "india", "hyderabad": "india", "chennai": "india", "kolkata": "india",
	"pune": "india", "ahmedabad": "india", "kochi": "india", "thiruvananthapuram": "india",
	"new york": "united states", "san francisco": "united states", "seattle": "united states",
	"austin": "united states", "boston": "united states", "los angeles": "united states",
	"chicago": "united states", "london": "united kingdom", "manchester": "united kingdom",
	"berlin": "germany", "munich": "germany", "cologne": "germany", "hamburg": "germany",
	"paris": "france", "moscow": "russia", "saint petersburg": "russia",
	"toronto": "canada", "vancouver": "canada", "sydney": "australia", "melbourne": "australia",
	"amsterdam": "netherlands", "dublin": "ireland", "singapore": "singapore",
	"dubai": "united arab emirates", "almaty": "kazakhstan",
}

var (
	separators  = regexp.MustCompile(`[,/|;()\[\]]+|\s+-\s+`)
	spaces      = regexp.MustCompile(`\s+`)
	remoteWords = regexp.MustCompile(`(?i)\b(remote|anywhere|work from home|wfh)\b`)
)

// Place is a resolved location. Empty fields are unknown.
type Place struct {
	City    string
	Country string
	Remote  bool
	Tokens  []string
}

func (p Place) IsZero() bool {
	return p.City == "" && p.Country == "" && len(p.Tokens) == 0
}

// CanonicalCity maps a city spelling to its canonical name.
func CanonicalCity(name string) string {
	key := clean(name)
	if alias, ok := cityAliases[key]; ok {
		return alias
	}
	return key
}

// CanonicalCountry maps a country spelling to its canonical name.
func CanonicalCountry(name string) string {
	key := clean(name)
	if alias, ok := countryAliases[key]; ok {
		return alias
	}
	return key
}

// IsPlace reports whether the fragment names a known city, country or remote.
func IsPlace(fragment string) bool {
	key := clean(fragment)
	if key == "" {
		return false
	}
	if remoteWords.MatchString(key) {
		return true
	}
	if knownCountries[CanonicalCountry(key)] {
		return true
	}
	_, known := cityCountry[CanonicalCity(key)]
	return known
}

// Parse splits "City, State, Country" style text into a Place. The first
// recognised city wins; the country is taken from an explicit part or
// inferred from the city.
func Parse(location string) Place {
	var place Place
	if strings.TrimSpace(location) == "" {
		return place
	}
	place.Remote = remoteWords.MatchString(location)

	for _, part := range separators.Split(location, -1) {
		key := clean(part)
		if key == "" || remoteWords.MatchString(key) {
			continue
		}
		place.Tokens = append(place.Tokens, strings.Fields(key)...)

		if country := CanonicalCountry(key); knownCountries[country] {
			if place.Country == "" {
				place.Country = country
			}
			continue
		}
		city := CanonicalCity(key)
		if place.City == "" {
			if _, known := cityCountry[city]; known || place.Country == "" {
				place.City = city
			}
		}
	}

	if place.Country == "" && place.City != "" {
		place.Country = cityCountry[place.City]
	}
	return place
}

// Spellings lists the known spellings of a city, canonical name first.
func Spellings(city string) []string {
	canonical := CanonicalCity(city)
	if canonical == "" {
		return nil
	}
	spellings := []string{canonical}
	for alias, target := range cityAliases {
		if target == canonical && len(alias) > 3 {
			spellings = append(spellings, alias)
		}
	}
	sort.Strings(spellings[1:])
	return spellings
}

// SameCity compares two locations after alias resolution.
func SameCity(a, b string) bool {
	pa, pb := Parse(a), Parse(b)
	return pa.City != "" && pa.City == pb.City
}

// Tier classifies a job location relative to the user's declared location.
func Tier(jobLocation, userLocation string) models.LocationTier {
	user := Parse(userLocation)
	job := Parse(jobLocation)
	if user.City == "" && user.Country == "" {
		return models.TierOther
	}

	sameCity := user.City != "" && job.City == user.City
	sameCountry := user.Country != "" && job.Country == user.Country

	switch {
	case sameCity && sameCountry:
		return models.TierExact
	case sameCity:
		return models.TierCity
	case sameCountry:
		return models.TierCountry
	default:
		return models.TierOther
	}
}

func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;:-")
	return spaces.ReplaceAllString(s, " ")
}
