package classify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/match"
)

var tldCountries = map[string]string{
	"de": "Germany", "fr": "France", "nl": "Netherlands",
	"ch": "Switzerland", "se": "Sweden", "dk": "Denmark",
	"no": "Norway", "fi": "Finland", "pl": "Poland",
	"es": "Spain", "it": "Italy", "pt": "Portugal",
	"at": "Austria", "be": "Belgium", "ie": "Ireland",
	"cz": "Czech Republic", "hu": "Hungary", "ro": "Romania",
	"bg": "Bulgaria", "hr": "Croatia", "si": "Slovenia",
	"sk": "Slovakia", "lt": "Lithuania", "lv": "Latvia",
	"ee": "Estonia", "lu": "Luxembourg", "is": "Iceland",
}

// CountryFromWebsite maps a European country-code domain to its country.
// It returns "" when the domain says nothing about location.
func CountryFromWebsite(website string) string {
	domain := match.ExtractDomain(website)
	if domain == "" {
		return ""
	}
	if strings.HasSuffix(domain, ".co.uk") || strings.HasSuffix(domain, ".org.uk") {
		return "UK"
	}
	tld := domain[strings.LastIndexByte(domain, '.')+1:]
	return tldCountries[tld]
}

// cities maps lower-case city names to their country.
var cities = map[string]string{
	"zurich": "Switzerland", "zürich": "Switzerland", "geneva": "Switzerland", "genève": "Switzerland",
	"basel": "Switzerland", "bern": "Switzerland", "lausanne": "Switzerland", "lugano": "Switzerland",
	"london": "UK", "edinburgh": "UK", "manchester": "UK", "cambridge": "UK", "oxford": "UK",
	"bristol": "UK", "glasgow": "UK", "birmingham": "UK", "leeds": "UK", "belfast": "UK", "cardiff": "UK",
	"berlin": "Germany", "munich": "Germany", "münchen": "Germany", "hamburg": "Germany",
	"frankfurt": "Germany", "cologne": "Germany", "köln": "Germany", "stuttgart": "Germany",
	"düsseldorf": "Germany", "leipzig": "Germany", "dresden": "Germany", "hannover": "Germany",
	"paris": "France", "lyon": "France", "marseille": "France", "toulouse": "France", "nice": "France",
	"bordeaux": "France", "lille": "France", "strasbourg": "France", "nantes": "France",
	"montpellier": "France", "grenoble": "France",
	"amsterdam": "Netherlands", "rotterdam": "Netherlands", "the hague": "Netherlands",
	"eindhoven": "Netherlands", "utrecht": "Netherlands", "delft": "Netherlands",
	"madrid": "Spain", "barcelona": "Spain", "valencia": "Spain", "seville": "Spain",
	"bilbao": "Spain", "málaga": "Spain",
	"rome": "Italy", "milan": "Italy", "milano": "Italy", "turin": "Italy", "torino": "Italy",
	"florence": "Italy", "bologna": "Italy", "naples": "Italy",
	"stockholm": "Sweden", "gothenburg": "Sweden", "malmö": "Sweden",
	"copenhagen": "Denmark", "aarhus": "Denmark",
	"oslo": "Norway", "bergen": "Norway", "trondheim": "Norway",
	"helsinki": "Finland", "espoo": "Finland", "tampere": "Finland", "reykjavik": "Iceland",
	"dublin": "Ireland", "cork": "Ireland", "galway": "Ireland",
	"lisbon": "Portugal", "porto": "Portugal", "braga": "Portugal",
	"warsaw": "Poland", "krakow": "Poland", "kraków": "Poland", "wroclaw": "Poland",
	"wrocław": "Poland", "gdansk": "Poland",
	"prague": "Czech Republic", "brno": "Czech Republic", "budapest": "Hungary",
	"bucharest": "Romania", "cluj": "Romania", "bratislava": "Slovakia",
	"vienna": "Austria", "wien": "Austria", "graz": "Austria",
	"zagreb": "Croatia", "ljubljana": "Slovenia", "sofia": "Bulgaria",
	"tallinn": "Estonia", "tartu": "Estonia", "riga": "Latvia", "vilnius": "Lithuania", "kaunas": "Lithuania",
	"brussels": "Belgium", "antwerp": "Belgium", "ghent": "Belgium", "leuven": "Belgium",
	"luxembourg": "Luxembourg",
	"athens": "Greece", "thessaloniki": "Greece", "istanbul": "Turkey", "ankara": "Turkey",
	"kyiv": "Ukraine", "lviv": "Ukraine", "belgrade": "Serbia", "minsk": "Belarus",
	"tbilisi": "Georgia", "yerevan": "Armenia",
}

// ambiguousCities are also common English words; they only match in
// title case ("Nice", not "nice").
var ambiguousCities = map[string]bool{"nice": true, "cork": true}

type cityPattern struct {
	city    string
	country string
	re      *regexp.Regexp
}

// cityPatterns are ordered longest name first so "the hague" wins over
// shorter overlaps, then alphabetically for determinism.
var cityPatterns = compileCities()

func compileCities() []cityPattern {
	names := make([]string, 0, len(cities))
	for name := range cities {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	out := make([]cityPattern, 0, len(names))
	for _, name := range names {
		pat := "(?i)" + regexp.QuoteMeta(name)
		if ambiguousCities[name] {
			pat = regexp.QuoteMeta(titleCase(name))
		}
		out = append(out, cityPattern{
			city:    name,
			country: cities[name],
			re:      regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + pat + `(?:$|[^\p{L}\p{N}])`),
		})
	}
	return out
}

// CityFromText finds the first known European city mentioned in text and
// returns it in title case with its country.
func CityFromText(text string) (city, country string) {
	if strings.TrimSpace(text) == "" {
		return "", ""
	}
	for _, p := range cityPatterns {
		if p.re.MatchString(text) {
			return titleCase(p.city), p.country
		}
	}
	return "", ""
}

// Locate resolves a company's geography and city. A city named in text
// wins; otherwise the website's country-code domain decides. Unresolved
// geography is company.GeographyUnknown.
func Locate(website, text string) (geography, city string) {
	if city, country := CityFromText(text); country != "" {
		return country, city
	}
	if country := CountryFromWebsite(website); country != "" {
		return country, ""
	}
	return company.GeographyUnknown, ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
