package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cac-scouting/scout-engine/pkg/models"
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	tagPattern = regexp.MustCompile(`<[^>]+>`)
	nonNumeric = regexp.MustCompile(`[^\d.]`)
	nonDigit   = regexp.MustCompile(`\D`)
	statsTitle = regexp.MustCompile(`Estadísticas\s+(.+?),`)
	bornOn     = regexp.MustCompile(`(?i)Nacido el\s+(\d{1,2})\s+([A-Za-záéíóúñÁÉÍÓÚÑ]+)\s+(\d{4})`)
	imgSize    = regexp.MustCompile(`size=\d+x`)
	imgLossy   = regexp.MustCompile(`lossy=\d`)
)

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

// clean strips tags and collapses whitespace.
func clean(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func text(s *goquery.Selection) string {
	return clean(s.Text())
}

// number parses the digits and dots of s; nil when there are none.
func number(s string) *float64 {
	digits := nonNumeric.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// integer parses a count. Dots and commas are thousands separators here
// ("2.540" minutes), so every non-digit is dropped.
func integer(s string) *int {
	digits := nonDigit.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// digitsOnly returns s when it is a non-empty run of ASCII digits.
func digitsOnly(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// sanitizeName extracts a plausible player name from a page title or heading.
// It returns "" when the text is not a name.
func sanitizeName(s string) string {
	s = clean(s)
	if m := statsTitle.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, " | BeSoccer", ""))

	lower := strings.ToLower(s)
	for _, bad := range []string{"estadísticas", "trayectoria", "noticias", "besoccer"} {
		if strings.Contains(lower, bad) {
			return ""
		}
	}
	if n := len([]rune(s)); n < 2 || n > 60 {
		return ""
	}
	return s
}

// parseSpanishBirthDate reads "Nacido el 11 mayo 1988 en Sevilla" as 1988-05-11.
func parseSpanishBirthDate(s string) string {
	m := bornOn.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return ""
	}
	year, _ := strconv.Atoi(m[3])
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return "" // 31 junio and the like
	}
	return d.Format(models.DateLayout)
}

// upgradeImageURL asks the image CDN for a larger, lossless variant.
func upgradeImageURL(u string, size int) string {
	if u == "" || !strings.Contains(u, "cdn.resfu.com") {
		return u
	}
	want := "size=" + strconv.Itoa(size) + "x"
	if imgSize.MatchString(u) {
		u = imgSize.ReplaceAllString(u, want)
	} else {
		u += sep(u) + want
	}
	if imgLossy.MatchString(u) {
		u = imgLossy.ReplaceAllString(u, "lossy=0")
	} else {
		u += sep(u) + "lossy=0"
	}
	u = strings.ReplaceAll(u, "/small/", "/big/")
	return strings.ReplaceAll(u, "/medium/", "/big/")
}

func sep(u string) string {
	if strings.Contains(u, "?") {
		return "&"
	}
	return "?"
}

var positionAliases = map[string]string{
	"por": "Portero", "portero": "Portero", "gk": "Portero",
	"def": "Defensa", "defensa": "Defensa", "cb": "Defensa", "lb": "Defensa", "rb": "Defensa",
	"med": "Medio", "medio": "Medio", "cm": "Medio", "dm": "Medio", "am": "Medio",
	"del": "Delantero", "delantero": "Delantero", "fw": "Delantero", "st": "Delantero",
}

// MapPosition turns a site abbreviation into a position group.
// Unknown short labels are title-cased, anything else is "N/A".
func MapPosition(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "N/A"
	}
	if p, ok := positionAliases[s]; ok {
		return p
	}
	if len([]rune(s)) > 10 {
		return "N/A"
	}
	// Casers are stateful, so one per call.
	return cases.Title(language.Spanish).String(s)
}
