package scraper

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/models"
)

// ExternalIDPrefix namespaces BeSoccer ids in players.external_id.
const ExternalIDPrefix = "besoccer:"

var trailingID = regexp.MustCompile(`-(\d+)$`)

// PlayerProfile is the bio and career read from a player page.
type PlayerProfile struct {
	Name            string
	ExternalID      string
	SourceURL       string
	BirthDate       string
	Age             *int
	Nationality     string
	HeightCM        *int
	WeightKG        *int
	Foot            string
	Position        string
	ShirtNumber     *int
	MarketValueKEUR *float64
	ELO             *int
	PhotoURL        string
	Career          []CareerLine
}

// CareerLine is one row of the career table. Competition is empty on the
// per-club season totals and set on the per-competition detail rows.
type CareerLine struct {
	Season      string
	Team        string
	Competition string
	Appearances *int
	Goals       *int
	Assists     *int
	YellowCards *int
	RedCards    *int
	Minutes     *int
	Age         *int
	ELO         *int
}

// Player converts the profile into a create_or_merge candidate.
func (p *PlayerProfile) Player() *models.Player {
	return &models.Player{
		Name:            p.Name,
		ExternalID:      p.ExternalID,
		SourceURL:       p.SourceURL,
		BirthDate:       p.BirthDate,
		Nationality:     p.Nationality,
		HeightCM:        p.HeightCM,
		WeightKG:        p.WeightKG,
		Foot:            p.Foot,
		Position:        p.Position,
		ShirtNumber:     p.ShirtNumber,
		MarketValueKEUR: p.MarketValueKEUR,
		ELO:             p.ELO,
		PhotoURL:        p.PhotoURL,
	}
}

// SeasonRecords converts the career table for AppendMany.
func (p *PlayerProfile) SeasonRecords() []*models.SeasonRecord {
	records := make([]*models.SeasonRecord, 0, len(p.Career))
	for _, c := range p.Career {
		if c.Season == "" {
			continue
		}
		records = append(records, &models.SeasonRecord{
			Season:      c.Season,
			Team:        c.Team,
			Competition: c.Competition,
			Appearances: c.Appearances,
			Goals:       c.Goals,
			Assists:     c.Assists,
			YellowCards: c.YellowCards,
			RedCards:    c.RedCards,
			Minutes:     c.Minutes,
			Age:         c.Age,
			ELO:         c.ELO,
			Source:      models.SeasonSourceScrape,
		})
	}
	return records
}

// ExternalIDFromURL extracts the numeric id at the end of a profile URL
// (".../jugador/s-miettinen-3161334"). It returns "" when there is none.
func ExternalIDFromURL(profileURL string) string {
	u, err := url.Parse(profileURL)
	if err != nil {
		return ""
	}
	last := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(last, "/"); i >= 0 {
		last = last[i+1:]
	}
	if m := trailingID.FindStringSubmatch(last); m != nil {
		return ExternalIDPrefix + m[1]
	}
	if _, ok := digitsOnly(last); ok {
		return ExternalIDPrefix + last
	}
	return ""
}

// FetchProfile reads a player page. A page without a usable name is
// ErrUnrecognizedLayout.
func (c *Client) FetchProfile(ctx context.Context, profileURL string) (*PlayerProfile, error) {
	profileURL = c.absolute(profileURL)
	return cached(c.cache, "profile:"+profileURL, func() (*PlayerProfile, error) {
		doc, err := c.fetchDocument(ctx, profileURL)
		if err != nil {
			return nil, err
		}
		profile, err := parseProfile(doc, profileURL)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Parsed player profile",
			zap.String("url", profileURL),
			zap.String("name", profile.Name),
			zap.Int("career_rows", len(profile.Career)))
		return profile, nil
	})
}

var flagNationalities = map[string]string{
	"es": "España", "ar": "Argentina", "fr": "Francia", "it": "Italia", "de": "Alemania",
	"pt": "Portugal", "br": "Brasil", "gb": "Inglaterra", "en": "Inglaterra", "nl": "Países Bajos",
	"uy": "Uruguay", "mx": "México", "cl": "Chile", "co": "Colombia", "pe": "Perú",
}

func meta(doc *goquery.Document, prop string) string {
	if v, ok := doc.Find(`meta[property="` + prop + `"]`).First().Attr("content"); ok && v != "" {
		return v
	}
	v, _ := doc.Find(`meta[name="` + prop + `"]`).First().Attr("content")
	return v
}

func parseProfile(doc *goquery.Document, profileURL string) (*PlayerProfile, error) {
	p := &PlayerProfile{
		SourceURL:  profileURL,
		ExternalID: ExternalIDFromURL(profileURL),
	}

	for _, candidate := range []string{
		meta(doc, "og:title"),
		doc.Find("h1").First().Text(),
		doc.Find(".breadcrumb li:last-child").First().Text(),
	} {
		if name := sanitizeName(candidate); name != "" {
			p.Name = name
			break
		}
	}
	if p.Name == "" {
		return nil, layoutError(profileURL, "no player name")
	}

	if src, ok := doc.Find(`.img-container img[src*="img_data/players"]`).First().Attr("src"); ok && src != "" {
		p.PhotoURL = upgradeImageURL(src, 500)
	} else if img := meta(doc, "og:image"); img != "" {
		p.PhotoURL = upgradeImageURL(img, 500)
	} else {
		p.PhotoURL = upgradeImageURL(meta(doc, "twitter:image"), 500)
	}

	doc.Find(".panel-body.stat-list .stat").Each(func(_ int, stat *goquery.Selection) {
		parseStatBlock(stat, p)
	})

	if p.Nationality == "" {
		if alt, ok := doc.Find(".img-container img.flag").First().Attr("alt"); ok {
			code := strings.ToLower(strings.TrimSpace(alt))
			if name, ok := flagNationalities[code]; ok {
				p.Nationality = name
			} else if code != "" {
				p.Nationality = strings.ToUpper(code)
			}
		}
	}

	doc.Find(".panel-body.table-list .table-body .table-row").Each(func(_ int, row *goquery.Selection) {
		key := text(row.Find("div").First())
		valSel := row.Find(".image-row").First()
		if valSel.Length() == 0 {
			valSel = row.ChildrenFiltered("div").Last()
		}
		val := text(valSel)
		if val == "" {
			return
		}
		switch {
		case strings.Contains(key, "Nacionalidad"):
			p.Nationality = val
		case strings.Contains(key, "País nacimiento") && p.Nationality == "":
			p.Nationality = val
		case strings.Contains(key, "Pie preferido"):
			p.Foot = val
		}
	})

	if bd := parseSpanishBirthDate(text(doc.Find(".panel-body.ta-c p").First())); bd != "" {
		p.BirthDate = bd
	}

	p.Career = parseCareer(doc)
	return p, nil
}

// parseStatBlock reads one tile of the header stat strip.
func parseStatBlock(stat *goquery.Selection, p *PlayerProfile) {
	big := text(stat.Find(".big-row").First())
	var smalls []string
	stat.Find(".small-row").Each(func(_ int, s *goquery.Selection) {
		smalls = append(smalls, strings.ToLower(text(s)))
	})
	small := ""
	if len(smalls) > 0 {
		small = smalls[0]
	}
	has := func(label string) bool {
		for _, s := range smalls {
			if s == label {
				return true
			}
		}
		return false
	}
	roundNumber := func() (int, bool) {
		return digitsOnly(text(stat.Find(".round-row span").First()))
	}

	switch small {
	case "años":
		p.Age = integer(big)
	case "kgs":
		p.WeightKG = integer(big)
	case "cms":
		p.HeightCM = integer(big)
	}

	if abbr := stat.Find(".round-row.bg-role span").First(); abbr.Length() > 0 {
		if pos := MapPosition(text(abbr)); pos != "N/A" {
			p.Position = pos
		}
	}

	if big != "" && (has("m.€") || has("k.€")) {
		if v := number(strings.ReplaceAll(big, ",", ".")); v != nil {
			keur := *v
			if has("m.€") {
				keur *= 1000
			}
			keur = math.Round(keur)
			p.MarketValueKEUR = &keur
		}
	}
	if has("elo") {
		if n, ok := roundNumber(); ok {
			p.ELO = &n
		}
	}
	if has("dorsal") {
		if n, ok := roundNumber(); ok {
			p.ShirtNumber = &n
		}
	}
}

// parseCareer reads the club/season table. Parent rows are per-club season
// totals; child rows break them down by competition.
func parseCareer(doc *goquery.Document) []CareerLine {
	var out []CareerLine
	var club, season string

	doc.Find(".team-result table.table_parents tbody tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		label := func(td *goquery.Selection) string {
			if span := td.Find("span").First(); span.Length() > 0 {
				if t := text(span); t != "" {
					return t
				}
			}
			return text(td)
		}

		var line CareerLine
		switch {
		case tr.HasClass("parent_row"):
			club = label(tds.Eq(0))
			season = text(tds.Eq(1))
		case tr.HasClass("parent_son"):
			line.Competition = label(tds.Eq(0))
		default:
			return
		}
		line.Season = season
		line.Team = club

		tab := func(name string) []string {
			var vals []string
			tds.Each(func(_ int, td *goquery.Selection) {
				if v, _ := td.Attr("data-content-tab"); v == name {
					vals = append(vals, text(td))
				}
			})
			return vals
		}
		// performance: PJ G A TA TR
		if v := tab("tprc1"); len(v) >= 5 {
			line.Appearances = integer(v[0])
			line.Goals = integer(v[1])
			line.Assists = integer(v[2])
			line.YellowCards = integer(v[3])
			line.RedCards = integer(v[4])
		}
		// participation: PJ PT PS MIN
		if v := tab("tptc1"); len(v) >= 4 {
			if n := integer(v[0]); n != nil {
				line.Appearances = n
			}
			line.Minutes = integer(v[3])
		}
		// condition: age, points, ELO
		if v := tab("tcdc1"); len(v) >= 3 {
			line.Age = integer(v[0])
			line.ELO = integer(v[2])
		}
		out = append(out, line)
	})
	return out
}
