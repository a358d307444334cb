package scraper

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/models"
)

// minStarters is the smallest side accepted as a published lineup.
const minStarters = 11

// Lineup is both squads of a match.
type Lineup struct {
	Home []LineupPlayer
	Away []LineupPlayer
}

// LineupPlayer is one listed player.
type LineupPlayer struct {
	Name        string
	ShirtNumber *int
	Position    string
	IsStarter   bool
	ImageURL    string
	ProfileURL  string
}

// Entries converts the lineup for MatchRepository.ReplaceLineup.
func (l *Lineup) Entries(matchID int64) []*models.LineupEntry {
	entries := make([]*models.LineupEntry, 0, len(l.Home)+len(l.Away))
	add := func(side string, players []LineupPlayer) {
		for _, p := range players {
			entries = append(entries, &models.LineupEntry{
				MatchID:     matchID,
				Side:        side,
				PlayerName:  p.Name,
				ShirtNumber: p.ShirtNumber,
				Position:    p.Position,
				IsStarter:   p.IsStarter,
				ProfileURL:  p.ProfileURL,
				ImageURL:    p.ImageURL,
			})
		}
	}
	add(models.SideHome, l.Home)
	add(models.SideAway, l.Away)
	return entries
}

// LineupURL returns the lineups page of a match page URL.
func LineupURL(matchURL string) string {
	if strings.HasSuffix(matchURL, "/alineaciones") {
		return matchURL
	}
	u, _, _ := strings.Cut(matchURL, "#")
	u, _, _ = strings.Cut(u, "?")
	return strings.TrimSuffix(u, "/") + "/alineaciones"
}

// FetchLineups reads the lineups of a match. Lineups that are not yet
// published, or list fewer than eleven players a side, are ErrUnrecognizedLayout.
func (c *Client) FetchLineups(ctx context.Context, matchURL string) (*Lineup, error) {
	pageURL := LineupURL(c.absolute(matchURL))
	return cached(c.cache, "lineup:"+pageURL, func() (*Lineup, error) {
		doc, err := c.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		lineup, err := c.parseLineup(doc, pageURL)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Parsed lineups",
			zap.String("url", pageURL),
			zap.Int("home", len(lineup.Home)),
			zap.Int("away", len(lineup.Away)))
		return lineup, nil
	})
}

type side int

const (
	sideUnknown side = iota
	sideHome
	sideAway
)

func sideOfClasses(s *goquery.Selection) side {
	switch {
	case s.HasClass("local"):
		return sideHome
	case s.HasClass("visitor"), s.HasClass("visitante"):
		return sideAway
	}
	return sideUnknown
}

// sideOf looks at up to five ancestors for the home/away marker class.
func sideOf(s *goquery.Selection) side {
	cur := s
	for i := 0; i < 5; i++ {
		cur = cur.Parent()
		if cur.Length() == 0 {
			break
		}
		if sd := sideOfClasses(cur); sd != sideUnknown {
			return sd
		}
	}
	return sideUnknown
}

func (c *Client) parseLineup(doc *goquery.Document, pageURL string) (*Lineup, error) {
	field := doc.Find("div.panel.panel-lineup").First()
	if field.Length() == 0 {
		return nil, layoutError(pageURL, "lineups not available")
	}
	lineup := &Lineup{}

	field.Find("div.player-wrapper").Each(func(_ int, wrapper *goquery.Selection) {
		p, ok := c.parseStarter(wrapper)
		if !ok {
			return
		}
		switch sideOf(wrapper) {
		case sideHome:
			lineup.Home = append(lineup.Home, p)
		case sideAway:
			lineup.Away = append(lineup.Away, p)
		default:
			if len(lineup.Home) <= len(lineup.Away) {
				lineup.Home = append(lineup.Home, p)
			} else {
				lineup.Away = append(lineup.Away, p)
			}
		}
	})

	doc.Find("div.panel.panel-bench a.col-bench").Each(func(_ int, link *goquery.Selection) {
		p, ok := c.parseSubstitute(link)
		if !ok {
			return
		}
		switch sideOfClasses(link) {
		case sideHome:
			lineup.Home = append(lineup.Home, p)
		case sideAway:
			lineup.Away = append(lineup.Away, p)
		default:
			if countBench(lineup.Home) <= countBench(lineup.Away) {
				lineup.Home = append(lineup.Home, p)
			} else {
				lineup.Away = append(lineup.Away, p)
			}
		}
	})

	if len(lineup.Home) < minStarters || len(lineup.Away) < minStarters {
		return nil, layoutError(pageURL, "incomplete lineups: %d vs %d", len(lineup.Home), len(lineup.Away))
	}
	return lineup, nil
}

func countBench(players []LineupPlayer) int {
	n := 0
	for _, p := range players {
		if !p.IsStarter {
			n++
		}
	}
	return n
}

// person is the schema.org JSON-LD block embedded per player.
type person struct {
	Type     string `json:"@type"`
	Name     string `json:"name"`
	JobTitle string `json:"jobtitle"`
	Image    string `json:"image"`
	URL      string `json:"url"`
}

func personOf(s *goquery.Selection) (person, bool) {
	var p person
	script := s.Find(`script[type="application/ld+json"]`).First()
	if script.Length() == 0 {
		return p, false
	}
	if err := json.Unmarshal([]byte(script.Text()), &p); err != nil || p.Type != "Person" {
		return person{}, false
	}
	return p, true
}

func (c *Client) profileHref(s *goquery.Selection) string {
	href, _ := s.Attr("href")
	if strings.Contains(href, "/jugador/") {
		return c.absolute(href)
	}
	return ""
}

func (c *Client) parseStarter(wrapper *goquery.Selection) (LineupPlayer, bool) {
	p := LineupPlayer{IsStarter: true, Position: "N/A"}

	link := wrapper.Find(`a[data-cy="fieldPlayer"]`).First()
	if link.Length() == 0 {
		link = wrapper.Find("a").First()
	}
	p.ProfileURL = c.profileHref(link)

	if ld, ok := personOf(wrapper); ok {
		p.Name = clean(ld.Name)
		p.Position = MapPosition(ld.JobTitle)
		p.ImageURL = ld.Image
		if ld.URL != "" {
			p.ProfileURL = c.absolute(ld.URL)
		}
	}
	if p.Name == "" && link.Length() > 0 {
		if nameDiv := link.Find("div.name.name-lineups").First(); nameDiv.Length() > 0 {
			p.Name = text(nameDiv)
		} else {
			p.Name = text(link)
		}
	}
	if p.Name == "" {
		return p, false
	}
	if p.Position == "N/A" {
		p.Position = rolePosition(wrapper)
	}
	p.ShirtNumber = shirtNumber(wrapper)
	return p, true
}

func (c *Client) parseSubstitute(link *goquery.Selection) (LineupPlayer, bool) {
	p := LineupPlayer{Position: "N/A", ProfileURL: c.profileHref(link)}

	if ld, ok := personOf(link); ok {
		p.Name = clean(ld.Name)
		if ld.JobTitle != "" {
			p.Position = MapPosition(ld.JobTitle)
		}
		p.ImageURL = ld.Image
		if ld.URL != "" {
			p.ProfileURL = c.absolute(ld.URL)
		}
	}
	if p.Name == "" {
		p.Name = text(link.Find("p.name").First())
	}
	if p.Name == "" {
		return p, false
	}
	if p.Position == "N/A" {
		p.Position = rolePosition(link)
	}
	p.ShirtNumber = shirtNumber(link)
	return p, true
}

// rolePosition reads the bench role badge ("12 DEF").
func rolePosition(s *goquery.Selection) string {
	badge := s.Find("div.role-box span.t-up").First()
	for _, word := range strings.Fields(badge.Text()) {
		if _, isNum := digitsOnly(word); isNum || len([]rune(word)) > 10 {
			continue
		}
		if pos := MapPosition(word); pos != "N/A" {
			return pos
		}
	}
	return "N/A"
}

func shirtNumber(s *goquery.Selection) *int {
	for _, sel := range []string{"div.name.num-lineups span.bold", "span.number.bold", "span.bold"} {
		var found *int
		s.Find(sel).EachWithBreak(func(_ int, span *goquery.Selection) bool {
			if n, ok := digitsOnly(span.Text()); ok {
				found = &n
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}
