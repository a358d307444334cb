package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/models"
)

// MatchIDPrefix namespaces BeSoccer match ids in matches.external_id.
const MatchIDPrefix = "besoccer:"

var scorePattern = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)

// Fixture is one match listed on the livescore page for a day.
type Fixture struct {
	ExternalID string
	Date       string
	KickOff    string
	HomeTeam   string
	AwayTeam   string
	Status     string
	HomeScore  *int
	AwayScore  *int
	HomeCrest  string
	AwayCrest  string
	URL        string
}

// Match converts the fixture for MatchRepository.Upsert.
func (f *Fixture) Match() *models.Match {
	return &models.Match{
		ExternalID: f.ExternalID,
		HomeTeam:   f.HomeTeam,
		AwayTeam:   f.AwayTeam,
		MatchDate:  f.Date,
		KickOff:    f.KickOff,
		Status:     f.Status,
		HomeScore:  f.HomeScore,
		AwayScore:  f.AwayScore,
		HomeCrest:  f.HomeCrest,
		AwayCrest:  f.AwayCrest,
		SourceURL:  f.URL,
	}
}

// MatchIDFromURL returns the first path segment of eight or more digits.
func MatchIDFromURL(matchURL string) string {
	u, err := url.Parse(matchURL)
	if err != nil {
		return ""
	}
	for _, part := range strings.Split(u.Path, "/") {
		if _, ok := digitsOnly(part); ok && len(part) >= 8 {
			return part
		}
	}
	return ""
}

// MatchesByDate lists the fixtures of one day (YYYY-MM-DD).
// A day without matches returns an empty slice; a page without the match
// table is ErrUnrecognizedLayout.
func (c *Client) MatchesByDate(ctx context.Context, date string) ([]Fixture, error) {
	if !models.ValidDate(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	return cached(c.cache, "matches:"+date, func() ([]Fixture, error) {
		pageURL := c.buildURL("livescore", date)
		doc, err := c.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		table := doc.Find("div#tableMatches")
		if table.Length() == 0 {
			return nil, layoutError(pageURL, "no match table")
		}

		fixtures := []Fixture{}
		seen := make(map[string]bool)
		table.Find("a.match-link.match-home").Each(func(_ int, link *goquery.Selection) {
			f, ok := c.parseFixture(link, date)
			if !ok || seen[f.ExternalID] {
				return
			}
			seen[f.ExternalID] = true
			fixtures = append(fixtures, f)
		})

		c.logger.Info("Parsed livescore page",
			zap.String("date", date),
			zap.Int("matches", len(fixtures)))
		return fixtures, nil
	})
}

func (c *Client) parseFixture(link *goquery.Selection, date string) (Fixture, bool) {
	href, _ := link.Attr("href")
	if href == "" {
		return Fixture{}, false
	}
	full := c.absolute(href)
	id := MatchIDFromURL(full)
	if id == "" {
		return Fixture{}, false
	}

	box := link.Find("div.team-box").First()
	names := box.Find("div.team-name")
	if names.Length() < 2 {
		return Fixture{}, false
	}

	f := Fixture{
		ExternalID: MatchIDPrefix + id,
		Date:       date,
		HomeTeam:   text(names.Eq(0)),
		AwayTeam:   text(names.Eq(1)),
		Status:     models.MatchStatusScheduled,
		URL:        full,
	}
	if f.HomeTeam == "" || f.AwayTeam == "" {
		return Fixture{}, false
	}

	marker := box.Find("div.marker").First()
	if hour := marker.Find("p.match_hour").First(); hour.Length() > 0 {
		f.KickOff = text(hour)
	} else if m := scorePattern.FindStringSubmatch(text(marker.Find("span").First())); m != nil {
		home, _ := strconv.Atoi(m[1])
		away, _ := strconv.Atoi(m[2])
		f.HomeScore = &home
		f.AwayScore = &away
		f.Status = models.MatchStatusFinished
	}

	crests := box.Find("img.team-shield")
	f.HomeCrest, _ = crests.Eq(0).Attr("src")
	f.AwayCrest, _ = crests.Eq(1).Attr("src")
	return f, true
}
