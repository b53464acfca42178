package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/fitsci/curator/pkg/resilience"
	"github.com/fitsci/curator/pkg/timeutil"
)

// Feed describes one journal or blog feed to poll.
type Feed struct {
	ID         string
	Name       string
	URL        string
	Categories []string
}

// DefaultFeeds returns the exercise-science journals and practical fitness
// sources polled by default. Some LWW journals block direct RSS access and
// are covered through PubMed instead.
func DefaultFeeds() []Feed {
	return []Feed{
		{"frontiers_sports", "Frontiers in Sports and Active Living", "https://www.frontiersin.org/journals/sports-and-active-living/rss", []string{"sports_science", "exercise", "research"}},
		{"jissn", "Journal of ISSN", "https://jissn.biomedcentral.com/articles/most-recent/rss.xml", []string{"nutrition", "supplements", "research"}},
		{"ejp", "European Journal of Physiology", "https://link.springer.com/search.rss?facet-content-type=Article&facet-journal-id=424&channel-name=Pfl%C3%BCgers%20Archiv%20-%20European%20Journal%20of%20Physiology", []string{"physiology", "research"}},
		{"jappl", "Journal of Applied Physiology", "https://www.physiology.org/action/showFeed?type=etoc&feed=rss&jc=jappl", []string{"physiology", "research"}},
		{"sports_medicine", "Sports Medicine", "https://link.springer.com/search.rss?facet-content-type=Article&facet-journal-id=40279&channel-name=Sports%20Medicine", []string{"sports_medicine", "research"}},
		{"bjsm", "British Journal of Sports Medicine", "https://bjsm.bmj.com/rss/current.xml", []string{"sports_medicine", "injury", "research"}},
		{"sbs", "Stronger By Science", "https://www.strongerbyscience.com/feed/", []string{"strength", "hypertrophy", "programming"}},
		{"examine", "Examine.com", "https://examine.com/blog/feed/", []string{"nutrition", "supplements"}},
		{"menno", "Menno Henselmans", "https://mennohenselmans.com/feed/", []string{"hypertrophy", "nutrition"}},
		{"weightology", "Weightology", "https://weightology.net/feed/", []string{"strength", "nutrition", "research"}},
		{"jeff_nippard_yt", "Jeff Nippard (YouTube)", "https://www.youtube.com/feeds/videos.xml?channel_id=UC68TLK0mAEzUyHx5x5k-S1Q", []string{"hypertrophy", "technique", "research"}},
		{"renaissance_yt", "Renaissance Periodization (YouTube)", "https://www.youtube.com/feeds/videos.xml?channel_id=UCfQgsKhHjSyRLOp9mnffqVg", []string{"programming", "hypertrophy", "nutrition"}},
		{"precision_nutrition", "Precision Nutrition", "https://www.precisionnutrition.com/feed/", []string{"nutrition", "coaching"}},
	}
}

var (
	doiPattern  = regexp.MustCompile(`10\.\d{4,}/[^\s<>"]+`)
	htmlTagExpr = regexp.MustCompile(`<[^>]+>`)
)

// RSSConfig holds feed polling settings.
type RSSConfig struct {
	Feeds             []Feed
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
	Breaker           resilience.BreakerConfig
}

// RSSClient polls RSS 2.0, RSS 1.0 (RDF) and Atom feeds.
type RSSClient struct {
	feeds   []Feed
	fetcher *fetcher
	logger  *slog.Logger
}

// NewRSSClient creates a feed poller. Without explicit feeds the default set
// is used.
func NewRSSClient(cfg RSSConfig, dlq *resilience.DeadLetterQueue, budget *resilience.Budget) *RSSClient {
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = DefaultFeeds()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	retrier := resilience.NewHandler(cfg.Retry, budget, dlq)
	return &RSSClient{
		feeds:   cfg.Feeds,
		fetcher: newFetcher("rss", cfg.RequestsPerSecond, retrier, cfg.Breaker),
		logger:  slog.Default().With("component", "rss"),
	}
}

// Feeds returns the configured feed set.
func (c *RSSClient) Feeds() []Feed { return c.feeds }

// FetchAll polls every feed and returns articles published within the
// look-back window. Articles without a parseable date are kept. A failing
// feed is logged and skipped.
func (c *RSSClient) FetchAll(ctx context.Context, daysBack int) ([]Article, error) {
	cutoff := time.Now().AddDate(0, 0, -daysBack)

	var all []Article
	for _, feed := range c.feeds {
		body, err := c.fetcher.getWithRetry(ctx, "rss-"+feed.ID, feed.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn("Feed fetch failed", "feed", feed.Name, "error", err)
			continue
		}

		articles, err := ParseFeed(body, feed)
		if err != nil {
			c.logger.Warn("Feed parse failed", "feed", feed.Name, "error", err)
			continue
		}

		kept := 0
		for _, a := range articles {
			if a.PublicationDate == nil || !a.PublicationDate.Before(cutoff) {
				all = append(all, a)
				kept++
			}
		}
		c.logger.Debug("Feed processed", "feed", feed.Name, "articles", kept)
	}
	return all, nil
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	DCDate      string   `xml:"http://purl.org/dc/elements/1.1/ date"`
	Creators    []string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Author      string   `xml:"author"`
	Categories  []string `xml:"category"`
	GUID        struct {
		IsPermaLink string `xml:"isPermaLink,attr"`
		Value       string `xml:",chardata"`
	} `xml:"guid"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Links   []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Published  string `xml:"published"`
	Updated    string `xml:"updated"`
	Authors    []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// ParseFeed parses RSS 2.0, Atom or RDF feed XML into articles. Items
// without a title are dropped.
func ParseFeed(data []byte, feed Feed) ([]Article, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty feed content")
	}

	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feed from %s: %w", feed.Name, err)
	}

	switch root {
	case "rss":
		var doc struct {
			Items []rssItem `xml:"channel>item"`
		}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing RSS 2.0 feed: %w", err)
		}
		return rssArticles(doc.Items, feed), nil
	case "RDF":
		var doc struct {
			Items []rssItem `xml:"item"`
		}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing RDF feed: %w", err)
		}
		return rssArticles(doc.Items, feed), nil
	case "feed":
		var doc struct {
			Entries []atomEntry `xml:"entry"`
		}
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing Atom feed: %w", err)
		}
		return atomArticles(doc.Entries, feed), nil
	default:
		return nil, fmt.Errorf("unrecognized feed root element %q", root)
	}
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func rssArticles(items []rssItem, feed Feed) []Article {
	var out []Article
	for _, item := range items {
		title := cleanText(item.Title)
		if title == "" {
			continue
		}

		link := strings.TrimSpace(item.Link)
		if link == "" && item.GUID.Value != "" && !strings.EqualFold(item.GUID.IsPermaLink, "false") {
			link = strings.TrimSpace(item.GUID.Value)
		}

		a := Article{
			Title:      title,
			SourceType: "rss_feed",
			Journal:    &feed.Name,
			Categories: mergeCategories(feed.Categories, item.Categories),
		}
		if link != "" {
			a.URL = &link
		}
		if desc := cleanText(item.Description); desc != "" {
			a.Abstract = &desc
		}
		if date := firstParsedDate(item.PubDate, item.DCDate); date != nil {
			a.PublicationDate = date
		}
		a.Authors = append(a.Authors, item.Creators...)
		if len(a.Authors) == 0 && item.Author != "" {
			a.Authors = append(a.Authors, item.Author)
		}
		if doi := extractDOI(link, item.Description); doi != "" {
			a.DOI = &doi
		}
		out = append(out, a)
	}
	return out
}

func atomArticles(entries []atomEntry, feed Feed) []Article {
	var out []Article
	for _, entry := range entries {
		title := cleanText(entry.Title)
		if title == "" {
			continue
		}

		link := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0].Href
		}

		a := Article{
			Title:      title,
			SourceType: "rss_feed",
			Journal:    &feed.Name,
			Categories: feed.Categories,
		}
		if link != "" {
			a.URL = &link
		}
		summary := entry.Summary
		if summary == "" {
			summary = entry.Content
		}
		if desc := cleanText(summary); desc != "" {
			a.Abstract = &desc
		}
		if date := firstParsedDate(entry.Published, entry.Updated); date != nil {
			a.PublicationDate = date
		}
		for _, au := range entry.Authors {
			if au.Name != "" {
				a.Authors = append(a.Authors, au.Name)
			}
		}
		terms := make([]string, 0, len(entry.Categories))
		for _, cat := range entry.Categories {
			if cat.Term != "" {
				terms = append(terms, cat.Term)
			}
		}
		a.Categories = mergeCategories(feed.Categories, terms)
		if doi := extractDOI(link, summary); doi != "" {
			a.DOI = &doi
		}
		out = append(out, a)
	}
	return out
}

// cleanText unescapes HTML entities and strips markup from feed text.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	s = htmlTagExpr.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func firstParsedDate(candidates ...string) *time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, ok := timeutil.ParseDate(c); ok {
			return &t
		}
	}
	return nil
}

func extractDOI(link, description string) string {
	if m := doiPattern.FindString(link); m != "" {
		return m
	}
	return doiPattern.FindString(description)
}

func mergeCategories(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, c := range append(append([]string{}, base...), extra...) {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
