package agents

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitsci/curator/pkg/sources"
	"github.com/fitsci/curator/pkg/store"
)

// ResearchStore is the slice of the persistence contract the research agent
// consumes.
type ResearchStore interface {
	EnqueueCandidate(ctx context.Context, item *store.QueueItem) (bool, error)
	ListTrustedAuthors(ctx context.Context) ([]store.TrustedSource, error)
	ListTrustedJournals(ctx context.Context) ([]store.TrustedSource, error)
}

// PubMedSource is the biomedical index client used for broad and targeted
// searches.
type PubMedSource interface {
	SearchRecent(ctx context.Context, daysBack, maxPerTerm int) ([]sources.Article, error)
	SearchByJournal(ctx context.Context, journal string, daysBack, maxResults int, topicFilter string) ([]sources.Article, error)
	SearchByAuthor(ctx context.Context, author string, daysBack, maxResults int) ([]sources.Article, error)
}

// CrossRefSource is the DOI registry client.
type CrossRefSource interface {
	SearchRecent(ctx context.Context, daysBack, maxResults int) ([]sources.Article, error)
}

// FeedSource fetches the configured RSS/Atom feeds.
type FeedSource interface {
	FetchAll(ctx context.Context, daysBack int) ([]sources.Article, error)
}

// ScrapeSource scrapes the whitelisted fitness sites.
type ScrapeSource interface {
	ScrapeAll(ctx context.Context) ([]sources.Article, error)
}

// WebSearchSource is the LLM-backed web search.
type WebSearchSource interface {
	SearchResearch(ctx context.Context, maxResults int) ([]sources.Article, error)
}

// ResearchDeps wires the research agent. Optional sources are left nil when
// disabled.
type ResearchDeps struct {
	Store     ResearchStore
	PubMed    PubMedSource
	CrossRef  CrossRefSource
	Feeds     FeedSource
	Scraper   ScrapeSource
	WebSearch WebSearchSource

	DaysBack            int
	MaxResultsPerSource int
}

// ResearchAgent harvests candidate papers from every configured source,
// scores their priority, and enqueues them for extraction.
type ResearchAgent struct {
	*Base
	deps ResearchDeps

	trustedAuthors  map[string]int
	trustedJournals map[string]int
}

// NewResearchAgent creates the research agent.
func NewResearchAgent(deps ResearchDeps) *ResearchAgent {
	if deps.DaysBack <= 0 {
		deps.DaysBack = 7
	}
	if deps.MaxResultsPerSource <= 0 {
		deps.MaxResultsPerSource = 20
	}
	return &ResearchAgent{
		Base: NewBase("research"),
		deps: deps,
	}
}

// Process runs one harvest over all enabled sources. A failing source is
// logged and skipped; it never aborts its siblings.
func (a *ResearchAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	a.loadTrustedSources(ctx)

	type batch struct {
		name     string
		articles []sources.Article
	}

	var (
		mu      sync.Mutex
		batches []batch
	)
	collect := func(name string, fetch func(context.Context) ([]sources.Article, error)) func() error {
		return func() error {
			articles, ferr := fetch(ctx)
			if ferr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Error("Source search failed", "source", name, "error", ferr)
				return nil
			}
			mu.Lock()
			batches = append(batches, batch{name: name, articles: articles})
			mu.Unlock()
			return nil
		}
	}

	var g errgroup.Group
	if a.deps.PubMed != nil {
		g.Go(collect("pubmed", func(ctx context.Context) ([]sources.Article, error) {
			return a.deps.PubMed.SearchRecent(ctx, a.deps.DaysBack, a.deps.MaxResultsPerSource)
		}))
		if len(a.trustedJournals) > 0 {
			g.Go(collect("trusted_journals", a.searchTrustedJournals))
		}
		if len(a.trustedAuthors) > 0 {
			g.Go(collect("trusted_authors", a.searchTrustedAuthors))
		}
	}
	if a.deps.CrossRef != nil {
		g.Go(collect("crossref", func(ctx context.Context) ([]sources.Article, error) {
			return a.deps.CrossRef.SearchRecent(ctx, a.deps.DaysBack, a.deps.MaxResultsPerSource)
		}))
	}
	if a.deps.Feeds != nil {
		g.Go(collect("rss", func(ctx context.Context) ([]sources.Article, error) {
			return a.deps.Feeds.FetchAll(ctx, a.deps.DaysBack)
		}))
	}
	if a.deps.Scraper != nil {
		g.Go(collect("scraper", func(ctx context.Context) ([]sources.Article, error) {
			return a.deps.Scraper.ScrapeAll(ctx)
		}))
	}
	if a.deps.WebSearch != nil {
		g.Go(collect("perplexity", func(ctx context.Context) ([]sources.Article, error) {
			return a.deps.WebSearch.SearchResearch(ctx, a.deps.MaxResultsPerSource)
		}))
	}
	if gerr := g.Wait(); gerr != nil {
		return nil, gerr
	}

	res = Result{"total_added": 0}
	totalFound, totalAdded := 0, 0
	for _, b := range batches {
		added := a.enqueueBatch(ctx, b.articles)
		res[b.name] = Result{"found": len(b.articles), "added": added}
		totalFound += len(b.articles)
		totalAdded += added
	}
	res["total_added"] = totalAdded

	a.addStat("sources_found", totalFound)
	a.addStat("sources_added", totalAdded)
	a.logger.Info("Research search complete", "found", totalFound, "added", totalAdded)
	return res, nil
}

func (a *ResearchAgent) loadTrustedSources(ctx context.Context) {
	a.trustedAuthors = make(map[string]int)
	a.trustedJournals = make(map[string]int)

	if a.deps.Store == nil {
		return
	}
	authors, err := a.deps.Store.ListTrustedAuthors(ctx)
	if err != nil {
		a.logger.Warn("Failed to load trusted authors", "error", err)
	}
	for _, t := range authors {
		if name := normalizeAuthorName(t.Name); name != "" {
			a.trustedAuthors[name] = t.PriorityBoost
		}
	}
	journals, err := a.deps.Store.ListTrustedJournals(ctx)
	if err != nil {
		a.logger.Warn("Failed to load trusted journals", "error", err)
	}
	for _, t := range journals {
		if name := normalizeJournalName(t.Name); name != "" {
			a.trustedJournals[name] = t.PriorityBoost
		}
	}
}

// searchTrustedJournals runs targeted queries in the trusted journals with a
// doubled look-back window.
func (a *ResearchAgent) searchTrustedJournals(ctx context.Context) ([]sources.Article, error) {
	var all []sources.Article
	for _, journal := range firstN(sortedKeys(a.trustedJournals), 10) {
		articles, err := a.deps.PubMed.SearchByJournal(ctx, journal, a.deps.DaysBack*2, a.deps.MaxResultsPerSource, "")
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			a.logger.Warn("Trusted journal search failed", "journal", journal, "error", err)
			continue
		}
		all = append(all, articles...)
		if len(all) >= a.deps.MaxResultsPerSource {
			break
		}
	}
	return all, nil
}

// searchTrustedAuthors runs targeted queries for the trusted authors with a
// doubled look-back window.
func (a *ResearchAgent) searchTrustedAuthors(ctx context.Context) ([]sources.Article, error) {
	var all []sources.Article
	for _, author := range firstN(sortedKeys(a.trustedAuthors), 10) {
		articles, err := a.deps.PubMed.SearchByAuthor(ctx, author, a.deps.DaysBack*2, a.deps.MaxResultsPerSource)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			a.logger.Warn("Trusted author search failed", "author", author, "error", err)
			continue
		}
		all = append(all, articles...)
		if len(all) >= a.deps.MaxResultsPerSource {
			break
		}
	}
	return all, nil
}

func (a *ResearchAgent) enqueueBatch(ctx context.Context, articles []sources.Article) int {
	added := 0
	for i := range articles {
		art := &articles[i]
		if art.SourceType == store.SourcePubMed && !a.meetsCriteria(art) {
			continue
		}
		item := a.queueItemFor(art)
		inserted, err := a.deps.Store.EnqueueCandidate(ctx, item)
		if err != nil {
			a.logger.Error("Failed to enqueue candidate", "title", art.Title, "error", err)
			continue
		}
		if inserted {
			added++
		}
	}
	return added
}

// meetsCriteria applies the quality filter to index results: published in
// the last five years and carrying a usable abstract.
func (a *ResearchAgent) meetsCriteria(art *sources.Article) bool {
	if art.PublicationDate != nil && time.Since(*art.PublicationDate) > 5*365*24*time.Hour {
		return false
	}
	if art.Abstract == nil || len(*art.Abstract) < 100 {
		return false
	}
	return true
}

func (a *ResearchAgent) queueItemFor(art *sources.Article) *store.QueueItem {
	raw := map[string]any{}
	if art.Journal != nil {
		raw["journal"] = *art.Journal
	}
	if art.StudyDesign != nil {
		raw["study_type"] = *art.StudyDesign
	}
	if len(art.Categories) > 0 {
		raw["categories"] = art.Categories
	}
	if art.CitedByCount > 0 {
		raw["cited_by_count"] = art.CitedByCount
	}
	if art.PMID != "" {
		raw["pmid"] = art.PMID
	}
	if boost := a.authorBoost(art.Authors); boost > 0 {
		raw["author_boost"] = boost
	}
	if boost := a.journalBoost(art.Journal); boost > 0 {
		raw["journal_boost"] = boost
	}

	return &store.QueueItem{
		Title:           art.Title,
		Authors:         art.Authors,
		Abstract:        art.Abstract,
		DOI:             art.DOI,
		URL:             art.URL,
		PublicationDate: art.PublicationDate,
		SourceType:      art.SourceType,
		Status:          store.QueueStatusPending,
		Priority:        a.priorityFor(art),
		RawData:         raw,
	}
}

// priorityFor scores a candidate 1 (highest) to 10 (lowest).
func (a *ResearchAgent) priorityFor(art *sources.Article) int {
	switch art.SourceType {
	case store.SourceCrossRef:
		return a.crossrefPriority(art)
	case store.SourceRSSFeed:
		return 5
	case store.SourceWebScrape:
		return 6
	case store.SourcePerplexity:
		return 4
	default:
		return a.pubmedPriority(art)
	}
}

func (a *ResearchAgent) pubmedPriority(art *sources.Article) int {
	priority := 5
	if art.StudyDesign != nil {
		switch *art.StudyDesign {
		case "meta_analysis":
			priority -= 3
		case "systematic_review":
			priority -= 2
		case "rct":
			priority -= 1
		}
	}
	priority -= a.authorBoost(art.Authors)
	priority -= a.journalBoost(art.Journal)
	if art.PublicationDate != nil && time.Since(*art.PublicationDate) < 30*24*time.Hour {
		priority--
	}
	return clampPriority(priority)
}

func (a *ResearchAgent) crossrefPriority(art *sources.Article) int {
	priority := 5
	if art.CitedByCount > 50 {
		priority -= 2
	} else if art.CitedByCount > 10 {
		priority--
	}
	if art.PublicationDate != nil && time.Since(*art.PublicationDate) < 30*24*time.Hour {
		priority--
	}
	return clampPriority(priority)
}

func clampPriority(p int) int {
	return min(10, max(1, p))
}

// authorBoost returns the strongest boost among the paper's authors.
func (a *ResearchAgent) authorBoost(authors []string) int {
	maxBoost := 0
	for _, author := range authors {
		normalized := normalizeAuthorName(author)
		if boost, ok := a.trustedAuthors[normalized]; ok {
			maxBoost = max(maxBoost, boost)
			continue
		}
		for trusted, boost := range a.trustedAuthors {
			if strings.Contains(normalized, trusted) || strings.Contains(trusted, normalized) {
				maxBoost = max(maxBoost, boost)
				break
			}
		}
	}
	return maxBoost
}

func (a *ResearchAgent) journalBoost(journal *string) int {
	if journal == nil {
		return 0
	}
	normalized := normalizeJournalName(*journal)
	if normalized == "" {
		return 0
	}
	if boost, ok := a.trustedJournals[normalized]; ok {
		return boost
	}
	for trusted, boost := range a.trustedJournals {
		if strings.Contains(normalized, trusted) || strings.Contains(trusted, normalized) {
			return boost
		}
	}
	return 0
}

var authorPunct = regexp.MustCompile(`[.]`)

func normalizeAuthorName(name string) string {
	normalized := authorPunct.ReplaceAllString(strings.ToLower(name), "")
	return strings.Join(strings.Fields(normalized), " ")
}

func normalizeJournalName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func firstN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
