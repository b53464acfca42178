package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fitsci/curator/pkg/resilience"
	"github.com/fitsci/curator/pkg/timeutil"
)

const pubmedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Fitness-related search terms queried on every research run.
var pubmedSearchTerms = []string{
	"resistance training",
	"strength training",
	"muscle hypertrophy",
	"protein synthesis",
	"muscle recovery",
	"exercise nutrition",
	"periodization",
	"training volume",
	"training intensity",
	"muscle damage",
	"DOMS",
	"creatine supplementation",
	"protein supplementation",
	"BCAA",
	"sleep recovery",
	"overtraining",
}

var pubmedStudyTypeFilters = []string{
	"Randomized Controlled Trial",
	"Meta-Analysis",
	"Systematic Review",
	"Clinical Trial",
	"Controlled Clinical Trial",
}

// PubMedConfig holds connection settings for the E-utilities API.
type PubMedConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
	Breaker           resilience.BreakerConfig
}

// PubMedClient searches the PubMed E-utilities API.
type PubMedClient struct {
	cfg     PubMedConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewPubMedClient creates a PubMed client. An API key raises the permitted
// request rate; without one NCBI allows roughly 3 req/s.
func NewPubMedClient(cfg PubMedConfig, dlq *resilience.DeadLetterQueue, budget *resilience.Budget) *PubMedClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = pubmedBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	retrier := resilience.NewHandler(cfg.Retry, budget, dlq)
	return &PubMedClient{
		cfg:     cfg,
		fetcher: newFetcher("pubmed", cfg.RequestsPerSecond, retrier, cfg.Breaker),
		logger:  slog.Default().With("component", "pubmed"),
	}
}

// Search runs an esearch query and returns matching PMIDs, newest first.
func (c *PubMedClient) Search(ctx context.Context, query string, maxResults int, from, to time.Time, studyTypes []string) ([]string, error) {
	full := query
	if len(studyTypes) > 0 {
		filters := make([]string, len(studyTypes))
		for i, st := range studyTypes {
			filters[i] = fmt.Sprintf("%q[pt]", st)
		}
		full = fmt.Sprintf("(%s) AND (%s)", query, strings.Join(filters, " OR "))
	}
	if !from.IsZero() || !to.IsZero() {
		fromStr := "1900/01/01"
		if !from.IsZero() {
			fromStr = from.Format("2006/01/02")
		}
		toStr := "3000/12/31"
		if !to.IsZero() {
			toStr = to.Format("2006/01/02")
		}
		full = fmt.Sprintf("(%s) AND %s:%s[pdat]", full, fromStr, toStr)
	}

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {full},
		"retmax":  {strconv.Itoa(maxResults)},
		"retmode": {"json"},
		"sort":    {"date"},
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	body, err := c.fetcher.getWithRetry(ctx, "pubmed-search", c.cfg.BaseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searching pubmed for %q: %w", query, err)
	}

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding esearch response: %w", err)
	}
	return result.ESearchResult.IDList, nil
}

// FetchArticles retrieves full article records for the given PMIDs.
func (c *PubMedClient) FetchArticles(ctx context.Context, pmids []string) ([]Article, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	body, err := c.fetcher.getWithRetry(ctx, "pubmed-fetch", c.cfg.BaseURL+"/efetch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching pubmed articles: %w", err)
	}
	return parsePubMedXML(body)
}

// SearchRecent queries every default search term over the look-back window,
// deduplicating PMIDs across terms. A term failing permanently is skipped.
func (c *PubMedClient) SearchRecent(ctx context.Context, daysBack, maxPerTerm int) ([]Article, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -daysBack)

	var all []Article
	seen := make(map[string]bool)
	for _, term := range pubmedSearchTerms {
		pmids, err := c.Search(ctx, term, maxPerTerm, from, now, pubmedStudyTypeFilters)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn("PubMed term search failed", "term", term, "error", err)
			continue
		}

		fresh := pmids[:0:0]
		for _, p := range pmids {
			if !seen[p] {
				seen[p] = true
				fresh = append(fresh, p)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		articles, err := c.FetchArticles(ctx, fresh)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn("PubMed fetch failed", "term", term, "error", err)
			continue
		}
		all = append(all, articles...)
	}
	return all, nil
}

// SearchByJournal returns recent articles from one journal, optionally
// narrowed by topic.
func (c *PubMedClient) SearchByJournal(ctx context.Context, journal string, daysBack, maxResults int, topicFilter string) ([]Article, error) {
	query := fmt.Sprintf("%q[journal]", journal)
	if topicFilter != "" {
		query = fmt.Sprintf("(%s) AND (%s)", query, topicFilter)
	}
	return c.searchQuery(ctx, query, daysBack, maxResults)
}

// SearchByAuthor returns recent articles by one author.
func (c *PubMedClient) SearchByAuthor(ctx context.Context, author string, daysBack, maxResults int) ([]Article, error) {
	return c.searchQuery(ctx, fmt.Sprintf("%q[author]", author), daysBack, maxResults)
}

func (c *PubMedClient) searchQuery(ctx context.Context, query string, daysBack, maxResults int) ([]Article, error) {
	now := time.Now()
	pmids, err := c.Search(ctx, query, maxResults, now.AddDate(0, 0, -daysBack), now, pubmedStudyTypeFilters[:4])
	if err != nil {
		return nil, err
	}
	return c.FetchArticles(ctx, pmids)
}

// Ping verifies the API is reachable.
func (c *PubMedClient) Ping(ctx context.Context) error {
	_, err := c.Search(ctx, "exercise", 1, time.Time{}, time.Time{}, nil)
	return err
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year  string `xml:"Year"`
					Month string `xml:"Month"`
					Day   string `xml:"Day"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
		MeshTerms []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
	Data struct {
		ArticleIDs []struct {
			Type string `xml:"IdType,attr"`
			ID   string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

func parsePubMedXML(data []byte) ([]Article, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing efetch XML: %w", err)
	}

	articles := make([]Article, 0, len(set.Articles))
	for _, pa := range set.Articles {
		cit := pa.Citation
		if cit.PMID == "" || cit.Article.Title == "" {
			continue
		}

		a := Article{
			Title:      cit.Article.Title,
			PMID:       cit.PMID,
			SourceType: "pubmed",
		}
		// The canonical PubMed URL keeps DOI-less articles deduplicable.
		articleURL := "https://pubmed.ncbi.nlm.nih.gov/" + cit.PMID + "/"
		a.URL = &articleURL
		if text := strings.TrimSpace(strings.Join(cit.Article.Abstract.Text, " ")); text != "" {
			a.Abstract = &text
		}
		for _, au := range cit.Article.Authors {
			if au.LastName == "" {
				continue
			}
			name := au.LastName
			if au.ForeName != "" {
				name = au.ForeName + " " + name
			}
			a.Authors = append(a.Authors, name)
		}
		if j := cit.Article.Journal.Title; j != "" {
			a.Journal = &j
		}
		a.PublicationDate = parsePubDate(cit.Article.Journal.PubDate.Year, cit.Article.Journal.PubDate.Month, cit.Article.Journal.PubDate.Day)
		for _, id := range pa.Data.ArticleIDs {
			if id.Type == "doi" && id.ID != "" {
				doi := id.ID
				a.DOI = &doi
				break
			}
		}
		if design := studyDesignFor(cit.Article.PublicationTypes, cit.MeshTerms); design != "" {
			a.StudyDesign = &design
		}

		articles = append(articles, a)
	}
	return articles, nil
}

func parsePubDate(year, month, day string) *time.Time {
	if year == "" {
		return nil
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		m = timeutil.MonthNumber(month)
	}
	d, _ := strconv.Atoi(day)
	t, ok := timeutil.PublicationDate(y, m, d)
	if !ok {
		return nil
	}
	return &t
}

// studyDesignFor maps PubMed publication types (and MeSH terms as fallback)
// to the internal study design tags.
func studyDesignFor(pubTypes, meshTerms []string) string {
	lower := make([]string, len(pubTypes))
	for i, pt := range pubTypes {
		lower[i] = strings.ToLower(pt)
	}

	containsAny := func(values []string, substr string) bool {
		for _, v := range values {
			if strings.Contains(v, substr) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny(lower, "meta-analysis"):
		return "meta_analysis"
	case containsAny(lower, "systematic review"):
		return "systematic_review"
	case containsAny(lower, "randomized controlled trial"),
		containsAny(lower, "controlled clinical trial"):
		return "rct"
	case containsAny(lower, "cohort"):
		return "cohort"
	case containsAny(lower, "case-control"):
		return "case_control"
	case containsAny(lower, "cross-sectional"):
		return "cross_sectional"
	}

	mesh := make([]string, len(meshTerms))
	for i, m := range meshTerms {
		mesh[i] = strings.ToLower(m)
	}
	switch {
	case containsAny(mesh, "meta-analysis"):
		return "meta_analysis"
	case containsAny(mesh, "randomized controlled trial"):
		return "rct"
	}
	return ""
}
