package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFeed = Feed{ID: "test", Name: "Test Journal", Categories: []string{"research"}}

func TestParseRSS2Feed(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Test Journal</title>
    <item>
      <title>Creatine &amp; strength: new meta-analysis</title>
      <link>https://example.org/articles/10.1186/s12970-024-0001</link>
      <description><![CDATA[<p>A <b>meta-analysis</b> of creatine trials.</p>]]></description>
      <pubDate>Mon, 15 Jan 2024 10:30:00 +0000</pubDate>
      <dc:creator>Jane Smith</dc:creator>
      <category>supplements</category>
    </item>
    <item>
      <title></title>
      <link>https://example.org/untitled</link>
    </item>
  </channel>
</rss>`)

	articles, err := ParseFeed(data, testFeed)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "Creatine & strength: new meta-analysis", a.Title)
	require.NotNil(t, a.URL)
	assert.Equal(t, "https://example.org/articles/10.1186/s12970-024-0001", *a.URL)
	require.NotNil(t, a.Abstract)
	assert.Equal(t, "A meta-analysis of creatine trials.", *a.Abstract)
	require.NotNil(t, a.PublicationDate)
	assert.Equal(t, 2024, a.PublicationDate.Year())
	assert.Equal(t, []string{"Jane Smith"}, a.Authors)
	assert.Contains(t, a.Categories, "research")
	assert.Contains(t, a.Categories, "supplements")
	require.NotNil(t, a.DOI)
	assert.Equal(t, "10.1186/s12970-024-0001", *a.DOI)
	assert.Equal(t, "rss_feed", a.SourceType)
}

func TestParseAtomFeed(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Journal</title>
  <entry>
    <title>Sleep extension improves recovery markers</title>
    <link rel="alternate" href="https://example.org/sleep-recovery"/>
    <summary>Ten days of sleep extension improved recovery.</summary>
    <published>2024-02-10T08:00:00Z</published>
    <author><name>John Doe</name></author>
    <category term="recovery"/>
  </entry>
</feed>`)

	articles, err := ParseFeed(data, testFeed)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "Sleep extension improves recovery markers", a.Title)
	require.NotNil(t, a.URL)
	assert.Equal(t, "https://example.org/sleep-recovery", *a.URL)
	require.NotNil(t, a.PublicationDate)
	assert.Equal(t, time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC), *a.PublicationDate)
	assert.Equal(t, []string{"John Doe"}, a.Authors)
	assert.Contains(t, a.Categories, "recovery")
}

func TestParseRDFFeed(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns="http://purl.org/rss/1.0/"
         xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="https://example.org/"><title>Test Journal</title></channel>
  <item rdf:about="https://example.org/item-1">
    <title>Periodization models compared</title>
    <link>https://example.org/item-1</link>
    <description>Block vs undulating periodization.</description>
    <dc:date>2024-03-01</dc:date>
    <dc:creator>Alex Lee</dc:creator>
  </item>
</rdf:RDF>`)

	articles, err := ParseFeed(data, testFeed)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "Periodization models compared", a.Title)
	assert.Equal(t, []string{"Alex Lee"}, a.Authors)
	require.NotNil(t, a.PublicationDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *a.PublicationDate)
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	_, err := ParseFeed([]byte(""), testFeed)
	require.Error(t, err)

	_, err = ParseFeed([]byte("this is not xml"), testFeed)
	require.Error(t, err)

	_, err = ParseFeed([]byte("<html><body>not a feed</body></html>"), testFeed)
	require.Error(t, err)
}

func TestRSSLinkFallsBackToPermalinkGUID(t *testing.T) {
	data := []byte(`<rss version="2.0"><channel>
  <item>
    <title>No link element</title>
    <guid isPermaLink="true">https://example.org/guid-link</guid>
  </item>
  <item>
    <title>Opaque guid</title>
    <guid isPermaLink="false">internal-id-42</guid>
  </item>
</channel></rss>`)

	articles, err := ParseFeed(data, testFeed)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.NotNil(t, articles[0].URL)
	assert.Equal(t, "https://example.org/guid-link", *articles[0].URL)
	assert.Nil(t, articles[1].URL)
}

func TestExtractDOI(t *testing.T) {
	assert.Equal(t, "10.1186/s12970-024-0001",
		extractDOI("https://doi.org/10.1186/s12970-024-0001", ""))
	assert.Equal(t, "10.1519/JSC.0000000000004567",
		extractDOI("", "See doi:10.1519/JSC.0000000000004567 for details"))
	assert.Equal(t, "", extractDOI("https://example.org/plain", "no identifiers here"))
}

func TestDefaultFeeds(t *testing.T) {
	feeds := DefaultFeeds()
	assert.Len(t, feeds, 13)
	for _, f := range feeds {
		assert.NotEmpty(t, f.ID)
		assert.NotEmpty(t, f.Name)
		assert.Contains(t, f.URL, "http")
	}
}
