package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCrossRefWork(t *testing.T) {
	work := crossrefWork{
		DOI:            "10.1007/s40279-024-1234",
		Title:          []string{"Training volume and muscle growth"},
		ContainerTitle: []string{"Sports Medicine"},
		URL:            "https://doi.org/10.1007/s40279-024-1234",
		Type:           "journal-article",
		CitedByCount:   57,
		Subject:        []string{"Physiology"},
		Author: []crossrefAuthor{
			{Given: "James", Family: "Krieger"},
			{Given: "", Family: ""},
		},
		PublishedPrint: &crossrefDateParts{DateParts: [][]int{{2024, 6}}},
	}

	a, ok := parseCrossRefWork(work)
	require.True(t, ok)
	assert.Equal(t, "Training volume and muscle growth", a.Title)
	assert.Equal(t, []string{"James Krieger"}, a.Authors)
	require.NotNil(t, a.Journal)
	assert.Equal(t, "Sports Medicine", *a.Journal)
	assert.Equal(t, 57, a.CitedByCount)
	require.NotNil(t, a.PublicationDate)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *a.PublicationDate)
	assert.Equal(t, "crossref", a.SourceType)
}

func TestParseCrossRefWorkRequiresDOIAndTitle(t *testing.T) {
	_, ok := parseCrossRefWork(crossrefWork{Title: []string{"No DOI"}})
	assert.False(t, ok)

	_, ok = parseCrossRefWork(crossrefWork{DOI: "10.1/x"})
	assert.False(t, ok)
}

func TestParseDateParts(t *testing.T) {
	tests := []struct {
		name  string
		print *crossrefDateParts
		web   *crossrefDateParts
		want  *time.Time
	}{
		{"nil both", nil, nil, nil},
		{"empty parts", &crossrefDateParts{}, nil, nil},
		{
			"full date",
			&crossrefDateParts{DateParts: [][]int{{2023, 11, 5}}},
			nil,
			timePtr(time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC)),
		},
		{
			"year only",
			&crossrefDateParts{DateParts: [][]int{{2022}}},
			nil,
			timePtr(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			"online fallback",
			nil,
			&crossrefDateParts{DateParts: [][]int{{2021, 2, 3}}},
			timePtr(time.Date(2021, 2, 3, 0, 0, 0, 0, time.UTC)),
		},
		{"ancient year rejected", &crossrefDateParts{DateParts: [][]int{{1850, 1, 1}}}, nil, nil},
		{"future year rejected", &crossrefDateParts{DateParts: [][]int{{time.Now().Year() + 5}}}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDateParts(tt.print, tt.web)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCrossRefSearchWorks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "mailto:ops@example.org")
		assert.Equal(t, "ops@example.org", r.URL.Query().Get("mailto"))
		assert.Contains(t, r.URL.Query().Get("filter"), "type:journal-article")

		w.Write([]byte(`{"message":{"items":[
			{"DOI":"10.1/a","title":["Work A"],"published-print":{"date-parts":[[2024,1,2]]}},
			{"title":["dropped, no DOI"]}
		]}}`))
	}))
	defer srv.Close()

	c := NewCrossRefClient(CrossRefConfig{
		Mailto:            "ops@example.org",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Retry:             fastSourceRetry(),
	}, nil, nil)

	articles, err := c.SearchWorks(context.Background(), "hypertrophy",
		map[string]string{"type": "journal-article"}, "published", "desc", 5)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Work A", articles[0].Title)
}

func TestCrossRefWorkByDOINotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewCrossRefClient(CrossRefConfig{BaseURL: srv.URL, RequestsPerSecond: 1000, Retry: fastSourceRetry()}, nil, nil)

	a, err := c.WorkByDOI(context.Background(), "10.9999/missing")
	require.NoError(t, err)
	assert.Nil(t, a)
}
