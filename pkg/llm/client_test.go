package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsci/curator/pkg/resilience"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:              "sk-test",
		BaseURL:             srv.URL,
		Model:               "gpt-4o",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 3,
		Timeout:             5 * time.Second,
		RequestsPerSecond:   1000,
	})
	require.NoError(t, err)
	return c, srv
}

func chatHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 0.001)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://api.openai.com/v1"})
	require.Error(t, err)

	_, err = NewClient(Config{APIKey: "sk-x"})
	require.Error(t, err)
}

func TestExtractClaims(t *testing.T) {
	body := "```json\n" + `[{"claim":"Сон важен для восстановления","evidence_level":4,"study_design":"rct","category":"recovery","confidence":0.8}]` + "\n```"
	c, _ := testClient(t, chatHandler(t, body))

	claims, err := c.ExtractClaims(context.Background(), "Sleep and recovery", []string{"Smith J"}, "Sleep restriction impairs recovery.")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Сон важен для восстановления", claims[0].Claim)
	assert.Equal(t, 4, claims[0].EvidenceLevel)
}

func TestExtractClaimsEmptyAbstractSkipsProvider(t *testing.T) {
	called := false
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	claims, err := c.ExtractClaims(context.Background(), "Title", nil, "   ")
	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.False(t, called)
}

func TestExtractClaimsDegradesOnGarbage(t *testing.T) {
	c, _ := testClient(t, chatHandler(t, "I could not find any claims, sorry!"))

	claims, err := c.ExtractClaims(context.Background(), "Title", nil, "abstract")
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestExtractClaimsSurfacesHTTPError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := c.ExtractClaims(context.Background(), "Title", nil, "abstract")
	require.Error(t, err)

	var httpErr *resilience.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, resilience.IsRetryable(err))
}

func TestValidateClaim(t *testing.T) {
	body := `{"is_valid":true,"validation_score":0.82,"rejection_reasons":[],"duplicate_of":null,"conflicts_with":[]}`
	c, _ := testClient(t, chatHandler(t, body))

	result, err := c.ValidateClaim(context.Background(), ValidationRequest{
		Claim: "x", Category: "strength", EvidenceLevel: 4, StudyDesign: "rct",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.InDelta(t, 0.82, result.ValidationScore, 0.001)
	assert.Nil(t, result.DuplicateOf)
}

func TestValidateClaimDegradesOnGarbage(t *testing.T) {
	c, _ := testClient(t, chatHandler(t, "not json"))

	result, err := c.ValidateClaim(context.Background(), ValidationRequest{Claim: "x"})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.InDelta(t, 0.5, result.ValidationScore, 0.001)
	assert.NotEmpty(t, result.SuggestedImprovements)
}

func TestDetectConflict(t *testing.T) {
	body := "```json\n" + `{"conflict_detected":true,"conflict_type":"direct","confidence":0.9,"explanation":"Opposite direction of effect","resolution_suggestion":"Prefer the meta-analysis"}` + "\n```"
	c, _ := testClient(t, chatHandler(t, body))

	result, err := c.DetectConflict(context.Background(),
		ClaimSide{Claim: "a", EvidenceLevel: 3, StudyDesign: "cohort"},
		ClaimSide{Claim: "b", EvidenceLevel: 5, StudyDesign: "meta_analysis"},
	)
	require.NoError(t, err)
	assert.True(t, result.ConflictDetected)
	assert.Equal(t, "direct", result.ConflictType)
	require.NotNil(t, result.ResolutionSuggestion)
}

func TestDetectConflictDegradesOnGarbage(t *testing.T) {
	c, _ := testClient(t, chatHandler(t, "no idea"))

	result, err := c.DetectConflict(context.Background(), ClaimSide{Claim: "a"}, ClaimSide{Claim: "b"})
	require.NoError(t, err)
	assert.False(t, result.ConflictDetected)
	assert.Equal(t, "none", result.ConflictType)
}

func TestEmbed(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))

	vec, err := c.Embed(context.Background(), "протеин и гипертрофия")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedRejectsWrongDimensions(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1}}},
		})
	}))

	_, err := c.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestEmbedTruncatesInput(t *testing.T) {
	var got string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = req.Input
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0, 0, 0}}},
		})
	}))

	long := make([]byte, maxEmbeddingChars+100)
	for i := range long {
		long[i] = 'x'
	}
	_, err := c.Embed(context.Background(), string(long))
	require.NoError(t, err)
	assert.Len(t, got, maxEmbeddingChars)
}
