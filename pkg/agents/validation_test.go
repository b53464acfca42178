package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/store"
)

type relRecord struct {
	source     uuid.UUID
	target     uuid.UUID
	relType    string
	confidence float64
	notes      string
}

type fakeValidationStore struct {
	drafts   []store.Claim
	similar  []store.SimilarClaim
	journals []store.TrustedSource

	patches       map[uuid.UUID]store.ClaimPatch
	relationships []relRecord
}

func newFakeValidationStore(drafts ...store.Claim) *fakeValidationStore {
	return &fakeValidationStore{
		drafts:  drafts,
		patches: map[uuid.UUID]store.ClaimPatch{},
	}
}

func (f *fakeValidationStore) ListDrafts(_ context.Context, limit int) ([]store.Claim, error) {
	if len(f.drafts) > limit {
		return f.drafts[:limit], nil
	}
	return f.drafts, nil
}

func (f *fakeValidationStore) UpdateClaim(_ context.Context, id uuid.UUID, patch store.ClaimPatch) error {
	f.patches[id] = patch
	return nil
}

func (f *fakeValidationStore) FindSimilar(_ context.Context, _ []float32, threshold float64, limit int, _ *string, _ *int) ([]store.SimilarClaim, error) {
	var out []store.SimilarClaim
	for _, s := range f.similar {
		if s.Similarity >= threshold {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeValidationStore) AddRelationship(_ context.Context, source, target uuid.UUID, relType string, confidence float64, notes *string) error {
	rec := relRecord{source: source, target: target, relType: relType, confidence: confidence}
	if notes != nil {
		rec.notes = *notes
	}
	f.relationships = append(f.relationships, rec)
	return nil
}

func (f *fakeValidationStore) ListTrustedJournals(context.Context) ([]store.TrustedSource, error) {
	return f.journals, nil
}

func draftClaim(confidence float64, evidence int) store.Claim {
	return store.Claim{
		ID:              uuid.New(),
		Claim:           "Higher training volume produces greater hypertrophy",
		Category:        "hypertrophy",
		EvidenceLevel:   evidence,
		ConfidenceScore: confidence,
		Status:          store.ClaimStatusDraft,
	}
}

func TestValidationAgentApprovesCleanDraft(t *testing.T) {
	draft := draftClaim(0.72, 4)
	st := newFakeValidationStore(draft)
	// A neighbor below the search threshold never reaches the validator.
	st.similar = []store.SimilarClaim{{ID: uuid.New(), Claim: "unrelated", Similarity: 0.72}}
	agent := NewValidationAgent(st, &fakeLLM{}, ValidationConfig{})

	res, err := agent.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res["approved"])
	assert.Equal(t, 0, res["rejected"])

	patch := st.patches[draft.ID]
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.ClaimStatusActive, *patch.Status)
	require.NotNil(t, patch.ValidationScore)
	// 0.72 base + 0.15 evidence bonus + no sample bonus, no penalties.
	assert.InDelta(t, 0.87, *patch.ValidationScore, 1e-9)
}

func TestValidationAgentSampleSizeBonus(t *testing.T) {
	claim := draftClaim(0.72, 4)
	claim.SampleSize = intPtr(150)
	assert.InDelta(t, 0.92, validationScore(&claim, 0, 0), 1e-9)

	claim.SampleSize = intPtr(60)
	assert.InDelta(t, 0.87, validationScore(&claim, 0, 0), 1e-9)
}

func TestValidationAgentRejectsLowEvidence(t *testing.T) {
	draft := draftClaim(0.8, 1)
	st := newFakeValidationStore(draft)
	agent := NewValidationAgent(st, &fakeLLM{}, ValidationConfig{MinEvidenceLevel: 2})

	res, err := agent.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res["rejected"])
	patch := st.patches[draft.ID]
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.ClaimStatusDeprecated, *patch.Status)
}

func TestValidationAgentSimilarityGates(t *testing.T) {
	dup := uuid.New()
	conflicting := uuid.New()
	ignored := uuid.New()

	tests := []struct {
		name         string
		similarity   float64
		neighborID   uuid.UUID
		wantStatus   string
		wantConflict bool
	}{
		{"near duplicate rejected", 0.96, dup, store.ClaimStatusDeprecated, false},
		{"conflict approved with flag", 0.86, conflicting, store.ClaimStatusActive, true},
		{"below threshold ignored", 0.74, ignored, store.ClaimStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := draftClaim(0.8, 4)
			st := newFakeValidationStore(draft)
			st.similar = []store.SimilarClaim{{
				ID:            tt.neighborID,
				Claim:         "Training volume has no effect on hypertrophy",
				Similarity:    tt.similarity,
				EvidenceLevel: 2,
			}}
			model := &fakeLLM{conflictFn: func(context.Context, llm.ClaimSide, llm.ClaimSide) (*llm.ConflictResult, error) {
				return &llm.ConflictResult{ConflictDetected: true, ConflictType: "direct", Confidence: 0.8}, nil
			}}
			agent := NewValidationAgent(st, model, ValidationConfig{})

			_, err := agent.Process(context.Background())
			require.NoError(t, err)

			patch := st.patches[draft.ID]
			require.NotNil(t, patch.Status)
			assert.Equal(t, tt.wantStatus, *patch.Status)

			if tt.wantConflict {
				require.NotNil(t, patch.ConflictingEvidence)
				assert.True(t, *patch.ConflictingEvidence)
				require.Len(t, st.relationships, 1)
				rel := st.relationships[0]
				assert.Equal(t, draft.ID, rel.source)
				assert.Equal(t, tt.neighborID, rel.target)
				assert.Equal(t, store.RelContradicts, rel.relType)
				assert.Equal(t, 0.7, rel.confidence)
				assert.Equal(t, "Detected during validation", rel.notes)
			} else {
				assert.Empty(t, st.relationships)
			}
		})
	}
}

func TestValidationAgentAutoValidation(t *testing.T) {
	draft := draftClaim(0.7, 5)
	draft.SourceDOI = strPtr("10.1000/meta")
	draft.StudyDesign = strPtr("meta_analysis")
	draft.SourceTitle = strPtr("Effects of volume: Sports Medicine systematic review")
	st := newFakeValidationStore(draft)
	st.journals = []store.TrustedSource{{Name: "Sports Medicine", PriorityBoost: 1}}

	model := &fakeLLM{}
	agent := NewValidationAgent(st, model, ValidationConfig{EnableAutoValidation: true})

	res, err := agent.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res["auto_validated"])
	// Auto-validation never consults the model.
	assert.Zero(t, model.embedCalls)
	assert.Zero(t, model.validateCalls)

	patch := st.patches[draft.ID]
	require.NotNil(t, patch.ValidationScore)
	assert.Equal(t, 0.95, *patch.ValidationScore)
	require.NotNil(t, patch.AutoValidated)
	assert.True(t, *patch.AutoValidated)
	require.NotNil(t, patch.TrustedSource)
	assert.True(t, *patch.TrustedSource)
}

func TestValidationAgentAutoValidationRequiresDOI(t *testing.T) {
	draft := draftClaim(0.7, 5)
	draft.StudyDesign = strPtr("meta_analysis")
	draft.SourceTitle = strPtr("Sports Medicine review")
	st := newFakeValidationStore(draft)
	st.journals = []store.TrustedSource{{Name: "Sports Medicine", PriorityBoost: 1}}
	agent := NewValidationAgent(st, nil, ValidationConfig{EnableAutoValidation: true})

	res, err := agent.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res["auto_validated"])
}

func TestValidationAgentWithoutLLMSkipsSimilarityChecks(t *testing.T) {
	draft := draftClaim(0.8, 4)
	st := newFakeValidationStore(draft)
	// A near-duplicate sits in the index, but without embeddings it is
	// never found; the draft is judged on evidence and score alone.
	st.similar = []store.SimilarClaim{{ID: uuid.New(), Claim: draft.Claim, Similarity: 0.97}}
	agent := NewValidationAgent(st, nil, ValidationConfig{})

	res, err := agent.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res["approved"])
	assert.Empty(t, st.relationships)

	patch := st.patches[draft.ID]
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.ClaimStatusActive, *patch.Status)
}

func TestValidationScoreClamps(t *testing.T) {
	claim := draftClaim(0.9, 5)
	claim.SampleSize = intPtr(500)
	assert.Equal(t, 1.0, validationScore(&claim, 0, 0))

	low := draftClaim(0.2, 1)
	assert.Equal(t, 0.0, validationScore(&low, 3, 4))
}
