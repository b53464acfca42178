package agents

import (
	"context"
	"time"

	"github.com/fitsci/curator/pkg/llm"
)

// fakeLLM implements llm.Service with overridable behavior per method. Nil
// fields return empty results.
type fakeLLM struct {
	extractFn  func(ctx context.Context, title string, authors []string, abstract string) ([]llm.ExtractedClaim, error)
	validateFn func(ctx context.Context, req llm.ValidationRequest) (*llm.ValidationResult, error)
	conflictFn func(ctx context.Context, a, b llm.ClaimSide) (*llm.ConflictResult, error)
	embedFn    func(ctx context.Context, text string) ([]float32, error)

	extractCalls  int
	validateCalls int
	conflictCalls int
	embedCalls    int
}

func (f *fakeLLM) ExtractClaims(ctx context.Context, title string, authors []string, abstract string) ([]llm.ExtractedClaim, error) {
	f.extractCalls++
	if f.extractFn == nil {
		return nil, nil
	}
	return f.extractFn(ctx, title, authors, abstract)
}

func (f *fakeLLM) ValidateClaim(ctx context.Context, req llm.ValidationRequest) (*llm.ValidationResult, error) {
	f.validateCalls++
	if f.validateFn == nil {
		return &llm.ValidationResult{IsValid: true}, nil
	}
	return f.validateFn(ctx, req)
}

func (f *fakeLLM) DetectConflict(ctx context.Context, a, b llm.ClaimSide) (*llm.ConflictResult, error) {
	f.conflictCalls++
	if f.conflictFn == nil {
		return llm.NoConflict("test"), nil
	}
	return f.conflictFn(ctx, a, b)
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.embedFn == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.embedFn(ctx, text)
}

func strPtr(s string) *string          { return &s }
func intPtr(i int) *int                { return &i }
func timePtr(t time.Time) *time.Time   { return &t }
func daysAgo(days int) *time.Time      { t := time.Now().AddDate(0, 0, -days); return &t }
func yearsAgo(years int) *time.Time    { t := time.Now().AddDate(-years, 0, 0); return &t }
