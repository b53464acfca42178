package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes markdown code fences that models sometimes wrap
// around JSON payloads despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// parseClaims decodes a JSON array of extracted claims. Items that fail to
// decode individually are skipped so one malformed object does not discard
// the rest of the batch. Claims without text are dropped.
func parseClaims(content string) ([]ExtractedClaim, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(content)), &items); err != nil {
		return nil, fmt.Errorf("parsing claims array: %w", err)
	}

	claims := make([]ExtractedClaim, 0, len(items))
	for _, item := range items {
		claim := ExtractedClaim{
			EvidenceLevel: 3,
			StudyDesign:   "unknown",
			Category:      "general",
			Confidence:    0.5,
		}
		if err := json.Unmarshal(item, &claim); err != nil {
			continue
		}
		if claim.Claim == "" {
			continue
		}
		// Keep out-of-range model output within the schema bounds.
		claim.EvidenceLevel = min(5, max(1, claim.EvidenceLevel))
		claim.Confidence = min(1.0, max(0.0, claim.Confidence))
		claims = append(claims, claim)
	}
	return claims, nil
}
