package llm

import (
	"fmt"
	"strconv"
	"strings"
)

const systemMessage = "You are a scientific research assistant. Respond only with valid JSON."

const extractionPrompt = `You are a scientific research assistant specializing in exercise science, sports medicine, and fitness research.

Analyze the following research paper and extract scientific claims. For each significant claim found, provide:

1. **Claim**: The main scientific claim in Russian (concise, factual statement)
2. **Claim Summary**: A brief 1-2 sentence summary in Russian
3. **Evidence Level**: Rate 1-5 where:
   - 1 = Expert opinion, case study
   - 2 = Cross-sectional, observational
   - 3 = Cohort or case-control
   - 4 = Randomized Controlled Trial (RCT)
   - 5 = Systematic review or meta-analysis
4. **Sample Size**: Number of participants (if mentioned)
5. **Effect Size**: Effect size or magnitude of results (e.g., "d=0.8", "15% increase", "p<0.001")
6. **Study Design**: One of: meta_analysis, systematic_review, rct, cohort, case_control, cross_sectional, case_study, expert_opinion
7. **Population**: Study population (e.g., "trained athletes", "sedentary adults", "elderly")
8. **Key Findings**: Array of 2-4 key findings in Russian
9. **Limitations**: Study limitations mentioned or implied
10. **Category**: One of: hypertrophy, strength, endurance, nutrition, recovery, injury_prevention, technique, programming, supplements, general
11. **Confidence**: Your confidence in this extraction (0.0-1.0)

Paper Title: {title}
Authors: {authors}
Abstract: {abstract}

Respond ONLY with a JSON array of claims. Each claim should be an object with the fields above.
If no significant claims can be extracted, return an empty array [].

Example response format:
[
  {
    "claim": "Прогрессивная нагрузка увеличивает гипертрофию мышц",
    "claim_summary": "Исследование показало, что постепенное увеличение веса стимулирует рост мышц",
    "evidence_level": 4,
    "sample_size": 45,
    "effect_size": "d=0.65",
    "study_design": "rct",
    "population": "trained men",
    "key_findings": [
      "Увеличение силы на 15% за 12 недель",
      "Гипертрофия type II волокон"
    ],
    "limitations": "Small sample size, short duration",
    "category": "hypertrophy",
    "confidence": 0.92
  }
]`

const validationPrompt = `You are a scientific validation expert. Evaluate the following scientific claim for quality and validity.

Claim: {claim}
Category: {category}
Evidence Level: {evidence_level}
Study Design: {study_design}
Sample Size: {sample_size}
Effect Size: {effect_size}

Existing Similar Claims:
{similar_claims}

Evaluate and respond with JSON:
{
  "is_valid": true/false,
  "validation_score": 0.0-1.0,
  "rejection_reasons": ["reason1", "reason2"] (empty if valid),
  "suggested_improvements": ["improvement1"] (optional),
  "duplicate_of": "claim_id" (null if not duplicate),
  "conflicts_with": ["claim_id1", "claim_id2"] (empty if no conflicts)
}

Validation criteria:
- Evidence level should match study design
- Sample size should be appropriate for the claim
- Effect size should be reported if claiming significant results
- Should not be duplicate of existing claims (similarity > 0.9)
- Should not contradict higher-evidence claims without strong justification`

const conflictPrompt = `Compare these two scientific claims and determine if they conflict with each other.

Claim A: {claim_a}
Evidence Level A: {evidence_level_a}
Study Design A: {study_design_a}

Claim B: {claim_b}
Evidence Level B: {evidence_level_b}
Study Design B: {study_design_b}

Respond with JSON:
{
  "conflict_detected": true/false,
  "conflict_type": "direct" | "partial" | "none",
  "confidence": 0.0-1.0,
  "explanation": "Explanation of the conflict or why there's no conflict",
  "resolution_suggestion": "How to resolve if conflict exists"
}`

const (
	maxAbstractChars  = 4000
	maxEmbeddingChars = 8000
	maxSimilarClaims  = 5
)

func renderExtractionPrompt(title string, authors []string, abstract string) string {
	authorList := "Unknown"
	if len(authors) > 0 {
		authorList = strings.Join(authors, ", ")
	}
	return strings.NewReplacer(
		"{title}", title,
		"{authors}", authorList,
		"{abstract}", truncate(abstract, maxAbstractChars),
	).Replace(extractionPrompt)
}

func renderValidationPrompt(req ValidationRequest) string {
	similar := make([]string, 0, len(req.SimilarClaims))
	for i, c := range req.SimilarClaims {
		if i >= maxSimilarClaims {
			break
		}
		similar = append(similar, fmt.Sprintf("- %s (ID: %s)", c.Claim, c.ID))
	}
	similarText := "None found"
	if len(similar) > 0 {
		similarText = strings.Join(similar, "\n")
	}
	return strings.NewReplacer(
		"{claim}", req.Claim,
		"{category}", req.Category,
		"{evidence_level}", strconv.Itoa(req.EvidenceLevel),
		"{study_design}", req.StudyDesign,
		"{sample_size}", orNotSpecified(intString(req.SampleSize)),
		"{effect_size}", orNotSpecified(strString(req.EffectSize)),
		"{similar_claims}", similarText,
	).Replace(validationPrompt)
}

func renderConflictPrompt(a, b ClaimSide) string {
	return strings.NewReplacer(
		"{claim_a}", a.Claim,
		"{evidence_level_a}", strconv.Itoa(a.EvidenceLevel),
		"{study_design_a}", a.StudyDesign,
		"{claim_b}", b.Claim,
		"{evidence_level_b}", strconv.Itoa(b.EvidenceLevel),
		"{study_design_b}", b.StudyDesign,
	).Replace(conflictPrompt)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
