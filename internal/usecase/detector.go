package usecase

import (
	"sort"

	"roleroute/internal/catalog"
)

// RoleScore is one detection candidate: a role and its tag-match score.
type RoleScore struct {
	Role  *catalog.Role
	Score int
}

// Detector classifies free-text queries into roles. Detection is a pure
// function of (query text, catalog snapshot): no hidden state, fully
// deterministic, replayable in tests.
type Detector struct {
	minScore int
}

// NewDetector creates a detector. minScore is the confidence threshold:
// a top score below it triggers the default-role fallback. Values < 1
// are clamped to 1 (any single tag match counts as confident).
func NewDetector(minScore int) *Detector {
	if minScore < 1 {
		minScore = 1
	}
	return &Detector{minScore: minScore}
}

// Detect ranks all roles by match score, descending. A role's score is
// the sum over its tools of the distinct capability tags present in the
// text. Ties are broken by the declared role priority, never by
// registration order.
func (d *Detector) Detect(cat *catalog.Catalog, text string) []RoleScore {
	ranked := make([]RoleScore, 0, len(cat.Roles()))
	for _, role := range cat.RolesByPriority() {
		score := 0
		for _, tool := range role.Tools() {
			score += tool.MatchTags(text)
		}
		ranked = append(ranked, RoleScore{Role: role, Score: score})
	}
	// Stable sort keeps the priority order among equal scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Resolve returns the detected role for the text. When the top score is
// below the confidence threshold it returns the configured default role
// and lowConfidence = true; the request still proceeds.
func (d *Detector) Resolve(cat *catalog.Catalog, text string) (role *catalog.Role, lowConfidence bool) {
	ranked := d.Detect(cat, text)
	if len(ranked) == 0 || ranked[0].Score < d.minScore {
		return cat.DefaultRole(), true
	}
	return ranked[0].Role, false
}
