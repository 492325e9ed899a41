package evaluator

import (
	"strings"

	"deepresearch.app/agent/internal/model"
)

// Criterion names one evaluation dimension.
type Criterion string

const (
	CriterionDefinitive   Criterion = "definitive"
	CriterionFreshness    Criterion = "freshness"
	CriterionPlurality    Criterion = "plurality"
	CriterionCompleteness Criterion = "completeness"
	CriterionAttribution  Criterion = "attribution"
)

// evaluationOrder is the fixed execution order. Attribution runs first so a
// fabricated source kills the answer before burning evaluator calls;
// definitive gates everything that follows.
var evaluationOrder = []Criterion{
	CriterionAttribution,
	CriterionDefinitive,
	CriterionFreshness,
	CriterionPlurality,
	CriterionCompleteness,
}

// orderCriteria returns the requested criteria in pipeline order, adding
// attribution when the answer carries http(s) references.
func orderCriteria(requested []Criterion, references []model.Reference) []Criterion {
	want := make(map[Criterion]bool, len(requested)+1)
	for _, c := range requested {
		want[c] = true
	}
	if hasWebReferences(references) {
		want[CriterionAttribution] = true
	}

	ordered := make([]Criterion, 0, len(want))
	for _, c := range evaluationOrder {
		if want[c] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func hasWebReferences(references []model.Reference) bool {
	for _, ref := range references {
		if strings.HasPrefix(ref.URL, "http://") || strings.HasPrefix(ref.URL, "https://") {
			return true
		}
	}
	return false
}
