package letter

import (
	"github.com/disputekit/disputekit/internal/core"
)

// Recommend picks the active template best suited to a dispute type and
// bureau. A template written for the type wins over the general account
// dispute template, and a bureau-specific template wins over a generic one.
// Templates addressed to another bureau are never chosen, and with no bureau
// given only generic templates qualify. Ties go to the lowest ID.
func Recommend(templates []core.Template, disputeType core.DisputeType, bureau core.Bureau) (*core.Template, error) {
	if disputeType == "" {
		disputeType = core.DisputeTypeAccount
	}
	if bureau != "" {
		bureau = core.NormalizeBureau(string(bureau))
	}

	best, bestScore := -1, 0
	for i := range templates {
		tpl := &templates[i]
		if !tpl.IsActive {
			continue
		}
		score := recommendScore(tpl, disputeType, bureau)
		if score > bestScore || (score > 0 && score == bestScore && tpl.ID < templates[best].ID) {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, &core.NotFoundError{Kind: "template", ID: string(disputeType)}
	}
	tpl := templates[best]
	return &tpl, nil
}

func recommendScore(tpl *core.Template, disputeType core.DisputeType, bureau core.Bureau) int {
	score := 0
	switch tpl.Type {
	case disputeType:
		score = 4
	case core.DisputeTypeAccount:
		score = 2
	default:
		return 0
	}

	if tpl.Bureau == "" {
		return score
	}
	if bureau == "" || !tpl.Targets(bureau) {
		return 0
	}
	return score + 1
}
