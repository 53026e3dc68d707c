package letter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/core"
)

func recommendCatalog() []core.Template {
	return []core.Template{
		{ID: "general", Type: core.DisputeTypeAccount, IsActive: true},
		{ID: "inquiry", Type: core.DisputeTypeInquiry, IsActive: true},
		{ID: "inquiry-tu", Type: core.DisputeTypeInquiry, Bureau: core.BureauTransUnion, IsActive: true},
		{ID: "records-old", Type: core.DisputeTypePublicRecord},
	}
}

func TestRecommendPrefersTypeThenBureau(t *testing.T) {
	tests := []struct {
		name        string
		disputeType core.DisputeType
		bureau      core.Bureau
		want        string
	}{
		{name: "type match", disputeType: core.DisputeTypeInquiry, want: "inquiry"},
		{name: "bureau specific", disputeType: core.DisputeTypeInquiry, bureau: "TransUnion", want: "inquiry-tu"},
		{name: "other bureau skips specific", disputeType: core.DisputeTypeInquiry, bureau: core.BureauEquifax, want: "inquiry"},
		{name: "inactive falls back to account", disputeType: core.DisputeTypePublicRecord, want: "general"},
		{name: "empty type is account", want: "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := Recommend(recommendCatalog(), tt.disputeType, tt.bureau)
			require.NoError(t, err)
			require.Equal(t, tt.want, tpl.ID)
		})
	}
}

func TestRecommendWithoutCandidates(t *testing.T) {
	_, err := Recommend([]core.Template{{ID: "x", Type: core.DisputeTypeMixedFile, IsActive: true}}, core.DisputeTypeInquiry, "")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "template", notFound.Kind)
}
