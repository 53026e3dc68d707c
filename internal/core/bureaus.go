package core

import "strings"

// BureauInfo holds display and mailing details for a bureau.
type BureauInfo struct {
	Name           string
	DisputeAddress string
}

// Bureaus lists the supported bureaus in canonical order.
var Bureaus = []Bureau{BureauExperian, BureauEquifax, BureauTransUnion}

var bureauInfo = map[Bureau]BureauInfo{
	BureauExperian: {
		Name:           "Experian",
		DisputeAddress: "Experian\nDispute Department\nP.O. Box 4500\nAllen, TX 75013",
	},
	BureauEquifax: {
		Name:           "Equifax",
		DisputeAddress: "Equifax Information Services LLC\nDispute Department\nP.O. Box 740256\nAtlanta, GA 30374",
	},
	BureauTransUnion: {
		Name:           "TransUnion",
		DisputeAddress: "TransUnion LLC\nConsumer Dispute Center\nP.O. Box 2000\nChester, PA 19016",
	},
}

// NormalizeBureau maps free-form bureau names ("TransUnion", " EXPERIAN ")
// to a Bureau. Unknown values are returned lower-cased and trimmed.
func NormalizeBureau(value string) Bureau {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	return Bureau(key)
}

// Known reports whether b is one of the supported bureaus.
func (b Bureau) Known() bool {
	_, ok := bureauInfo[b]
	return ok
}

// Info returns bureau details; unknown bureaus fall back to their raw name.
func (b Bureau) Info() BureauInfo {
	if info, ok := bureauInfo[b]; ok {
		return info
	}
	return BureauInfo{Name: string(b)}
}

// DisplayName returns the human-readable bureau name.
func (b Bureau) DisplayName() string {
	return b.Info().Name
}
