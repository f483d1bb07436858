package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters without a canonical decomposition to ASCII.
var turkishASCII = strings.NewReplacer(
	"ı", "i",
	"ş", "s",
	"ğ", "g",
	"ç", "c",
	"ö", "o",
	"ü", "u",
)

// Fold lowercases s with Turkish casing rules and strips diacritics so that
// "ONAYLI", "onaylı" and "onayli" compare equal.
func Fold(s string) string {
	lower := cases.Lower(language.Turkish).String(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lower)
	if err != nil {
		folded = lower
	}
	return turkishASCII.Replace(folded)
}

var (
	manualKeywords      = []string{"manual", "manuel", "block", "blok"}
	reservationKeywords = []string{"reservation", "rezervasyon"}

	approvedTerms = map[string]struct{}{
		"approved":  {},
		"onayli":    {},
		"onaylandi": {},
	}
	rejectedTerms = map[string]struct{}{
		"rejected":   {},
		"declined":   {},
		"reddedildi": {},
		"red":        {},
		"canceled":   {},
		"cancelled":  {},
		"iptal":      {},
	}
)

// ParseBlockType maps a stored type label onto a BlockType.
func ParseBlockType(s string) BlockType {
	folded := Fold(s)
	for _, kw := range manualKeywords {
		if strings.Contains(folded, kw) {
			return BlockManual
		}
	}
	for _, kw := range reservationKeywords {
		if strings.Contains(folded, kw) {
			return BlockReservation
		}
	}
	return BlockUnknown
}

// ParseApprovalState maps a stored status label onto an ApprovalState.
// Anything that is neither an approval nor a rejection term is pending.
func ParseApprovalState(s string) ApprovalState {
	folded := Fold(s)
	if _, ok := approvedTerms[folded]; ok {
		return ApprovalApproved
	}
	if _, ok := rejectedTerms[folded]; ok {
		return ApprovalRejected
	}
	return ApprovalPending
}

// NormalizeRoomType folds a room type label and resolves spelling aliases.
func NormalizeRoomType(s string) string {
	folded := strings.Join(strings.Fields(Fold(s)), "-")
	if canonical, ok := roomTypeAliases[folded]; ok {
		return canonical
	}
	return folded
}

var roomTypeAliases = map[string]string{
	"kayit":           "kayit-kabini",
	"kayit-odasi":     "kayit-kabini",
	"vokal":           "kayit-kabini",
	"vokal-kabini":    "kayit-kabini",
	"prova":           "prova-odasi",
	"prova-salonu":    "prova-odasi",
	"podcast":         "podcast-odasi",
	"podcast-studyo":  "podcast-odasi",
	"podcast-studio":  "podcast-odasi",
	"dans":            "dans-salonu",
	"dans-studyosu":   "dans-salonu",
	"fotograf":        "fotograf-studyosu",
	"fotograf-studio": "fotograf-studyosu",
}
