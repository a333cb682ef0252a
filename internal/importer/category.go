package importer

import "strings"

// categoryVocabulary is the apparel taxonomy products are filed under.
// Detection matches against these names; anything else stays unclassified.
var categoryVocabulary = []string{
	"SAREE",
	"LEHENGA",
	"KURTI",
	"GOWN",
	"ANARKALI",
	"SHERWANI",
	"DUPATTA",
	"SUIT",
	"FROCK",
	"SHAWL",
}

// DetectCategory infers a category from a product name. The label is the
// text before the first hyphen (or the whole name), uppercased. Matching is
// three passes of decreasing strictness: exact, then prefix/substring
// against the label, then a vocabulary word leading the whole name followed
// by a space or hyphen. Returns "" when nothing matches.
func DetectCategory(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	label := trimmed
	if idx := strings.Index(trimmed, "-"); idx >= 0 {
		label = trimmed[:idx]
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return ""
	}

	for _, cat := range categoryVocabulary {
		if label == cat {
			return cat
		}
	}
	for _, cat := range categoryVocabulary {
		if strings.HasPrefix(label, cat) || strings.Contains(label, cat) {
			return cat
		}
	}
	upperName := strings.ToUpper(trimmed)
	for _, cat := range categoryVocabulary {
		if strings.HasPrefix(upperName, cat+" ") || strings.HasPrefix(upperName, cat+"-") {
			return cat
		}
	}
	return ""
}

// CategoryNames returns the vocabulary so stores can seed category rows.
func CategoryNames() []string {
	out := make([]string, len(categoryVocabulary))
	copy(out, categoryVocabulary)
	return out
}
