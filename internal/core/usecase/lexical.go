package usecase

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// Lexical scoring weights. Changing them changes ranking.
const (
	coreTermWeight    = 3.0
	variantWeight     = 1.0
	exactMatchWeight  = 2.0
	phraseBonusFactor = 2.0
	diversityBonus    = 1.5
	maxDensityBonus   = 2.0
	densityWindow     = 100.0
	lengthNormWindow  = 500.0
	minTermLength     = 3
)

var stopWords = toSet([]string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during",
	"each", "few", "for", "from", "further",
	"had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself",
	"just", "me", "more", "most", "my", "myself",
	"no", "nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
	"same", "she", "should", "so", "some", "such",
	"tell", "than", "that", "the", "their", "theirs", "them", "themselves", "then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with", "would",
	"you", "your", "yours", "yourself", "yourselves",
})

type termMatcher struct {
	term    string
	weight  float64
	phrase  bool
	pattern *regexp.Regexp
}

// ExtractTerms returns the salient single-word terms of a query in first-seen
// order. Re-extracting from the joined output yields the same terms.
func ExtractTerms(query string) []string {
	tokens := normalizeTokens(query)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isContentWord(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// extractPhrases returns adjacent bigrams and trigrams made only of content words.
func extractPhrases(query string) []string {
	tokens := normalizeTokens(query)
	seen := make(map[string]struct{})
	var out []string
	for size := 2; size <= 3; size++ {
		for i := 0; i+size <= len(tokens); i++ {
			window := tokens[i : i+size]
			ok := true
			for _, token := range window {
				if !isContentWord(token) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			phrase := strings.Join(window, " ")
			if _, dup := seen[phrase]; dup {
				continue
			}
			seen[phrase] = struct{}{}
			out = append(out, phrase)
		}
	}
	return out
}

// termVariants is a stemming-lite expansion of one term.
func termVariants(term string) []string {
	n := len(term)
	out := make([]string, 0, 4)
	if strings.HasSuffix(term, "s") {
		out = append(out, term[:n-1])
	} else {
		out = append(out, term+"s")
	}
	if n > 5 && strings.HasSuffix(term, "ing") {
		stem := term[:n-3]
		out = append(out, stem, stem+"e")
	}
	if n > 4 && strings.HasSuffix(term, "ed") {
		out = append(out, term[:n-2])
	}
	for _, prefix := range []string{"un", "in", "re"} {
		if strings.HasPrefix(term, prefix) && n-len(prefix) >= minTermLength {
			out = append(out, term[len(prefix):])
			break
		}
	}

	filtered := out[:0]
	for _, v := range out {
		if len(v) >= minTermLength && v != term {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

func buildTermMatchers(query string) []termMatcher {
	original := append(ExtractTerms(query), extractPhrases(query)...)
	if len(original) == 0 {
		return nil
	}
	coreCount := (len(original) + 1) / 2

	seen := make(map[string]struct{}, len(original)*3)
	out := make([]termMatcher, 0, len(original)*3)
	add := func(term string, weight float64) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, termMatcher{
			term:    term,
			weight:  weight,
			phrase:  strings.Contains(term, " "),
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`),
		})
	}

	for i, term := range original {
		weight := variantWeight
		if i < coreCount {
			weight = coreTermWeight
		}
		add(term, weight)
	}
	for _, term := range original {
		for _, variant := range termVariants(term) {
			add(variant, variantWeight)
		}
	}
	return out
}

// scoreChunkText returns the lexical score of text and the terms it matched.
func scoreChunkText(text string, matchers []termMatcher) (float64, []string) {
	lower := strings.ToLower(text)
	textLength := float64(utf8.RuneCountInString(lower))
	if textLength == 0 || len(matchers) == 0 {
		return 0, nil
	}

	var (
		score      float64
		exactTerms int
		matched    []string
	)
	for _, m := range matchers {
		exact := len(m.pattern.FindAllStringIndex(lower, -1))
		partial := strings.Count(lower, m.term) - exact
		if partial < 0 {
			partial = 0
		}
		if exact == 0 && partial == 0 {
			continue
		}
		matched = append(matched, m.term)
		score += math.Sqrt(float64(exact))*exactMatchWeight*m.weight + math.Sqrt(float64(partial))*m.weight
		if exact > 0 {
			exactTerms++
			if m.phrase {
				score += phraseBonusFactor * m.weight
			}
		}
	}

	if exactTerms > 1 {
		score += math.Sqrt(float64(exactTerms)) * diversityBonus
	}
	if exactTerms > 0 {
		density := float64(exactTerms) / (textLength / densityWindow)
		score += math.Min(1, density) * maxDensityBonus
	}
	score *= 1 / math.Sqrt(textLength/lengthNormWindow)
	return score, matched
}

// searchTerms ranks chunks by lexical score. Each document contributes at most
// ceil(limit/2) chunks before the global cut.
func searchTerms(
	ctx context.Context,
	query string,
	chunksByDocument map[string][]domain.Chunk,
	documentIDs []string,
	limit int,
) ([]domain.ScoredChunk, error) {
	matchers := buildTermMatchers(query)
	if len(matchers) == 0 || limit <= 0 {
		return nil, nil
	}
	perDocument := (limit + 1) / 2

	var out []domain.ScoredChunk
	for _, documentID := range documentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var hits []domain.ScoredChunk
		for _, chunk := range chunksByDocument[documentID] {
			score, matched := scoreChunkText(chunk.Text, matchers)
			if score <= 0 {
				continue
			}
			hits = append(hits, domain.ScoredChunk{
				Chunk:        chunk,
				TermScore:    score,
				MatchedTerms: matched,
			})
		}
		sortByScore(hits, termScoreOf)
		out = append(out, trimScored(hits, perDocument)...)
	}

	sortByScore(out, termScoreOf)
	out = trimScored(out, limit)
	for i := range out {
		out[i].TermRank = i + 1
	}
	return out, nil
}

func normalizeTokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Fields(cleaned)
}

func isContentWord(token string) bool {
	if utf8.RuneCountInString(token) < minTermLength {
		return false
	}
	_, stop := stopWords[token]
	return !stop
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
