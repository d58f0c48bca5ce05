package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenPattern matches lowercase word tokens, keeping inner apostrophes and hyphens.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+(?:['-][a-z0-9]+)*`)

// tokenize lowercases text and splits it into word tokens.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// normalise joins tokens with single spaces and pads both ends so phrase
// lookups can match on word boundaries.
func normalise(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

// containsPhrase reports whether a normalised text contains phrase as whole words.
func containsPhrase(normalised, phrase string) bool {
	return strings.Contains(normalised, " "+phrase+" ")
}

// containsAny reports whether any phrase occurs in the normalised text.
func containsAny(normalised string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(normalised, p) {
			return true
		}
	}
	return false
}

var stopwords = toSet(
	"a", "an", "the", "and", "or", "but", "if", "of", "in", "on", "at", "to", "for",
	"with", "about", "from", "by", "as", "into", "onto", "over", "under", "than", "then",
	"is", "are", "was", "were", "be", "been", "being", "am",
	"do", "does", "did", "done", "have", "has", "had",
	"i", "me", "my", "mine", "we", "us", "our", "you", "your", "yours",
	"it", "its", "this", "that", "these", "those", "them", "they", "their", "theirs",
	"he", "she", "him", "her", "his", "hers", "there", "here",
	"what", "which", "who", "whom", "whose", "where", "when", "why", "how",
	"can", "could", "would", "should", "will", "shall", "may", "might", "must",
	"please", "tell", "show", "give", "let", "know", "like", "want", "need", "get",
	"more", "some", "any", "all", "also", "just", "so", "very", "much", "many",
	"not", "no", "yes", "too", "up", "down", "out", "again", "once", "other", "such",
	"own", "same", "both", "each", "few", "most", "only", "one", "ones", "else",
	"anything", "something", "thing", "things", "kind", "kinds", "okay", "ok",
	"hello", "hi", "hey", "thanks", "thank", "bye", "goodbye",
)

var whWords = toSet("what", "which", "who", "whom", "whose", "where", "when", "why", "how")

var auxiliaryStarts = toSet(
	"is", "are", "was", "were", "do", "does", "did", "can", "could", "will",
	"would", "should", "shall", "may", "might", "has", "have", "had",
)

// entityStopStarts are capitalised words that never begin a topic entity even
// when they open a sentence.
var entityStopStarts = toSet(
	"compare", "list", "explain", "describe", "find", "search", "show", "tell",
	"give", "locate", "summarize", "summarise", "look", "lookup", "enumerate",
	"count", "total", "help", "and", "also", "so", "now", "well",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

// isInterrogative reports whether the message asks a question.
func isInterrogative(raw string, tokens []string) bool {
	if strings.Contains(raw, "?") {
		return true
	}
	if len(tokens) > 0 && inSet(auxiliaryStarts, tokens[0]) {
		return true
	}
	for _, t := range tokens {
		if inSet(whWords, t) {
			return true
		}
	}
	return false
}

// startsWithAuxiliary reports a yes/no question shape ("is the VPN down?").
func startsWithAuxiliary(tokens []string) bool {
	return len(tokens) > 0 && inSet(auxiliaryStarts, tokens[0])
}

// extractKeywords returns up to k non-stopword tokens ranked by frequency,
// then by first position.
func extractKeywords(text string, k int) []string {
	type entry struct {
		word  string
		count int
		first int
	}
	entries := map[string]*entry{}
	for i, t := range tokenize(text) {
		if inSet(stopwords, t) {
			continue
		}
		if utf8.RuneCountInString(t) < 2 && !unicode.IsDigit([]rune(t)[0]) {
			continue
		}
		if e, ok := entries[t]; ok {
			e.count++
			continue
		}
		entries[t] = &entry{word: t, count: 1, first: i}
	}

	ranked := make([]*entry, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]string, len(ranked))
	for i, e := range ranked {
		out[i] = e.word
	}
	return out
}

// extractEntities finds capitalised spans such as "Building A" or "VPN Gateway".
// A span starts at a capitalised non-stopword and continues through
// capitalised words, numbers and single letters.
func extractEntities(text string) []string {
	var (
		entities []string
		current  []string
		seen     = map[string]struct{}{}
	)

	flush := func() {
		if len(current) > 0 {
			entity := strings.Join(current, " ")
			if _, dup := seen[entity]; !dup {
				seen[entity] = struct{}{}
				entities = append(entities, entity)
			}
		}
		current = current[:0]
	}

	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		endsClause := strings.ContainsAny(field[len(field)-1:], ".,;:!?")

		if word == "" {
			flush()
			continue
		}

		first, _ := utf8.DecodeRuneInString(word)
		lower := strings.ToLower(word)
		capitalised := unicode.IsUpper(first)

		switch {
		case len(current) == 0:
			if capitalised && !inSet(stopwords, lower) && !inSet(entityStopStarts, lower) {
				current = append(current, word)
			}
		case capitalised || unicode.IsDigit(first):
			current = append(current, word)
		default:
			flush()
		}

		if endsClause {
			flush()
		}
	}
	flush()
	return entities
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
