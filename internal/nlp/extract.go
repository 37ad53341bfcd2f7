package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"sitebot/internal/domain"
)

var (
	amountRe    = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	dateISORe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dateSlashRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
)

var relativeDateWords = []string{"today", "yesterday", "tomorrow", "leo", "jana", "kesho"}

// fillerWords are connective tokens stripped from the edges of the
// description after the verb and amount are removed.
var fillerWords = map[string]bool{
	"on": true, "for": true, "of": true, "the": true, "a": true, "an": true,
	"i": true, "we": true, "some": true,
	"kwa": true, "ya": true, "na": true, "kwenye": true,
}

// Extraction is the lexical read of one normalized message. Amount is nil
// when no plausible amount was found; callers must treat nil as missing,
// never as zero.
type Extraction struct {
	Amount      *float64
	AmountText  string
	Description string
	DateToken   string
	Priority    domain.Priority
	Verb        string // matched trigger verb, empty if none
}

// Extract scans normalized lowercase text for an amount, a description,
// a date token and a priority word. Pure function over the lexicon.
func Extract(text string, lex *Lexicon) Extraction {
	norm := Normalize(text)
	ex := Extraction{}

	if m := amountRe.FindString(norm); m != "" {
		if v, ok := parseAmount(m); ok {
			ex.Amount = &v
			ex.AmountText = m
		}
	}

	ex.DateToken = extractDateToken(norm)
	ex.Priority = extractPriority(norm, lex)
	ex.Verb = matchVerb(norm, lex)
	ex.Description = extractDescription(norm, ex)

	return ex
}

// Normalize lowercases and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// parseAmount parses a digit run with optional comma separators. Rejects
// zero and negative values; no amount is better than a wrong amount.
func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// matchVerb returns the first trigger verb found, checking vocabularies in
// their fixed precedence order (English, then Swahili).
func matchVerb(norm string, lex *Lexicon) string {
	tokens := strings.Fields(norm)
	for _, vocab := range lex.ExpenseVerbs {
		for _, verb := range vocab {
			for _, tok := range tokens {
				if strings.Trim(tok, ".,!?") == verb {
					return verb
				}
			}
		}
	}
	return ""
}

func extractDateToken(norm string) string {
	if m := dateISORe.FindString(norm); m != "" {
		return m
	}
	if m := dateSlashRe.FindString(norm); m != "" {
		return m
	}
	for _, w := range relativeDateWords {
		if containsToken(norm, w) {
			return w
		}
	}
	return ""
}

func extractPriority(norm string, lex *Lexicon) domain.Priority {
	for _, w := range lex.PriorityWords["high"] {
		if containsToken(norm, w) {
			return domain.PriorityHigh
		}
	}
	for _, w := range lex.PriorityWords["low"] {
		if containsToken(norm, w) {
			return domain.PriorityLow
		}
	}
	return ""
}

// extractDescription removes the matched verb, the amount and the date
// token, then trims filler words from both edges. What remains is the best
// effort object of expenditure.
func extractDescription(norm string, ex Extraction) string {
	tokens := strings.Fields(norm)
	kept := make([]string, 0, len(tokens))
	verbSeen := false
	amountSeen := false
	for _, tok := range tokens {
		clean := strings.Trim(tok, ".,!?")
		if !verbSeen && ex.Verb != "" && clean == ex.Verb {
			verbSeen = true
			continue
		}
		if !amountSeen && ex.AmountText != "" && clean == ex.AmountText {
			amountSeen = true
			continue
		}
		if ex.DateToken != "" && clean == ex.DateToken {
			continue
		}
		kept = append(kept, clean)
	}
	for len(kept) > 0 && fillerWords[kept[0]] {
		kept = kept[1:]
	}
	for len(kept) > 0 && fillerWords[kept[len(kept)-1]] {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, " ")
}

// containsToken reports whether norm contains w as a whole token.
func containsToken(norm, w string) bool {
	for _, tok := range strings.Fields(norm) {
		if strings.Trim(tok, ".,!?") == w {
			return true
		}
	}
	return false
}

// IsGreeting reports whether the message is a bare greeting from the
// fixed vocabulary (case-insensitive, punctuation ignored).
func IsGreeting(text string, lex *Lexicon) bool {
	norm := strings.Trim(Normalize(text), ".,!? ")
	for _, g := range lex.Greetings {
		if norm == g {
			return true
		}
	}
	return false
}

// IsSkip reports whether the message is the skip token.
func IsSkip(text string, lex *Lexicon) bool {
	norm := strings.Trim(Normalize(text), ".,!? ")
	for _, s := range lex.SkipTokens {
		if norm == s {
			return true
		}
	}
	return false
}
