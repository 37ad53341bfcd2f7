package nlp

import (
	"log/slog"
	"strings"

	"sitebot/internal/domain"
)

// Rule is one tagged predicate/result pair. Rules are evaluated in slice
// order and the first match wins; confidence is a rule-intrinsic constant,
// not computed at runtime.
type Rule struct {
	Name       string
	Confidence float64
	Match      func(norm string, ex Extraction, mediaCount int) bool
	Build      func(norm string, ex Extraction) domain.ParsedIntent
}

// Classifier applies an ordered rule list to a message plus its lexical
// extraction. Deterministic: ordering resolves ambiguity, never scoring.
type Classifier struct {
	lex    *Lexicon
	rules  []Rule
	logger *slog.Logger
}

func NewClassifier(lex *Lexicon, logger *slog.Logger) *Classifier {
	if lex == nil {
		lex = DefaultLexicon()
	}
	c := &Classifier{lex: lex, logger: logger}
	c.rules = c.buildRules()
	return c
}

// Lexicon returns the vocabulary this classifier matches against.
func (c *Classifier) Lexicon() *Lexicon { return c.lex }

// Classify returns the first matching rule's intent. No match yields
// Unknown with confidence 0 — a false Unknown is preferred to a wrong
// structured action on money.
func (c *Classifier) Classify(text string, mediaCount int) domain.ParsedIntent {
	norm := Normalize(text)
	ex := Extract(text, c.lex)

	for _, rule := range c.rules {
		if rule.Match(norm, ex, mediaCount) {
			intent := rule.Build(norm, ex)
			intent.Confidence = rule.Confidence
			if c.logger != nil {
				c.logger.Debug("intent matched", "rule", rule.Name, "kind", intent.Kind, "confidence", intent.Confidence)
			}
			return intent
		}
	}
	return domain.ParsedIntent{Kind: domain.IntentUnknown, Confidence: 0}
}

func (c *Classifier) buildRules() []Rule {
	return []Rule{
		{
			// Explicit "task:" prefix is the most unambiguous pattern.
			Name:       "task_prefix",
			Confidence: 0.95,
			Match: func(norm string, _ Extraction, _ int) bool {
				return strings.HasPrefix(norm, "task:") && strings.TrimSpace(strings.TrimPrefix(norm, "task:")) != ""
			},
			Build: func(norm string, ex Extraction) domain.ParsedIntent {
				title := strings.TrimSpace(strings.TrimPrefix(norm, "task:"))
				prio := ex.Priority
				if prio == "" {
					prio = domain.PriorityMedium
				}
				return domain.ParsedIntent{Kind: domain.IntentCreateTask, Description: title, Priority: prio}
			},
		},
		{
			Name:       "set_budget",
			Confidence: 0.9,
			Match: func(norm string, ex Extraction, _ int) bool {
				if ex.Amount == nil {
					return false
				}
				for _, w := range c.lex.BudgetWords {
					if containsToken(norm, w) {
						return true
					}
				}
				return false
			},
			Build: func(_ string, ex Extraction) domain.ParsedIntent {
				return domain.ParsedIntent{Kind: domain.IntentSetBudget, Amount: ex.Amount}
			},
		},
		{
			// Budget word with no amount reads as a query about the budget.
			Name:       "query_expenses",
			Confidence: 0.85,
			Match: func(norm string, ex Extraction, _ int) bool {
				if ex.Amount != nil {
					return false
				}
				for _, p := range c.lex.QueryPhrases {
					if strings.Contains(norm, p) {
						return true
					}
				}
				for _, w := range c.lex.BudgetWords {
					if containsToken(norm, w) {
						return true
					}
				}
				return false
			},
			Build: func(_ string, _ Extraction) domain.ParsedIntent {
				return domain.ParsedIntent{Kind: domain.IntentQueryExpenses}
			},
		},
		{
			Name:       "expense_verb_amount",
			Confidence: 0.85,
			Match: func(_ string, ex Extraction, _ int) bool {
				return ex.Verb != "" && ex.Amount != nil
			},
			Build: func(_ string, ex Extraction) domain.ParsedIntent {
				return domain.ParsedIntent{Kind: domain.IntentLogExpense, Amount: ex.Amount, Description: ex.Description}
			},
		},
		{
			// Photo with no amount: store the image, caption from text.
			Name:       "image",
			Confidence: 0.9,
			Match: func(_ string, ex Extraction, mediaCount int) bool {
				return mediaCount > 0 && ex.Amount == nil
			},
			Build: func(norm string, _ Extraction) domain.ParsedIntent {
				return domain.ParsedIntent{Kind: domain.IntentLogImage, Description: norm}
			},
		},
		{
			// A bare amount next to words could be an expense, but without
			// a trigger verb it stays below the fallback threshold.
			Name:       "bare_amount",
			Confidence: 0.55,
			Match: func(_ string, ex Extraction, _ int) bool {
				return ex.Amount != nil && ex.Description != ""
			},
			Build: func(_ string, ex Extraction) domain.ParsedIntent {
				return domain.ParsedIntent{Kind: domain.IntentLogExpense, Amount: ex.Amount, Description: ex.Description}
			},
		},
	}
}
