package nlp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the vocabulary the extractor and classifier match against.
// Two trigger-verb vocabularies are supported (English first, Swahili
// second); the first vocabulary that matches wins. The token sets are
// mutually exclusive, so precedence never produces a tie.
type Lexicon struct {
	ExpenseVerbs  [][]string          `yaml:"expenseVerbs"`
	Greetings     []string            `yaml:"greetings"`
	SkipTokens    []string            `yaml:"skipTokens"`
	QueryPhrases  []string            `yaml:"queryPhrases"`
	BudgetWords   []string            `yaml:"budgetWords"`
	PriorityWords map[string][]string `yaml:"priorityWords"` // level -> words
	Categories    []Category          `yaml:"categories"`
}

// Category is one labeled keyword set. Order in the slice is the fixed
// resolution precedence.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultCategory is returned when no keyword set matches a description.
const DefaultCategory = "Miscellaneous"

// DefaultLexicon returns the built-in English/Swahili vocabulary.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		ExpenseVerbs: [][]string{
			{"spent", "paid", "bought", "purchased", "used"},
			{"nimetumia", "nimelipa", "nilinunua", "nimenunua", "nililipa", "nilitumia"},
		},
		Greetings: []string{
			"hi", "hello", "hey", "start",
			"habari", "jambo", "mambo", "hujambo",
		},
		SkipTokens: []string{"skip", "ruka"},
		QueryPhrases: []string{
			"how much", "balance", "summary", "total spent", "spent so far",
			"nimetumia ngapi", "salio", "matumizi", "jumla",
		},
		BudgetWords: []string{"budget", "bajeti"},
		PriorityWords: map[string][]string{
			"high": {"urgent", "asap", "important", "haraka", "muhimu"},
			"low":  {"low", "whenever", "someday", "polepole"},
		},
		Categories: []Category{
			{Name: "Materials", Keywords: []string{
				"cement", "sand", "steel", "rebar", "timber", "wood", "brick", "bricks",
				"block", "blocks", "paint", "gravel", "ballast", "nails", "roofing",
				"tiles", "glass", "pipes", "wire",
				"saruji", "mbao", "matofali", "mchanga", "rangi", "misumari", "mabati",
			}},
			{Name: "Labor", Keywords: []string{
				"labor", "labour", "wages", "wage", "salary", "worker", "workers",
				"mason", "carpenter", "plumber", "electrician", "foreman",
				"fundi", "mafundi", "kibarua", "vibarua", "mshahara",
			}},
			{Name: "Transport", Keywords: []string{
				"transport", "fuel", "diesel", "petrol", "delivery", "truck", "lorry",
				"boda", "matatu", "usafiri", "mafuta",
			}},
			{Name: "Equipment", Keywords: []string{
				"equipment", "mixer", "scaffold", "scaffolding", "generator", "tools",
				"tool", "drill", "ladder", "wheelbarrow", "pump", "vifaa",
			}},
			{Name: "Permits", Keywords: []string{
				"permit", "permits", "license", "licence", "approval", "inspection",
				"fee", "fees", "council", "kibali",
			}},
		},
	}
}

// LoadLexicon reads a YAML lexicon file. Empty fields fall back to the
// built-in defaults so a file may override just one list.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	def := DefaultLexicon()
	if len(lex.ExpenseVerbs) == 0 {
		lex.ExpenseVerbs = def.ExpenseVerbs
	}
	if len(lex.Greetings) == 0 {
		lex.Greetings = def.Greetings
	}
	if len(lex.SkipTokens) == 0 {
		lex.SkipTokens = def.SkipTokens
	}
	if len(lex.QueryPhrases) == 0 {
		lex.QueryPhrases = def.QueryPhrases
	}
	if len(lex.BudgetWords) == 0 {
		lex.BudgetWords = def.BudgetWords
	}
	if len(lex.PriorityWords) == 0 {
		lex.PriorityWords = def.PriorityWords
	}
	if len(lex.Categories) == 0 {
		lex.Categories = def.Categories
	}
	return &lex, nil
}
