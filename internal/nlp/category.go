package nlp

import "strings"

// Resolver maps a free-text expense description to a category label via
// keyword membership. Categories are checked in their fixed precedence
// order and the first whose keyword set intersects the description's
// tokens wins. Total: no match resolves to DefaultCategory.
type Resolver struct {
	categories []Category
	keywords   []map[string]bool // parallel to categories
}

func NewResolver(lex *Lexicon) *Resolver {
	if lex == nil {
		lex = DefaultLexicon()
	}
	r := &Resolver{categories: lex.Categories}
	r.keywords = make([]map[string]bool, len(lex.Categories))
	for i, cat := range lex.Categories {
		set := make(map[string]bool, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			set[strings.ToLower(kw)] = true
		}
		r.keywords[i] = set
	}
	return r
}

// Resolve returns the category for a description. Never fails.
func (r *Resolver) Resolve(description string) string {
	tokens := tokenize(description)
	for i, set := range r.keywords {
		for _, tok := range tokens {
			if set[tok] {
				return r.categories[i].Name
			}
		}
	}
	return DefaultCategory
}

// Order returns the fixed category precedence, default last. Used for
// deterministic tie-breaking in summaries.
func (r *Resolver) Order() []string {
	names := make([]string, 0, len(r.categories)+1)
	for _, c := range r.categories {
		names = append(names, c.Name)
	}
	return append(names, DefaultCategory)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
