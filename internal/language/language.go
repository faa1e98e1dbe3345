package language

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document: the operation whose response is
// cached and the fragments it spreads.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return doc, nil
}

// ParseSchema parses SDL. name appears in error locations.
func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	return doc, nil
}
