package graphstore

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// escapeLabel validates a label against the identifier pattern Cypher
// requires for an unquoted node label. Labels come from tool input, not
// free text, but Cypher has no parameter placeholder for labels so they
// must be checked before interpolation.
func escapeLabel(label string) string {
	if !identPattern.MatchString(label) {
		return "Entity"
	}
	return label
}

// escapeIdent validates a property key the same way escapeLabel validates
// a label, for use in generated WHERE/RETURN clauses.
func escapeIdent(ident string) string {
	if !identPattern.MatchString(ident) {
		return "id"
	}
	return ident
}

// whereClause builds an equality WHERE clause over match, parameterizing
// every value so only keys are interpolated into the Cypher text.
func whereClause(alias string, match map[string]any) (string, map[string]any) {
	if len(match) == 0 {
		return "", map[string]any{}
	}
	clauses := make([]string, 0, len(match))
	params := make(map[string]any, len(match))
	i := 0
	for k, v := range match {
		paramName := fmt.Sprintf("m%d", i)
		clauses = append(clauses, fmt.Sprintf("%s.%s = $%s", alias, escapeIdent(k), paramName))
		params[paramName] = v
		i++
	}
	return "WHERE " + strings.Join(clauses, " AND "), params
}

func joinOr(clauses []string) string {
	return strings.Join(clauses, " OR ")
}
