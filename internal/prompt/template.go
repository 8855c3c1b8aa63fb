package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render replaces {{variable}} placeholders in tmpl with values from vars.
// Every placeholder must have a value.
func Render(tmpl string, vars map[string]string) (string, error) {
	if missing := findMissingVars(tmpl, vars); len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := variablePattern.FindStringSubmatch(match)[1]
		return vars[key]
	}), nil
}

// ExtractVariables returns the distinct variable names found in tmpl, in
// order of first appearance.
func ExtractVariables(tmpl string) []string {
	var vars []string
	for _, m := range variablePattern.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(vars, m[1]) {
			vars = append(vars, m[1])
		}
	}
	return vars
}

func findMissingVars(tmpl string, vars map[string]string) []string {
	var missing []string
	for _, v := range ExtractVariables(tmpl) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
