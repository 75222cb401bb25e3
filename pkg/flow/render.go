package flow

import "regexp"

var referencePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render replaces every {{name}} token in the template with its
// binding. This is literal string substitution, not evaluation: a
// reference with no binding is left untouched, and rendering is a pure
// function of template and bindings.
func Render(template string, bindings map[string]string) string {
	return referencePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := referencePattern.FindStringSubmatch(match)[1]
		if value, ok := bindings[name]; ok {
			return value
		}
		return match
	})
}

// References returns the variable names a template refers to, in order
func References(template string) []string {
	matches := referencePattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
