package selector

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// namedTokenPattern matches {{name}}-style tokens. Positional {{1}}
	// tokens are left alone so both substitutions can run on one body.
	namedTokenPattern      = regexp.MustCompile(`\{\{[a-zA-Z_][a-zA-Z0-9_]*\}\}`)
	positionalTokenPattern = regexp.MustCompile(`\{\{[0-9]+\}\}`)
)

// Personalize substitutes {{token}} placeholders with lead attributes and
// per-send extras. Extras win over attributes on key collision. Tokens with
// no value are stripped so no placeholder ever reaches a lead.
func Personalize(content string, attrs, extras map[string]string) string {
	values := make(map[string]string, len(attrs)+len(extras))
	for k, v := range attrs {
		values[k] = v
	}
	for k, v := range extras {
		values[k] = v
	}
	if name, ok := values["name"]; ok {
		if _, has := values["first_name"]; !has {
			values["first_name"] = firstName(name)
		}
	}

	return namedTokenPattern.ReplaceAllStringFunc(content, func(token string) string {
		key := strings.Trim(token, "{}")
		if v, ok := values[key]; ok {
			return v
		}
		return ""
	})
}

// RenderPositional substitutes positional {{1}}..{{n}} placeholders, the
// format the messaging gateway expects for approved template sends.
func RenderPositional(content string, params []string) string {
	out := content
	for i, p := range params {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{%d}}", i+1), p)
	}
	return positionalTokenPattern.ReplaceAllString(out, "")
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return full
	}
	return parts[0]
}
