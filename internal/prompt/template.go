package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// tagRe matches {{name}}, {{#if name}} and {{/if}}.
var tagRe = regexp.MustCompile(`\{\{(?:#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*|(/if)|([a-zA-Z_][a-zA-Z0-9_]*))\}\}`)

// Vars maps template variable names to values.
type Vars map[string]string

// block is an open {{#if}} tag.
type block struct {
	tag  string
	emit bool
}

// Render expands tmpl in one pass. {{name}} is replaced with its value and
// {{#if name}}...{{/if}} keeps its body only when name is set and non-empty.
// Blocks nest. A variable referenced outside a dropped block must be present
// in vars. Values are inserted as-is and never expanded again.
func Render(tmpl string, vars Vars) (string, error) {
	var (
		out     strings.Builder
		stack   []block
		missing []string
		last    int
	)
	emitting := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].emit
	}

	for _, loc := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if emitting() {
			out.WriteString(tmpl[last:loc[0]])
		}
		last = loc[1]

		switch {
		case loc[2] >= 0:
			name := tmpl[loc[2]:loc[3]]
			stack = append(stack, block{
				tag:  tmpl[loc[0]:loc[1]],
				emit: emitting() && vars[name] != "",
			})
		case loc[4] >= 0:
			if len(stack) == 0 {
				return "", fmt.Errorf("dangling {{/if}} at offset %d", loc[0])
			}
			stack = stack[:len(stack)-1]
		default:
			if !emitting() {
				continue
			}
			name := tmpl[loc[6]:loc[7]]
			val, ok := vars[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			out.WriteString(val)
		}
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("unclosed conditional block: %s", stack[len(stack)-1].tag)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	out.WriteString(tmpl[last:])
	return out.String(), nil
}

// Lookup returns the template called name. An override file
// <overrideDir>/<name>.md wins over the built-in text; overrideDir may be empty.
func Lookup(name, overrideDir string) (string, error) {
	if overrideDir != "" {
		path := filepath.Join(overrideDir, name+".md")
		absPath, err := filepath.Abs(path)
		if err == nil {
			absDir, err2 := filepath.Abs(overrideDir)
			if err2 == nil && !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
				return "", fmt.Errorf("template name %q escapes %s", name, overrideDir)
			}
		}
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}

	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return tmpl, nil
}

// RenderNamed looks a template up by name and renders it.
func RenderNamed(name, overrideDir string, vars Vars) (string, error) {
	tmpl, err := Lookup(name, overrideDir)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// Names returns the built-in template names.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
