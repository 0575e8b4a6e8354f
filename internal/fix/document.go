package fix

import "strings"

// document is a file split into lines.
type document struct {
	lines           []string
	newline         string
	trailingNewline bool
}

func newDocument(content string) document {
	d := document{newline: "\n"}
	if strings.Contains(content, "\r\n") {
		d.newline = "\r\n"
	}
	d.trailingNewline = strings.HasSuffix(content, "\n")
	body := strings.TrimSuffix(content, "\n")
	if d.newline == "\r\n" {
		body = strings.TrimSuffix(body, "\r")
	}
	if body != "" {
		d.lines = strings.Split(body, d.newline)
	}
	return d
}

// window returns the half-open line range [start, end) around the 1-based
// line. ok is false when there is no line or it lies past the end.
func (d document) window(line, radius int) (start, end int, ok bool) {
	if line <= 0 || len(d.lines) == 0 {
		return 0, len(d.lines), false
	}
	start = max(line-radius-1, 0)
	end = min(line+radius, len(d.lines))
	if start >= end {
		return 0, len(d.lines), false
	}
	return start, end, true
}

// splice replaces lines [start, end) with replacement.
func (d document) splice(start, end int, replacement string) string {
	repl := strings.Split(strings.TrimRight(replacement, "\r\n"), "\n")
	for i := range repl {
		repl[i] = strings.TrimSuffix(repl[i], "\r")
	}
	out := make([]string, 0, len(d.lines)-(end-start)+len(repl))
	out = append(out, d.lines[:start]...)
	out = append(out, repl...)
	out = append(out, d.lines[end:]...)
	s := strings.Join(out, d.newline)
	if d.trailingNewline && s != "" {
		s += d.newline
	}
	return s
}
