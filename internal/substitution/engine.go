// Package substitution fills placeholders in template bodies from a variables
// structure.
//
// A placeholder is a slash followed by a dotted path, for example
// /user.firstName. The slash only opens a placeholder at the start of the text
// or after a character that cannot be part of a word, path or URL, so
// "and/or" and "https://example.com/about" are left alone.
package substitution

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var placeholderPattern = regexp.MustCompile(`/([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)`)

// Placeholder is one occurrence of a placeholder in a template.
type Placeholder struct {
	Path  string
	Start int // byte offset of the slash
	End   int // byte offset just past the path
}

// Raw returns the placeholder as written in the template.
func (p Placeholder) Raw() string { return "/" + p.Path }

// Scan returns every placeholder occurrence in tmpl, left to right.
func Scan(tmpl string) []Placeholder {
	matches := placeholderPattern.FindAllStringSubmatchIndex(tmpl, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		if m[0] > 0 {
			prev, _ := utf8.DecodeLastRuneInString(tmpl[:m[0]])
			if !opensPlaceholder(prev) {
				continue
			}
		}
		out = append(out, Placeholder{
			Path:  tmpl[m[2]:m[3]],
			Start: m[0],
			End:   m[1],
		})
	}
	return out
}

// opensPlaceholder reports whether a slash preceded by r starts a placeholder.
// Letters and digits of any script keep it closed, so "café/menu" is text.
func opensPlaceholder(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}
	switch r {
	case '_', '/', '.', ':', '-', '~':
		return false
	}
	return true
}

// Process substitutes every placeholder in tmpl with its value from vars.
//
// Occurrences are handled one by one in the order they appear. A placeholder
// whose path cannot be resolved stays in the result verbatim and contributes
// one entry to errs. Inserted values are never scanned again.
func Process(tmpl string, vars Value) (result string, errs []string) {
	errs = []string{}
	placeholders := Scan(tmpl)
	if len(placeholders) == 0 {
		return tmpl, errs
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	last := 0
	for _, p := range placeholders {
		b.WriteString(tmpl[last:p.Start])
		last = p.End

		v, err := Resolve(vars, p.Path)
		if err != nil {
			b.WriteString(tmpl[p.Start:p.End])
			errs = append(errs, err.Error())
			continue
		}
		b.WriteString(v.String())
	}
	b.WriteString(tmpl[last:])

	return b.String(), errs
}

// ResolveError explains why a path could not be resolved.
type ResolveError struct {
	Path string
	// At is the prefix of Path that resolved to a non-object; empty when a key
	// was missing.
	At   string
	Kind Kind
}

func (e *ResolveError) Error() string {
	if e.At == "" {
		return fmt.Sprintf("variable '%s' not found", e.Path)
	}
	return fmt.Sprintf("variable '%s' invalid: '%s' is %s, not an object", e.Path, e.At, e.Kind)
}

// Resolve walks vars along the dot separated path.
func Resolve(vars Value, path string) (Value, error) {
	segments := strings.Split(path, ".")
	cur := vars

	for i, seg := range segments {
		switch cur.Kind() {
		case KindObject:
			next, ok := cur.Get(seg)
			if !ok {
				return Value{}, &ResolveError{Path: path}
			}
			cur = next
		case KindNull:
			if i == 0 {
				// No variables at all reads as a missing key.
				return Value{}, &ResolveError{Path: path}
			}
			fallthrough
		default:
			at := strings.Join(segments[:i], ".")
			if at == "" {
				at = "variables"
			}
			return Value{}, &ResolveError{Path: path, At: at, Kind: cur.Kind()}
		}
	}
	return cur, nil
}
