package expr

import (
	"fmt"
	"strings"
)

// scopeIdent is the lambda parameter that $name reads are rewritten to.
const scopeIdent = "__scope"

// Translate rewrites a template binding expression into starlark source and
// returns the $names it references in order of first appearance.
//
// Template expressions are written in the loose syntax template authors
// expect: $name reads component data, === and !== compare, && || ! combine,
// cond ? a : b selects, {key: value} builds a dict with bare keys, and
// true/false/null are literals. Plain starlark (a if c else b, and, or, not)
// passes through unchanged.
func Translate(src string) (string, []string, error) {
	t := &translator{seen: make(map[string]bool)}
	out, err := t.expr(strings.TrimSpace(src))
	if err != nil {
		return "", nil, err
	}
	return out, t.refs, nil
}

type translator struct {
	refs []string
	seen map[string]bool
}

// list translates a comma separated sequence (call arguments, list items).
func (t *translator) list(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return s, nil
	}
	parts, err := splitTop(s, ',')
	if err != nil {
		return "", err
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			// trailing comma
			out[i] = p
			continue
		}
		if out[i], err = t.expr(strings.TrimSpace(p)); err != nil {
			return "", err
		}
	}
	return strings.Join(out, ", "), nil
}

// dict translates the inside of an object literal.
func (t *translator) dict(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	entries, err := splitTop(s, ',')
	if err != nil {
		return "", err
	}
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		colon := indexTop(e, ':', 0)
		if colon < 0 {
			return "", fmt.Errorf("expr: object entry %q has no key", e)
		}
		key := strings.TrimSpace(e[:colon])
		var k string
		switch {
		case isIdent(key):
			k = `"` + key + `"`
		case len(key) >= 2 && (key[0] == '"' || key[0] == '\''):
			k = key
		default:
			if k, err = t.expr(key); err != nil {
				return "", err
			}
		}
		v, err := t.expr(strings.TrimSpace(e[colon+1:]))
		if err != nil {
			return "", err
		}
		out = append(out, k+": "+v)
	}
	return strings.Join(out, ", "), nil
}

// expr translates a single expression, handling a top-level ternary.
func (t *translator) expr(s string) (string, error) {
	q := indexTernary(s)
	if q < 0 {
		return t.tokens(s)
	}
	colon := matchTernaryColon(s, q+1)
	if colon < 0 {
		return "", fmt.Errorf("expr: '?' without ':' in %q", s)
	}
	cond, err := t.expr(strings.TrimSpace(s[:q]))
	if err != nil {
		return "", err
	}
	then, err := t.expr(strings.TrimSpace(s[q+1 : colon]))
	if err != nil {
		return "", err
	}
	els, err := t.expr(strings.TrimSpace(s[colon+1:]))
	if err != nil {
		return "", err
	}
	return "(" + then + ") if (" + cond + ") else (" + els + ")", nil
}

// tokens rewrites identifiers and operators outside string literals and
// recurses into bracketed groups.
func (t *translator) tokens(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, err := skipString(s, i)
			if err != nil {
				return "", err
			}
			b.WriteString(s[i:end])
			i = end

		case c == '$' && i+1 < len(s) && isIdentStart(s[i+1]):
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			name := s[i+1 : j]
			if !t.seen[name] {
				t.seen[name] = true
				t.refs = append(t.refs, name)
			}
			b.WriteString(scopeIdent + "." + name)
			i = j

		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			word := s[i:j]
			// attribute access keeps the name as written
			if i > 0 && s[i-1] == '.' {
				b.WriteString(word)
			} else {
				b.WriteString(literal(word))
			}
			i = j

		case c == '(' || c == '[' || c == '{':
			end, err := matchBracket(s, i)
			if err != nil {
				return "", err
			}
			inner := s[i+1 : end]
			var tr string
			if c == '{' {
				tr, err = t.dict(inner)
			} else {
				tr, err = t.list(inner)
			}
			if err != nil {
				return "", err
			}
			b.WriteByte(c)
			b.WriteString(tr)
			b.WriteByte(s[end])
			i = end + 1

		case strings.HasPrefix(s[i:], "==="):
			b.WriteString("==")
			i += 3
		case strings.HasPrefix(s[i:], "!=="):
			b.WriteString("!=")
			i += 3
		case strings.HasPrefix(s[i:], "&&"):
			b.WriteString(" and ")
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			b.WriteString(" or ")
			i += 2
		case c == '!' && !strings.HasPrefix(s[i:], "!="):
			// ! binds to its operand only; starlark's not would take the
			// whole comparison
			end, err := unaryOperand(s, i+1)
			if err != nil {
				return "", err
			}
			operand, err := t.tokens(strings.TrimSpace(s[i+1 : end]))
			if err != nil {
				return "", err
			}
			b.WriteString("(not " + operand + ")")
			i = end

		default:
			b.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(collapseSpaces(b.String())), nil
}

// unaryOperand returns the end of the operand of a ! whose operand starts
// at i: further unary operators, then a literal, a name or a bracketed
// group, followed by any .attr, call and index suffixes.
func unaryOperand(s string, i int) (int, error) {
	j := i
	for {
		for j < len(s) && s[j] == ' ' {
			j++
		}
		if j < len(s) && (s[j] == '!' || s[j] == '-' || s[j] == '+') && !strings.HasPrefix(s[j:], "!=") {
			j++
			continue
		}
		break
	}
	if j >= len(s) {
		return 0, fmt.Errorf("expr: '!' without operand in %q", s)
	}

	switch c := s[j]; {
	case c == '"' || c == '\'':
		end, err := skipString(s, j)
		if err != nil {
			return 0, err
		}
		j = end
	case c == '(' || c == '[' || c == '{':
		end, err := matchBracket(s, j)
		if err != nil {
			return 0, err
		}
		j = end + 1
	case c == '$' || isIdentChar(c):
		j++
		for j < len(s) && (isIdentChar(s[j]) || c >= '0' && c <= '9' && s[j] == '.') {
			j++
		}
	default:
		return 0, fmt.Errorf("expr: '!' without operand in %q", s)
	}

	for j < len(s) {
		switch {
		case s[j] == '.' && j+1 < len(s) && isIdentStart(s[j+1]):
			j += 2
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
		case s[j] == '(' || s[j] == '[':
			end, err := matchBracket(s, j)
			if err != nil {
				return 0, err
			}
			j = end + 1
		default:
			return j, nil
		}
	}
	return j, nil
}

func literal(word string) string {
	switch word {
	case "true":
		return "True"
	case "false":
		return "False"
	case "null", "undefined":
		return "None"
	}
	return word
}

// collapseSpaces squeezes the double spaces introduced by operator rewrites.
func collapseSpaces(s string) string {
	var b strings.Builder
	inString := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == inString {
				inString = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			inString = c
		}
		if c == ' ' && i+1 < len(s) && s[i+1] == ' ' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitTop splits s at sep characters that are outside strings and brackets.
func splitTop(s string, sep byte) ([]string, error) {
	var parts []string
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, err := skipString(s, i)
			if err != nil {
				return nil, err
			}
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			end, err := matchBracket(s, i)
			if err != nil {
				return nil, err
			}
			i = end + 1
			continue
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
		i++
	}
	return append(parts, s[start:]), nil
}

// indexTop returns the first top-level index of c at or after from.
func indexTop(s string, c byte, from int) int {
	for i := from; i < len(s); {
		switch ch := s[i]; {
		case ch == '"' || ch == '\'':
			end, err := skipString(s, i)
			if err != nil {
				return -1
			}
			i = end
			continue
		case ch == '(' || ch == '[' || ch == '{':
			end, err := matchBracket(s, i)
			if err != nil {
				return -1
			}
			i = end + 1
			continue
		case ch == c:
			return i
		}
		i++
	}
	return -1
}

// indexTernary finds a top-level '?' that starts a conditional expression.
func indexTernary(s string) int {
	for from := 0; ; {
		q := indexTop(s, '?', from)
		if q < 0 {
			return -1
		}
		// skip ?. and ?? operators
		if q+1 < len(s) && (s[q+1] == '.' || s[q+1] == '?') {
			from = q + 2
			continue
		}
		return q
	}
}

// matchTernaryColon finds the ':' pairing with a '?' whose body starts at from.
func matchTernaryColon(s string, from int) int {
	depth := 0
	for i := from; i < len(s); {
		switch c := s[i]; {
		case c == '"' || c == '\'':
			end, err := skipString(s, i)
			if err != nil {
				return -1
			}
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			end, err := matchBracket(s, i)
			if err != nil {
				return -1
			}
			i = end + 1
			continue
		case c == '?':
			depth++
		case c == ':':
			if depth == 0 {
				return i
			}
			depth--
		}
		i++
	}
	return -1
}

// skipString returns the index just past the string literal starting at i.
func skipString(s string, i int) (int, error) {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("expr: unterminated string in %q", s)
}

// matchBracket returns the index of the bracket closing the one at i.
func matchBracket(s string, i int) (int, error) {
	var stack []byte
	for j := i; j < len(s); j++ {
		switch c := s[j]; c {
		case '"', '\'':
			end, err := skipString(s, j)
			if err != nil {
				return 0, err
			}
			j = end - 1
		case '(':
			stack = append(stack, ')')
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, fmt.Errorf("expr: unbalanced %q in %q", c, s)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return j, nil
			}
		}
	}
	return 0, fmt.Errorf("expr: unclosed %q in %q", s[i], s)
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// ObjectEntries splits an object literal such as {value: $x, transition: 200}
// into its top-level keys and value sources. Quoted keys are unquoted. ok is
// false when s is not a single braced literal.
func ObjectEntries(s string) (entries [][2]string, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' {
		return nil, false
	}
	end, err := matchBracket(s, 0)
	if err != nil || end != len(s)-1 {
		return nil, false
	}
	parts, err := splitTop(s[1:end], ',')
	if err != nil {
		return nil, false
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		colon := indexTop(p, ':', 0)
		if colon < 0 {
			return nil, false
		}
		key := strings.Trim(strings.TrimSpace(p[:colon]), `"'`)
		entries = append(entries, [2]string{key, strings.TrimSpace(p[colon+1:])})
	}
	return entries, true
}
