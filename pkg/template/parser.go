package template

import (
	"fmt"
	"strings"
)

// frame is an open tag on the parser stack.
type frame struct {
	node  *Node
	start int
	text  strings.Builder
	// structured records attributes rewritten into {modifier: value} form.
	structured map[string]bool
}

type parser struct {
	src   string
	pos   int
	doc   *Document
	stack []*frame
}

// Parse scans template markup into a Document.
//
// Tags are matched with a stack: every open tag is pushed and every closing
// tag must match the tag on top of the stack. Comments are skipped wherever
// they appear, including across sibling tags. Parsing stops at the first
// violation and the returned error is always a *Error.
func Parse(src string) (*Document, error) {
	p := &parser{
		src: src,
		doc: &Document{Children: []*Node{}},
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// MustParse is like Parse but panics on error. Intended for templates that
// are compiled into the program.
func MustParse(src string) *Document {
	doc, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return doc
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		i := strings.IndexByte(p.src[p.pos:], '<')
		if i < 0 {
			p.appendText(p.src[p.pos:])
			p.pos = len(p.src)
			break
		}
		p.appendText(p.src[p.pos : p.pos+i])
		p.pos += i

		rest := p.src[p.pos:]
		var err error
		switch {
		case strings.HasPrefix(rest, "<!--"):
			p.skipComment()
		case strings.HasPrefix(rest, "</"):
			err = p.closeTag()
		default:
			err = p.openTag()
		}
		if err != nil {
			return err
		}
	}

	if len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		return p.structureError(CodeMismatchedClosingTag, top.start,
			"missing closing tag for %s", tagLabel(top.node.Type))
	}
	return nil
}

// skipComment advances past the comment at the cursor. An unterminated
// comment swallows the rest of the input.
func (p *parser) skipComment() {
	end := strings.Index(p.src[p.pos+4:], "-->")
	if end < 0 {
		p.pos = len(p.src)
		return
	}
	p.pos += 4 + end + 3
}

func (p *parser) openTag() error {
	start := p.pos
	p.pos++ // '<'
	name := p.readName()

	if len(p.stack) == 0 && len(p.doc.Children) > 0 {
		return p.structureError(CodeMultipleTopLevelTags, start,
			"found %s after the top-level tag %s", tagLabel(name), tagLabel(p.doc.Children[0].Type))
	}

	node := &Node{Type: name}
	f := &frame{node: node, start: start}
	p.attach(node)

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return p.parseError(CodeUnexpectedEnd, start, "unterminated tag %s", tagLabel(name))
		}
		c := p.src[p.pos]
		if c == '>' {
			p.pos++
			p.stack = append(p.stack, f)
			return nil
		}
		if c == '/' && p.peek(1) == '>' {
			p.pos += 2
			return nil
		}
		if err := p.attribute(f); err != nil {
			return err
		}
	}
}

func (p *parser) attribute(f *frame) error {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if isSpace(c) || c == '=' || c == '>' || (c == '/' && p.peek(1) == '>') {
			break
		}
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		// stray character such as a lone '/'
		p.pos++
		return nil
	}

	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '=' {
		p.setAttr(f, name, "")
		return nil
	}
	p.pos++ // '='
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.parseError(CodeUnexpectedEnd, start, "missing value for attribute %q", name)
	}

	var value string
	if q := p.src[p.pos]; q == '"' || q == '\'' {
		end := strings.IndexByte(p.src[p.pos+1:], q)
		if end < 0 {
			return p.parseError(CodeUnexpectedEnd, start, "unterminated value for attribute %q", name)
		}
		value = p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
	} else {
		vstart := p.pos
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			if isSpace(c) || c == '>' || (c == '/' && p.peek(1) == '>') {
				break
			}
			p.pos++
		}
		value = p.src[vstart:p.pos]
	}

	p.setAttr(f, name, collapseLines(value))
	return nil
}

// setAttr stores an attribute, desugaring dotted modifiers:
// x.transition="$v" becomes x="{transition: $v}". A modifier merges into an
// existing value under the same base name.
func (p *parser) setAttr(f *frame, name, value string) {
	node := f.node
	base, modifier, ok := strings.Cut(name, ".")
	if ok && base != "" && modifier != "" {
		existing, has := node.Attr(base)
		switch {
		case !has:
			node.SetAttr(base, "{"+modifier+": "+value+"}")
		case f.structured[base]:
			node.SetAttr(base, existing[:len(existing)-1]+", "+modifier+": "+value+"}")
		default:
			node.SetAttr(base, "{value: "+existing+", "+modifier+": "+value+"}")
		}
		if f.structured == nil {
			f.structured = make(map[string]bool)
		}
		f.structured[base] = true
		return
	}

	if existing, has := node.Attr(name); has && f.structured[name] {
		node.SetAttr(name, existing[:len(existing)-1]+", value: "+value+"}")
		return
	}
	node.SetAttr(name, value)
}

func (p *parser) closeTag() error {
	start := p.pos
	p.pos += 2 // "</"
	name := p.readName()
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.parseError(CodeUnexpectedEnd, start, "unterminated closing tag %s", tagLabel(name))
	}

	switch c := p.src[p.pos]; {
	case c == '/':
		return p.parseError(CodeInvalidClosingTag, start,
			"closing tag %s must not end with />", tagLabel(name))
	case c != '>':
		return p.parseError(CodeAttributesInClosingTag, start,
			"closing tag %s cannot carry attributes", tagLabel(name))
	}
	p.pos++

	if len(p.stack) == 0 {
		return p.structureError(CodeMismatchedClosingTag, start,
			"closing tag %s has no matching open tag", tagLabel(name))
	}
	top := p.stack[len(p.stack)-1]
	if top.node.Type != name {
		return p.structureError(CodeMismatchedClosingTag, start,
			"expected closing tag for %s but found %s", tagLabel(top.node.Type), tagLabel(name))
	}
	p.stack = p.stack[:len(p.stack)-1]

	if len(top.node.Children) == 0 {
		if text := strings.TrimSpace(collapseLines(top.text.String())); text != "" {
			top.node.SetAttr(ContentAttr, text)
		}
	}
	return nil
}

func (p *parser) attach(node *Node) {
	if len(p.stack) == 0 {
		p.doc.Children = append(p.doc.Children, node)
		return
	}
	parent := p.stack[len(p.stack)-1].node
	parent.Children = append(parent.Children, node)
}

func (p *parser) appendText(s string) {
	if len(p.stack) == 0 || s == "" {
		return
	}
	p.stack[len(p.stack)-1].text.WriteString(s)
}

func (p *parser) readName() string {
	start := p.pos
	for p.pos < len(p.src) && isNameChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek(offset int) byte {
	if p.pos+offset >= len(p.src) {
		return 0
	}
	return p.src[p.pos+offset]
}

func (p *parser) structureError(code string, offset int, format string, args ...any) *Error {
	return p.newError(StructureErrorName, code, offset, format, args...)
}

func (p *parser) parseError(code string, offset int, format string, args ...any) *Error {
	return p.newError(ParseErrorName, code, offset, format, args...)
}

func (p *parser) newError(name, code string, offset int, format string, args ...any) *Error {
	line, col := position(p.src, offset)
	return &Error{
		Name:   name,
		Code:   code,
		Detail: fmt.Sprintf(format, args...),
		Line:   line,
		Column: col,
	}
}

// position converts a byte offset to a 1-based line and column.
func position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndexByte(before, '\n')
	return line, col
}

// collapseLines replaces every whitespace run that contains a line break
// with a single space. Whitespace on a single line is kept verbatim.
func collapseLines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if !isSpace(s[i]) {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		newline := false
		for j < len(s) && isSpace(s[j]) {
			if s[j] == '\n' || s[j] == '\r' {
				newline = true
			}
			j++
		}
		if newline {
			b.WriteByte(' ')
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

func tagLabel(name string) string {
	return "<" + name + ">"
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.'
}
