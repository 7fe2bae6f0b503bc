package template

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// el builds an expected node: attrs are name/value pairs.
func el(typ string, attrs []string, children ...*Node) *Node {
	n := &Node{Type: typ, Children: children}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attrs = append(n.Attrs, Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	return n
}

func a(pairs ...string) []string { return pairs }

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     *Node
	}{
		{
			name:     "single tag",
			template: `<Component></Component>`,
			want:     el("Component", nil),
		},
		{
			name:     "nested tag",
			template: `<Component><Element></Element></Component>`,
			want:     el("Component", nil, el("Element", nil)),
		},
		{
			name:     "static attributes",
			template: `<Component x="10" y="20"></Component>`,
			want:     el("Component", a("x", "10", "y", "20")),
		},
		{
			name: "deep nesting with attributes",
			template: `
    <Component x="10" y="20">
      <Element w="100" h="300" x="0"></Element>
      <Element w="100" h="300" x="50">
        <Button label="Hello"></Button>
        <Button label="World"></Button>
      </Element>
    </Component>`,
			want: el("Component", a("x", "10", "y", "20"),
				el("Element", a("w", "100", "h", "300", "x", "0")),
				el("Element", a("w", "100", "h", "300", "x", "50"),
					el("Button", a("label", "Hello")),
					el("Button", a("label", "World")),
				),
			),
		},
		{
			name:     "reactive attributes",
			template: `<Component x="10" y="20" :w="foo" :h="test" test="ok"></Component>`,
			want:     el("Component", a("x", "10", "y", "20", ":w", "foo", ":h", "test", "test", "ok")),
		},
		{
			name:     "dash in attribute name",
			template: `<Component x="10" y="20" my-Attribute="this"></Component>`,
			want:     el("Component", a("x", "10", "y", "20", "my-Attribute", "this")),
		},
		{
			name:     "self closing tags",
			template: `<Component><Input /><Input /><Input/></Component>`,
			want:     el("Component", nil, el("Input", nil), el("Input", nil), el("Input", nil)),
		},
		{
			name:     "spaces in values",
			template: `<Component attribute="I have spaces"></Component>`,
			want:     el("Component", a("attribute", "I have spaces")),
		},
		{
			name: "expressions",
			template: `
    <Component
      :attribute1="$foo * 2"
      :attribute2="$ok ? 'Yes' : 'No'"
      :attribute5="Math.min($size, 100)"
    />`,
			want: el("Component", a(
				":attribute1", "$foo * 2",
				":attribute2", "$ok ? 'Yes' : 'No'",
				":attribute5", "Math.min($size, 100)",
			)),
		},
		{
			name: "commented tags",
			template: `
    <Component x="10" y="20">
      <!--Element w="100" h="300" x="0"></Element-->
      <Element w="100" h="300" x="50">
        <Button label="Hello"></Button>
        <!--Button label="World"></Button-->
      </Element>
    </Component>`,
			want: el("Component", a("x", "10", "y", "20"),
				el("Element", a("w", "100", "h", "300", "x", "50"),
					el("Button", a("label", "Hello")),
				),
			),
		},
		{
			name: "comment spanning sibling tags",
			template: `
    <Component x="10" y="20">
      <Element w="100" h="300" x="50">
        <!--Button label="Hello"></Button>
        <Button label="World"></Button-->
      </Element>
    </Component>`,
			want: el("Component", a("x", "10", "y", "20"),
				el("Element", a("w", "100", "h", "300", "x", "50")),
			),
		},
		{
			name: "enclosing comment",
			template: `
    <Component>
      <Element x="50">
        <!--
          <Button label="Hello"></Button>
          <Button label="World"></Button>
        -->
      </Element>
    </Component>`,
			want: el("Component", nil, el("Element", a("x", "50"))),
		},
		{
			name: "for loop",
			template: `
    <List>
      <ListItem :for="item in $items" />
    </List>`,
			want: el("List", nil, el("ListItem", a(":for", "item in $items"))),
		},
		{
			name: "nameless tag",
			template: `
    <>
      <Component x="50" y="20">
        <Component w="100" h="20" />
      </Component>
    </>`,
			want: el("", nil,
				el("Component", a("x", "50", "y", "20"),
					el("Component", a("w", "100", "h", "20")),
				),
			),
		},
		{
			name:     "transition modifier",
			template: `<Element x.transition="$offset" y="200"></Element>`,
			want:     el("Element", a("x", "{transition: $offset}", "y", "200")),
		},
		{
			name:     "reactive transition modifier with object",
			template: `<Element :x.transition="{v: $offset, d: 2000}" y="200"></Element>`,
			want:     el("Element", a(":x", "{transition: {v: $offset, d: 2000}}", "y", "200")),
		},
		{
			name:     "other modifier",
			template: `<Element x.modifier="ok" y="200"></Element>`,
			want:     el("Element", a("x", "{modifier: ok}", "y", "200")),
		},
		{
			name:     "modifier merges with bound value",
			template: `<Element :x="$pos" :x.transition="$d"></Element>`,
			want:     el("Element", a(":x", "{value: $pos, transition: $d}")),
		},
		{
			name:     "two modifiers merge",
			template: `<Element :x.transition="$d" :x.delay="200"></Element>`,
			want:     el("Element", a(":x", "{transition: $d, delay: 200}")),
		},
		{
			name: "multi-line values with mixed quotes",
			template: `
  <Component>
    <Element
      w='160' color="#fb923c"
      :effects='[$shader(
        "radius",
        {radius: 44}
      )]'
    />
    <Element
      :effects="[
        $shader(
          'radius',
          {
            radius: 45
          }
        )
      ]"
    />
  </Component>`,
			want: el("Component", nil,
				el("Element", a("w", "160", "color", "#fb923c", ":effects", `[$shader( "radius", {radius: 44} )]`)),
				el("Element", a(":effects", "[ $shader( 'radius', { radius: 45 } ) ]")),
			),
		},
		{
			name: "inline text",
			template: `
  <Component>
    <Element x="40">Lorem ipsum</Element>
    <Element>dolor sit amet</Element>
    <Element>
      <Text>consectetur adipiscing elit</Text>
    </Element>
  </Component>`,
			want: el("Component", nil,
				el("Element", a("x", "40", "content", "Lorem ipsum")),
				el("Element", a("content", "dolor sit amet")),
				el("Element", nil, el("Text", a("content", "consectetur adipiscing elit"))),
			),
		},
		{
			name:     "event attribute",
			template: `<Component><Element w="160" @loaded="@loaded" /></Component>`,
			want:     el("Component", nil, el("Element", a("w", "160", "@loaded", "@loaded"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.template)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			want := &Document{Children: []*Node{tt.want}}
			if diff := cmp.Diff(want, doc, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	doc, err := Parse("")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.Children == nil || len(doc.Children) != 0 {
		t.Errorf("Expected empty children, got %v", doc.Children)
	}
	if doc.Root() != nil {
		t.Error("Expected nil root for empty template")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		category string
		sentinel error
	}{
		{
			name: "multiple top level tags",
			template: `
  <Component>
    <Element :effects="[$shader('radius', {radius: 44})]" />
  </Component>
  <Component>
    <Element />
  </Component>`,
			category: StructureErrorName,
			sentinel: ErrMultipleTopLevelTags,
		},
		{
			name:     "multiple self closing top level tags",
			template: "\n  <Component/>\n  <Element/>\n",
			category: StructureErrorName,
			sentinel: ErrMultipleTopLevelTags,
		},
		{
			name:     "unclosed tag",
			template: "<Component>\n  <Element>\n</Component>",
			category: StructureErrorName,
			sentinel: ErrMismatchedClosingTag,
		},
		{
			name: "multiple unclosed tags",
			template: `
  <Component>
    <Element>
      <Button />
      <Text>Lorem Ipsum</Text>
      <Element>
  </Component>`,
			category: StructureErrorName,
			sentinel: ErrMismatchedClosingTag,
		},
		{
			name:     "unclosed at end of input",
			template: "<Component><Element></Element>",
			category: StructureErrorName,
			sentinel: ErrMismatchedClosingTag,
		},
		{
			name:     "closing tag first",
			template: "</Element>\n<Component><Element/></Component>",
			category: StructureErrorName,
			sentinel: ErrMismatchedClosingTag,
		},
		{
			name:     "invalid closing tag",
			template: "<Component>\n  <Element>\n  </Element/>\n</Component>",
			category: ParseErrorName,
			sentinel: ErrInvalidClosingTag,
		},
		{
			name:     "attributes in closing tag",
			template: "<Component>\n  <Text>Lorem</Text>\n  <Element></Element x=\"200\">\n</Component>",
			category: ParseErrorName,
			sentinel: ErrAttributesInClosingTag,
		},
		{
			name:     "unterminated attribute",
			template: `<Component x="10></Component>`,
			category: ParseErrorName,
			sentinel: ErrUnexpectedEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.template)
			if err == nil {
				t.Fatal("Expected an error")
			}
			var terr *Error
			if !errors.As(err, &terr) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if terr.Name != tt.category {
				t.Errorf("Expected name %s, got %s", tt.category, terr.Name)
			}
			code := tt.sentinel.(*Error).Code
			if !strings.HasPrefix(err.Error(), code) {
				t.Errorf("Expected message to start with %s, got %q", code, err.Error())
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected errors.Is(err, %s)", code)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("<Component>\n  <Element>\n  </Element/>\n</Component>")
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if terr.Line != 3 || terr.Column != 3 {
		t.Errorf("Expected line 3 column 3, got line %d column %d", terr.Line, terr.Column)
	}
}

func TestParseWhitespaceIndependent(t *testing.T) {
	compact := `<Component x="1"><Element y="2"/><Element y="3"></Element></Component>`
	spread := `

	<Component   x="1">
		<Element
			y="2"
		/>

		<Element y="3">
		</Element>
	</Component>
`
	a, err := Parse(compact)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(spread)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Whitespace changed the tree (-compact +spread):\n%s", diff)
	}
}

func TestJSONProjection(t *testing.T) {
	doc := MustParse(`<><Component x="10" :y="$y"><Text>hi</Text></Component></>`)

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"children":[{"type":null,"children":[{"type":"Component","x":"10",":y":"$y","children":[{"type":"Text","content":"hi"}]}]}]}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doc, &back, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("JSON round trip mismatch (-want +got):\n%s", diff)
	}

	again, err := json.Marshal(&back)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("Second projection differs:\n%s\n%s", data, again)
	}
}

func TestBinaryProjection(t *testing.T) {
	doc := MustParse(`<Component x="10"><Element :show="$visible" /><Text>hello</Text></Component>`)

	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doc, back, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Binary round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCollapseLines(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"two  spaces", "two  spaces"},
		{"a\n  b", "a b"},
		{"a \n\n\t b", "a b"},
		{"\n  lead", " lead"},
	}
	for _, tt := range tests {
		if got := collapseLines(tt.in); got != tt.want {
			t.Errorf("collapseLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
