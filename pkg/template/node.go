package template

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Attr is a single attribute of a template node. Names keep their directive
// prefix (":" for reactive bindings, "@" for events).
type Attr struct {
	Name  string `msgpack:"n"`
	Value string `msgpack:"v"`
}

// Node is one tag of a parsed template.
//
// A node has either element children or text content, never both. Text
// content is stored as the "content" attribute.
type Node struct {
	// Type is the tag name. An empty Type denotes a nameless fragment (<>...</>).
	Type string `msgpack:"t"`
	// Attrs holds the attributes in source order.
	Attrs []Attr `msgpack:"a,omitempty"`
	// Children holds the nested tags in source order.
	Children []*Node `msgpack:"c,omitempty"`
}

// Document is the result of parsing a template. A valid document holds
// exactly one top-level node; an empty template yields no children.
type Document struct {
	Children []*Node `json:"children" msgpack:"c"`
}

// Root returns the single top-level node, or nil for an empty template.
func (d *Document) Root() *Node {
	if d == nil || len(d.Children) == 0 {
		return nil
	}
	return d.Children[0]
}

// IsFragment reports whether the node is a nameless wrapper tag.
func (n *Node) IsFragment() bool {
	return n.Type == ""
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets an attribute, keeping the original position of an existing one.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// DeleteAttr removes an attribute if present.
func (n *Node) DeleteAttr(name string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// Content returns the inline text of the node.
func (n *Node) Content() string {
	v, _ := n.Attr(ContentAttr)
	return v
}

// ContentAttr is the attribute that carries inline text between tags.
const ContentAttr = "content"

// MarshalJSON writes the structural projection used by tooling and tests:
// {"type": ..., <attrs>..., "children": [...]}. Fragments have a null type.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if n.Type == "" {
		buf.WriteString("null")
	} else {
		writeJSONString(&buf, n.Type)
	}
	for _, a := range n.Attrs {
		buf.WriteByte(',')
		writeJSONString(&buf, a.Name)
		buf.WriteByte(':')
		writeJSONString(&buf, a.Value)
	}
	if len(n.Children) > 0 {
		buf.WriteString(`,"children":`)
		children, err := json.Marshal(n.Children)
		if err != nil {
			return nil, err
		}
		buf.Write(children)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the projection written by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("template: node projection must be a JSON object")
	}
	*n = Node{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		switch key {
		case "type":
			var t *string
			if err := dec.Decode(&t); err != nil {
				return err
			}
			if t != nil {
				n.Type = *t
			}
		case "children":
			if err := dec.Decode(&n.Children); err != nil {
				return err
			}
		default:
			var v string
			if err := dec.Decode(&v); err != nil {
				return err
			}
			n.Attrs = append(n.Attrs, Attr{Name: key, Value: v})
		}
	}
	_, err = dec.Token()
	return err
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Walk calls fn for the node and each descendant in document order.
// Returning false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
