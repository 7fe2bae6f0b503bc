// Package guard makes computed values observe all of their dependencies.
//
// A computed function only subscribes to the values it actually reads while
// it runs. One that returns early on some branch never reads the values on
// the other branches, so it is not re-evaluated when they change:
//
//	"label": func(c *component.Instance) any {
//		if !c.Get("ready").(bool) {
//			return ""
//		}
//		return c.Get("title")
//	},
//
// Transform rewrites such functions so every value read anywhere in the body
// is read once up front:
//
//	"label": func(c *component.Instance) any {
//		// auto-generated reactivity guard
//		c.Get("ready")
//		c.Get("title")
//		if !c.Get("ready").(bool) {
//	...
//
// Only function literals inside a Computed composite literal are rewritten;
// references to named functions are left alone. The transform is idempotent:
// reads already present as leading statements are not repeated, so running
// it on its own output reports no changes.
package guard

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
)

// Marker is the comment placed above inserted guard statements.
const Marker = "auto-generated reactivity guard"

const (
	computedKey = "Computed"
	getter      = "Get"
)

// Result describes a rewritten file.
type Result struct {
	// Source is the formatted output.
	Source []byte
	// Guarded lists the computed entries that received guards, in source
	// order, as "name: prop, prop".
	Guarded []string
}

type edit struct {
	offset int
	text   string
}

// Transform rewrites the computed functions in src. It returns nil when the
// source needs no changes.
func Transform(filename string, src []byte) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	var edits []edit
	var guarded []string
	ast.Inspect(file, func(n ast.Node) bool {
		kv, ok := n.(*ast.KeyValueExpr)
		if !ok {
			return true
		}
		if id, ok := kv.Key.(*ast.Ident); !ok || id.Name != computedKey {
			return true
		}
		lit, ok := kv.Value.(*ast.CompositeLit)
		if !ok {
			return true
		}
		for _, elt := range lit.Elts {
			entry, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				continue
			}
			fn, ok := entry.Value.(*ast.FuncLit)
			if !ok {
				continue
			}
			recv := receiver(fn)
			if recv == "" {
				continue
			}
			missing := missingGuards(fn.Body, recv)
			if len(missing) == 0 {
				continue
			}
			edits = append(edits, edit{
				offset: fset.Position(fn.Body.Lbrace).Offset + 1,
				text:   guardText(recv, missing),
			})
			guarded = append(guarded, fmt.Sprintf("%s: %s", keyName(entry.Key), strings.Join(missing, ", ")))
		}
		return true
	})

	if len(edits) == 0 {
		return nil, nil
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].offset > edits[j].offset })
	out := append([]byte(nil), src...)
	for _, e := range edits {
		out = append(out[:e.offset], append([]byte(e.text), out[e.offset:]...)...)
	}
	formatted, err := format.Source(out)
	if err != nil {
		return nil, fmt.Errorf("guard: format: %w", err)
	}
	return &Result{Source: formatted, Guarded: guarded}, nil
}

// receiver returns the name of the first parameter of fn, or "" when it is
// absent or blank.
func receiver(fn *ast.FuncLit) string {
	params := fn.Type.Params
	if params == nil || len(params.List) == 0 || len(params.List[0].Names) == 0 {
		return ""
	}
	name := params.List[0].Names[0].Name
	if name == "_" {
		return ""
	}
	return name
}

// missingGuards returns the props read through recv.Get in body, in order of
// first appearance, minus those already read by leading guard statements.
func missingGuards(body *ast.BlockStmt, recv string) []string {
	present := map[string]bool{}
	for _, stmt := range body.List {
		es, ok := stmt.(*ast.ExprStmt)
		if !ok {
			break
		}
		prop, ok := getCall(es.X, recv)
		if !ok {
			break
		}
		present[prop] = true
	}

	var missing []string
	seen := map[string]bool{}
	ast.Inspect(body, func(n ast.Node) bool {
		prop, ok := getCall(n, recv)
		if !ok || seen[prop] {
			return true
		}
		seen[prop] = true
		if !present[prop] {
			missing = append(missing, prop)
		}
		return true
	})
	return missing
}

// getCall matches recv.Get("prop") and returns prop.
func getCall(n ast.Node, recv string) (string, bool) {
	call, ok := n.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return "", false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != getter {
		return "", false
	}
	if id, ok := sel.X.(*ast.Ident); !ok || id.Name != recv {
		return "", false
	}
	arg, ok := call.Args[0].(*ast.BasicLit)
	if !ok || arg.Kind != token.STRING {
		return "", false
	}
	prop, err := strconv.Unquote(arg.Value)
	if err != nil {
		return "", false
	}
	return prop, true
}

func guardText(recv string, props []string) string {
	var b strings.Builder
	b.WriteString("\n// " + Marker + "\n")
	for i, p := range props {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s.%s(%s)", recv, getter, strconv.Quote(p))
	}
	// the body may continue on the same line
	b.WriteByte(';')
	return b.String()
}

func keyName(e ast.Expr) string {
	switch k := e.(type) {
	case *ast.BasicLit:
		if s, err := strconv.Unquote(k.Value); err == nil {
			return s
		}
		return k.Value
	case *ast.Ident:
		return k.Name
	}
	return "?"
}
