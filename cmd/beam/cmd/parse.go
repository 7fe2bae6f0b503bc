package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-drift/beam/cmd/beam/internal/precompile"
	"github.com/go-drift/beam/pkg/template"
)

func init() {
	RegisterCommand(&Command{
		Name:  "parse",
		Short: "Print the parsed tree of a template",
		Long: `Parse a template and print its tree as JSON.

Every node is printed as {"type": ..., <attributes>..., "children": [...]}.
Text between tags appears as the "content" attribute. Fragments have a
null type.

A file ending in .tree is read as the binary projection written by
"beam precompile" instead of being parsed.`,
		Usage: "beam parse <file>",
		Run:   runParse,
	})
}

func runParse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one file is required\n\nUsage: beam parse <file>")
	}
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

// loadDocument reads a template source or a precompiled tree.
func loadDocument(path string) (*template.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == precompile.TreeSuffix {
		return template.Decode(data)
	}
	doc, err := template.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
