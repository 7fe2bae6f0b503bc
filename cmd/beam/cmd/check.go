package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-drift/beam/pkg/codegen"
	"github.com/go-drift/beam/pkg/template"
)

func init() {
	RegisterCommand(&Command{
		Name:  "check",
		Short: "Report template errors",
		Long: `Parse and compile templates without running them.

Errors are printed one per line as

  file:line:column: category code: detail

Templates that parse are also compiled, so malformed binding expressions
and :for clauses are reported as well.`,
		Usage: "beam check <file>...",
		Run:   runCheck,
	})
}

func runCheck(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("at least one file is required\n\nUsage: beam check <file>...")
	}
	failed := 0
	for _, path := range args {
		if msg := checkFile(path); msg != "" {
			fmt.Fprintln(stdout, msg)
			failed++
			continue
		}
		logger.Debug("template ok", "file", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(args))
	}
	return nil
}

// checkFile returns a diagnostic line, or "" when the template is valid.
func checkFile(path string) string {
	doc, err := loadDocument(path)
	if err != nil {
		var te *template.Error
		if errors.As(err, &te) {
			return fmt.Sprintf("%s:%d:%d: %s %s: %s", path, te.Line, te.Column, te.Name, te.Code, te.Detail)
		}
		return fmt.Sprintf("%s: %v", path, err)
	}
	root := doc.Root()
	if root == nil {
		return ""
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := codegen.Generate(root, codegen.Options{Name: name}); err != nil {
		return fmt.Sprintf("%s: %v", path, err)
	}
	return ""
}
