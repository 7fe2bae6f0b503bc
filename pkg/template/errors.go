package template

import "fmt"

// Error categories. Structure errors describe the shape of the whole
// document; parse errors describe a single malformed token.
const (
	StructureErrorName = "TemplateStructureError"
	ParseErrorName     = "TemplateParseError"
)

// Error codes. An error message always starts with its code.
const (
	CodeMultipleTopLevelTags   = "MultipleTopLevelTags"
	CodeMismatchedClosingTag   = "MismatchedClosingTag"
	CodeInvalidClosingTag      = "InvalidClosingTag"
	CodeAttributesInClosingTag = "AttributesInClosingTag"
	CodeUnexpectedEnd          = "UnexpectedEndOfTemplate"
)

// Sentinels for errors.Is. Matching compares the code only.
var (
	ErrMultipleTopLevelTags   = &Error{Name: StructureErrorName, Code: CodeMultipleTopLevelTags}
	ErrMismatchedClosingTag   = &Error{Name: StructureErrorName, Code: CodeMismatchedClosingTag}
	ErrInvalidClosingTag      = &Error{Name: ParseErrorName, Code: CodeInvalidClosingTag}
	ErrAttributesInClosingTag = &Error{Name: ParseErrorName, Code: CodeAttributesInClosingTag}
	ErrUnexpectedEnd          = &Error{Name: ParseErrorName, Code: CodeUnexpectedEnd}
)

// Error is returned by Parse. Name is StructureErrorName or ParseErrorName.
type Error struct {
	Name   string
	Code   string
	Detail string
	// Line and Column are 1-based and point at the offending tag.
	Line   int
	Column int
}

// Message returns the error text without the category, starting with Code.
func (e *Error) Message() string {
	if e.Detail == "" {
		return e.Code
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Code, e.Detail, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Error() string {
	return e.Message()
}

// Is reports whether target is a template error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsStructure reports whether the error concerns the document shape.
func (e *Error) IsStructure() bool {
	return e.Name == StructureErrorName
}
