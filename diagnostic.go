package arxml

import (
	"fmt"
	"strings"
)

// Diagnostic represents a rustc-style validation diagnostic
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Position  Position `json:"position"`
	Tag       string   `json:"tag"`
	XMLPath   string   `json:"xml_path"`
	Attribute string   `json:"attribute,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information for an element
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int64  `json:"offset"`
}

// IsZero reports whether p carries no location
func (p Position) IsZero() bool {
	return p.File == "" && p.Line == 0
}

func (p Position) String() string {
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// DiagnosticConverter converts model violations to rustc-style diagnostics
type DiagnosticConverter struct {
	// Strict reports membership problems as errors instead of warnings
	Strict bool
}

// NewDiagnosticConverter creates a new converter
func NewDiagnosticConverter() *DiagnosticConverter {
	return &DiagnosticConverter{}
}

// Convert converts violations to diagnostics
func (dc *DiagnosticConverter) Convert(violations []Violation) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(violations))
	for _, v := range violations {
		diagnostics = append(diagnostics, dc.convertViolation(v))
	}
	return diagnostics
}

func (dc *DiagnosticConverter) convertViolation(v Violation) Diagnostic {
	return Diagnostic{
		Severity:  dc.getSeverity(v.Code),
		Code:      dc.mapErrorCode(v.Code),
		Message:   v.Message,
		Position:  v.Element.Origin(),
		Tag:       string(v.Element.Type()),
		XMLPath:   v.Element.XMLPath(),
		Attribute: v.Attribute,
		Hints:     dc.generateHints(v),
	}
}

func (dc *DiagnosticConverter) getSeverity(code string) Severity {
	switch code {
	case CodeOrphanElement, CodeUnreachableInFile:
		if dc.Strict {
			return SeverityError
		}
		return SeverityWarning
	case CodeMissingValue:
		return SeverityWarning
	}
	return SeverityError
}

// mapErrorCode maps violation codes to short diagnostic codes
func (dc *DiagnosticConverter) mapErrorCode(code string) string {
	codeMap := map[string]string{
		CodeMissingElement:    "E100",
		CodeMissingAttribute:  "E101",
		CodeMissingValue:      "W102",
		CodeInvalidReference:  "E110",
		CodeOrphanElement:     "W120",
		CodeUnreachableInFile: "W121",
	}
	if mapped, ok := codeMap[code]; ok {
		return mapped
	}
	return "E" + strings.ReplaceAll(code, "-", "_")
}

func (dc *DiagnosticConverter) generateHints(v Violation) []string {
	var hints []string
	switch v.Code {
	case CodeMissingElement:
		if len(v.Expected) > 0 {
			hints = append(hints, fmt.Sprintf("Add a <%s> element", strings.Join(v.Expected, "> or <")))
		}
	case CodeMissingAttribute:
		if len(v.Expected) == 1 {
			hints = append(hints, fmt.Sprintf("Add required attribute: %s=\"...\"", v.Expected[0]))
		}
	case CodeInvalidReference:
		hints = append(hints,
			fmt.Sprintf("Ensure there is an element with path '%s' in the model", v.Actual),
			"Item names are case-sensitive")
	case CodeOrphanElement:
		hints = append(hints, "Add the element to a file or remove it")
	case CodeUnreachableInFile:
		hints = append(hints, fmt.Sprintf("Add the parent element to file %q", v.Actual))
	}
	return hints
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color bool
}

// Format formats a diagnostic in rustc style. source is the text of the file
// named by the diagnostic position, or empty.
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m"
		}
	}
	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", severity, diag.Code, diag.Message))

	if diag.Position.IsZero() {
		sb.WriteString(" --> " + diag.XMLPath + "\n")
	} else {
		sb.WriteString(" --> " + diag.Position.String() + " (" + diag.XMLPath + ")\n")
	}

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			sb.WriteString(fmt.Sprintf("%4d | ", diag.Position.Line))
			sb.WriteString(lines[diag.Position.Line-1] + "\n")
			sb.WriteString("     | ")
			if diag.Position.Column > 0 {
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m")
				} else {
					sb.WriteString("^")
				}
				sb.WriteString(strings.Repeat("~", len(diag.Tag)))
			}
			sb.WriteString("\n")
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}
	return sb.String()
}
