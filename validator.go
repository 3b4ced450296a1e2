package arxml

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Violation codes reported by Validate
const (
	CodeMissingElement    = "arxml-missing-element"
	CodeMissingAttribute  = "arxml-missing-attribute"
	CodeMissingValue      = "arxml-missing-value"
	CodeInvalidReference  = "arxml-invalid-reference"
	CodeOrphanElement     = "arxml-orphan-element"
	CodeUnreachableInFile = "arxml-unreachable-in-file"
)

// Violation is one problem found by Validate
type Violation struct {
	Element   Element
	Attribute string
	Code      string
	Message   string
	Expected  []string
	Actual    string
}

// Error implements error
func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Element, v.Message)
}

// declSource is implemented by schemas that expose their declarations.
// Occurrence and required attribute checks need it.
type declSource interface {
	Decl(t ElementType) (*ElementDecl, bool)
}

// Validator checks a model for states the mutation API permits but a
// complete document must not have: missing mandatory content, dangling
// references and elements that are in no file
type Validator struct {
	model      *Model
	decls      declSource
	violations []Violation
}

// NewValidator creates a new validator for a model
func NewValidator(m *Model) *Validator {
	decls, _ := m.schema.(declSource)
	return &Validator{
		model: m,
		decls: decls,
	}
}

// Validate walks the whole model and returns the violations in depth first
// order
func (v *Validator) Validate() []Violation {
	m := v.model
	m.mu.RLock()
	defer m.mu.RUnlock()

	v.violations = make([]Violation, 0)
	hasFiles := len(m.files) > 0
	v.walk(m.root, m.liveFiles(), nil, hasFiles)
	return v.violations
}

// Validate runs a Validator over the model
func (m *Model) Validate() []Violation {
	return NewValidator(m).Validate()
}

func (v *Validator) walk(h handle, inherited, parentFiles fileSet, hasFiles bool) {
	m := v.model
	nd, ok := m.node(h)
	if !ok {
		return
	}
	eff := m.localOr(nd, inherited)

	if hasFiles {
		v.validateMembership(h, eff, parentFiles)
	}
	v.validateContent(h, nd)
	v.validateAttributes(h, nd)
	if _, isRef := m.schema.ReferenceDestinations(nd.typ); isRef && len(nd.content) > 0 {
		if _, err := m.referenceTarget(h); err != nil {
			v.addViolation(h, "", CodeInvalidReference, rootMessage(err), nil, nd.content[0].text.String())
		}
	}

	for _, it := range nd.content {
		if it.isElement() {
			v.walk(it.child, eff, eff, hasFiles)
		}
	}
}

func (v *Validator) validateMembership(h handle, eff, parentFiles fileSet) {
	m := v.model
	if len(eff) == 0 {
		v.addViolation(h, "", CodeOrphanElement, "element is not part of any file", nil, "")
		return
	}
	if parentFiles == nil {
		return
	}
	for _, f := range m.sortedFiles(eff) {
		if _, ok := parentFiles[f.id]; !ok {
			v.addViolation(h, "", CodeUnreachableInFile,
				fmt.Sprintf("element is part of file %q but its parent is not", f.name),
				nil, f.name)
		}
	}
}

func (v *Validator) validateContent(h handle, nd *node) {
	if v.decls == nil {
		return
	}
	decl, ok := v.decls.Decl(nd.typ)
	if !ok {
		return
	}
	if decl.Content == CharacterDataContent {
		if len(nd.content) == 0 {
			v.addViolation(h, "", CodeMissingValue, "element has no value", nil, "")
		}
		return
	}

	counts := make(map[ElementType]int)
	for _, t := range subElementTypes(v.model, nd, handle{}) {
		counts[t]++
	}

	if decl.Group == ChoiceGroup {
		total := 0
		var names []string
		required := true
		for _, sub := range decl.SubElements {
			total += counts[sub.Name]
			names = append(names, string(sub.Name))
			if sub.MinOcc == 0 {
				required = false
			}
		}
		if total == 0 && required && len(names) > 0 {
			v.addViolation(h, "", CodeMissingElement,
				fmt.Sprintf("Missing one of: %s", strings.Join(names, ", ")), names, "")
			return
		}
	}

	for _, sub := range decl.SubElements {
		count := counts[sub.Name]
		if decl.Group == ChoiceGroup && count == 0 {
			continue
		}
		if count < sub.MinOcc {
			v.addViolation(h, "", CodeMissingElement,
				fmt.Sprintf("Element '%s' occurs %d times, at least %d required", sub.Name, count, sub.MinOcc),
				[]string{string(sub.Name)}, fmt.Sprint(count))
		}
	}
}

func (v *Validator) validateAttributes(h handle, nd *node) {
	if v.decls == nil {
		return
	}
	decl, ok := v.decls.Decl(nd.typ)
	if !ok {
		return
	}
	for _, attr := range decl.Attributes {
		if !attr.Required {
			continue
		}
		present := false
		for _, have := range nd.attrs {
			if have.Name == attr.Name {
				present = true
				break
			}
		}
		if !present {
			v.addViolation(h, string(attr.Name), CodeMissingAttribute,
				fmt.Sprintf("Missing required attribute '%s'", attr.Name),
				[]string{string(attr.Name)}, "")
		}
	}
}

// addViolation adds a violation to the list
func (v *Validator) addViolation(h handle, attr, code, message string, expected []string, actual string) {
	v.violations = append(v.violations, Violation{
		Element:   v.model.element(h),
		Attribute: attr,
		Code:      code,
		Message:   message,
		Expected:  expected,
		Actual:    actual,
	})
}

// ViolationsError combines violations into one error, nil if there are none
func ViolationsError(violations []Violation) error {
	var result *multierror.Error
	for _, v := range violations {
		result = multierror.Append(result, v)
	}
	return result.ErrorOrNil()
}

// rootMessage strips the sentinel text from a wrapped error message
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "+errors.Cause(err).Error()); i >= 0 {
		return msg[:i]
	}
	return msg
}
