package arxml

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// FacetValidator validates a value against one restriction of a CharacterDataSpec
type FacetValidator interface {
	Validate(value CharacterData) error
	Name() string
}

// PatternFacet validates the string form against a regular expression pattern
type PatternFacet struct {
	Pattern string
	regex   *regexp.Regexp
	err     error
}

// NewPatternFacet compiles an XSD style pattern. XSD patterns are anchored.
func NewPatternFacet(pattern string) *PatternFacet {
	f := &PatternFacet{Pattern: pattern}
	f.regex, f.err = regexp.Compile("^(?:" + convertXSDRegex(pattern) + ")$")
	return f
}

func (f *PatternFacet) Name() string {
	return "pattern"
}

func (f *PatternFacet) Validate(value CharacterData) error {
	if f.err != nil {
		return fmt.Errorf("invalid pattern: %v", f.err)
	}
	if f.regex == nil {
		return fmt.Errorf("pattern %q was not compiled", f.Pattern)
	}
	if !f.regex.MatchString(value.String()) {
		return fmt.Errorf("value '%s' does not match pattern '%s'", value.String(), f.Pattern)
	}
	return nil
}

// convertXSDRegex converts XSD regex patterns to Go regex
func convertXSDRegex(pattern string) string {
	result := pattern

	// Convert character class shortcuts
	result = strings.ReplaceAll(result, `\i`, `[_:A-Za-z]`)       // Initial name char
	result = strings.ReplaceAll(result, `\c`, `[_:A-Za-z0-9.-]`) // Name char
	result = strings.ReplaceAll(result, `\d`, `[0-9]`)           // Digit
	result = strings.ReplaceAll(result, `\D`, `[^0-9]`)          // Non-digit
	result = strings.ReplaceAll(result, `\s`, `[ \t\n\r]`)       // Whitespace
	result = strings.ReplaceAll(result, `\S`, `[^ \t\n\r]`)      // Non-whitespace
	result = strings.ReplaceAll(result, `\w`, `[A-Za-z0-9_]`)    // Word char
	result = strings.ReplaceAll(result, `\W`, `[^A-Za-z0-9_]`)   // Non-word char

	return result
}

// EnumerationFacet validates against a set of allowed tokens
type EnumerationFacet struct {
	Values []string
}

func (f *EnumerationFacet) Name() string {
	return "enumeration"
}

func (f *EnumerationFacet) Validate(value CharacterData) error {
	token := value.String()
	for _, allowed := range f.Values {
		if token == allowed {
			return nil
		}
	}
	return fmt.Errorf("value '%s' is not in enumeration %v", token, f.Values)
}

// MaxLengthFacet validates the maximum length of a string in runes
type MaxLengthFacet struct {
	Value int
}

func (f *MaxLengthFacet) Name() string {
	return "maxLength"
}

func (f *MaxLengthFacet) Validate(value CharacterData) error {
	length := utf8.RuneCountInString(value.String())
	if length > f.Value {
		return fmt.Errorf("length must be at most %d, got %d", f.Value, length)
	}
	return nil
}

// FormatFacet validates the string form against a registered builtin format
type FormatFacet struct {
	Format string
}

func (f *FormatFacet) Name() string {
	return "format"
}

func (f *FormatFacet) Validate(value CharacterData) error {
	validator := GetFormat(f.Format)
	if validator == nil {
		return fmt.Errorf("unknown format %q", f.Format)
	}
	return validator.Validator(value.String())
}

// MinInclusiveFacet validates minimum value (inclusive)
type MinInclusiveFacet struct {
	Value float64
}

func (f *MinInclusiveFacet) Name() string {
	return "minInclusive"
}

func (f *MinInclusiveFacet) Validate(value CharacterData) error {
	v, ok := numericValue(value)
	if !ok {
		return fmt.Errorf("value '%s' is not numeric", value.String())
	}
	if v < f.Value {
		return fmt.Errorf("value must be >= %v, got %s", f.Value, value.String())
	}
	return nil
}

// MaxInclusiveFacet validates maximum value (inclusive)
type MaxInclusiveFacet struct {
	Value float64
}

func (f *MaxInclusiveFacet) Name() string {
	return "maxInclusive"
}

func (f *MaxInclusiveFacet) Validate(value CharacterData) error {
	v, ok := numericValue(value)
	if !ok {
		return fmt.Errorf("value '%s' is not numeric", value.String())
	}
	if v > f.Value {
		return fmt.Errorf("value must be <= %v, got %s", f.Value, value.String())
	}
	return nil
}

func numericValue(value CharacterData) (float64, bool) {
	switch value.Kind() {
	case IntegerKind:
		i, _ := value.Int()
		return float64(i), true
	case FloatKind:
		return value.Float()
	default:
		return 0, false
	}
}
