package arxml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ValueKind is the kind of a CharacterData value
type ValueKind int

const (
	// StringKind is free UTF-8 text
	StringKind ValueKind = iota
	// IntegerKind is a signed 64 bit integer
	IntegerKind
	// FloatKind is a 64 bit floating point number
	FloatKind
	// EnumKind is a token from a schema defined set
	EnumKind
)

// String returns the name of the kind as used in schema files
func (k ValueKind) String() string {
	switch k {
	case StringKind:
		return "string"
	case IntegerKind:
		return "integer"
	case FloatKind:
		return "float"
	case EnumKind:
		return "enum"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// ParseValueKind is the inverse of ValueKind.String
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return StringKind, nil
	case "integer", "int":
		return IntegerKind, nil
	case "float", "double":
		return FloatKind, nil
	case "enum", "enumeration":
		return EnumKind, nil
	default:
		return StringKind, errors.Errorf("unknown value kind %q", s)
	}
}

// CharacterData is a typed value used for attribute values and leaf text.
// The zero value is an empty string.
type CharacterData struct {
	kind ValueKind
	text string
	num  int64
	flt  float64
}

// StringValue returns text character data
func StringValue(s string) CharacterData {
	return CharacterData{kind: StringKind, text: s}
}

// IntegerValue returns integer character data
func IntegerValue(i int64) CharacterData {
	return CharacterData{kind: IntegerKind, num: i}
}

// FloatValue returns floating point character data
func FloatValue(f float64) CharacterData {
	return CharacterData{kind: FloatKind, flt: f}
}

// EnumValue returns an enumeration token
func EnumValue(token string) CharacterData {
	return CharacterData{kind: EnumKind, text: token}
}

// Kind returns the kind of the value
func (cd CharacterData) Kind() ValueKind {
	return cd.kind
}

// Text returns the value of a StringKind value
func (cd CharacterData) Text() (string, bool) {
	return cd.text, cd.kind == StringKind
}

// Enum returns the token of an EnumKind value
func (cd CharacterData) Enum() (string, bool) {
	return cd.text, cd.kind == EnumKind
}

// Int returns the value of an IntegerKind value
func (cd CharacterData) Int() (int64, bool) {
	return cd.num, cd.kind == IntegerKind
}

// Float returns the value of a FloatKind value
func (cd CharacterData) Float() (float64, bool) {
	return cd.flt, cd.kind == FloatKind
}

// String renders the value the way it appears in a document
func (cd CharacterData) String() string {
	switch cd.kind {
	case IntegerKind:
		return strconv.FormatInt(cd.num, 10)
	case FloatKind:
		switch {
		case math.IsInf(cd.flt, 1):
			return "INF"
		case math.IsInf(cd.flt, -1):
			return "-INF"
		case math.IsNaN(cd.flt):
			return "NaN"
		}
		return strconv.FormatFloat(cd.flt, 'g', -1, 64)
	default:
		return cd.text
	}
}

// CharacterDataSpec declares which values are legal at an attribute or
// character data content position
type CharacterDataSpec struct {
	Kind ValueKind
	// Enumeration lists the legal tokens of an EnumKind value
	Enumeration []string
	// Pattern is an XSD style pattern the string form must match
	Pattern string
	// Format names a builtin string format, see RegisterFormat
	Format string
	// MaxLength limits the length of string values in runes, 0 means unlimited
	MaxLength int
	// MinInclusive and MaxInclusive bound numeric values
	MinInclusive *float64
	MaxInclusive *float64

	once   sync.Once
	facets []FacetValidator
}

// Check verifies that cd satisfies these constraints. A kind mismatch or a
// violated restriction is reported as ErrTypeMismatch.
func (s *CharacterDataSpec) Check(cd CharacterData) error {
	if s == nil {
		return nil
	}
	if cd.kind != s.Kind {
		return errors.Wrapf(ErrTypeMismatch, "expected %s value, got %s %q", s.Kind, cd.kind, cd.String())
	}
	for _, facet := range s.compiledFacets() {
		if err := facet.Validate(cd); err != nil {
			return errors.Wrapf(ErrTypeMismatch, "%s: %v", facet.Name(), err)
		}
	}
	return nil
}

// Parse converts text into a value of the declared kind and checks it.
// Text that cannot be converted yields ErrParse.
func (s *CharacterDataSpec) Parse(text string) (CharacterData, error) {
	if s == nil {
		return StringValue(text), nil
	}
	var cd CharacterData
	switch s.Kind {
	case StringKind:
		cd = StringValue(text)
	case EnumKind:
		cd = EnumValue(strings.TrimSpace(text))
		if len(s.Enumeration) > 0 && !s.hasToken(cd.text) {
			return CharacterData{}, errors.Wrapf(ErrParse, "%q is not one of %v", text, s.Enumeration)
		}
	case IntegerKind:
		v, err := parseInteger(text)
		if err != nil {
			return CharacterData{}, errors.Wrapf(ErrParse, "%q is not an integer", text)
		}
		cd = IntegerValue(v)
	case FloatKind:
		v, err := parseFloat(text)
		if err != nil {
			return CharacterData{}, errors.Wrapf(ErrParse, "%q is not a number", text)
		}
		cd = FloatValue(v)
	}
	if err := s.Check(cd); err != nil {
		return CharacterData{}, err
	}
	return cd, nil
}

func (s *CharacterDataSpec) hasToken(token string) bool {
	for _, allowed := range s.Enumeration {
		if allowed == token {
			return true
		}
	}
	return false
}

// compiledFacets builds the facet list on first use. Specs are immutable
// once they are part of a schema.
func (s *CharacterDataSpec) compiledFacets() []FacetValidator {
	s.once.Do(func() {
		s.facets = s.buildFacets()
	})
	return s.facets
}

func (s *CharacterDataSpec) buildFacets() []FacetValidator {
	var facets []FacetValidator
	if s.Kind == EnumKind && len(s.Enumeration) > 0 {
		facets = append(facets, &EnumerationFacet{Values: s.Enumeration})
	}
	if s.MaxLength > 0 {
		facets = append(facets, &MaxLengthFacet{Value: s.MaxLength})
	}
	if s.Pattern != "" {
		facets = append(facets, NewPatternFacet(s.Pattern))
	}
	if s.Format != "" {
		facets = append(facets, &FormatFacet{Format: s.Format})
	}
	if s.MinInclusive != nil {
		facets = append(facets, &MinInclusiveFacet{Value: *s.MinInclusive})
	}
	if s.MaxInclusive != nil {
		facets = append(facets, &MaxInclusiveFacet{Value: *s.MaxInclusive})
	}
	return facets
}

// parseInteger accepts decimal, hexadecimal (0x), octal (0o) and binary (0b)
// integers with an optional sign
func parseInteger(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, nil
	}
	return strconv.ParseInt(text, 0, 64)
}

func parseFloat(text string) (float64, error) {
	text = strings.TrimSpace(text)
	switch text {
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(text, 64)
}
