package arxml

import (
	"fmt"
	"sort"
)

// ElementType names a schema element type. Elements are tagged with their type.
type ElementType string

// AttributeName names an attribute
type AttributeName string

// ContentMode is the content model of an element type
type ContentMode int

const (
	// ElementsContent holds an ordered sequence of sub elements
	ElementsContent ContentMode = iota
	// CharacterDataContent holds a single CharacterData value
	CharacterDataContent
	// MixedContent interleaves sub elements and text
	MixedContent
)

// String returns the name of the content mode
func (m ContentMode) String() string {
	switch m {
	case ElementsContent:
		return "elements"
	case CharacterDataContent:
		return "characterData"
	case MixedContent:
		return "mixed"
	default:
		return fmt.Sprintf("ContentMode(%d)", int(m))
	}
}

// Unbounded is the MaxOcc of sub elements without an occurrence limit
const Unbounded = -1

// Placement is the answer of the schema to "may candidate be added here".
// MinPosition and MaxPosition are inclusive bounds on the number of existing
// sub elements that precede the new one.
type Placement struct {
	Allowed     bool
	MinPosition int
	MaxPosition int
	// Remaining is the number of further occurrences allowed after this
	// one, Unbounded if there is no limit
	Remaining int
}

// SchemaService answers structural and typing questions for element types.
// The engine consults it before every mutation; reads never touch it.
type SchemaService interface {
	// RootType is the element type of the model root
	RootType() ElementType
	// ContentMode reports the content model of t and whether t is known
	ContentMode(t ElementType) (ContentMode, bool)
	// IsIdentifiable reports whether elements of type t carry an item name
	IsIdentifiable(t ElementType) bool
	// IsOrdered reports whether the order of same-typed sub elements of t is
	// meaningful and must be kept by sorting
	IsOrdered(t ElementType) bool
	// SubElementTypes lists the legal sub element types of parent in schema order
	SubElementTypes(parent ElementType) []ElementType
	// SequenceIndex returns the position of child in the content model of parent
	SequenceIndex(parent, child ElementType) (int, bool)
	// ValidSubElement checks whether candidate may be added to an element of
	// type parent whose current sub elements have the given types
	ValidSubElement(parent, candidate ElementType, current []ElementType) Placement
	// AttributeSpec returns the value spec of attribute name on t
	AttributeSpec(t ElementType, name AttributeName) (*CharacterDataSpec, bool)
	// CharacterDataSpec returns the content value spec of t
	CharacterDataSpec(t ElementType) (*CharacterDataSpec, bool)
	// ReferenceDestinations returns the allowed target types of a reference
	// type; ok is false if t is not a reference
	ReferenceDestinations(t ElementType) (dest []ElementType, ok bool)
}

// Schema is a SchemaService built from element declarations
type Schema struct {
	Root         ElementType
	ElementDecls map[ElementType]*ElementDecl
	// ItemNameElement is the sub element that carries the item name of
	// identifiable elements in documents
	ItemNameElement ElementType
}

// ModelGroupKind represents the kind of model group
type ModelGroupKind string

const (
	// SequenceGroup keeps sub elements in declaration order
	SequenceGroup ModelGroupKind = "sequence"
	// ChoiceGroup allows sub elements of one declared type only
	ChoiceGroup ModelGroupKind = "choice"
	// AllGroup allows sub elements in any order
	AllGroup ModelGroupKind = "all"
)

// ElementDecl represents an element type declaration
type ElementDecl struct {
	Name         ElementType
	Content      ContentMode
	Group        ModelGroupKind
	Identifiable bool
	Ordered      bool
	SubElements  []*SubElementDecl
	Attributes   []*AttributeDecl
	// CharacterData is the value spec of CharacterDataContent elements
	CharacterData *CharacterDataSpec
	// RefDest is non-empty for reference types
	RefDest []ElementType
}

// SubElementDecl is one particle of a content model
type SubElementDecl struct {
	Name   ElementType
	MinOcc int
	MaxOcc int // Unbounded for no limit
}

// AttributeDecl represents an attribute declaration
type AttributeDecl struct {
	Name     AttributeName
	Required bool
	Spec     *CharacterDataSpec
}

// NewSchema creates a schema from declarations
func NewSchema(root ElementType, decls ...*ElementDecl) *Schema {
	s := &Schema{
		Root:         root,
		ElementDecls: make(map[ElementType]*ElementDecl, len(decls)),
	}
	for _, decl := range decls {
		s.ElementDecls[decl.Name] = decl
	}
	return s
}

// DefaultItemNameElement carries item names when a schema names no other
const DefaultItemNameElement ElementType = "SHORT-NAME"

// ItemNameElementType returns the element that carries item names in documents
func (s *Schema) ItemNameElementType() ElementType {
	if s.ItemNameElement == "" {
		return DefaultItemNameElement
	}
	return s.ItemNameElement
}

// Decl returns the declaration of t
func (s *Schema) Decl(t ElementType) (*ElementDecl, bool) {
	decl, ok := s.ElementDecls[t]
	return decl, ok
}

func (s *Schema) RootType() ElementType {
	return s.Root
}

func (s *Schema) ContentMode(t ElementType) (ContentMode, bool) {
	decl, ok := s.ElementDecls[t]
	if !ok {
		return ElementsContent, false
	}
	return decl.Content, true
}

func (s *Schema) IsIdentifiable(t ElementType) bool {
	decl, ok := s.ElementDecls[t]
	return ok && decl.Identifiable
}

func (s *Schema) IsOrdered(t ElementType) bool {
	decl, ok := s.ElementDecls[t]
	return ok && decl.Ordered
}

func (s *Schema) SubElementTypes(parent ElementType) []ElementType {
	decl, ok := s.ElementDecls[parent]
	if !ok {
		return nil
	}
	types := make([]ElementType, 0, len(decl.SubElements))
	for _, sub := range decl.SubElements {
		types = append(types, sub.Name)
	}
	return types
}

func (s *Schema) SequenceIndex(parent, child ElementType) (int, bool) {
	decl, ok := s.ElementDecls[parent]
	if !ok {
		return 0, false
	}
	for i, sub := range decl.SubElements {
		if sub.Name == child {
			return i, true
		}
	}
	return 0, false
}

func (s *Schema) ValidSubElement(parent, candidate ElementType, current []ElementType) Placement {
	denied := Placement{}
	decl, ok := s.ElementDecls[parent]
	if !ok || decl.Content == CharacterDataContent {
		return denied
	}
	index, ok := s.SequenceIndex(parent, candidate)
	if !ok {
		return denied
	}
	sub := decl.SubElements[index]

	count := 0
	for _, t := range current {
		if t == candidate {
			count++
		}
	}
	if sub.MaxOcc != Unbounded && count >= sub.MaxOcc {
		return denied
	}
	remaining := Unbounded
	if sub.MaxOcc != Unbounded {
		remaining = sub.MaxOcc - count - 1
	}

	switch decl.Group {
	case ChoiceGroup:
		for _, t := range current {
			if t != candidate {
				return denied
			}
		}
		return Placement{Allowed: true, MinPosition: 0, MaxPosition: len(current), Remaining: remaining}
	case AllGroup:
		return Placement{Allowed: true, MinPosition: 0, MaxPosition: len(current), Remaining: remaining}
	default:
		// the new element goes after every sub element declared before it and
		// before every sub element declared after it
		minPos, maxPos := 0, len(current)
		for i, t := range current {
			other, known := s.SequenceIndex(parent, t)
			if !known {
				continue
			}
			if other < index {
				minPos = i + 1
			}
		}
		for i := len(current) - 1; i >= 0; i-- {
			other, known := s.SequenceIndex(parent, current[i])
			if known && other > index {
				maxPos = i
			}
		}
		if minPos > maxPos {
			return denied
		}
		return Placement{Allowed: true, MinPosition: minPos, MaxPosition: maxPos, Remaining: remaining}
	}
}

func (s *Schema) AttributeSpec(t ElementType, name AttributeName) (*CharacterDataSpec, bool) {
	decl, ok := s.ElementDecls[t]
	if !ok {
		return nil, false
	}
	for _, attr := range decl.Attributes {
		if attr.Name == name {
			return attr.Spec, true
		}
	}
	return nil, false
}

func (s *Schema) CharacterDataSpec(t ElementType) (*CharacterDataSpec, bool) {
	decl, ok := s.ElementDecls[t]
	if !ok || decl.Content != CharacterDataContent {
		return nil, false
	}
	return decl.CharacterData, true
}

func (s *Schema) ReferenceDestinations(t ElementType) ([]ElementType, bool) {
	decl, ok := s.ElementDecls[t]
	if !ok || len(decl.RefDest) == 0 {
		return nil, false
	}
	return decl.RefDest, true
}

// RequiredAttributes lists the attributes t must carry
func (s *Schema) RequiredAttributes(t ElementType) []AttributeName {
	decl, ok := s.ElementDecls[t]
	if !ok {
		return nil
	}
	var names []AttributeName
	for _, attr := range decl.Attributes {
		if attr.Required {
			names = append(names, attr.Name)
		}
	}
	return names
}

// Check verifies that every referenced type is declared and that the
// declarations are consistent
func (s *Schema) Check() error {
	if _, ok := s.ElementDecls[s.Root]; !ok {
		return fmt.Errorf("root type %q is not declared", s.Root)
	}
	names := make([]string, 0, len(s.ElementDecls))
	for name := range s.ElementDecls {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		decl := s.ElementDecls[ElementType(name)]
		if decl.Content == CharacterDataContent && len(decl.SubElements) > 0 {
			return fmt.Errorf("type %q has character data content and sub elements", name)
		}
		seen := make(map[ElementType]bool)
		for _, sub := range decl.SubElements {
			if _, ok := s.ElementDecls[sub.Name]; !ok {
				return fmt.Errorf("type %q: sub element %q is not declared", name, sub.Name)
			}
			if seen[sub.Name] {
				return fmt.Errorf("type %q: sub element %q is declared twice", name, sub.Name)
			}
			seen[sub.Name] = true
			if sub.MaxOcc != Unbounded && (sub.MaxOcc < 1 || sub.MaxOcc < sub.MinOcc) {
				return fmt.Errorf("type %q: sub element %q has invalid occurrence %d..%d", name, sub.Name, sub.MinOcc, sub.MaxOcc)
			}
		}
		for _, dest := range decl.RefDest {
			if _, ok := s.ElementDecls[dest]; !ok {
				return fmt.Errorf("type %q: reference destination %q is not declared", name, dest)
			}
		}
		if len(decl.RefDest) > 0 && decl.Content != CharacterDataContent {
			return fmt.Errorf("type %q: references must have character data content", name)
		}
	}
	return nil
}
