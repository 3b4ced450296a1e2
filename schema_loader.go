package arxml

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// schemaDocument is the YAML form of a schema
type schemaDocument struct {
	Root            string                  `yaml:"root"`
	ItemNameElement string                  `yaml:"itemNameElement"`
	Include         []string                `yaml:"include"`
	Types           map[string]typeDocument `yaml:"types"`
}

type typeDocument struct {
	Content      string               `yaml:"content"`
	Group        string               `yaml:"group"`
	Identifiable bool                 `yaml:"identifiable"`
	Ordered      bool                 `yaml:"ordered"`
	SubElements  []subElementDocument `yaml:"subElements"`
	Attributes   []attributeDocument  `yaml:"attributes"`
	Value        *valueDocument       `yaml:"value"`
	Dest         []string             `yaml:"dest"`
}

type subElementDocument struct {
	Name string `yaml:"name"`
	Min  int    `yaml:"min"`
	Max  string `yaml:"max"`
}

type attributeDocument struct {
	Name     string         `yaml:"name"`
	Required bool           `yaml:"required"`
	Value    *valueDocument `yaml:"value"`
}

type valueDocument struct {
	Kind      string   `yaml:"kind"`
	Enum      []string `yaml:"enum"`
	Pattern   string   `yaml:"pattern"`
	Format    string   `yaml:"format"`
	MaxLength int      `yaml:"maxLength"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
}

// SchemaLoader loads YAML schemas and the files they include
type SchemaLoader struct {
	baseDir string
	loaded  map[string]bool
}

// NewSchemaLoader creates a loader resolving relative locations against baseDir
func NewSchemaLoader(baseDir string) *SchemaLoader {
	return &SchemaLoader{
		baseDir: baseDir,
		loaded:  make(map[string]bool),
	}
}

// Load reads the schema at location together with its includes
func (sl *SchemaLoader) Load(location string) (*Schema, error) {
	schema := &Schema{ElementDecls: make(map[ElementType]*ElementDecl)}
	if err := sl.loadRecursive(sl.resolveLocation(location), schema); err != nil {
		return nil, err
	}
	if err := schema.Check(); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", location, err)
	}
	return schema, nil
}

func (sl *SchemaLoader) loadRecursive(path string, target *Schema) error {
	if sl.loaded[path] {
		return nil
	}
	sl.loaded[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	var doc schemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, include := range doc.Include {
		includePath := include
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(dir, includePath)
		}
		if err := sl.loadRecursive(includePath, target); err != nil {
			return err
		}
	}
	if err := mergeSchemaDocument(&doc, target); err != nil {
		return fmt.Errorf("schema file %s: %w", path, err)
	}
	return nil
}

func (sl *SchemaLoader) resolveLocation(location string) string {
	if filepath.IsAbs(location) || sl.baseDir == "" {
		return location
	}
	return filepath.Join(sl.baseDir, location)
}

// LoadSchema loads a schema file and its includes
func LoadSchema(filename string) (*Schema, error) {
	return NewSchemaLoader("").Load(filename)
}

// ParseSchema parses a single YAML schema document. Includes are not allowed.
func ParseSchema(data []byte) (*Schema, error) {
	var doc schemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(doc.Include) > 0 {
		return nil, fmt.Errorf("includes require LoadSchema")
	}
	schema := &Schema{ElementDecls: make(map[ElementType]*ElementDecl)}
	if err := mergeSchemaDocument(&doc, schema); err != nil {
		return nil, err
	}
	if err := schema.Check(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

// mergeSchemaDocument adds the declarations of doc to target. Later
// documents may set the root and item name element; types must be unique.
func mergeSchemaDocument(doc *schemaDocument, target *Schema) error {
	if doc.Root != "" {
		target.Root = ElementType(doc.Root)
	}
	if doc.ItemNameElement != "" {
		target.ItemNameElement = ElementType(doc.ItemNameElement)
	}
	for name, td := range doc.Types {
		t := ElementType(name)
		if _, exists := target.ElementDecls[t]; exists {
			return fmt.Errorf("type %q is declared twice", name)
		}
		decl, err := td.toDecl(t)
		if err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
		target.ElementDecls[t] = decl
	}
	return nil
}

func (td typeDocument) toDecl(name ElementType) (*ElementDecl, error) {
	decl := &ElementDecl{
		Name:         name,
		Identifiable: td.Identifiable,
		Ordered:      td.Ordered,
	}

	switch strings.ToLower(td.Content) {
	case "", "elements":
		decl.Content = ElementsContent
	case "characterdata", "character-data", "chardata":
		decl.Content = CharacterDataContent
	case "mixed":
		decl.Content = MixedContent
	default:
		return nil, fmt.Errorf("unknown content mode %q", td.Content)
	}

	switch ModelGroupKind(strings.ToLower(td.Group)) {
	case "", SequenceGroup:
		decl.Group = SequenceGroup
	case ChoiceGroup:
		decl.Group = ChoiceGroup
	case AllGroup, "bag":
		decl.Group = AllGroup
	default:
		return nil, fmt.Errorf("unknown group kind %q", td.Group)
	}

	for _, sd := range td.SubElements {
		maxOcc, err := parseMaxOccurs(sd.Max)
		if err != nil {
			return nil, fmt.Errorf("sub element %q: %w", sd.Name, err)
		}
		decl.SubElements = append(decl.SubElements, &SubElementDecl{
			Name:   ElementType(sd.Name),
			MinOcc: sd.Min,
			MaxOcc: maxOcc,
		})
	}

	for _, ad := range td.Attributes {
		spec, err := ad.Value.toSpec()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", ad.Name, err)
		}
		decl.Attributes = append(decl.Attributes, &AttributeDecl{
			Name:     AttributeName(ad.Name),
			Required: ad.Required,
			Spec:     spec,
		})
	}

	for _, dest := range td.Dest {
		decl.RefDest = append(decl.RefDest, ElementType(dest))
	}

	if decl.Content == CharacterDataContent {
		value := td.Value
		if value == nil && len(decl.RefDest) > 0 {
			value = &valueDocument{Kind: "string", Format: "ref"}
		}
		spec, err := value.toSpec()
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		decl.CharacterData = spec
	}
	return decl, nil
}

// toSpec converts a value document; a missing document means free text
func (vd *valueDocument) toSpec() (*CharacterDataSpec, error) {
	if vd == nil {
		return &CharacterDataSpec{Kind: StringKind}, nil
	}
	kind, err := ParseValueKind(vd.Kind)
	if err != nil {
		return nil, err
	}
	if kind == EnumKind && len(vd.Enum) == 0 {
		return nil, fmt.Errorf("enum value without tokens")
	}
	if vd.Format != "" && GetFormat(vd.Format) == nil {
		return nil, fmt.Errorf("unknown format %q", vd.Format)
	}
	return &CharacterDataSpec{
		Kind:         kind,
		Enumeration:  vd.Enum,
		Pattern:      vd.Pattern,
		Format:       vd.Format,
		MaxLength:    vd.MaxLength,
		MinInclusive: vd.Min,
		MaxInclusive: vd.Max,
	}, nil
}

func parseMaxOccurs(value string) (int, error) {
	switch strings.TrimSpace(value) {
	case "":
		return 1, nil
	case "unbounded", "*", "-1":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid max occurrence %q", value)
	}
	return n, nil
}
