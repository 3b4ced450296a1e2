package arxml

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSchemaFile = "testdata/autosar.yaml"

func loadTestSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := LoadSchema(testSchemaFile)
	require.NoError(t, err)
	return schema
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	return NewModel(loadTestSchema(t), WithLogger(zaptest.NewLogger(t)))
}

// packages returns the AR-PACKAGES element of the root, creating it on demand
func packages(t *testing.T, m *Model) Element {
	t.Helper()
	root := m.RootElement()
	if pkgs, ok := root.GetSubElement("AR-PACKAGES"); ok {
		return pkgs
	}
	pkgs, err := root.CreateSubElement("AR-PACKAGES")
	require.NoError(t, err)
	return pkgs
}

func newPackage(t *testing.T, m *Model, name string) Element {
	t.Helper()
	pkg, err := packages(t, m).CreateNamedSubElement("AR-PACKAGE", name)
	require.NoError(t, err)
	return pkg
}

func subElement(t *testing.T, parent Element, typ ElementType) Element {
	t.Helper()
	if e, ok := parent.GetSubElement(typ); ok {
		return e
	}
	e, err := parent.CreateSubElement(typ)
	require.NoError(t, err)
	return e
}

func named(t *testing.T, parent Element, typ ElementType, name string) Element {
	t.Helper()
	e, err := parent.CreateNamedSubElement(typ, name)
	require.NoError(t, err)
	return e
}

func subTypes(e Element) []ElementType {
	var types []ElementType
	for child := range e.SubElements() {
		types = append(types, child.Type())
	}
	return types
}

func itemNames(e Element) []string {
	var names []string
	for child := range e.SubElements() {
		name, _ := child.ItemName()
		names = append(names, name)
	}
	return names
}

func fileNames(files []*File) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	return names
}

func dfsLines(seq func(func(int, Element) bool)) []string {
	var lines []string
	for depth, e := range seq {
		line := string(e.Type())
		if name, ok := e.ItemName(); ok {
			line += " " + name
		}
		for i := 0; i < depth; i++ {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return lines
}
