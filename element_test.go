package arxml

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSubElementErrors(t *testing.T) {
	m := newTestModel(t)
	root := m.RootElement()
	pkgs := packages(t, m)
	pkg := newPackage(t, m, "Pkg")
	category := subElement(t, pkg, "CATEGORY")

	tests := []struct {
		name    string
		create  func() (Element, error)
		wantErr error
	}{
		{"cardinality exceeded", func() (Element, error) { return root.CreateSubElement("AR-PACKAGES") }, ErrInvalidStructure},
		{"unknown type", func() (Element, error) { return root.CreateSubElement("NOPE") }, ErrInvalidStructure},
		{"type not allowed", func() (Element, error) { return pkg.CreateSubElement("BAUDRATE") }, ErrInvalidStructure},
		{"character data parent", func() (Element, error) { return category.CreateSubElement("BR") }, ErrInvalidStructure},
		{"duplicate name", func() (Element, error) { return pkgs.CreateNamedSubElement("AR-PACKAGE", "Pkg") }, ErrDuplicateItemName},
		{"missing name", func() (Element, error) { return pkgs.CreateSubElement("AR-PACKAGE") }, ErrNotIdentifiable},
		{"name for plain type", func() (Element, error) { return pkg.CreateNamedSubElement("ELEMENTS", "x") }, ErrNotIdentifiable},
		{"invalid name", func() (Element, error) { return pkgs.CreateNamedSubElement("AR-PACKAGE", "1bad") }, ErrParse},
		{"name with separator", func() (Element, error) { return pkgs.CreateNamedSubElement("AR-PACKAGE", "a/b") }, ErrParse},
		{"negative position", func() (Element, error) { return pkg.CreateSubElementAt("DESC", -1) }, ErrInvalidPosition},
		{"position out of range", func() (Element, error) { return pkg.CreateSubElementAt("DESC", 7) }, ErrInvalidPosition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.create()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	assert.Equal(t, []string{"/Pkg"}, m.IdentifiablePaths())
	assert.Equal(t, []ElementType{"CATEGORY"}, subTypes(pkg))
}

func TestCreateSubElementPositions(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")

	_, err := pkg.CreateSubElement("ELEMENTS")
	require.NoError(t, err)

	// CATEGORY must precede ELEMENTS
	_, err = pkg.CreateSubElementAt("CATEGORY", 1)
	assert.True(t, errors.Is(err, ErrInvalidPosition), "got %v", err)
	_, err = pkg.CreateSubElementAt("CATEGORY", 0)
	require.NoError(t, err)

	// the default position is the last legal one
	_, err = pkg.CreateSubElement("DESC")
	require.NoError(t, err)
	_, err = pkg.CreateSubElement("AR-PACKAGES")
	require.NoError(t, err)

	want := []ElementType{"CATEGORY", "DESC", "ELEMENTS", "AR-PACKAGES"}
	if diff := cmp.Diff(want, subTypes(pkg)); diff != "" {
		t.Errorf("sub elements mismatch (-want +got):\n%s", diff)
	}
}

func TestChoiceGroup(t *testing.T) {
	m := newTestModel(t)
	elements := subElement(t, newPackage(t, m, "Pkg"), "ELEMENTS")
	signal := named(t, elements, "I-SIGNAL", "Sig")
	spec := subElement(t, signal, "VALUE-SPEC")

	assert.Equal(t, []ValidSubElementInfo{
		{Type: "NUMERICAL", Allowed: true},
		{Type: "TEXTUAL", Allowed: true},
	}, spec.ListValidSubElements())

	_, err := spec.CreateSubElement("NUMERICAL")
	require.NoError(t, err)
	_, err = spec.CreateSubElement("TEXTUAL")
	assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)

	assert.Equal(t, []ValidSubElementInfo{
		{Type: "NUMERICAL", Allowed: false},
		{Type: "TEXTUAL", Allowed: false},
	}, spec.ListValidSubElements())
}

func TestListValidSubElements(t *testing.T) {
	m := newTestModel(t)
	elements := subElement(t, newPackage(t, m, "Pkg"), "ELEMENTS")

	infos := elements.ListValidSubElements()
	assert.Equal(t, []ValidSubElementInfo{
		{Type: "SYSTEM", Identifiable: true, Allowed: true},
		{Type: "CAN-CLUSTER", Identifiable: true, Allowed: true},
		{Type: "I-SIGNAL", Identifiable: true, Allowed: true},
	}, infos)
}

func TestItemNamesAndPaths(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")

	path, err := sys.Path()
	require.NoError(t, err)
	assert.Equal(t, "/Pkg/System", path)
	assert.Equal(t, "/<AUTOSAR>/<AR-PACKAGES>/Pkg/<ELEMENTS>/System", sys.XMLPath())
	assert.Equal(t, sys.XMLPath(), sys.String())

	_, err = elements.Path()
	assert.True(t, errors.Is(err, ErrNotIdentifiable))
	_, ok := elements.ItemName()
	assert.False(t, ok)

	found, ok := m.GetElementByPath("/Pkg/System")
	require.True(t, ok)
	assert.Equal(t, sys, found)

	_, err = m.ResolvePath("/Pkg/Nothing")
	assert.True(t, errors.Is(err, ErrPathResolutionFailed))

	parent, ok, err := sys.Parent()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, elements, parent)
	_, ok, err = m.RootElement().Parent()
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := sys.Model()
	require.NoError(t, err)
	assert.Same(t, m, owner)
}

func TestSetItemName(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	newPackage(t, m, "Other")
	sys := named(t, subElement(t, pkg, "ELEMENTS"), "SYSTEM", "System")

	require.NoError(t, pkg.SetItemName("Renamed"))
	path, err := sys.Path()
	require.NoError(t, err)
	assert.Equal(t, "/Renamed/System", path)
	assert.Equal(t, []string{"/Other", "/Renamed", "/Renamed/System"}, m.IdentifiablePaths())

	err = pkg.SetItemName("Other")
	assert.True(t, errors.Is(err, ErrDuplicateItemName), "got %v", err)
	err = pkg.SetItemName("")
	assert.True(t, errors.Is(err, ErrParse), "got %v", err)
	err = subElement(t, pkg, "ELEMENTS").SetItemName("x")
	assert.True(t, errors.Is(err, ErrNotIdentifiable), "got %v", err)

	name, ok := pkg.ItemName()
	require.True(t, ok)
	assert.Equal(t, "Renamed", name)
}

func TestRemoveSubElement(t *testing.T) {
	m := newTestModel(t)
	pkgs := packages(t, m)
	pkg := newPackage(t, m, "Pkg")
	other := newPackage(t, m, "Other")
	elements := subElement(t, pkg, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")

	err := pkgs.RemoveSubElement(sys)
	assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)

	require.NoError(t, pkgs.RemoveSubElement(pkg))
	assert.Equal(t, []string{"/Other"}, m.IdentifiablePaths())
	assert.False(t, pkg.IsValid())
	assert.False(t, sys.IsValid())
	assert.Equal(t, ElementType(""), sys.Type())
	assert.Equal(t, "<detached element>", sys.String())

	_, err = sys.Path()
	assert.True(t, errors.Is(err, ErrDetachedElement))
	_, err = sys.CreateSubElement("FIBEX-ELEMENTS")
	assert.True(t, errors.Is(err, ErrDetachedElement))
	err = pkgs.RemoveSubElement(pkg)
	assert.True(t, errors.Is(err, ErrDetachedElement))

	// reused slots do not revive old handles
	again := newPackage(t, m, "Pkg")
	assert.NotEqual(t, pkg, again)
	assert.False(t, pkg.IsValid())
	assert.True(t, other.IsValid())

	var zero Element
	assert.False(t, zero.IsValid())
	assert.Equal(t, ElementsContent, zero.ContentMode())
	assert.Equal(t, ElementsContent, pkg.ContentMode())
	missing, ok := other.GetSubElement("CATEGORY")
	require.False(t, ok)
	assert.Equal(t, ElementsContent, missing.ContentMode())
	assert.False(t, missing.IsIdentifiable())
	_, err = zero.Path()
	assert.True(t, errors.Is(err, ErrDetachedElement))
}

func TestCopySubElement(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")
	version := subElement(t, sys, "SYSTEM-VERSION")
	require.NoError(t, version.SetCharacterDataString("1.2.3"))
	require.NoError(t, pkg.SetAttributeString("UUID", "abc"))

	t.Run("collision", func(t *testing.T) {
		_, err := elements.CreateCopiedSubElement(sys)
		assert.True(t, errors.Is(err, ErrDuplicateItemName), "got %v", err)
	})

	t.Run("renamed copy", func(t *testing.T) {
		cp, err := elements.CreateCopiedSubElementNamed(sys, "System2", -1)
		require.NoError(t, err)
		path, err := cp.Path()
		require.NoError(t, err)
		assert.Equal(t, "/Pkg/System2", path)
		v, ok := subElement(t, cp, "SYSTEM-VERSION").CharacterData()
		require.True(t, ok)
		assert.Equal(t, "1.2.3", v.String())
		assert.NotEqual(t, sys, cp)
	})

	t.Run("copy into other package", func(t *testing.T) {
		target := subElement(t, newPackage(t, m, "Target"), "ELEMENTS")
		cp, err := target.CreateCopiedSubElement(sys)
		require.NoError(t, err)
		path, err := cp.Path()
		require.NoError(t, err)
		assert.Equal(t, "/Target/System", path)
	})

	t.Run("copy into own subtree", func(t *testing.T) {
		nested := subElement(t, pkg, "AR-PACKAGES")
		cp, err := nested.CreateCopiedSubElement(pkg)
		require.NoError(t, err)
		path, err := cp.Path()
		require.NoError(t, err)
		assert.Equal(t, "/Pkg/Pkg", path)
		_, ok := m.GetElementByPath("/Pkg/Pkg/System")
		assert.True(t, ok)
	})

	t.Run("other model", func(t *testing.T) {
		m2 := newTestModel(t)
		cp, err := packages(t, m2).CreateCopiedSubElement(pkg)
		require.NoError(t, err)
		found, ok := m2.GetElementByPath("/Pkg/System")
		require.True(t, ok)
		value, ok := cp.AttributeValue("UUID")
		require.True(t, ok)
		assert.Equal(t, StringValue("abc"), value)
		assert.Equal(t, "/<AUTOSAR>/<AR-PACKAGES>/Pkg/<ELEMENTS>/System", found.XMLPath())
		_, ok = m2.GetElementByPath("/Pkg/System2")
		assert.True(t, ok)
	})

	t.Run("invalid placement", func(t *testing.T) {
		_, err := packages(t, m).CreateCopiedSubElement(sys)
		assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
		_, err = elements.CreateCopiedSubElementNamed(elements, "Name", -1)
		assert.True(t, errors.Is(err, ErrNotIdentifiable), "got %v", err)
	})
}

func TestMoveElement(t *testing.T) {
	m := newTestModel(t)
	a := newPackage(t, m, "A")
	b := newPackage(t, m, "B")
	aElements := subElement(t, a, "ELEMENTS")
	bElements := subElement(t, b, "ELEMENTS")
	sys := named(t, aElements, "SYSTEM", "Sys")
	subElement(t, sys, "SYSTEM-VERSION")

	moved, err := bElements.MoveElementHere(sys)
	require.NoError(t, err)
	assert.Equal(t, sys, moved)
	path, err := sys.Path()
	require.NoError(t, err)
	assert.Equal(t, "/B/Sys", path)
	_, ok := m.GetElementByPath("/A/Sys")
	assert.False(t, ok)
	assert.Empty(t, subTypes(aElements))

	t.Run("cycle", func(t *testing.T) {
		nested := subElement(t, a, "AR-PACKAGES")
		_, err := nested.MoveElementHere(a)
		assert.True(t, errors.Is(err, ErrCycleDetected), "got %v", err)
	})

	t.Run("root", func(t *testing.T) {
		_, err := bElements.MoveElementHere(m.RootElement())
		assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
	})

	t.Run("other model", func(t *testing.T) {
		m2 := newTestModel(t)
		_, err := packages(t, m2).MoveElementHere(a)
		assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
	})

	t.Run("invalid parent", func(t *testing.T) {
		_, err := packages(t, m).MoveElementHere(sys)
		assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
	})

	t.Run("duplicate", func(t *testing.T) {
		named(t, aElements, "SYSTEM", "Sys")
		_, err := bElements.MoveElementHere(func() Element {
			e, _ := m.GetElementByPath("/A/Sys")
			return e
		}())
		assert.True(t, errors.Is(err, ErrDuplicateItemName), "got %v", err)
	})

	t.Run("reorder", func(t *testing.T) {
		elements := subElement(t, newPackage(t, m, "C"), "ELEMENTS")
		s1 := named(t, elements, "SYSTEM", "S1")
		named(t, elements, "SYSTEM", "S2")
		s3 := named(t, elements, "SYSTEM", "S3")

		_, err := elements.MoveElementHereAt(s3, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"S3", "S1", "S2"}, itemNames(elements))

		_, err = elements.MoveElementHereAt(s1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"S3", "S2", "S1"}, itemNames(elements))

		_, err = elements.MoveElementHereAt(s1, 3)
		assert.True(t, errors.Is(err, ErrInvalidPosition), "got %v", err)
	})
}

func TestCharacterData(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	category := subElement(t, pkg, "CATEGORY")

	_, ok := category.CharacterData()
	assert.False(t, ok)

	require.NoError(t, category.SetCharacterData(StringValue("STANDARD")))
	value, ok := category.CharacterData()
	require.True(t, ok)
	assert.Equal(t, StringValue("STANDARD"), value)

	err := category.SetCharacterData(IntegerValue(1))
	assert.True(t, errors.Is(err, ErrTypeMismatch), "got %v", err)
	err = category.SetCharacterData(StringValue(strings.Repeat("x", 33)))
	assert.True(t, errors.Is(err, ErrTypeMismatch), "got %v", err)

	had, err := category.RemoveCharacterData()
	require.NoError(t, err)
	assert.True(t, had)
	_, ok = category.CharacterData()
	assert.False(t, ok)

	err = pkg.SetCharacterData(StringValue("x"))
	assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
	_, err = pkg.RemoveCharacterData()
	assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)

	cluster := named(t, subElement(t, pkg, "ELEMENTS"), "CAN-CLUSTER", "Can")
	baudrate := subElement(t, cluster, "BAUDRATE")
	tests := []struct {
		text    string
		want    int64
		wantErr error
	}{
		{"500000", 500000, nil},
		{" 0x10 ", 16, nil},
		{"fast", 0, ErrParse},
		{"3000000", 0, ErrTypeMismatch},
		{"-1", 0, ErrTypeMismatch},
	}
	for _, tt := range tests {
		err := baudrate.SetCharacterDataString(tt.text)
		if tt.wantErr != nil {
			assert.True(t, errors.Is(err, tt.wantErr), "%q: got %v", tt.text, err)
			continue
		}
		require.NoError(t, err, tt.text)
		value, ok := baudrate.CharacterData()
		require.True(t, ok)
		got, ok := value.Int()
		require.True(t, ok)
		assert.Equal(t, tt.want, got)
	}
}

func TestMixedContent(t *testing.T) {
	m := newTestModel(t)
	desc := subElement(t, newPackage(t, m, "Pkg"), "DESC")
	l2 := subElement(t, desc, "L-2")

	require.NoError(t, l2.InsertCharacterContentItem("Hello", 0))
	br, err := l2.CreateSubElement("BR")
	require.NoError(t, err)
	require.NoError(t, l2.InsertCharacterContentItem("World", 2))
	br2, err := l2.CreateSubElementAt("BR", 1)
	require.NoError(t, err)

	assert.Equal(t, []ContentItem{StringValue("Hello"), br2, br, StringValue("World")}, l2.Content())

	err = l2.RemoveCharacterContentItem(1)
	assert.True(t, errors.Is(err, ErrInvalidPosition), "got %v", err)
	err = l2.InsertCharacterContentItem("x", 9)
	assert.True(t, errors.Is(err, ErrInvalidPosition), "got %v", err)
	require.NoError(t, l2.RemoveCharacterContentItem(0))
	assert.Equal(t, []ContentItem{br2, br, StringValue("World")}, l2.Content())

	err = desc.InsertCharacterContentItem("x", 0)
	assert.True(t, errors.Is(err, ErrInvalidStructure), "got %v", err)
	assert.Equal(t, MixedContent, l2.ContentMode())
	assert.Equal(t, ElementsContent, desc.ContentMode())
}

func TestAttributes(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	l2 := subElement(t, subElement(t, pkg, "DESC"), "L-2")

	require.NoError(t, pkg.SetAttributeString("T", "2024-01-02T03:04:05Z"))
	require.NoError(t, pkg.SetAttribute("UUID", StringValue("0815")))
	require.NoError(t, l2.SetAttributeString("L", "EN"))

	tests := []struct {
		name    string
		set     func() error
		wantErr error
	}{
		{"bad format", func() error { return pkg.SetAttributeString("T", "yesterday") }, ErrTypeMismatch},
		{"wrong kind", func() error { return pkg.SetAttribute("UUID", IntegerValue(5)) }, ErrTypeMismatch},
		{"undeclared", func() error { return pkg.SetAttribute("NOPE", StringValue("x")) }, ErrInvalidStructure},
		{"unknown token", func() error { return l2.SetAttributeString("L", "XX") }, ErrParse},
		{"enum token outside set", func() error { return l2.SetAttribute("L", EnumValue("XX")) }, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set()
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	assert.Equal(t, []Attribute{
		{Name: "T", Value: StringValue("2024-01-02T03:04:05Z")},
		{Name: "UUID", Value: StringValue("0815")},
	}, pkg.Attributes())
	value, ok := l2.AttributeValue("L")
	require.True(t, ok)
	assert.Equal(t, EnumValue("EN"), value)

	assert.True(t, pkg.RemoveAttribute("T"))
	assert.False(t, pkg.RemoveAttribute("T"))
	assert.Equal(t, []Attribute{{Name: "UUID", Value: StringValue("0815")}}, pkg.Attributes())
}

func TestSort(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	named(t, elements, "CAN-CLUSTER", "a")
	named(t, elements, "SYSTEM", "b")
	sysA := named(t, elements, "SYSTEM", "a")
	refs := subElement(t, sysA, "I-SIGNAL-REFS")
	for _, p := range []string{"/Pkg/z", "/Pkg/c"} {
		ref, err := refs.CreateSubElement("I-SIGNAL-REF")
		require.NoError(t, err)
		require.NoError(t, ref.SetCharacterDataString(p))
	}
	desc := subElement(t, pkg, "DESC")
	first := subElement(t, desc, "L-2")
	second, err := desc.CreateSubElement("L-2")
	require.NoError(t, err)
	require.NoError(t, second.InsertCharacterContentItem("text", 0))

	require.NoError(t, pkg.Sort())

	assert.Equal(t, []ElementType{"SYSTEM", "SYSTEM", "CAN-CLUSTER"}, subTypes(elements))
	assert.Equal(t, []string{"a", "b", "a"}, itemNames(elements))
	var values []string
	for ref := range refs.SubElements() {
		v, _ := ref.CharacterData()
		values = append(values, v.String())
	}
	assert.Equal(t, []string{"/Pkg/c", "/Pkg/z"}, values)

	var l2s []Element
	for e := range desc.SubElements() {
		l2s = append(l2s, e)
	}
	assert.Equal(t, []Element{first, second}, l2s)
}

func TestElementsDFS(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	named(t, elements, "SYSTEM", "Sys")
	named(t, elements, "CAN-CLUSTER", "Can")

	want := []string{
		"AUTOSAR",
		"  AR-PACKAGES",
		"    AR-PACKAGE Pkg",
		"      ELEMENTS",
		"        SYSTEM Sys",
		"        CAN-CLUSTER Can",
	}
	if diff := cmp.Diff(want, dfsLines(m.ElementsDFS())); diff != "" {
		t.Errorf("DFS mismatch (-want +got):\n%s", diff)
	}

	var depths []int
	for depth := range elements.ElementsDFS() {
		depths = append(depths, depth)
	}
	assert.Equal(t, []int{0, 1, 1}, depths)

	// stopping early is fine
	count := 0
	for range m.ElementsDFS() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestNestedPackages(t *testing.T) {
	m := newTestModel(t)
	pkg1 := newPackage(t, m, "Pkg1")
	inner := subElement(t, pkg1, "AR-PACKAGES")
	pkg2 := named(t, inner, "AR-PACKAGE", "Pkg2")

	path, err := pkg2.Path()
	require.NoError(t, err)
	assert.Equal(t, "/Pkg1/Pkg2", path)
	found, err := m.ResolvePath(path)
	require.NoError(t, err)
	assert.Equal(t, pkg2, found)

	_, err = inner.CreateNamedSubElement("AR-PACKAGE", "Pkg2")
	assert.True(t, errors.Is(err, ErrDuplicateItemName), "got %v", err)

	require.NoError(t, packages(t, m).RemoveSubElement(pkg1))
	for _, p := range []string{"/Pkg1", "/Pkg1/Pkg2"} {
		_, err := m.ResolvePath(p)
		assert.True(t, errors.Is(err, ErrPathResolutionFailed), "%s: got %v", p, err)
	}
	assert.Empty(t, m.IdentifiablePaths())
}
