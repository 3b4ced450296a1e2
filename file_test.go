package arxml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func membership(t *testing.T, e Element) ([]string, bool) {
	t.Helper()
	files, local, err := e.FileMembership()
	require.NoError(t, err)
	return fileNames(files), local
}

func TestCreateFile(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")

	names, local := membership(t, pkg)
	assert.Empty(t, names)
	assert.False(t, local)

	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)

	_, err = m.CreateFile("a.arxml")
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
	_, err = m.CreateFile("")
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)

	assert.Equal(t, []*File{a, b}, m.Files())
	found, ok := m.GetFile("b.arxml")
	require.True(t, ok)
	assert.Same(t, b, found)
	_, ok = m.GetFile("c.arxml")
	assert.False(t, ok)
	assert.Same(t, m, a.Model())
	assert.Equal(t, "a.arxml", a.String())

	// elements created before the files inherit all of them
	names, local = membership(t, pkg)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	assert.False(t, local)
}

func TestFileMembership(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")
	can := named(t, elements, "CAN-CLUSTER", "Can")
	subElement(t, can, "BAUDRATE")

	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)

	require.NoError(t, can.RemoveFromFile(b))
	names, local := membership(t, can)
	assert.Equal(t, []string{"a.arxml"}, names)
	assert.True(t, local)
	names, local = membership(t, sys)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	assert.False(t, local)

	want := []string{
		"AUTOSAR",
		"  AR-PACKAGES",
		"    AR-PACKAGE Pkg",
		"      ELEMENTS",
		"        SYSTEM System",
	}
	if diff := cmp.Diff(want, dfsLines(b.ElementsDFS())); diff != "" {
		t.Errorf("file b mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, dfsLines(a.ElementsDFS()), 7)

	// removing the last file removes the element
	require.NoError(t, can.RemoveFromFile(a))
	assert.False(t, can.IsValid())
	_, ok := m.GetElementByPath("/Pkg/Can")
	assert.False(t, ok)

	// removing a file an element is not in changes nothing
	other := named(t, elements, "CAN-CLUSTER", "Other")
	require.NoError(t, other.SetFileMembership([]*File{a}))
	require.NoError(t, other.RemoveFromFile(b))
	assert.True(t, other.IsValid())
}

func TestAddToFileAddsAncestors(t *testing.T) {
	m := newTestModel(t)
	pkgs := packages(t, m)
	pkg := newPackage(t, m, "Pkg")
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)

	require.NoError(t, pkgs.SetFileMembership([]*File{a}))
	p2 := newPackage(t, m, "P2")
	elements := subElement(t, p2, "ELEMENTS")
	names, _ := membership(t, elements)
	assert.Equal(t, []string{"a.arxml"}, names)

	require.NoError(t, elements.AddToFile(b))

	names, local := membership(t, elements)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	assert.True(t, local)
	names, _ = membership(t, p2)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	names, _ = membership(t, pkgs)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)

	// siblings along the way keep their files
	names, local = membership(t, pkg)
	assert.Equal(t, []string{"a.arxml"}, names)
	assert.True(t, local)

	want := []string{
		"AUTOSAR",
		"  AR-PACKAGES",
		"    AR-PACKAGE P2",
		"      ELEMENTS",
	}
	if diff := cmp.Diff(want, dfsLines(b.ElementsDFS())); diff != "" {
		t.Errorf("file b mismatch (-want +got):\n%s", diff)
	}
}

func TestSetFileMembership(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)
	c, err := m.CreateFile("c.arxml")
	require.NoError(t, err)

	require.NoError(t, sys.SetFileMembership([]*File{a, b}))
	require.NoError(t, pkg.SetFileMembership([]*File{b, c}))

	// descendants are restricted to the new set
	names, _ := membership(t, sys)
	assert.Equal(t, []string{"b.arxml"}, names)
	names, local := membership(t, elements)
	assert.Equal(t, []string{"b.arxml", "c.arxml"}, names)
	assert.False(t, local)

	// the orphan state
	require.NoError(t, pkg.SetFileMembership(nil))
	names, local = membership(t, pkg)
	assert.Empty(t, names)
	assert.True(t, local)
	assert.True(t, pkg.IsValid())

	m2 := newTestModel(t)
	foreign, err := m2.CreateFile("x.arxml")
	require.NoError(t, err)
	err = sys.SetFileMembership([]*File{foreign})
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
	err = sys.AddToFile(foreign)
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
	err = sys.RemoveFromFile(nil)
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
}

func TestRemoveFile(t *testing.T) {
	m := newTestModel(t)
	shared := newPackage(t, m, "Shared")
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)

	only := newPackage(t, m, "OnlyB")
	require.NoError(t, only.SetFileMembership([]*File{b}))
	elements := subElement(t, shared, "ELEMENTS")
	sys := named(t, elements, "SYSTEM", "System")
	require.NoError(t, sys.SetFileMembership([]*File{b}))

	require.NoError(t, m.RemoveFile(b))
	assert.False(t, b.IsValid())
	assert.True(t, a.IsValid())
	assert.False(t, only.IsValid())
	assert.False(t, sys.IsValid())
	assert.True(t, shared.IsValid())
	assert.Equal(t, []string{"/Shared"}, m.IdentifiablePaths())
	assert.Equal(t, []*File{a}, m.Files())

	names, _ := membership(t, shared)
	assert.Equal(t, []string{"a.arxml"}, names)

	err = m.RemoveFile(b)
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
	err = shared.AddToFile(b)
	assert.True(t, errors.Is(err, ErrInvalidFile), "got %v", err)
	assert.Empty(t, dfsLines(b.ElementsDFS()))
}

func TestMovePreservesMembership(t *testing.T) {
	m := newTestModel(t)
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	_, err = m.CreateFile("b.arxml")
	require.NoError(t, err)

	src := subElement(t, newPackage(t, m, "Src"), "ELEMENTS")
	dst := newPackage(t, m, "Dst")
	require.NoError(t, dst.SetFileMembership([]*File{a}))
	dstElements := subElement(t, dst, "ELEMENTS")
	sys := named(t, src, "SYSTEM", "System")

	_, err = dstElements.MoveElementHere(sys)
	require.NoError(t, err)
	names, local := membership(t, sys)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	assert.True(t, local)

	names, _ = membership(t, dst)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)

	// a move that does not change the effective set keeps it inherited
	can := named(t, src, "CAN-CLUSTER", "Can")
	other := subElement(t, newPackage(t, m, "Other"), "ELEMENTS")
	_, err = other.MoveElementHere(can)
	require.NoError(t, err)
	names, local = membership(t, can)
	assert.Equal(t, []string{"a.arxml", "b.arxml"}, names)
	assert.False(t, local)
}

func TestRemoveFromFileDropsEmptiedDescendants(t *testing.T) {
	m := newTestModel(t)
	pkg := newPackage(t, m, "Pkg")
	elements := subElement(t, pkg, "ELEMENTS")
	a, err := m.CreateFile("a.arxml")
	require.NoError(t, err)
	b, err := m.CreateFile("b.arxml")
	require.NoError(t, err)

	can := named(t, elements, "CAN-CLUSTER", "Can")
	require.NoError(t, can.SetFileMembership([]*File{b}))
	sys := named(t, elements, "SYSTEM", "Sys")
	require.NoError(t, sys.SetFileMembership(nil))

	require.NoError(t, pkg.RemoveFromFile(b))

	assert.False(t, can.IsValid())
	_, err = m.ResolvePath("/Pkg/Can")
	assert.Error(t, err)
	assert.Equal(t, []string{"/Pkg", "/Pkg/Sys"}, m.IdentifiablePaths())

	names, local := membership(t, pkg)
	assert.Equal(t, []string{"a.arxml"}, names)
	assert.True(t, local)
	names, local = membership(t, elements)
	assert.Equal(t, []string{"a.arxml"}, names)
	assert.False(t, local)

	// an element placed in no file on purpose is kept
	require.True(t, sys.IsValid())
	names, local = membership(t, sys)
	assert.Empty(t, names)
	assert.True(t, local)

	for _, d := range dfsLines(a.ElementsDFS()) {
		assert.NotContains(t, d, "Can")
	}
}
