package arxml

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Element is a handle to a node of a Model. Handles are comparable values:
// two handles are equal if they refer to the same element. A handle of a
// removed element stays usable as a value but every operation on it fails
// with ErrDetachedElement.
type Element struct {
	model *Model
	h     handle
}

// ValidSubElementInfo describes one candidate sub element type
type ValidSubElementInfo struct {
	Type         ElementType
	Identifiable bool
	// Allowed reports whether an element of Type can be added in the
	// current state of the parent
	Allowed bool
}

// IsValid reports whether the handle refers to a live element
func (e Element) IsValid() bool {
	if e.model == nil {
		return false
	}
	e.model.mu.RLock()
	defer e.model.mu.RUnlock()
	_, ok := e.model.node(e.h)
	return ok
}

// Model returns the model that owns the element
func (e Element) Model() (*Model, error) {
	m, err := e.read()
	if err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()
	if _, err := m.liveNode(e.h); err != nil {
		return nil, err
	}
	return m, nil
}

// Type returns the element type, or "" for a detached element
func (e Element) Type() ElementType {
	m, err := e.read()
	if err != nil {
		return ""
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return ""
	}
	return nd.typ
}

// ContentMode returns the content model of the element type. A detached
// element reports ElementsContent.
func (e Element) ContentMode() ContentMode {
	t := e.Type()
	if t == "" {
		return ElementsContent
	}
	mode, _ := e.model.schema.ContentMode(t)
	return mode
}

// IsIdentifiable reports whether the element carries an item name
func (e Element) IsIdentifiable() bool {
	t := e.Type()
	return t != "" && e.model.schema.IsIdentifiable(t)
}

// IsReference reports whether the element content is a reference path
func (e Element) IsReference() bool {
	t := e.Type()
	if t == "" {
		return false
	}
	_, ok := e.model.schema.ReferenceDestinations(t)
	return ok
}

// ItemName returns the item name of an identifiable element
func (e Element) ItemName() (string, bool) {
	m, err := e.read()
	if err != nil {
		return "", false
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok || !m.schema.IsIdentifiable(nd.typ) {
		return "", false
	}
	return nd.name, true
}

// SetItemName renames an identifiable element. The paths of the element and
// its descendants change; references to the old paths are not rewritten.
func (e Element) SetItemName(name string) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	return m.setItemName(e.h, name)
}

// Path returns the identifier path of the element
func (e Element) Path() (string, error) {
	m, err := e.read()
	if err != nil {
		return "", err
	}
	defer m.mu.RUnlock()
	return m.pathOf(e.h)
}

// XMLPath returns the chain of element types and item names from the root,
// for example "/<AUTOSAR>/<AR-PACKAGES>/Pkg"
func (e Element) XMLPath() string {
	m, err := e.read()
	if err != nil {
		return ""
	}
	defer m.mu.RUnlock()
	if _, ok := m.node(e.h); !ok {
		return ""
	}
	return m.xmlPath(e.h)
}

// String implements fmt.Stringer
func (e Element) String() string {
	if p := e.XMLPath(); p != "" {
		return p
	}
	return "<detached element>"
}

// Parent returns the parent element; ok is false for the root
func (e Element) Parent() (parent Element, ok bool, err error) {
	m, err := e.read()
	if err != nil {
		return Element{}, false, err
	}
	defer m.mu.RUnlock()
	nd, err := m.liveNode(e.h)
	if err != nil {
		return Element{}, false, err
	}
	if !nd.parent.valid() {
		return Element{}, false, nil
	}
	return m.element(nd.parent), true, nil
}

// GetSubElement returns the first sub element of type t
func (e Element) GetSubElement(t ElementType) (Element, bool) {
	m, err := e.read()
	if err != nil {
		return Element{}, false
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return Element{}, false
	}
	for _, it := range nd.content {
		if !it.isElement() {
			continue
		}
		if child, ok := m.node(it.child); ok && child.typ == t {
			return m.element(it.child), true
		}
	}
	return Element{}, false
}

// CreateSubElement creates a sub element of a non-identifiable type at the
// last position the schema allows
func (e Element) CreateSubElement(t ElementType) (Element, error) {
	return e.create(t, "", -1)
}

// CreateSubElementAt creates a sub element of a non-identifiable type at a
// content position
func (e Element) CreateSubElementAt(t ElementType, position int) (Element, error) {
	if position < 0 {
		return Element{}, errors.Wrapf(ErrInvalidPosition, "position %d", position)
	}
	return e.create(t, "", position)
}

// CreateNamedSubElement creates an identifiable sub element
func (e Element) CreateNamedSubElement(t ElementType, itemName string) (Element, error) {
	return e.create(t, itemName, -1)
}

// CreateNamedSubElementAt creates an identifiable sub element at a content position
func (e Element) CreateNamedSubElementAt(t ElementType, itemName string, position int) (Element, error) {
	if position < 0 {
		return Element{}, errors.Wrapf(ErrInvalidPosition, "position %d", position)
	}
	return e.create(t, itemName, position)
}

func (e Element) create(t ElementType, itemName string, position int) (Element, error) {
	m, err := e.write()
	if err != nil {
		return Element{}, err
	}
	defer m.mu.Unlock()
	h, err := m.createSubElement(e.h, t, itemName, position)
	if err != nil {
		return Element{}, err
	}
	return m.element(h), nil
}

// CreateCopiedSubElement inserts a deep copy of other at the last legal
// position. other may belong to a different model. Item names are copied
// unchanged, so copying next to the original fails with ErrDuplicateItemName.
func (e Element) CreateCopiedSubElement(other Element) (Element, error) {
	return e.copyHere(other, "", -1)
}

// CreateCopiedSubElementAt is CreateCopiedSubElement at a content position
func (e Element) CreateCopiedSubElementAt(other Element, position int) (Element, error) {
	if position < 0 {
		return Element{}, errors.Wrapf(ErrInvalidPosition, "position %d", position)
	}
	return e.copyHere(other, "", position)
}

// CreateCopiedSubElementNamed copies other and gives the copy a new item
// name. A negative position selects the last legal position.
func (e Element) CreateCopiedSubElementNamed(other Element, itemName string, position int) (Element, error) {
	if itemName == "" {
		return Element{}, errors.Wrap(ErrNotIdentifiable, "empty item name")
	}
	return e.copyHere(other, itemName, position)
}

func (e Element) copyHere(other Element, itemName string, position int) (Element, error) {
	if e.model == nil || other.model == nil {
		return Element{}, errors.WithStack(ErrDetachedElement)
	}
	var snap *subtree
	if other.model != e.model {
		src := other.model
		src.mu.RLock()
		s, err := src.snapshot(other.h)
		src.mu.RUnlock()
		if err != nil {
			return Element{}, err
		}
		snap = s
	}

	m := e.model
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap == nil {
		s, err := m.snapshot(other.h)
		if err != nil {
			return Element{}, err
		}
		snap = s
	}
	if itemName != "" {
		if !m.schema.IsIdentifiable(snap.typ) {
			return Element{}, errors.Wrapf(ErrNotIdentifiable, "copied %s cannot be named", snap.typ)
		}
		if err := validateItemName(itemName); err != nil {
			return Element{}, err
		}
		snap.name = itemName
	}
	h, err := m.insertSubtree(e.h, snap, position)
	if err != nil {
		return Element{}, err
	}
	return m.element(h), nil
}

// MoveElementHere moves other and its subtree below e at the last legal
// position. File membership of the moved elements is unchanged and the new
// ancestors join any file they are missing from.
func (e Element) MoveElementHere(other Element) (Element, error) {
	return e.move(other, -1)
}

// MoveElementHereAt moves other to a content position of e. When other is
// already a sub element of e the position counts the content without it.
func (e Element) MoveElementHereAt(other Element, position int) (Element, error) {
	if position < 0 {
		return Element{}, errors.Wrapf(ErrInvalidPosition, "position %d", position)
	}
	return e.move(other, position)
}

func (e Element) move(other Element, position int) (Element, error) {
	m, err := e.write()
	if err != nil {
		return Element{}, err
	}
	defer m.mu.Unlock()
	if other.model != m {
		return Element{}, errors.Wrap(ErrInvalidStructure, "cannot move an element between models, copy it instead")
	}
	if err := m.moveElement(e.h, other.h, position); err != nil {
		return Element{}, err
	}
	return other, nil
}

// RemoveSubElement removes a direct sub element and its whole subtree.
// Handles to removed elements become detached and references to them dangle.
func (e Element) RemoveSubElement(child Element) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	if child.model != m {
		return errors.Wrap(ErrInvalidStructure, "element belongs to another model")
	}
	return m.removeSubElement(e.h, child.h)
}

// ListValidSubElements reports every sub element type the schema declares
// for e and whether it can be added in the current state
func (e Element) ListValidSubElements() []ValidSubElementInfo {
	m, err := e.read()
	if err != nil {
		return nil
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return nil
	}
	current := subElementTypes(m, nd, handle{})
	candidates := m.schema.SubElementTypes(nd.typ)
	infos := make([]ValidSubElementInfo, 0, len(candidates))
	for _, t := range candidates {
		placement := m.schema.ValidSubElement(nd.typ, t, current)
		infos = append(infos, ValidSubElementInfo{
			Type:         t,
			Identifiable: m.schema.IsIdentifiable(t),
			Allowed:      placement.Allowed,
		})
	}
	return infos
}

func (e Element) read() (*Model, error) {
	if e.model == nil {
		return nil, errors.WithStack(ErrDetachedElement)
	}
	e.model.mu.RLock()
	return e.model, nil
}

func (e Element) write() (*Model, error) {
	if e.model == nil {
		return nil, errors.WithStack(ErrDetachedElement)
	}
	e.model.mu.Lock()
	return e.model, nil
}

func validateItemName(name string) error {
	if err := validateIdentifier(name); err != nil {
		return errors.Wrapf(ErrParse, "item name: %v", err)
	}
	return nil
}

// placement validates adding an element of type t to parent and returns
// the content index to insert at. skip is left out of the parent content,
// which is how moves inside one parent are checked. A negative position
// selects the last legal position.
func (m *Model) placement(parent handle, t ElementType, position int, skip handle) (int, error) {
	pnd, err := m.liveNode(parent)
	if err != nil {
		return 0, err
	}
	mode, known := m.schema.ContentMode(pnd.typ)
	if !known || mode == CharacterDataContent {
		return 0, errors.Wrapf(ErrInvalidStructure, "%s cannot contain sub elements", pnd.typ)
	}
	if _, known := m.schema.ContentMode(t); !known {
		return 0, errors.Wrapf(ErrInvalidStructure, "unknown element type %s", t)
	}

	current := subElementTypes(m, pnd, skip)
	p := m.schema.ValidSubElement(pnd.typ, t, current)
	if !p.Allowed {
		return 0, errors.Wrapf(ErrInvalidStructure, "%s is not a valid sub element of %s here", t, pnd.typ)
	}

	// before[i] is the number of sub elements preceding content index i
	before := make([]int, 0, len(pnd.content)+1)
	count := 0
	for _, it := range pnd.content {
		if it.isElement() && it.child == skip {
			continue
		}
		before = append(before, count)
		if it.isElement() {
			count++
		}
	}
	before = append(before, count)

	if position < 0 {
		for i := len(before) - 1; i >= 0; i-- {
			if before[i] >= p.MinPosition && before[i] <= p.MaxPosition {
				return i, nil
			}
		}
		return 0, errors.Wrapf(ErrInvalidStructure, "no valid position for %s in %s", t, pnd.typ)
	}
	if position >= len(before) {
		return 0, errors.Wrapf(ErrInvalidPosition, "position %d is out of range 0..%d", position, len(before)-1)
	}
	if before[position] < p.MinPosition || before[position] > p.MaxPosition {
		return 0, errors.Wrapf(ErrInvalidPosition, "%s is not allowed at position %d of %s", t, position, pnd.typ)
	}
	return position, nil
}

// insertItem inserts it into the content of parent at index, counting the
// content without skip
func (m *Model) insertItem(parent handle, index int, it item, skip handle) {
	pnd, _ := m.node(parent)
	content := make([]item, 0, len(pnd.content)+1)
	for _, existing := range pnd.content {
		if existing.isElement() && existing.child == skip {
			continue
		}
		content = append(content, existing)
	}
	content = append(content, item{})
	copy(content[index+1:], content[index:])
	content[index] = it
	pnd.content = content
}

func (m *Model) detach(parent, child handle) {
	pnd, ok := m.node(parent)
	if !ok {
		return
	}
	for i, it := range pnd.content {
		if it.isElement() && it.child == child {
			pnd.content = append(pnd.content[:i:i], pnd.content[i+1:]...)
			return
		}
	}
}

func (m *Model) createSubElement(parent handle, t ElementType, itemName string, position int) (handle, error) {
	if _, err := m.liveNode(parent); err != nil {
		return handle{}, err
	}
	identifiable := m.schema.IsIdentifiable(t)
	switch {
	case identifiable && itemName == "":
		return handle{}, errors.Wrapf(ErrNotIdentifiable, "%s requires an item name", t)
	case !identifiable && itemName != "":
		return handle{}, errors.Wrapf(ErrNotIdentifiable, "%s cannot have an item name", t)
	}
	if identifiable {
		if err := validateItemName(itemName); err != nil {
			return handle{}, err
		}
	}
	index, err := m.placement(parent, t, position, handle{})
	if err != nil {
		return handle{}, err
	}
	if identifiable {
		path := m.scopePrefix(parent) + PathSeparator + itemName
		if existing, taken := m.index[path]; taken {
			return handle{}, errors.Wrapf(ErrDuplicateItemName, "path %q is already used by %s", path, m.xmlPath(existing))
		}
	}

	h := m.alloc(t, parent)
	nd, _ := m.node(h)
	nd.name = itemName
	m.insertItem(parent, index, item{child: h}, handle{})
	if identifiable {
		m.index[m.scopePrefix(h)] = h
	}
	m.logger.Debug("created element",
		zap.String("type", string(t)),
		zap.String("xmlPath", m.xmlPath(h)),
		zap.Int("position", index))
	return h, nil
}

func (m *Model) moveElement(dest, h handle, position int) error {
	if _, err := m.liveNode(dest); err != nil {
		return err
	}
	nd, err := m.liveNode(h)
	if err != nil {
		return err
	}
	if !nd.parent.valid() {
		return errors.Wrap(ErrInvalidStructure, "the root element cannot be moved")
	}
	if m.isAncestorOrSelf(h, dest) {
		return errors.Wrapf(ErrCycleDetected, "cannot move %s into its own subtree", m.xmlPath(h))
	}
	oldParent := nd.parent
	t := nd.typ

	index, err := m.placement(dest, t, position, h)
	if err != nil {
		return err
	}
	candidates := make(map[string]handle)
	m.collectPaths(h, m.scopePrefix(dest), "", candidates)
	if err := m.checkPaths(candidates); err != nil {
		return err
	}

	// pin the effective membership so the new parent does not change it
	var pinned fileSet
	if oldParent != dest {
		before := m.effectiveFiles(h)
		if !sameFiles(before, m.effectiveFiles(dest)) {
			nd, _ = m.node(h)
			nd.files = before
			pinned = before
		}
	}

	from := m.xmlPath(h)
	m.unindexSubtree(h)
	if oldParent != dest {
		m.detach(oldParent, h)
	}
	nd, _ = m.node(h)
	nd.parent = dest
	m.insertItem(dest, index, item{child: h}, h)
	m.indexSubtree(h)
	for id := range pinned {
		m.ensureAncestors(h, id)
	}
	m.logger.Debug("moved element",
		zap.String("from", from),
		zap.String("to", m.xmlPath(h)),
		zap.Int("position", index))
	return nil
}

func (m *Model) removeSubElement(parent, child handle) error {
	if _, err := m.liveNode(parent); err != nil {
		return err
	}
	cnd, err := m.liveNode(child)
	if err != nil {
		return err
	}
	if cnd.parent != parent {
		return errors.Wrapf(ErrInvalidStructure, "%s is not a sub element of %s", m.xmlPath(child), m.xmlPath(parent))
	}
	xmlPath := m.xmlPath(child)
	m.unindexSubtree(child)
	m.detach(parent, child)
	m.release(child)
	m.logger.Debug("removed element", zap.String("xmlPath", xmlPath))
	return nil
}

func (m *Model) setItemName(h handle, name string) error {
	nd, err := m.liveNode(h)
	if err != nil {
		return err
	}
	if !m.schema.IsIdentifiable(nd.typ) {
		return errors.Wrapf(ErrNotIdentifiable, "%s has no item name", nd.typ)
	}
	if err := validateItemName(name); err != nil {
		return err
	}
	if nd.name == name {
		return nil
	}
	candidates := make(map[string]handle)
	m.collectPaths(h, m.scopePrefix(nd.parent), name, candidates)
	if err := m.checkPaths(candidates); err != nil {
		return err
	}
	old := nd.name
	m.unindexSubtree(h)
	nd, _ = m.node(h)
	nd.name = name
	m.indexSubtree(h)
	m.logger.Debug("renamed element", zap.String("from", old), zap.String("to", name))
	return nil
}

// subtree is a detached deep copy of an element, used for copies and loads
type subtree struct {
	typ    ElementType
	name   string
	attrs  []Attribute
	items  []subtreeItem
	origin Position
}

// subtreeItem is a sub element when elem is set, a text run otherwise
type subtreeItem struct {
	elem *subtree
	text CharacterData
}

func (m *Model) snapshot(h handle) (*subtree, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return nil, err
	}
	s := &subtree{
		typ:   nd.typ,
		name:  nd.name,
		attrs: append([]Attribute(nil), nd.attrs...),
		items: make([]subtreeItem, 0, len(nd.content)),
	}
	for _, it := range nd.content {
		if !it.isElement() {
			s.items = append(s.items, subtreeItem{text: it.text})
			continue
		}
		child, err := m.snapshot(it.child)
		if err != nil {
			return nil, err
		}
		s.items = append(s.items, subtreeItem{elem: child})
	}
	return s, nil
}

// checkSubtree validates a subtree against the schema: known types, legal
// sub element sequences, names, attributes and character data
func (m *Model) checkSubtree(s *subtree) error {
	if err := m.checkNodeShallow(s); err != nil {
		return err
	}
	for _, it := range s.items {
		if it.elem != nil {
			if err := m.checkSubtree(it.elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkNodeShallow validates s without descending into its sub elements
func (m *Model) checkNodeShallow(s *subtree) error {
	mode, known := m.schema.ContentMode(s.typ)
	if !known {
		return errors.Wrapf(ErrInvalidStructure, "unknown element type %s", s.typ)
	}
	identifiable := m.schema.IsIdentifiable(s.typ)
	switch {
	case identifiable && s.name == "":
		return errors.Wrapf(ErrNotIdentifiable, "%s requires an item name", s.typ)
	case !identifiable && s.name != "":
		return errors.Wrapf(ErrNotIdentifiable, "%s cannot have an item name", s.typ)
	}
	for _, attr := range s.attrs {
		spec, ok := m.schema.AttributeSpec(s.typ, attr.Name)
		if !ok {
			return errors.Wrapf(ErrInvalidStructure, "attribute %s is not valid for %s", attr.Name, s.typ)
		}
		if err := spec.Check(attr.Value); err != nil {
			return errors.Wrapf(err, "attribute %s of %s", attr.Name, s.typ)
		}
	}

	var current []ElementType
	for _, it := range s.items {
		if it.elem == nil {
			switch mode {
			case CharacterDataContent:
				spec, _ := m.schema.CharacterDataSpec(s.typ)
				if err := spec.Check(it.text); err != nil {
					return errors.Wrapf(err, "content of %s", s.typ)
				}
			case ElementsContent:
				return errors.Wrapf(ErrInvalidStructure, "%s cannot contain text", s.typ)
			}
			continue
		}
		p := m.schema.ValidSubElement(s.typ, it.elem.typ, current)
		if !p.Allowed || p.MaxPosition < len(current) {
			return errors.Wrapf(ErrInvalidStructure, "%s is not a valid sub element of %s at position %d", it.elem.typ, s.typ, len(current))
		}
		current = append(current, it.elem.typ)
	}
	if mode == CharacterDataContent && len(s.items) > 1 {
		return errors.Wrapf(ErrInvalidStructure, "%s holds more than one value", s.typ)
	}
	return nil
}

func collectSubtreePaths(m *Model, s *subtree, prefix string, out map[string]handle) error {
	if m.schema.IsIdentifiable(s.typ) {
		prefix = prefix + PathSeparator + s.name
		if _, dup := out[prefix]; dup {
			return errors.Wrapf(ErrDuplicateItemName, "path %q occurs twice", prefix)
		}
		out[prefix] = handle{}
	}
	for _, it := range s.items {
		if it.elem != nil {
			if err := collectSubtreePaths(m, it.elem, prefix, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertSubtree validates and inserts s below parent. The new elements
// inherit the membership of parent.
func (m *Model) insertSubtree(parent handle, s *subtree, position int) (handle, error) {
	if _, err := m.liveNode(parent); err != nil {
		return handle{}, err
	}
	if err := m.checkSubtree(s); err != nil {
		return handle{}, err
	}
	index, err := m.placement(parent, s.typ, position, handle{})
	if err != nil {
		return handle{}, err
	}
	candidates := make(map[string]handle)
	if err := collectSubtreePaths(m, s, m.scopePrefix(parent), candidates); err != nil {
		return handle{}, err
	}
	if err := m.checkPaths(candidates); err != nil {
		return handle{}, err
	}

	h := m.build(parent, s)
	m.insertItem(parent, index, item{child: h}, handle{})
	m.indexSubtree(h)
	m.logger.Debug("inserted copy",
		zap.String("type", string(s.typ)),
		zap.String("xmlPath", m.xmlPath(h)))
	return h, nil
}

// build allocates the nodes of s below parent without linking the top node
// into the parent content
func (m *Model) build(parent handle, s *subtree) handle {
	h := m.alloc(s.typ, parent)
	content := make([]item, 0, len(s.items))
	for _, it := range s.items {
		if it.elem == nil {
			content = append(content, item{text: it.text})
			continue
		}
		content = append(content, item{child: m.build(h, it.elem)})
	}
	nd, _ := m.node(h)
	nd.name = s.name
	nd.attrs = append([]Attribute(nil), s.attrs...)
	nd.content = content
	nd.origin = s.origin
	return h
}

// GoString implements fmt.GoStringer for debugging output
func (e Element) GoString() string {
	return fmt.Sprintf("arxml.Element{%s}", e.String())
}
