package arxml

import (
	"io"
	"os"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// itemNameSource is implemented by schemas that name the element carrying
// item names in documents
type itemNameSource interface {
	ItemNameElementType() ElementType
}

// Origin returns where the element was read from. Elements created in
// memory have a zero Position.
func (e Element) Origin() Position {
	m, err := e.read()
	if err != nil {
		return Position{}
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return Position{}
	}
	return nd.origin
}

// LoadFile reads an XML document from disk and merges it into the model as
// a new file named filename
func (m *Model) LoadFile(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", filename)
	}
	defer f.Close()
	return m.LoadReader(filename, f)
}

// LoadReader decodes an XML document and merges it into the model as a new
// file called name
func (m *Model) LoadReader(name string, r io.Reader) (*File, error) {
	doc, err := xmldom.Decode(r)
	if err != nil {
		return nil, errors.Wrapf(ErrParse, "%s: %v", name, err)
	}
	return m.LoadDocument(name, doc)
}

// LoadDocument merges a parsed document into the model as a new file.
// Identifiable elements that already exist with the same path are shared
// between the files, as are non-identifiable elements that may occur only
// once. Everything else the document contains becomes part of the new file
// only. The model is left unchanged if the document cannot be merged.
func (m *Model) LoadDocument(name string, doc xmldom.Document) (*File, error) {
	if doc == nil {
		return nil, errors.Wrapf(ErrParse, "%s: no document", name)
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, errors.Wrapf(ErrParse, "%s: document has no root element", name)
	}

	conv := &converter{
		model:    m,
		file:     name,
		itemName: DefaultItemNameElement,
	}
	if src, ok := m.schema.(itemNameSource); ok {
		conv.itemName = src.ItemNameElementType()
	}
	tree, err := conv.convert(root)
	if err != nil {
		return nil, err
	}
	if tree.typ != m.schema.RootType() {
		return nil, errors.Wrapf(ErrInvalidStructure, "%s: root element is %s, expected %s", tree.origin, tree.typ, m.schema.RootType())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		return nil, errors.Wrap(ErrInvalidFile, "empty file name")
	}
	if m.fileByName(name) != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "file %q already exists", name)
	}

	plan := newMergePlan()
	if err := m.planMerge(plan, m.root, tree); err != nil {
		return nil, err
	}
	if err := m.checkPaths(plan.paths); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	f := m.applyMerge(plan, name)
	m.logger.Info("loaded file",
		zap.String("file", name),
		zap.Int("shared", len(plan.merged)),
		zap.Int("added", len(plan.inserts)))
	return f, nil
}

// converter turns a DOM tree into a validated subtree
type converter struct {
	model    *Model
	file     string
	itemName ElementType
}

func (c *converter) position(elem xmldom.Element) Position {
	line, col, offset := elem.Position()
	return Position{File: c.file, Line: line, Column: col, Offset: offset}
}

func (c *converter) convert(elem xmldom.Element) (*subtree, error) {
	schema := c.model.schema
	pos := c.position(elem)
	s := &subtree{typ: ElementType(elem.LocalName()), origin: pos}
	mode, known := schema.ContentMode(s.typ)
	if !known {
		return nil, errors.Wrapf(ErrInvalidStructure, "%s: unknown element %s", pos, s.typ)
	}

	identifiable := schema.IsIdentifiable(s.typ)
	if identifiable {
		name, err := c.findItemName(elem)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", pos)
		}
		s.name = name
	}

	attrs := elem.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		local := string(attr.LocalName())
		ns := string(attr.NamespaceURI())
		if ns != "" || local == "xmlns" {
			continue
		}
		spec, ok := schema.AttributeSpec(s.typ, AttributeName(local))
		if !ok {
			c.model.logger.Warn("skipping undeclared attribute",
				zap.String("position", pos.String()),
				zap.String("element", string(s.typ)),
				zap.String("attribute", local))
			continue
		}
		value, err := spec.Parse(string(attr.NodeValue()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: attribute %s", pos, local)
		}
		s.attrs = append(s.attrs, Attribute{Name: AttributeName(local), Value: value})
	}

	switch mode {
	case CharacterDataContent:
		if elem.Children().Length() > 0 {
			return nil, errors.Wrapf(ErrInvalidStructure, "%s: %s cannot contain elements", pos, s.typ)
		}
		text := textContent(elem)
		if text == "" {
			break
		}
		spec, _ := schema.CharacterDataSpec(s.typ)
		if spec != nil && spec.Kind != StringKind {
			text = strings.TrimSpace(text)
		}
		value, err := spec.Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: content of %s", pos, s.typ)
		}
		s.items = append(s.items, subtreeItem{text: value})
	case MixedContent:
		children := elem.Children()
		next := uint(0)
		nodes := elem.ChildNodes()
		for i := uint(0); i < nodes.Length(); i++ {
			n := nodes.Item(i)
			if n == nil {
				continue
			}
			switch n.NodeType() {
			case 1:
				child := children.Item(next)
				next++
				if child == nil || (identifiable && ElementType(child.LocalName()) == c.itemName) {
					continue
				}
				sub, err := c.convert(child)
				if err != nil {
					return nil, err
				}
				s.items = append(s.items, subtreeItem{elem: sub})
			case 3, 4:
				text := string(n.NodeValue())
				if last := len(s.items) - 1; last >= 0 && s.items[last].elem == nil {
					s.items[last].text = StringValue(s.items[last].text.String() + text)
					continue
				}
				s.items = append(s.items, subtreeItem{text: StringValue(text)})
			}
		}
	default:
		if text := strings.TrimSpace(textContent(elem)); text != "" {
			c.model.logger.Warn("skipping text in element content",
				zap.String("position", pos.String()),
				zap.String("element", string(s.typ)))
		}
		children := elem.Children()
		for i := uint(0); i < children.Length(); i++ {
			child := children.Item(i)
			if child == nil || (identifiable && ElementType(child.LocalName()) == c.itemName) {
				continue
			}
			sub, err := c.convert(child)
			if err != nil {
				return nil, err
			}
			s.items = append(s.items, subtreeItem{elem: sub})
		}
	}

	if err := c.model.checkNodeShallow(s); err != nil {
		return nil, errors.Wrapf(err, "%s", pos)
	}
	return s, nil
}

func (c *converter) findItemName(elem xmldom.Element) (string, error) {
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child != nil && ElementType(child.LocalName()) == c.itemName {
			name := strings.TrimSpace(textContent(child))
			if err := validateItemName(name); err != nil {
				return "", err
			}
			return name, nil
		}
	}
	return "", errors.Wrapf(ErrNotIdentifiable, "%s has no %s", elem.LocalName(), c.itemName)
}

// textContent concatenates the text and CDATA children of elem
func textContent(elem xmldom.Element) string {
	var content strings.Builder
	nodes := elem.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		if n := nodes.Item(i); n != nil && (n.NodeType() == 3 || n.NodeType() == 4) {
			content.WriteString(string(n.NodeValue()))
		}
	}
	return content.String()
}

// mergePlan is the list of changes loading a document makes. It is built
// completely before the model is touched.
type mergePlan struct {
	merged  []handle
	inserts []plannedInsert
	attrs   []plannedAttr
	values  []plannedValue
	mixed   []plannedValue
	// current tracks the sub element types of existing elements including
	// planned inserts
	current map[handle][]ElementType
	paths   map[string]handle
}

type plannedInsert struct {
	parent handle
	tree   *subtree
}

type plannedAttr struct {
	h    handle
	attr Attribute
}

// plannedValue sets the empty content of h
type plannedValue struct {
	h     handle
	items []subtreeItem
}

func newMergePlan() *mergePlan {
	return &mergePlan{
		current: make(map[handle][]ElementType),
		paths:   make(map[string]handle),
	}
}

func (p *mergePlan) types(m *Model, h handle) []ElementType {
	if types, ok := p.current[h]; ok {
		return types
	}
	nd, _ := m.node(h)
	types := subElementTypes(m, nd, handle{})
	p.current[h] = types
	return types
}

func (m *Model) planMerge(p *mergePlan, h handle, s *subtree) error {
	nd, _ := m.node(h)
	p.merged = append(p.merged, h)

	for _, attr := range s.attrs {
		existing, found := findAttribute(nd.attrs, attr.Name)
		switch {
		case !found:
			p.attrs = append(p.attrs, plannedAttr{h: h, attr: attr})
		case existing != attr.Value:
			return errors.Wrapf(ErrInvalidStructure, "%s: attribute %s is %q here and %q in %s",
				s.origin, attr.Name, attr.Value, existing, nd.origin)
		}
	}

	mode, _ := m.schema.ContentMode(nd.typ)
	switch mode {
	case CharacterDataContent:
		switch {
		case len(s.items) == 0:
		case len(nd.content) == 0:
			p.values = append(p.values, plannedValue{h: h, items: s.items})
		case nd.content[0].text != s.items[0].text:
			return errors.Wrapf(ErrInvalidStructure, "%s: %s is %q here and %q in %s",
				s.origin, nd.typ, s.items[0].text, nd.content[0].text, nd.origin)
		}
		return nil
	case MixedContent:
		if len(s.items) == 0 {
			return nil
		}
		if len(nd.content) > 0 {
			return errors.Wrapf(ErrInvalidStructure, "%s: mixed content of %s cannot be merged with %s",
				s.origin, nd.typ, nd.origin)
		}
		for _, it := range s.items {
			if it.elem != nil {
				if err := collectSubtreePaths(m, it.elem, m.scopePrefix(h), p.paths); err != nil {
					return errors.Wrapf(err, "%s", it.elem.origin)
				}
			}
		}
		p.mixed = append(p.mixed, plannedValue{h: h, items: s.items})
		return nil
	}

	for _, it := range s.items {
		if it.elem == nil {
			continue
		}
		child := it.elem
		if match, ok, err := m.findMergeTarget(p, h, child); err != nil {
			return err
		} else if ok {
			if err := m.planMerge(p, match, child); err != nil {
				return err
			}
			continue
		}

		current := p.types(m, h)
		placement := m.schema.ValidSubElement(nd.typ, child.typ, current)
		if !placement.Allowed {
			return errors.Wrapf(ErrInvalidStructure, "%s: %s is not a valid sub element of %s here",
				child.origin, child.typ, nd.typ)
		}
		if err := collectSubtreePaths(m, child, m.scopePrefix(h), p.paths); err != nil {
			return errors.Wrapf(err, "%s", child.origin)
		}
		p.current[h] = append(current, child.typ)
		p.inserts = append(p.inserts, plannedInsert{parent: h, tree: child})
	}
	return nil
}

// findMergeTarget looks for the existing sub element of h that child
// describes in another file
func (m *Model) findMergeTarget(p *mergePlan, h handle, child *subtree) (handle, bool, error) {
	if m.schema.IsIdentifiable(child.typ) {
		path := m.scopePrefix(h) + PathSeparator + child.name
		existing, ok := m.index[path]
		if !ok {
			return handle{}, false, nil
		}
		end, _ := m.node(existing)
		if end.parent != h || end.typ != child.typ {
			return handle{}, false, errors.Wrapf(ErrDuplicateItemName, "%s: path %q is already used by %s",
				child.origin, path, m.xmlPath(existing))
		}
		return existing, true, nil
	}

	nd, _ := m.node(h)
	var candidate handle
	for _, it := range nd.content {
		if !it.isElement() {
			continue
		}
		if cnd, ok := m.node(it.child); ok && cnd.typ == child.typ {
			candidate = it.child
			break
		}
	}
	if !candidate.valid() {
		return handle{}, false, nil
	}
	// a type that may occur again is added next to the existing elements
	if m.schema.ValidSubElement(nd.typ, child.typ, p.types(m, h)).Allowed {
		return handle{}, false, nil
	}
	return candidate, true, nil
}

func (m *Model) applyMerge(p *mergePlan, name string) *File {
	m.nextFileID++
	f := &File{model: m, id: m.nextFileID, name: name}

	// merged elements are visited parents first, so each one is pinned
	// before it gains the new file
	pin := len(m.files) > 0
	for _, h := range p.merged {
		if pin {
			m.pinChildren(h, handle{})
		}
		eff := m.effectiveFiles(h)
		eff[f.id] = struct{}{}
		nd, _ := m.node(h)
		nd.files = eff
	}
	for _, pa := range p.attrs {
		m.setAttribute(pa.h, pa.attr.Name, pa.attr.Value)
	}
	for _, pv := range p.values {
		nd, _ := m.node(pv.h)
		nd.content = []item{{text: pv.items[0].text}}
	}
	for _, pv := range p.mixed {
		content := make([]item, 0, len(pv.items))
		for _, it := range pv.items {
			if it.elem == nil {
				content = append(content, item{text: it.text})
				continue
			}
			h := m.build(pv.h, it.elem)
			cnd, _ := m.node(h)
			cnd.files = fileSet{f.id: {}}
			content = append(content, item{child: h})
		}
		nd, _ := m.node(pv.h)
		nd.content = content
		for _, it := range content {
			if it.isElement() {
				m.indexSubtree(it.child)
			}
		}
	}
	for _, ins := range p.inserts {
		index, err := m.placement(ins.parent, ins.tree.typ, -1, handle{})
		if err != nil {
			// the plan checked every insert against the same state
			m.logger.Error("planned insert rejected", zap.Error(err))
			continue
		}
		h := m.build(ins.parent, ins.tree)
		m.insertItem(ins.parent, index, item{child: h}, handle{})
		nd, _ := m.node(h)
		nd.files = fileSet{f.id: {}}
		m.indexSubtree(h)
	}
	m.files[f.id] = f
	return f
}

func findAttribute(attrs []Attribute, name AttributeName) (CharacterData, bool) {
	for _, attr := range attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return CharacterData{}, false
}
