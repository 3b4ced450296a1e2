package arxml

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Attribute is a name/value pair of an element
type Attribute struct {
	Name  AttributeName
	Value CharacterData
}

// ContentItem is one entry of the content of an element: either an Element
// or a CharacterData text
type ContentItem interface {
	isContentItem()
}

func (Element) isContentItem()       {}
func (CharacterData) isContentItem() {}

// Content returns a snapshot of the content of e in order
func (e Element) Content() []ContentItem {
	m, err := e.read()
	if err != nil {
		return nil
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return nil
	}
	items := make([]ContentItem, 0, len(nd.content))
	for _, it := range nd.content {
		if it.isElement() {
			items = append(items, m.element(it.child))
		} else {
			items = append(items, it.text)
		}
	}
	return items
}

// CharacterData returns the value of an element with character data content
func (e Element) CharacterData() (CharacterData, bool) {
	m, err := e.read()
	if err != nil {
		return CharacterData{}, false
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok || len(nd.content) != 1 || nd.content[0].isElement() {
		return CharacterData{}, false
	}
	if mode, _ := m.schema.ContentMode(nd.typ); mode != CharacterDataContent {
		return CharacterData{}, false
	}
	return nd.content[0].text, true
}

// SetCharacterData replaces the value of an element with character data
// content. The value must match the kind and restrictions of the schema.
func (e Element) SetCharacterData(cd CharacterData) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, spec, err := m.characterDataNode(e.h)
	if err != nil {
		return err
	}
	if err := spec.Check(cd); err != nil {
		return errors.Wrapf(err, "content of %s", m.xmlPath(e.h))
	}
	nd.content = []item{{text: cd}}
	return nil
}

// SetCharacterDataString parses text according to the schema and stores it
func (e Element) SetCharacterDataString(text string) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, spec, err := m.characterDataNode(e.h)
	if err != nil {
		return err
	}
	cd, err := spec.Parse(text)
	if err != nil {
		return errors.Wrapf(err, "content of %s", m.xmlPath(e.h))
	}
	nd.content = []item{{text: cd}}
	return nil
}

// RemoveCharacterData clears the value. It reports whether there was one.
func (e Element) RemoveCharacterData() (bool, error) {
	m, err := e.write()
	if err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	nd, _, err := m.characterDataNode(e.h)
	if err != nil {
		return false, err
	}
	had := len(nd.content) > 0
	nd.content = nil
	return had, nil
}

func (m *Model) characterDataNode(h handle) (*node, *CharacterDataSpec, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return nil, nil, err
	}
	if mode, _ := m.schema.ContentMode(nd.typ); mode != CharacterDataContent {
		return nil, nil, errors.Wrapf(ErrInvalidStructure, "%s does not have character data content", nd.typ)
	}
	spec, _ := m.schema.CharacterDataSpec(nd.typ)
	return nd, spec, nil
}

// InsertCharacterContentItem inserts a text item into mixed content.
// position is a content index between 0 and the number of content items.
func (e Element) InsertCharacterContentItem(text string, position int) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, err := m.mixedNode(e.h)
	if err != nil {
		return err
	}
	if position < 0 || position > len(nd.content) {
		return errors.Wrapf(ErrInvalidPosition, "position %d is out of range 0..%d", position, len(nd.content))
	}
	m.insertItem(e.h, position, item{text: StringValue(text)}, handle{})
	return nil
}

// RemoveCharacterContentItem removes the text item at position from mixed
// content
func (e Element) RemoveCharacterContentItem(position int) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, err := m.mixedNode(e.h)
	if err != nil {
		return err
	}
	if position < 0 || position >= len(nd.content) {
		return errors.Wrapf(ErrInvalidPosition, "position %d is out of range", position)
	}
	if nd.content[position].isElement() {
		return errors.Wrapf(ErrInvalidPosition, "position %d holds an element", position)
	}
	nd.content = append(nd.content[:position:position], nd.content[position+1:]...)
	return nil
}

func (m *Model) mixedNode(h handle) (*node, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return nil, err
	}
	if mode, _ := m.schema.ContentMode(nd.typ); mode != MixedContent {
		return nil, errors.Wrapf(ErrInvalidStructure, "%s does not have mixed content", nd.typ)
	}
	return nd, nil
}

// Attributes returns the attributes of e in the order they were set
func (e Element) Attributes() []Attribute {
	m, err := e.read()
	if err != nil {
		return nil
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return nil
	}
	return append([]Attribute(nil), nd.attrs...)
}

// AttributeValue returns the value of attribute name
func (e Element) AttributeValue(name AttributeName) (CharacterData, bool) {
	m, err := e.read()
	if err != nil {
		return CharacterData{}, false
	}
	defer m.mu.RUnlock()
	nd, ok := m.node(e.h)
	if !ok {
		return CharacterData{}, false
	}
	for _, attr := range nd.attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return CharacterData{}, false
}

// SetAttribute sets attribute name to value. The schema must declare the
// attribute for the element type and the value must match its spec.
func (e Element) SetAttribute(name AttributeName, value CharacterData) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	spec, err := m.attributeSpec(e.h, name)
	if err != nil {
		return err
	}
	if err := spec.Check(value); err != nil {
		return errors.Wrapf(err, "attribute %s", name)
	}
	m.setAttribute(e.h, name, value)
	return nil
}

// SetAttributeString converts text to the declared kind of the attribute
// and sets it
func (e Element) SetAttributeString(name AttributeName, text string) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	spec, err := m.attributeSpec(e.h, name)
	if err != nil {
		return err
	}
	value, err := spec.Parse(text)
	if err != nil {
		return errors.Wrapf(err, "attribute %s", name)
	}
	m.setAttribute(e.h, name, value)
	return nil
}

// RemoveAttribute removes attribute name and reports whether it was set
func (e Element) RemoveAttribute(name AttributeName) bool {
	m, err := e.write()
	if err != nil {
		return false
	}
	defer m.mu.Unlock()
	nd, ok := m.node(e.h)
	if !ok {
		return false
	}
	for i, attr := range nd.attrs {
		if attr.Name == name {
			nd.attrs = append(nd.attrs[:i:i], nd.attrs[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Model) attributeSpec(h handle, name AttributeName) (*CharacterDataSpec, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return nil, err
	}
	spec, ok := m.schema.AttributeSpec(nd.typ, name)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidStructure, "attribute %s is not valid for %s", name, nd.typ)
	}
	return spec, nil
}

func (m *Model) setAttribute(h handle, name AttributeName, value CharacterData) {
	nd, _ := m.node(h)
	for i, attr := range nd.attrs {
		if attr.Name == name {
			nd.attrs[i].Value = value
			return
		}
	}
	nd.attrs = append(nd.attrs, Attribute{Name: name, Value: value})
	m.logger.Debug("set attribute",
		zap.String("xmlPath", m.xmlPath(h)),
		zap.String("attribute", string(name)))
}
