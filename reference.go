package arxml

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DestAttribute is the attribute of reference elements that names the type
// of the target
const DestAttribute AttributeName = "DEST"

// GetReferenceTarget resolves the path stored in a reference element
func (e Element) GetReferenceTarget() (Element, error) {
	m, err := e.read()
	if err != nil {
		return Element{}, err
	}
	defer m.mu.RUnlock()
	h, err := m.referenceTarget(e.h)
	if err != nil {
		return Element{}, err
	}
	return m.element(h), nil
}

func (m *Model) referenceTarget(h handle) (handle, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return handle{}, err
	}
	dest, ok := m.schema.ReferenceDestinations(nd.typ)
	if !ok {
		return handle{}, errors.Wrapf(ErrInvalidReference, "%s is not a reference", nd.typ)
	}
	if len(nd.content) == 0 || nd.content[0].isElement() {
		return handle{}, errors.Wrapf(ErrInvalidReference, "%s has no target", m.xmlPath(h))
	}
	path := nd.content[0].text.String()
	target, ok := m.index[path]
	if !ok {
		return handle{}, errors.Wrapf(ErrInvalidReference, "%s: dangling reference to %q", m.xmlPath(h), path)
	}
	tnd, _ := m.node(target)
	if !containsType(dest, tnd.typ) {
		return handle{}, errors.Wrapf(ErrInvalidReference, "%s: target %q is a %s, expected one of %v", m.xmlPath(h), path, tnd.typ, dest)
	}
	return target, nil
}

// SetReferenceTarget stores the path of target in a reference element. If
// the schema declares a DEST attribute for the reference type it is set to
// the type of target.
func (e Element) SetReferenceTarget(target Element) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, err := m.liveNode(e.h)
	if err != nil {
		return err
	}
	dest, ok := m.schema.ReferenceDestinations(nd.typ)
	if !ok {
		return errors.Wrapf(ErrInvalidReference, "%s is not a reference", nd.typ)
	}
	if target.model != m {
		return errors.Wrap(ErrInvalidReference, "target belongs to another model")
	}
	tnd, err := m.liveNode(target.h)
	if err != nil {
		return err
	}
	if !containsType(dest, tnd.typ) {
		return errors.Wrapf(ErrInvalidReference, "%s cannot refer to a %s, expected one of %v", nd.typ, tnd.typ, dest)
	}
	path, err := m.pathOf(target.h)
	if err != nil {
		return err
	}

	spec, _ := m.schema.CharacterDataSpec(nd.typ)
	value, err := spec.Parse(path)
	if err != nil {
		return errors.Wrapf(err, "reference value %q", path)
	}
	var destValue CharacterData
	destSpec, hasDest := m.schema.AttributeSpec(nd.typ, DestAttribute)
	if hasDest {
		destValue, err = destSpec.Parse(string(tnd.typ))
		if err != nil {
			return errors.Wrapf(ErrInvalidReference, "%s attribute cannot hold %s: %v", DestAttribute, tnd.typ, err)
		}
	}

	nd.content = []item{{text: value}}
	if hasDest {
		m.setAttribute(e.h, DestAttribute, destValue)
	}
	m.logger.Debug("set reference",
		zap.String("xmlPath", m.xmlPath(e.h)),
		zap.String("target", path))
	return nil
}

// ReferencesTo returns the reference elements whose value is path, in depth
// first order
func (m *Model) ReferencesTo(path string) []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []Element
	for _, d := range m.dfs(m.root, 0, nil) {
		nd, _ := m.node(d.h)
		if _, ok := m.schema.ReferenceDestinations(nd.typ); !ok {
			continue
		}
		if len(nd.content) == 1 && !nd.content[0].isElement() && nd.content[0].text.String() == path {
			refs = append(refs, m.element(d.h))
		}
	}
	return refs
}

// CheckReferences resolves every reference of the model that has a value.
// The result lists one ErrInvalidReference per unresolvable reference, or nil.
func (m *Model) CheckReferences() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result *multierror.Error
	for _, d := range m.dfs(m.root, 0, nil) {
		nd, _ := m.node(d.h)
		if _, ok := m.schema.ReferenceDestinations(nd.typ); !ok || len(nd.content) == 0 {
			continue
		}
		if _, err := m.referenceTarget(d.h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func containsType(types []ElementType, t ElementType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
