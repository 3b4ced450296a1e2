package arxml

import (
	"github.com/pkg/errors"
)

// collectPaths walks the subtree rooted at h as if it were placed below a
// scope with path prefix. topName replaces the item name of h when it is
// not empty. The path of every identifiable node is stored in out.
func (m *Model) collectPaths(h handle, prefix, topName string, out map[string]handle) {
	nd, ok := m.node(h)
	if !ok {
		return
	}
	if m.schema.IsIdentifiable(nd.typ) {
		name := nd.name
		if topName != "" {
			name = topName
		}
		prefix = prefix + PathSeparator + name
		out[prefix] = h
	}
	for _, it := range nd.content {
		if it.isElement() {
			m.collectPaths(it.child, prefix, "", out)
		}
	}
}

// subtreePaths returns the current paths of the subtree rooted at h
func (m *Model) subtreePaths(h handle) map[string]handle {
	paths := make(map[string]handle)
	nd, ok := m.node(h)
	if !ok {
		return paths
	}
	m.collectPaths(h, m.scopePrefix(nd.parent), "", paths)
	return paths
}

// checkPaths fails with ErrDuplicateItemName if one of the candidate paths
// is taken by an element outside of the candidate set
func (m *Model) checkPaths(candidates map[string]handle) error {
	owned := make(map[handle]bool, len(candidates))
	for _, h := range candidates {
		owned[h] = true
	}
	for path := range candidates {
		if existing, taken := m.index[path]; taken && !owned[existing] {
			return errors.Wrapf(ErrDuplicateItemName, "path %q is already used by %s", path, m.xmlPath(existing))
		}
	}
	return nil
}

func (m *Model) indexSubtree(h handle) {
	for path, owner := range m.subtreePaths(h) {
		m.index[path] = owner
	}
}

func (m *Model) unindexSubtree(h handle) {
	for path, owner := range m.subtreePaths(h) {
		if m.index[path] == owner {
			delete(m.index, path)
		}
	}
}
