package arxml

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PathSeparator joins item names in element paths
const PathSeparator = "/"

// handle addresses a node slot in the model arena. A handle with generation
// zero is "none"; a handle whose generation no longer matches its slot
// refers to a removed element.
type handle struct {
	idx int32
	gen uint32
}

func (h handle) valid() bool {
	return h.gen != 0
}

// item is one entry of an element's content: a sub element or a text run
type item struct {
	child handle
	text  CharacterData
}

func (it item) isElement() bool {
	return it.child.valid()
}

type node struct {
	gen     uint32
	live    bool
	typ     ElementType
	name    string
	parent  handle
	content []item
	attrs   []Attribute
	// files is the local file membership; nil inherits from the parent and
	// the root inherits every file of the model
	files map[fileID]struct{}
	// origin is where the element was read from, zero for elements that
	// were created in memory
	origin Position
}

// Model is one logical document that may be split over several files. It
// owns the element tree, the path index and the file registry. All
// operations on the model, its elements and its files are serialized by
// the model lock.
type Model struct {
	mu     sync.RWMutex
	id     uuid.UUID
	schema SchemaService
	logger *zap.Logger

	nodes []node
	free  []int32
	root  handle
	index map[string]handle

	files      map[fileID]*File
	nextFileID fileID
}

// Option configures a Model
type Option func(*Model)

// WithLogger sets the logger used for mutation and file lifecycle events
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewModel creates an empty model holding only a root element of the
// schema's root type
func NewModel(schema SchemaService, opts ...Option) *Model {
	m := &Model{
		id:     uuid.New(),
		schema: schema,
		logger: zap.NewNop(),
		index:  make(map[string]handle),
		files:  make(map[fileID]*File),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("model", m.id.String()))
	m.root = m.alloc(schema.RootType(), handle{})
	return m
}

// ID returns the unique identity of the model
func (m *Model) ID() uuid.UUID {
	return m.id
}

// Schema returns the schema service the model validates against
func (m *Model) Schema() SchemaService {
	return m.schema
}

// RootElement returns the root of the element tree
func (m *Model) RootElement() Element {
	return Element{model: m, h: m.root}
}

// GetElementByPath looks up an identifiable element by its path
func (m *Model) GetElementByPath(path string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.index[path]
	if !ok {
		return Element{}, false
	}
	return m.element(h), true
}

// ResolvePath is GetElementByPath with an error for unknown paths
func (m *Model) ResolvePath(path string) (Element, error) {
	if e, ok := m.GetElementByPath(path); ok {
		return e, nil
	}
	return Element{}, errors.Wrapf(ErrPathResolutionFailed, "no element at %q", path)
}

// IdentifiablePaths returns the paths of all identifiable elements, sorted
func (m *Model) IdentifiablePaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.index))
	for path := range m.index {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (m *Model) element(h handle) Element {
	return Element{model: m, h: h}
}

// node returns the live node addressed by h. The pointer is only valid
// until the next alloc.
func (m *Model) node(h handle) (*node, bool) {
	if !h.valid() || h.idx < 0 || int(h.idx) >= len(m.nodes) {
		return nil, false
	}
	nd := &m.nodes[h.idx]
	if !nd.live || nd.gen != h.gen {
		return nil, false
	}
	return nd, true
}

// liveNode is node with an ErrDetachedElement error
func (m *Model) liveNode(h handle) (*node, error) {
	nd, ok := m.node(h)
	if !ok {
		return nil, errors.WithStack(ErrDetachedElement)
	}
	return nd, nil
}

func (m *Model) alloc(t ElementType, parent handle) handle {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		nd := &m.nodes[idx]
		*nd = node{gen: nd.gen, live: true, typ: t, parent: parent}
		return handle{idx: idx, gen: nd.gen}
	}
	m.nodes = append(m.nodes, node{gen: 1, live: true, typ: t, parent: parent})
	return handle{idx: int32(len(m.nodes) - 1), gen: 1}
}

// release frees the slots of the subtree rooted at h. Outstanding handles
// to any of them become stale.
func (m *Model) release(h handle) {
	nd, ok := m.node(h)
	if !ok {
		return
	}
	children := nd.content
	for _, it := range children {
		if it.isElement() {
			m.release(it.child)
		}
	}
	nd = &m.nodes[h.idx]
	gen := nd.gen + 1
	if gen == 0 {
		gen = 1
	}
	*nd = node{gen: gen}
	m.free = append(m.free, h.idx)
}

// isAncestorOrSelf reports whether a is h or one of its ancestors
func (m *Model) isAncestorOrSelf(a, h handle) bool {
	for cur := h; cur.valid(); {
		if cur == a {
			return true
		}
		nd, ok := m.node(cur)
		if !ok {
			return false
		}
		cur = nd.parent
	}
	return false
}

// scopePrefix returns the path of the nearest identifiable ancestor-or-self
// of h, or "" if there is none. Children of h are indexed below it.
func (m *Model) scopePrefix(h handle) string {
	var names []string
	for cur := h; cur.valid(); {
		nd, ok := m.node(cur)
		if !ok {
			break
		}
		if m.schema.IsIdentifiable(nd.typ) {
			names = append(names, nd.name)
		}
		cur = nd.parent
	}
	if len(names) == 0 {
		return ""
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return PathSeparator + strings.Join(names, PathSeparator)
}

func (m *Model) pathOf(h handle) (string, error) {
	nd, err := m.liveNode(h)
	if err != nil {
		return "", err
	}
	if !m.schema.IsIdentifiable(nd.typ) {
		return "", errors.Wrapf(ErrNotIdentifiable, "%s has no path", m.xmlPath(h))
	}
	return m.scopePrefix(h), nil
}

// xmlPath renders the chain of element types from the root, using the item
// name for identifiable elements
func (m *Model) xmlPath(h handle) string {
	var parts []string
	for cur := h; cur.valid(); {
		nd, ok := m.node(cur)
		if !ok {
			break
		}
		if m.schema.IsIdentifiable(nd.typ) && nd.name != "" {
			parts = append(parts, nd.name)
		} else {
			parts = append(parts, "<"+string(nd.typ)+">")
		}
		cur = nd.parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return PathSeparator + strings.Join(parts, PathSeparator)
}

// subElementTypes lists the types of the element children of nd, leaving
// out skip
func subElementTypes(m *Model, nd *node, skip handle) []ElementType {
	types := make([]ElementType, 0, len(nd.content))
	for _, it := range nd.content {
		if it.isElement() && it.child != skip {
			if child, ok := m.node(it.child); ok {
				types = append(types, child.typ)
			}
		}
	}
	return types
}

// dfs appends h and its descendants with their depth relative to depth
func (m *Model) dfs(h handle, depth int, out []elementDepth) []elementDepth {
	nd, ok := m.node(h)
	if !ok {
		return out
	}
	out = append(out, elementDepth{depth: depth, h: h})
	for _, it := range nd.content {
		if it.isElement() {
			out = m.dfs(it.child, depth+1, out)
		}
	}
	return out
}

type elementDepth struct {
	depth int
	h     handle
}
