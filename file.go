package arxml

import (
	"iter"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type fileID uint64

type fileSet map[fileID]struct{}

// File is one physical document of a Model. A File has no contents of its
// own; it is the set of elements whose membership contains it.
type File struct {
	model *Model
	id    fileID
	name  string
}

// Name returns the file name
func (f *File) Name() string {
	return f.name
}

// Model returns the model the file belongs to
func (f *File) Model() *Model {
	return f.model
}

// IsValid reports whether the file is still registered with its model
func (f *File) IsValid() bool {
	if f == nil || f.model == nil {
		return false
	}
	f.model.mu.RLock()
	defer f.model.mu.RUnlock()
	return f.model.files[f.id] == f
}

func (f *File) String() string {
	return f.name
}

// ElementsDFS yields the elements of the file in depth first order together
// with their depth below the root
func (f *File) ElementsDFS() iter.Seq2[int, Element] {
	m := f.model
	m.mu.RLock()
	var list []elementDepth
	if m.files[f.id] == f {
		list = m.fileDFS(f.id, m.root, 0, m.liveFiles(), nil)
	}
	m.mu.RUnlock()
	return yieldDepths(m, list)
}

// CreateFile registers a new file. Elements whose membership is inherited
// from the root become part of it.
func (m *Model) CreateFile(name string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		return nil, errors.Wrap(ErrInvalidFile, "empty file name")
	}
	if m.fileByName(name) != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "file %q already exists", name)
	}
	m.nextFileID++
	f := &File{model: m, id: m.nextFileID, name: name}
	m.files[f.id] = f
	m.logger.Info("created file", zap.String("file", name))
	return f, nil
}

// RemoveFile unregisters f. Elements that were only part of f are removed
// from the model.
func (m *Model) RemoveFile(f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFile(f); err != nil {
		return err
	}
	only := fileSet{f.id: {}}
	var doomed []handle
	var walk func(h handle, inherited fileSet)
	walk = func(h handle, inherited fileSet) {
		nd, ok := m.node(h)
		if !ok {
			return
		}
		eff := m.localOr(nd, inherited)
		if h != m.root && sameFiles(eff, only) {
			doomed = append(doomed, h)
			return
		}
		for _, it := range nd.content {
			if it.isElement() {
				walk(it.child, eff)
			}
		}
	}
	walk(m.root, m.liveFiles())

	for _, h := range doomed {
		nd, _ := m.node(h)
		m.unindexSubtree(h)
		m.detach(nd.parent, h)
		m.release(h)
	}
	for i := range m.nodes {
		if m.nodes[i].live && m.nodes[i].files != nil {
			delete(m.nodes[i].files, f.id)
		}
	}
	delete(m.files, f.id)
	m.logger.Info("removed file",
		zap.String("file", f.name),
		zap.Int("removedElements", len(doomed)))
	return nil
}

// Files returns the registered files sorted by name
func (m *Model) Files() []*File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedFiles(m.liveFiles())
}

// GetFile returns the file called name
func (m *Model) GetFile(name string) (*File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := m.fileByName(name)
	return f, f != nil
}

// FileMembership returns the files e is part of. local is false when the
// membership is inherited from the parent.
func (e Element) FileMembership() (files []*File, local bool, err error) {
	m, err := e.read()
	if err != nil {
		return nil, false, err
	}
	defer m.mu.RUnlock()
	nd, err := m.liveNode(e.h)
	if err != nil {
		return nil, false, err
	}
	return m.sortedFiles(m.effectiveFiles(e.h)), nd.files != nil, nil
}

// SetFileMembership replaces the membership of e. An empty set leaves the
// element in no file at all. Otherwise the ancestors of e are added to every
// file so the element stays reachable in it, and descendants with their own
// membership are restricted to the new set.
func (e Element) SetFileMembership(files []*File) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, err := m.liveNode(e.h); err != nil {
		return err
	}
	set := make(fileSet, len(files))
	for _, f := range files {
		if err := m.checkFile(f); err != nil {
			return err
		}
		set[f.id] = struct{}{}
	}

	m.restrictDescendants(e.h, set)
	nd, _ := m.node(e.h)
	nd.files = set
	for id := range set {
		m.ensureAncestors(e.h, id)
	}
	m.logger.Debug("set file membership",
		zap.String("xmlPath", m.xmlPath(e.h)),
		zap.Int("files", len(set)))
	return nil
}

// AddToFile adds e, its subtree and its ancestors to f
func (e Element) AddToFile(f *File) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, err := m.liveNode(e.h); err != nil {
		return err
	}
	if err := m.checkFile(f); err != nil {
		return err
	}
	eff := m.effectiveFiles(e.h)
	eff[f.id] = struct{}{}
	for _, d := range m.dfs(e.h, 0, nil)[1:] {
		if dn, ok := m.node(d.h); ok && dn.files != nil {
			dn.files[f.id] = struct{}{}
		}
	}
	nd, _ := m.node(e.h)
	nd.files = eff
	m.ensureAncestors(e.h, f.id)
	m.logger.Debug("added to file",
		zap.String("xmlPath", m.xmlPath(e.h)),
		zap.String("file", f.name))
	return nil
}

// RemoveFromFile removes e and its subtree from f. An element that is left
// in no file is removed from the model.
func (e Element) RemoveFromFile(f *File) error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	nd, err := m.liveNode(e.h)
	if err != nil {
		return err
	}
	if err := m.checkFile(f); err != nil {
		return err
	}
	eff := m.effectiveFiles(e.h)
	if _, member := eff[f.id]; !member {
		return nil
	}
	delete(eff, f.id)
	if len(eff) == 0 && nd.parent.valid() {
		m.dropFromModel(e.h, f)
		return nil
	}

	// descendants whose own membership was only f go with it. Orphans
	// were in no file before and stay.
	var doomed []handle
	var walk func(h handle)
	walk = func(h handle) {
		dn, ok := m.node(h)
		if !ok {
			return
		}
		if _, member := dn.files[f.id]; member {
			delete(dn.files, f.id)
			if len(dn.files) == 0 {
				doomed = append(doomed, h)
				return
			}
		}
		for _, it := range dn.content {
			if it.isElement() {
				walk(it.child)
			}
		}
	}
	for _, it := range nd.content {
		if it.isElement() {
			walk(it.child)
		}
	}
	for _, h := range doomed {
		m.dropFromModel(h, f)
	}

	nd, _ = m.node(e.h)
	nd.files = eff
	m.logger.Debug("removed from file",
		zap.String("xmlPath", m.xmlPath(e.h)),
		zap.String("file", f.name))
	return nil
}

// dropFromModel removes the subtree of h after its last file f went away
func (m *Model) dropFromModel(h handle, f *File) {
	nd, _ := m.node(h)
	xmlPath := m.xmlPath(h)
	parent := nd.parent
	m.unindexSubtree(h)
	m.detach(parent, h)
	m.release(h)
	m.logger.Debug("removed element left in no file",
		zap.String("xmlPath", xmlPath),
		zap.String("file", f.name))
}

func (m *Model) checkFile(f *File) error {
	if f == nil {
		return errors.Wrap(ErrInvalidFile, "nil file")
	}
	if f.model != m {
		return errors.Wrapf(ErrInvalidFile, "file %q belongs to another model", f.name)
	}
	if m.files[f.id] != f {
		return errors.Wrapf(ErrInvalidFile, "file %q was removed", f.name)
	}
	return nil
}

func (m *Model) fileByName(name string) *File {
	for _, f := range m.files {
		if f.name == name {
			return f
		}
	}
	return nil
}

func (m *Model) liveFiles() fileSet {
	set := make(fileSet, len(m.files))
	for id := range m.files {
		set[id] = struct{}{}
	}
	return set
}

// localOr returns a copy of the local membership of nd without removed
// files, or inherited if nd has none
func (m *Model) localOr(nd *node, inherited fileSet) fileSet {
	if nd.files == nil {
		return inherited
	}
	set := make(fileSet, len(nd.files))
	for id := range nd.files {
		if _, live := m.files[id]; live {
			set[id] = struct{}{}
		}
	}
	return set
}

// effectiveFiles returns a fresh copy of the membership of h
func (m *Model) effectiveFiles(h handle) fileSet {
	for cur := h; cur.valid(); {
		nd, ok := m.node(cur)
		if !ok {
			break
		}
		if nd.files != nil {
			return m.localOr(nd, nil)
		}
		cur = nd.parent
	}
	return m.liveFiles()
}

func sameFiles(a, b fileSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func (m *Model) sortedFiles(set fileSet) []*File {
	files := make([]*File, 0, len(set))
	for id := range set {
		if f, ok := m.files[id]; ok {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files
}

// pinChildren gives every inheriting element child of h the current
// membership of h, so a following change of h does not reach them
func (m *Model) pinChildren(h, except handle) {
	nd, ok := m.node(h)
	if !ok {
		return
	}
	var eff fileSet
	for _, it := range nd.content {
		if !it.isElement() || it.child == except {
			continue
		}
		child, ok := m.node(it.child)
		if !ok || child.files != nil {
			continue
		}
		if eff == nil {
			eff = m.effectiveFiles(h)
		}
		pinned := make(fileSet, len(eff))
		for id := range eff {
			pinned[id] = struct{}{}
		}
		child.files = pinned
	}
}

// ensureAncestors adds id to the ancestors of h that lack it. Siblings
// along the way keep their membership.
func (m *Model) ensureAncestors(h handle, id fileID) {
	child := h
	nd, ok := m.node(h)
	if !ok {
		return
	}
	for cur := nd.parent; cur.valid(); {
		eff := m.effectiveFiles(cur)
		if _, member := eff[id]; member {
			return
		}
		m.pinChildren(cur, child)
		eff[id] = struct{}{}
		cn, _ := m.node(cur)
		cn.files = eff
		child = cur
		cur = cn.parent
	}
}

// restrictDescendants intersects the local membership of every descendant
// of h with set. A descendant left with nothing inherits again.
func (m *Model) restrictDescendants(h handle, set fileSet) {
	for _, d := range m.dfs(h, 0, nil)[1:] {
		dn, ok := m.node(d.h)
		if !ok || dn.files == nil {
			continue
		}
		for id := range dn.files {
			if _, keep := set[id]; !keep {
				delete(dn.files, id)
			}
		}
		if len(dn.files) == 0 {
			dn.files = nil
		}
	}
}

// fileDFS lists the subtree of h that is part of file id
func (m *Model) fileDFS(id fileID, h handle, depth int, inherited fileSet, out []elementDepth) []elementDepth {
	nd, ok := m.node(h)
	if !ok {
		return out
	}
	eff := m.localOr(nd, inherited)
	if _, member := eff[id]; member {
		out = append(out, elementDepth{depth: depth, h: h})
	}
	for _, it := range nd.content {
		if it.isElement() {
			out = m.fileDFS(id, it.child, depth+1, eff, out)
		}
	}
	return out
}
