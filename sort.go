package arxml

import (
	"sort"
)

// Sort puts the subtree of e into canonical order. Sub elements are ordered
// by their position in the content model of the parent; sub elements of the
// same type are ordered by item name, or by value for character data
// elements, unless the parent type is ordered. Text items of mixed content
// stay where they are and elements never move across them.
func (e Element) Sort() error {
	m, err := e.write()
	if err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, err := m.liveNode(e.h); err != nil {
		return err
	}
	m.sortSubtree(e.h)
	return nil
}

type sortEntry struct {
	it  item
	seq int
	key string
}

func (m *Model) sortSubtree(h handle) {
	nd, ok := m.node(h)
	if !ok {
		return
	}
	ordered := m.schema.IsOrdered(nd.typ)
	content := nd.content

	start := 0
	for i := 0; i <= len(content); i++ {
		if i < len(content) && content[i].isElement() {
			continue
		}
		if i-start > 1 {
			m.sortRun(nd.typ, ordered, content[start:i])
		}
		start = i + 1
	}

	for _, it := range content {
		if it.isElement() {
			m.sortSubtree(it.child)
		}
	}
}

func (m *Model) sortRun(parent ElementType, ordered bool, run []item) {
	entries := make([]sortEntry, len(run))
	for i, it := range run {
		child, _ := m.node(it.child)
		seq, _ := m.schema.SequenceIndex(parent, child.typ)
		entries[i] = sortEntry{it: it, seq: seq}
		if !ordered {
			entries[i].key = m.sortKey(child)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].seq != entries[j].seq {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].key < entries[j].key
	})
	for i := range entries {
		run[i] = entries[i].it
	}
}

func (m *Model) sortKey(nd *node) string {
	if m.schema.IsIdentifiable(nd.typ) {
		return nd.name
	}
	if len(nd.content) == 1 && !nd.content[0].isElement() {
		return nd.content[0].text.String()
	}
	return ""
}
