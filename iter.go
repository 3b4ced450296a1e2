package arxml

import "iter"

// SubElements yields the direct sub elements of e in content order. The
// sequence is a snapshot taken when SubElements is called.
func (e Element) SubElements() iter.Seq[Element] {
	var children []handle
	if m, err := e.read(); err == nil {
		if nd, ok := m.node(e.h); ok {
			for _, it := range nd.content {
				if it.isElement() {
					children = append(children, it.child)
				}
			}
		}
		m.mu.RUnlock()
	}
	return func(yield func(Element) bool) {
		for _, h := range children {
			if !yield(e.model.element(h)) {
				return
			}
		}
	}
}

// ElementsDFS yields e and all of its descendants in depth first order. The
// depth of e is 0.
func (e Element) ElementsDFS() iter.Seq2[int, Element] {
	var list []elementDepth
	if m, err := e.read(); err == nil {
		list = m.dfs(e.h, 0, nil)
		m.mu.RUnlock()
	}
	return yieldDepths(e.model, list)
}

// ElementsDFS yields every element of the model in depth first order
func (m *Model) ElementsDFS() iter.Seq2[int, Element] {
	return m.RootElement().ElementsDFS()
}

func yieldDepths(m *Model, list []elementDepth) iter.Seq2[int, Element] {
	return func(yield func(int, Element) bool) {
		for _, d := range list {
			if !yield(d.depth, m.element(d.h)) {
				return
			}
		}
	}
}
