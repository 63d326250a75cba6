package decisiontree

// QuestionView is what a caller sees of the node at a path.
type QuestionView struct {
	Text         string `json:"text"`
	IsTerminal   bool   `json:"is_final"`
	HasYesBranch bool   `json:"has_yes"`
	HasNoBranch  bool   `json:"has_no"`
}

// Position is the result of a successful Advance.
type Position struct {
	Path     Path         `json:"path"`
	Question QuestionView `json:"question"`
}

// DiagnosisPath is a terminal node together with the answers that reach it.
type DiagnosisPath struct {
	Diagnosis string `json:"diagnosis"`
	Path      Path   `json:"path"`
}

// NodeAt walks from the root along p. It reports false if any step is missing.
func (t *Tree) NodeAt(p Path) (Node, bool) {
	cur := t.root
	for _, a := range p {
		q, ok := cur.(*Question)
		if !ok {
			return nil, false
		}
		cur = q.Branch(a)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// QuestionAt returns a view of the node at p.
func (t *Tree) QuestionAt(p Path) (QuestionView, bool) {
	n, ok := t.NodeAt(p)
	if !ok {
		return QuestionView{}, false
	}
	return viewOf(n), true
}

// Advance moves from p along a. It reports false when the node at p has no
// such branch; callers treat that as a mismatch between stored path and tree.
func (t *Tree) Advance(p Path, a Answer) (Position, bool) {
	if a != Yes && a != No {
		return Position{}, false
	}
	n, ok := t.NodeAt(p)
	if !ok {
		return Position{}, false
	}
	q, ok := n.(*Question)
	if !ok {
		return Position{}, false
	}
	child := q.Branch(a)
	if child == nil {
		return Position{}, false
	}
	return Position{Path: p.Append(a), Question: viewOf(child)}, true
}

// DiagnosisAt returns the text of the node at p whether or not it is terminal.
func (t *Tree) DiagnosisAt(p Path) (string, bool) {
	n, ok := t.NodeAt(p)
	if !ok {
		return "", false
	}
	return n.Text(), true
}

// RemainingDepth is the number of further answers on the longest branch
// below the node at p. It is zero at a terminal node.
func (t *Tree) RemainingDepth(p Path) (int, bool) {
	n, ok := t.NodeAt(p)
	if !ok {
		return 0, false
	}
	return depth(n), true
}

// Diagnoses lists every terminal node in depth-first order, yes before no.
func (t *Tree) Diagnoses() []DiagnosisPath {
	var out []DiagnosisPath
	var walk func(n Node, p Path)
	walk = func(n Node, p Path) {
		switch v := n.(type) {
		case *Diagnosis:
			out = append(out, DiagnosisPath{Diagnosis: v.Label, Path: p})
		case *Question:
			if v.Yes != nil {
				walk(v.Yes, p.Append(Yes))
			}
			if v.No != nil {
				walk(v.No, p.Append(No))
			}
		}
	}
	walk(t.root, Path{})
	return out
}

func viewOf(n Node) QuestionView {
	v := QuestionView{Text: n.Text(), IsTerminal: true}
	if q, ok := n.(*Question); ok {
		v.HasYesBranch = q.Yes != nil
		v.HasNoBranch = q.No != nil
		v.IsTerminal = !v.HasYesBranch && !v.HasNoBranch
	}
	return v
}

func depth(n Node) int {
	q, ok := n.(*Question)
	if !ok {
		return 0
	}
	d := 0
	for _, child := range []Node{q.Yes, q.No} {
		if child == nil {
			continue
		}
		if cd := depth(child) + 1; cd > d {
			d = cd
		}
	}
	return d
}
