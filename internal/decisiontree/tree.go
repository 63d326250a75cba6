package decisiontree

import (
	"fmt"
	"strings"
)

// Answer is a clinician's reply to a question node.
type Answer string

const (
	Yes Answer = "yes"
	No  Answer = "no"
)

// ParseAnswer accepts only "yes" or "no".
func ParseAnswer(s string) (Answer, error) {
	switch Answer(s) {
	case Yes, No:
		return Answer(s), nil
	}
	return "", fmt.Errorf("answer must be %q or %q, got %q", Yes, No, s)
}

// Path locates a node by the answers given from the root. The empty path is the root.
type Path []Answer

// Append returns a new path with a added; p is never modified.
func (p Path) Append(a Answer) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, a)
}

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	parts := make([]string, len(p))
	for i, a := range p {
		parts[i] = string(a)
	}
	return "/" + strings.Join(parts, "/")
}

// Node is either a *Question or a *Diagnosis.
type Node interface {
	Text() string
	node()
}

// Question is an internal node. At least one of Yes or No is set.
type Question struct {
	Prompt string
	Yes    Node
	No     Node
}

func (q *Question) Text() string { return q.Prompt }
func (*Question) node()          {}

// Branch returns the child for a, or nil when the tree has no such branch.
func (q *Question) Branch(a Answer) Node {
	switch a {
	case Yes:
		return q.Yes
	case No:
		return q.No
	}
	return nil
}

// Diagnosis is a terminal node.
type Diagnosis struct {
	Label string
}

func (d *Diagnosis) Text() string { return d.Label }
func (*Diagnosis) node()          {}

// Tree is an immutable binary question tree. It is safe for concurrent use.
type Tree struct {
	root Node
}

// New wraps root in a Tree. Callers must not mutate root afterwards.
func New(root Node) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("decision tree has no root")
	}
	return &Tree{root: root}, nil
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.root
}
