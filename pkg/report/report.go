// Package report holds the verdict tree produced while verifying a test.
// The tree carries labels and verdicts only; rendering lives in pkg/render.
package report

import (
	"encoding/json"
	"fmt"
)

// Status is the verdict attached to a node.
type Status int

const (
	Pass Status = iota
	Fail
	Error // exceptional: something raised instead of producing a comparable value
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Summary labels appended by Summarize.
const (
	SummaryOK = "OK"
	SummaryKO = "KO!"
)

// Node is one entry of the verdict tree. A leaf carries its own verdict; a
// group's status is derived from its children, with Error taking precedence
// over Fail and Fail over Pass.
type Node struct {
	Label    string
	Detail   string
	Children []*Node

	verdict *Status
	pinned  bool
}

// New returns a group node with no verdict of its own.
func New(label string) *Node {
	return &Node{Label: label}
}

// Add appends a new group node and returns it.
func (n *Node) Add(label string) *Node {
	child := New(label)
	n.Children = append(n.Children, child)
	return child
}

// Append adds existing nodes as children; nil nodes are ignored.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Pass appends a passing leaf.
func (n *Node) Pass(label string) *Node {
	return n.leaf(label, Pass)
}

// Fail appends a failing leaf.
func (n *Node) Fail(label string) *Node {
	return n.leaf(label, Fail)
}

// Failf appends a failing leaf with a formatted label.
func (n *Node) Failf(format string, args ...any) *Node {
	return n.leaf(fmt.Sprintf(format, args...), Fail)
}

// Error appends an exceptional leaf. The error text becomes the detail.
func (n *Node) Error(label string, err error) *Node {
	leaf := n.leaf(label, Error)
	if err != nil {
		leaf.Detail = err.Error()
	}
	return leaf
}

// Check appends a leaf that passes when ok is true.
func (n *Node) Check(ok bool, label string) *Node {
	if ok {
		return n.Pass(label)
	}
	return n.Fail(label)
}

func (n *Node) leaf(label string, s Status) *Node {
	leaf := &Node{Label: label, verdict: &s}
	n.Children = append(n.Children, leaf)
	return leaf
}

// IsLeaf reports whether the node carries its own verdict.
func (n *Node) IsLeaf() bool {
	return n.verdict != nil
}

// Pinned reports whether the node survives pruning regardless of status.
func (n *Node) Pinned() bool {
	return n.pinned
}

// Status computes the node's status from its own verdict and its children.
// A group without children passes.
func (n *Node) Status() Status {
	s := Pass
	if n.verdict != nil {
		s = *n.verdict
	}
	for _, c := range n.Children {
		if cs := c.Status(); cs > s {
			s = cs
		}
	}
	return s
}

// Passed reports whether every leaf reachable from n passed.
func (n *Node) Passed() bool {
	return n.Status() == Pass
}

// Summarize appends a pinned "<name>: OK" or "<name>: KO!" leaf reflecting
// the status of everything added so far, and returns the status.
func (n *Node) Summarize(name string) Status {
	s := n.Status()
	label := SummaryOK
	if s != Pass {
		label = SummaryKO
	}
	if name != "" {
		label = name + ": " + label
	}
	var leaf *Node
	if s == Pass {
		leaf = n.Pass(label)
	} else {
		leaf = n.Fail(label)
	}
	leaf.pinned = true
	return s
}

// Counts tallies leaf verdicts.
type Counts struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// Count tallies every leaf below and including n, skipping pinned summaries.
func (n *Node) Count() Counts {
	var c Counts
	n.Walk(func(node *Node, _ int) bool {
		if !node.IsLeaf() || node.pinned {
			return true
		}
		switch *node.verdict {
		case Pass:
			c.Passed++
		case Fail:
			c.Failed++
		case Error:
			c.Errors++
		}
		return true
	})
	return c
}

// Walk visits n and its descendants depth-first in order. Returning false
// from fn skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Prune returns a copy of the tree for presentation. In verbose mode every
// branch is kept. Otherwise only branches that did not pass, and pinned
// summaries, survive. The root is always returned.
func (n *Node) Prune(verbose bool) *Node {
	out := n.shallowCopy()
	for _, c := range n.Children {
		if kept := c.prune(verbose); kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	return out
}

func (n *Node) prune(verbose bool) *Node {
	keepSelf := verbose || n.pinned || n.Status() != Pass
	out := n.shallowCopy()
	for _, c := range n.Children {
		if kept := c.prune(verbose); kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	if !keepSelf && len(out.Children) == 0 {
		return nil
	}
	return out
}

func (n *Node) shallowCopy() *Node {
	return &Node{Label: n.Label, Detail: n.Detail, verdict: n.verdict, pinned: n.pinned}
}

type nodeJSON struct {
	Label    string  `json:"label"`
	Status   Status  `json:"status"`
	Detail   string  `json:"detail,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		Label:    n.Label,
		Status:   n.Status(),
		Detail:   n.Detail,
		Children: n.Children,
	})
}
