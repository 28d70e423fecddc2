// Package pipeline models media graphs as typed nodes and edges and renders
// them to gst-launch syntax.
package pipeline

import (
	"fmt"
	"strconv"
)

// Kind classifies what a node does in the graph.
type Kind int

const (
	KindSource Kind = iota
	KindCaps
	KindDepay
	KindDecode
	KindConvert
	KindRate
	KindScale
	KindEncode
	KindParse
	KindSplit
	KindQueue
	KindPacketize
	KindSink
)

var kindNames = [...]string{
	KindSource:    "source",
	KindCaps:      "caps",
	KindDepay:     "depay",
	KindDecode:    "decode",
	KindConvert:   "convert",
	KindRate:      "rate",
	KindScale:     "scale",
	KindEncode:    "encode",
	KindParse:     "parse",
	KindSplit:     "split",
	KindQueue:     "queue",
	KindPacketize: "packetize",
	KindSink:      "sink",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Format is the media carried on an edge.
type Format string

const (
	FormatRaw  Format = "video/x-raw"
	FormatNVMM Format = "video/x-raw(memory:NVMM)"
	FormatJPEG Format = "image/jpeg"
	FormatH264 Format = "video/x-h264"
	FormatH265 Format = "video/x-h265"
	FormatRTP  Format = "application/x-rtp"
)

// Prop is one element property. Order is preserved when rendering.
type Prop struct {
	Key   string
	Value string
}

// Node is an element or a caps filter.
type Node struct {
	ID      int
	Kind    Kind
	Element string // factory name; empty for caps filters
	Name    string // element name, required for splits
	Props   []Prop
	Caps    string // caps filter text when Element is empty
}

// Prop returns the value of key and whether it is set.
func (n *Node) Prop(key string) (string, bool) {
	for _, p := range n.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Edge links two nodes. Out-edges of a node are ordered by insertion.
type Edge struct {
	From   int
	To     int
	Format Format
}

// Graph is a directed tree of nodes rooted at a single source.
type Graph struct {
	Nodes []*Node
	Edges []Edge
}

func (g *Graph) add(kind Kind, element string, props ...Prop) *Node {
	n := &Node{ID: len(g.Nodes), Kind: kind, Element: element, Props: props}
	g.Nodes = append(g.Nodes, n)
	return n
}

func (g *Graph) caps(text string) *Node {
	n := &Node{ID: len(g.Nodes), Kind: KindCaps, Caps: text}
	g.Nodes = append(g.Nodes, n)
	return n
}

func (g *Graph) link(from, to *Node, f Format) {
	g.Edges = append(g.Edges, Edge{From: from.ID, To: to.ID, Format: f})
}

// Children returns the out-edges of id in insertion order.
func (g *Graph) Children(id int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Parent returns the in-edge of id.
func (g *Graph) Parent(id int) (Edge, bool) {
	for _, e := range g.Edges {
		if e.To == id {
			return e, true
		}
	}
	return Edge{}, false
}

// Count returns how many nodes have the given kind.
func (g *Graph) Count(kind Kind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

// Sinks returns sink nodes in render order.
func (g *Graph) Sinks() []*Node {
	var out []*Node
	g.walk(0, func(n *Node) {
		if n.Kind == KindSink {
			out = append(out, n)
		}
	})
	return out
}

func (g *Graph) walk(id int, fn func(*Node)) {
	fn(g.Nodes[id])
	for _, e := range g.Children(id) {
		g.walk(e.To, fn)
	}
}

// Validate checks structural rules: one root source, every node reachable,
// fan-out only at named splits, and sinks as leaves.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 || g.Nodes[0].Kind != KindSource {
		return fmt.Errorf("graph must start with a source")
	}
	inDegree := make([]int, len(g.Nodes))
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= len(g.Nodes) || e.To < 0 || e.To >= len(g.Nodes) {
			return fmt.Errorf("edge %d->%d out of range", e.From, e.To)
		}
		inDegree[e.To]++
	}
	for _, n := range g.Nodes {
		children := len(g.Children(n.ID))
		switch {
		case n.ID != 0 && inDegree[n.ID] != 1:
			return fmt.Errorf("node %d (%s) has %d inputs", n.ID, n.Kind, inDegree[n.ID])
		case n.Kind == KindSink && children != 0:
			return fmt.Errorf("sink %d has outputs", n.ID)
		case n.Kind != KindSink && children == 0:
			return fmt.Errorf("node %d (%s) is a dead end", n.ID, n.Kind)
		case n.Kind == KindSplit && n.Name == "":
			return fmt.Errorf("split %d has no name", n.ID)
		case n.Kind != KindSplit && children > 1:
			return fmt.Errorf("node %d (%s) fans out without a split", n.ID, n.Kind)
		}
	}
	if inDegree[0] != 0 {
		return fmt.Errorf("source has inputs")
	}
	return nil
}
