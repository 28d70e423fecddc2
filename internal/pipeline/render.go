package pipeline

import (
	"strings"
)

// Render produces the gst-launch description of g. Branches of a split are
// emitted depth-first as " name. ! ..." after the chain that ends in it.
func Render(g *Graph) string {
	if len(g.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	renderChain(&b, g, 0)
	return b.String()
}

func renderChain(b *strings.Builder, g *Graph, id int) {
	for {
		n := g.Nodes[id]
		b.WriteString(nodeText(n))
		children := g.Children(id)
		if n.Kind == KindSplit {
			for _, e := range children {
				b.WriteString(" ")
				b.WriteString(n.Name)
				b.WriteString(". ! ")
				renderChain(b, g, e.To)
			}
			return
		}
		if len(children) == 0 {
			return
		}
		b.WriteString(" ! ")
		id = children[0].To
	}
}

func nodeText(n *Node) string {
	if n.Element == "" {
		return n.Caps
	}
	var b strings.Builder
	b.WriteString(n.Element)
	if n.Name != "" {
		b.WriteString(" name=")
		b.WriteString(n.Name)
	}
	for _, p := range n.Props {
		b.WriteString(" ")
		b.WriteString(p.Key)
		b.WriteString("=")
		b.WriteString(p.Value)
	}
	return b.String()
}

// Branches renders g as one line per branch for display: the chain up to
// each split, then every " name. ! ..." branch of it on its own line.
// Joining the lines with spaces gives Render(g).
func Branches(g *Graph) []string {
	if len(g.Nodes) == 0 {
		return nil
	}
	var lines []string
	branchLines(g, 0, "", &lines)
	return lines
}

func branchLines(g *Graph, id int, prefix string, lines *[]string) {
	var b strings.Builder
	b.WriteString(prefix)
	for {
		n := g.Nodes[id]
		b.WriteString(nodeText(n))
		children := g.Children(id)
		if n.Kind == KindSplit {
			*lines = append(*lines, b.String())
			for _, e := range children {
				branchLines(g, e.To, n.Name+". ! ", lines)
			}
			return
		}
		if len(children) == 0 {
			*lines = append(*lines, b.String())
			return
		}
		b.WriteString(" ! ")
		id = children[0].To
	}
}

// Args splits a rendered description into gst-launch arguments. Quoted
// values stay in one argument.
func Args(desc string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false
	for _, r := range desc {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}
