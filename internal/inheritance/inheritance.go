// Package inheritance builds the supertype graph of an archive from
// class headers alone.
package inheritance

import (
	"fmt"
	"sort"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/classfile"
	"github.com/morozRed/classlens/internal/workers"
)

// Node is one class. Parents lists the superclass first, then
// interfaces in declaration order; only supertypes present in the
// archive are linked.
type Node struct {
	Name        string
	AccessFlags uint16
	Parents     []int
	Children    []int
}

// Graph is an arena of nodes indexed by interned class name.
type Graph struct {
	nodes []Node
	ids   map[string]int
}

func New() *Graph {
	return &Graph{ids: make(map[string]int)}
}

// Build reads the header of every class entry once and links each class
// to the supertypes the archive contains. Progress is set per entry and
// reset to Idle on return.
func Build(arc *archive.Archive, progress *workers.Progress) (*Graph, error) {
	if progress == nil {
		progress = workers.NewProgress()
	}
	defer progress.Reset()
	progress.Set(0)

	g := New()
	classes := arc.ClassNames()
	for i, path := range classes {
		data, err := arc.Bytes(path)
		if err != nil {
			return nil, err
		}
		header, err := classfile.ParseHeader(data)
		if err != nil {
			return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
		}

		id := g.Add(header.Name)
		g.nodes[id].AccessFlags = header.AccessFlags

		if header.SuperName != "" {
			if _, ok := arc.Entry(archive.EntryPath(header.SuperName)); ok {
				g.Link(header.Name, header.SuperName)
			}
		}
		for _, iface := range header.Interfaces {
			if _, ok := arc.Entry(archive.EntryPath(iface)); ok {
				g.Link(header.Name, iface)
			}
		}
		progress.Set(workers.Percent(i+1, len(classes)))
	}
	return g, nil
}

// Add interns name and returns its id.
func (g *Graph) Add(name string) int {
	if id, ok := g.ids[name]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{Name: name})
	g.ids[name] = id
	return id
}

// Link records child -> parent once.
func (g *Graph) Link(child, parent string) {
	c := g.Add(child)
	p := g.Add(parent)
	if !contains(g.nodes[c].Parents, p) {
		g.nodes[c].Parents = append(g.nodes[c].Parents, p)
	}
	if !contains(g.nodes[p].Children, c) {
		g.nodes[p].Children = append(g.nodes[p].Children, c)
	}
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (g *Graph) Len() int { return len(g.nodes) }

// Lookup returns the id of name.
func (g *Graph) Lookup(name string) (int, bool) {
	id, ok := g.ids[name]
	return id, ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id int) Node {
	return g.nodes[id]
}

func (g *Graph) Name(id int) string { return g.nodes[id].Name }

// Parents returns the direct supertypes of id by name.
func (g *Graph) Parents(id int) []string {
	return g.names(g.nodes[id].Parents)
}

// Children returns the direct subtypes of id by name.
func (g *Graph) Children(id int) []string {
	return g.names(g.nodes[id].Children)
}

func (g *Graph) names(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id].Name)
	}
	return out
}

// Root follows the first parent until a node without parents, stopping
// at the last unvisited node if the chain loops.
func (g *Graph) Root(id int) int {
	visited := map[int]bool{id: true}
	for len(g.nodes[id].Parents) > 0 {
		next := g.nodes[id].Parents[0]
		if visited[next] {
			break
		}
		visited[next] = true
		id = next
	}
	return id
}

// Subtypes returns every transitive subtype of id, sorted by name.
func (g *Graph) Subtypes(id int) []string {
	seen := map[int]bool{id: true}
	queue := append([]int(nil), g.nodes[id].Children...)
	out := make([]string, 0)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, g.nodes[next].Name)
		queue = append(queue, g.nodes[next].Children...)
	}
	sort.Strings(out)
	return out
}

// Ranked is a class with its importance score.
type Ranked struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Top returns the n classes most depended upon as supertypes, scored by
// PageRank over child -> parent edges.
func (g *Graph) Top(n int) []Ranked {
	ranks := g.pageRank(20, 0.85)
	out := make([]Ranked, 0, len(g.nodes))
	for id, node := range g.nodes {
		out = append(out, Ranked{Name: node.Name, Score: ranks[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Name < out[j].Name
		}
		return out[i].Score > out[j].Score
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func (g *Graph) pageRank(iterations int, damping float64) []float64 {
	n := float64(len(g.nodes))
	ranks := make([]float64, len(g.nodes))
	if n == 0 {
		return ranks
	}
	for i := range ranks {
		ranks[i] = 1.0 / n
	}
	next := make([]float64, len(g.nodes))
	for range iterations {
		for id, node := range g.nodes {
			rank := (1 - damping) / n
			// Rank flows from each subtype to its supertypes.
			for _, child := range node.Children {
				if out := len(g.nodes[child].Parents); out > 0 {
					rank += damping * ranks[child] / float64(out)
				}
			}
			next[id] = rank
		}
		ranks, next = next, ranks
	}
	return ranks
}
