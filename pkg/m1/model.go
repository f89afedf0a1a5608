// Package m1 implements the M1 scalable model representation: its types,
// its line-oriented text codec, and the multiplicative scale transform.
// Grounded on original_source/src/m1ModelFormat.cpp.
package m1

import (
	"sort"

	"github.com/gilchrisn/ddcsbm-graphgen/pkg/types"
)

// ScaleMetaKey is the reserved meta key holding the model's cumulative scale
// factor relative to the originally observed graph.
const ScaleMetaKey = "SCALE"

// NameMetaKey is the reserved meta key promoted to Meta.Name on read/compile.
const NameMetaKey = "NAME"

// NodeRecord describes a contiguous interval of nodes of one type, spanning
// integer nodes floor(StartID)+1 .. floor(EndID).
type NodeRecord struct {
	StartID  types.ContinuousNodeID
	EndID    types.ContinuousNodeID
	NodeType types.NodeType
}

// EdgeBlock asserts that every ordered pair between source interval
// (StartX,EndX] and destination interval (StartY,EndY] is an edge
// independently with probability P. The fitter stores P unclamped so the
// raw model value can still be reported as a model failure; Write and the
// sampler clamp it to 1, and Scale clamps it to 1 in the scaled model.
type EdgeBlock struct {
	StartX, EndX types.ContinuousNodeID
	StartY, EndY types.ContinuousNodeID
	P            float64
}

// EdgeRecord groups the blocks belonging to one edge type.
type EdgeRecord struct {
	EdgeType types.EdgeType
	Blocks   []EdgeBlock
}

// MetaRecord carries the model name and an unordered string/string map. The
// reserved key ScaleMetaKey holds the cumulative scale factor.
type MetaRecord struct {
	Name   string
	Values map[string]string
}

// Model is the full M1 representation: meta, node intervals, and per-type
// edge blocks.
type Model struct {
	Meta  MetaRecord
	Nodes []NodeRecord
	Edges []EdgeRecord
}

// NewMeta returns a MetaRecord with an initialized Values map and SCALE
// defaulted to "1.0", matching GenericGraphReader::process's initialization.
func NewMeta(name string) MetaRecord {
	return MetaRecord{
		Name:   name,
		Values: map[string]string{ScaleMetaKey: "1.0"},
	}
}

// Normalize sorts nodes by (StartID,EndID), edges by EdgeType, and each
// edge's blocks by (StartX,StartY) — the invariant spec.md §3 requires of
// every M1 model, maintained by the fitter and preserved by the codec.
func (m *Model) Normalize() {
	sort.Slice(m.Nodes, func(i, j int) bool {
		a, b := m.Nodes[i], m.Nodes[j]
		if a.StartID != b.StartID {
			return a.StartID < b.StartID
		}
		return a.EndID < b.EndID
	})
	sort.Slice(m.Edges, func(i, j int) bool {
		return m.Edges[i].EdgeType < m.Edges[j].EdgeType
	})
	for i := range m.Edges {
		blocks := m.Edges[i].Blocks
		sort.Slice(blocks, func(i, j int) bool {
			a, b := blocks[i], blocks[j]
			if a.StartX != b.StartX {
				return a.StartX < b.StartX
			}
			return a.StartY < b.StartY
		})
	}
}

// TotalNodes returns the number of integer nodes spanned by all node
// intervals, i.e. sum(floor(end)-floor(start)) across records.
func (m *Model) TotalNodes() uint64 {
	var total uint64
	for _, n := range m.Nodes {
		total += types.EndOfInterval(n.EndID) - (types.StartOfInterval(n.StartID) - 1)
	}
	return total
}

// Clone returns a deep copy so mutating callers (Scale) never affect the
// input model, per spec.md §3's lifecycle invariant.
func (m *Model) Clone() *Model {
	out := &Model{
		Meta: MetaRecord{
			Name:   m.Meta.Name,
			Values: make(map[string]string, len(m.Meta.Values)),
		},
		Nodes: make([]NodeRecord, len(m.Nodes)),
		Edges: make([]EdgeRecord, len(m.Edges)),
	}
	for k, v := range m.Meta.Values {
		out.Meta.Values[k] = v
	}
	copy(out.Nodes, m.Nodes)
	for i, e := range m.Edges {
		blocks := make([]EdgeBlock, len(e.Blocks))
		copy(blocks, e.Blocks)
		out.Edges[i] = EdgeRecord{EdgeType: e.EdgeType, Blocks: blocks}
	}
	return out
}
