// Package fitter accumulates observed nodes and edges into degree
// histograms and block-to-block edge counts, then compiles them into an M1
// model. Grounded on original_source/src/GenericGraphReader.cpp.
package fitter

import (
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/ddcsbm-graphgen/pkg/m1"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/types"
)

// edgeTypeState accumulates, for one (nodeType, edgeType) pair, the observed
// in- and out-degree of every node that appeared in at least one edge of
// that type. Nodes never seen in this role get degree 0 and are padded in
// at Compile time, matching Edge_Type_Container in the original.
type edgeTypeState struct {
	inDegreeOf  map[string]types.Degree
	outDegreeOf map[string]types.Degree
}

func newEdgeTypeState() *edgeTypeState {
	return &edgeTypeState{
		inDegreeOf:  map[string]types.Degree{},
		outDegreeOf: map[string]types.Degree{},
	}
}

// Fitter is the transient fitting state described in spec.md §3: per
// node-type counts, per (node-type,edge-type) degree multisets, and per
// edge-type (srcType,dstType) edge counts. Not safe for concurrent use —
// the ingestor feeds it sequentially, node files before edge files.
type Fitter struct {
	log zerolog.Logger

	nodeCount    map[types.NodeType]uint64
	nodesToTypes map[string]types.NodeType

	// edgeStates[nodeType][edgeType]
	edgeStates map[types.NodeType]map[types.EdgeType]*edgeTypeState

	edgeTypesSeen map[types.EdgeType]struct{}

	// nodeTypeIndex/nodeTypeOrder are frozen on the first ObserveEdge call,
	// by which point every node file has been ingested (spec.md §4.1's
	// ordering requirement), so the (srcType,dstType) block-count matrix
	// below can be sized once and indexed consistently.
	nodeTypeIndex map[types.NodeType]int
	nodeTypeOrder []types.NodeType

	// blockCounts[edgeType] is a square matrix indexed by nodeTypeIndex;
	// entry (i,j) = number of observed edges of this type from type i to
	// type j. Used at Compile time as the DDcSBM block edge count
	// edges(e,tX,tY).
	blockCounts map[types.EdgeType]*mat.Dense

	// UnknownEndpointEdges counts edges whose src or dst was never observed
	// as a node (spec.md §7 kind 4 / §9's documented anomaly).
	UnknownEndpointEdges uint64
}

// New returns an empty Fitter.
func New(log zerolog.Logger) *Fitter {
	return &Fitter{
		log:           log,
		nodeCount:     map[types.NodeType]uint64{},
		nodesToTypes:  map[string]types.NodeType{},
		edgeStates:    map[types.NodeType]map[types.EdgeType]*edgeTypeState{},
		edgeTypesSeen: map[types.EdgeType]struct{}{},
		blockCounts:   map[types.EdgeType]*mat.Dense{},
	}
}

// ObserveNode records a node of the given type. Re-observing the same id is
// unspecified by spec.md §4.2; this implementation treats the last
// observation as authoritative, overwriting the id's remembered type.
func (f *Fitter) ObserveNode(id string, nodeType types.NodeType) {
	if _, exists := f.nodeCount[nodeType]; !exists {
		f.nodeCount[nodeType] = 0
	}
	if prevType, seen := f.nodesToTypes[id]; seen {
		f.nodeCount[prevType]--
	}
	f.nodeCount[nodeType]++
	f.nodesToTypes[id] = nodeType
}

// ObserveEdge records an edge of the given type between src and dst. If
// either endpoint was never observed as a node, its type is the empty
// string: the known endpoint's degree is still recorded, but the edge adds
// nothing to the block-count matrix, since the empty string has no node
// interval unless it was itself observed as a node type — spec.md §9's documented
// "type-of-unknown-endpoint" anomaly; UnknownEndpointEdges tracks how often
// this occurred so a caller can report it rather than silently losing the
// signal.
func (f *Fitter) ObserveEdge(src, dst string, edgeType types.EdgeType) {
	f.freezeNodeTypeIndexOnce()

	srcType, srcKnown := f.nodesToTypes[src]
	dstType, dstKnown := f.nodesToTypes[dst]
	if !srcKnown || !dstKnown {
		f.UnknownEndpointEdges++
	}

	f.edgeTypesSeen[edgeType] = struct{}{}
	f.stateFor(srcType, edgeType).outDegreeOf[src]++
	f.stateFor(dstType, edgeType).inDegreeOf[dst]++

	si, siOK := f.nodeTypeIndex[srcType]
	di, diOK := f.nodeTypeIndex[dstType]
	if siOK && diOK {
		m := f.blockCountMatrix(edgeType)
		m.Set(si, di, m.At(si, di)+1)
	}
}

func (f *Fitter) stateFor(nodeType types.NodeType, edgeType types.EdgeType) *edgeTypeState {
	byEdge, ok := f.edgeStates[nodeType]
	if !ok {
		byEdge = map[types.EdgeType]*edgeTypeState{}
		f.edgeStates[nodeType] = byEdge
	}
	st, ok := byEdge[edgeType]
	if !ok {
		st = newEdgeTypeState()
		byEdge[edgeType] = st
	}
	return st
}

// freezeNodeTypeIndexOnce fixes the node-type ordering used to index the
// per-edge-type block-count matrices. Safe to call repeatedly; only the
// first call (on the first observed edge) has an effect, since by the time
// edges arrive all node types must already be known (spec.md §4.1).
func (f *Fitter) freezeNodeTypeIndexOnce() {
	if f.nodeTypeOrder != nil {
		return
	}
	f.nodeTypeOrder = f.sortedNodeTypes()
	f.nodeTypeIndex = make(map[types.NodeType]int, len(f.nodeTypeOrder))
	for i, t := range f.nodeTypeOrder {
		f.nodeTypeIndex[t] = i
	}
}

func (f *Fitter) blockCountMatrix(edgeType types.EdgeType) *mat.Dense {
	m, ok := f.blockCounts[edgeType]
	if !ok {
		n := len(f.nodeTypeOrder)
		m = mat.NewDense(n, n, nil)
		f.blockCounts[edgeType] = m
	}
	return m
}

// edgesBetween returns the observed edge count of edgeType from srcType to
// dstType, or 0 if either type is unknown to the frozen index (e.g. a
// node-type that was only ever seen as an unknown edge endpoint).
func (f *Fitter) edgesBetween(edgeType types.EdgeType, srcType, dstType types.NodeType) uint64 {
	m, ok := f.blockCounts[edgeType]
	if !ok {
		return 0
	}
	si, siOK := f.nodeTypeIndex[srcType]
	di, diOK := f.nodeTypeIndex[dstType]
	if !siOK || !diOK {
		return 0
	}
	return uint64(m.At(si, di))
}

// sortedNodeTypes returns node-type names in a deterministic (sorted) order,
// so node-id interval assignment and the block-count matrix indexing are
// both reproducible given a seed, per spec.md §4.2.
func (f *Fitter) sortedNodeTypes() []types.NodeType {
	names := make([]types.NodeType, 0, len(f.nodeCount))
	for t := range f.nodeCount {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// sortedEdgeTypes returns edge-type names in deterministic order.
func (f *Fitter) sortedEdgeTypes() []types.EdgeType {
	names := make([]types.EdgeType, 0, len(f.edgeTypesSeen))
	for t := range f.edgeTypesSeen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// Compile assembles every observation recorded so far into an M1 model,
// following GenericGraphReader.cpp::process: node types receive contiguous
// id intervals in sorted order, each (nodeType,edgeType) degree multiset is
// padded with zero-degree entries up to the type's node count then sorted
// and shuffled under rng for a reproducible but non-correlated assignment
// of degree to node slot, and each non-empty (edgeType,srcType,dstType)
// combination emits one EdgeBlock per node pair whose degree-corrected
// probability is greater than zero. meta seeds the compiled model's extra
// meta fields (NAME is promoted to Meta.Name; any other key, SCALE
// included, is copied verbatim; SCALE defaults to "1.0" via NewMeta when
// meta does not supply it).
func (f *Fitter) Compile(meta map[string]string, seed int64) (*m1.Model, error) {
	f.freezeNodeTypeIndexOnce()
	nodeTypes := f.nodeTypeOrder
	edgeTypes := f.sortedEdgeTypes()
	rng := rand.New(rand.NewSource(seed))

	type interval struct{ start, end types.ContinuousNodeID }
	intervals := make(map[types.NodeType]interval, len(nodeTypes))
	nodes := make([]m1.NodeRecord, 0, len(nodeTypes))
	var offset types.ContinuousNodeID
	for _, t := range nodeTypes {
		n := f.nodeCount[t]
		iv := interval{start: offset, end: offset + types.ContinuousNodeID(n)}
		intervals[t] = iv
		nodes = append(nodes, m1.NodeRecord{StartID: iv.start, EndID: iv.end, NodeType: t})
		offset = iv.end
	}

	outDegrees := make(map[types.NodeType]map[types.EdgeType][]types.Degree, len(nodeTypes))
	inDegrees := make(map[types.NodeType]map[types.EdgeType][]types.Degree, len(nodeTypes))
	for _, t := range nodeTypes {
		n := f.nodeCount[t]
		outDegrees[t] = map[types.EdgeType][]types.Degree{}
		inDegrees[t] = map[types.EdgeType][]types.Degree{}
		for _, e := range edgeTypes {
			st := f.edgeStates[t][e]
			outDegrees[t][e] = degreeList(st, true, n, rng)
			inDegrees[t][e] = degreeList(st, false, n, rng)
		}
	}

	var modelFailures uint64
	edgeRecords := make([]m1.EdgeRecord, 0, len(edgeTypes))
	for _, e := range edgeTypes {
		var blocks []m1.EdgeBlock
		for _, tx := range nodeTypes {
			degX := outDegrees[tx][e]
			sumOut := sumDegrees(degX)
			if sumOut == 0 {
				continue
			}
			ivx := intervals[tx]
			for _, ty := range nodeTypes {
				degY := inDegrees[ty][e]
				sumIn := sumDegrees(degY)
				if sumIn == 0 {
					continue
				}
				count := f.edgesBetween(e, tx, ty)
				if count == 0 {
					continue
				}
				ivy := intervals[ty]
				for i, dx := range degX {
					if dx == 0 {
						continue
					}
					px := float64(count) * (float64(dx) / float64(sumOut))
					for j, dy := range degY {
						if dy == 0 {
							continue
						}
						p := px * (float64(dy) / float64(sumIn))
						if p <= 0 {
							continue
						}
						if p > 1 {
							modelFailures++
						}
						blocks = append(blocks, m1.EdgeBlock{
							StartX: ivx.start + types.ContinuousNodeID(i),
							EndX:   ivx.start + types.ContinuousNodeID(i+1),
							StartY: ivy.start + types.ContinuousNodeID(j),
							EndY:   ivy.start + types.ContinuousNodeID(j+1),
							P:      p,
						})
					}
				}
			}
		}
		edgeRecords = append(edgeRecords, m1.EdgeRecord{EdgeType: e, Blocks: blocks})
	}

	result := &m1.Model{Meta: m1.NewMeta(meta[m1.NameMetaKey]), Nodes: nodes, Edges: edgeRecords}
	for k, v := range meta {
		if k == m1.NameMetaKey {
			continue
		}
		result.Meta.Values[k] = v
	}
	result.Normalize()

	if modelFailures > 0 {
		f.log.Warn().Uint64("model_failures", modelFailures).
			Msg("fitted model contains blocks with probability above 1.0")
	}
	f.log.Info().Int("node_types", len(nodeTypes)).Int("edge_types", len(edgeTypes)).
		Uint64("unknown_endpoint_edges", f.UnknownEndpointEdges).Msg("compiled m1 model")

	return result, nil
}

// degreeList returns the degree multiset for one (nodeType,edgeType,role),
// padded to total entries with zero-degree nodes, sorted, then shuffled
// under rng so the pairing between degree value and node slot is
// reproducible for a given seed but not an artifact of observation order.
func degreeList(st *edgeTypeState, isOut bool, total uint64, rng *rand.Rand) []types.Degree {
	degrees := make([]types.Degree, 0, total)
	if st != nil {
		src := st.outDegreeOf
		if !isOut {
			src = st.inDegreeOf
		}
		for _, d := range src {
			degrees = append(degrees, d)
		}
	}
	for uint64(len(degrees)) < total {
		degrees = append(degrees, 0)
	}
	sort.Slice(degrees, func(i, j int) bool { return degrees[i] < degrees[j] })
	rng.Shuffle(len(degrees), func(i, j int) { degrees[i], degrees[j] = degrees[j], degrees[i] })
	return degrees
}

func sumDegrees(ds []types.Degree) uint64 {
	var s uint64
	for _, d := range ds {
		s += uint64(d)
	}
	return s
}
