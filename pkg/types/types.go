// Package types defines the primitive identifiers shared across the
// ingestor, fitter, M1 codec, and sampler.
package types

import "math"

// NodeID identifies a single realized node in a sampled graph.
type NodeID = uint64

// ContinuousNodeID represents a node-range endpoint as a real number so that
// multiplicative rescaling (pkg/m1.Scale) is closed over the representation:
// integer NodeIDs are only recovered at emission time.
type ContinuousNodeID = float64

// Amount counts occurrences of something (nodes with a given degree, edges
// between two types, and so on).
type Amount = uint64

// Degree is an in- or out-degree count.
type Degree = uint64

// NodeType and EdgeType are opaque composite labels built by the ingestor
// from one or more source columns joined with '_'.
type NodeType = string
type EdgeType = string

// StartOfInterval recovers the first integer node in the interval (s, e].
func StartOfInterval(s ContinuousNodeID) NodeID {
	return NodeID(math.Floor(s)) + 1
}

// EndOfInterval recovers the last integer node in the interval (s, e].
func EndOfInterval(e ContinuousNodeID) NodeID {
	return NodeID(math.Floor(e))
}
