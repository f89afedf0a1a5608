package m1

import (
	"math"
	"testing"
)

func TestScaleMultipliesEndpointsAndDividesProbability(t *testing.T) {
	model := sampleModel()
	result, err := Scale(model, 2.0, testLogger())
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	scaled := result.Model

	if scaled.Nodes[0].StartID != 0 || scaled.Nodes[0].EndID != 6 {
		t.Errorf("node[0] = %+v, want StartID=0 EndID=6", scaled.Nodes[0])
	}
	if scaled.Edges[0].Blocks[0].P != 0.2 {
		t.Errorf("block probability = %v, want 0.2", scaled.Edges[0].Blocks[0].P)
	}
	if scaled.Meta.Values[ScaleMetaKey] != "2" {
		t.Errorf("SCALE = %q, want %q", scaled.Meta.Values[ScaleMetaKey], "2")
	}

	// input must not be mutated
	if model.Nodes[0].EndID != 3 {
		t.Errorf("input model was mutated: EndID = %v, want 3", model.Nodes[0].EndID)
	}
}

func TestScaleClampsProbabilityAboveOneAndCounts(t *testing.T) {
	model := &Model{
		Meta:  MetaRecord{Name: "x", Values: map[string]string{ScaleMetaKey: "1.0"}},
		Nodes: []NodeRecord{{StartID: 0, EndID: 1, NodeType: "A"}},
		Edges: []EdgeRecord{{EdgeType: "E", Blocks: []EdgeBlock{{StartX: 0, EndX: 1, StartY: 0, EndY: 1, P: 0.9}}}},
	}
	result, err := Scale(model, 0.5, testLogger())
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	if result.Model.Edges[0].Blocks[0].P != 1 {
		t.Errorf("P = %v, want clamped to 1", result.Model.Edges[0].Blocks[0].P)
	}
	if result.ClampedBlocks != 1 || result.TotalBlocks != 1 {
		t.Errorf("ClampedBlocks=%d TotalBlocks=%d, want 1,1", result.ClampedBlocks, result.TotalBlocks)
	}
}

func TestScaleRejectsNonPositiveFactor(t *testing.T) {
	model := sampleModel()
	if _, err := Scale(model, 0, testLogger()); err == nil {
		t.Error("expected error for factor=0")
	}
	if _, err := Scale(model, -1, testLogger()); err == nil {
		t.Error("expected error for negative factor")
	}
}

func TestScaleRoundTripWithinTolerance(t *testing.T) {
	model := sampleModel()
	up, err := Scale(model, 3.0, testLogger())
	if err != nil {
		t.Fatalf("Scale up: %v", err)
	}
	down, err := Scale(up.Model, 1.0/3.0, testLogger())
	if err != nil {
		t.Fatalf("Scale down: %v", err)
	}

	const tol = 1e-9
	for i := range model.Nodes {
		if math.Abs(model.Nodes[i].StartID-down.Model.Nodes[i].StartID) > tol {
			t.Errorf("node[%d].StartID = %v, want ~%v", i, down.Model.Nodes[i].StartID, model.Nodes[i].StartID)
		}
		if math.Abs(model.Nodes[i].EndID-down.Model.Nodes[i].EndID) > tol {
			t.Errorf("node[%d].EndID = %v, want ~%v", i, down.Model.Nodes[i].EndID, model.Nodes[i].EndID)
		}
	}
	origP := model.Edges[0].Blocks[0].P
	gotP := down.Model.Edges[0].Blocks[0].P
	if math.Abs(origP-gotP) > 1e-6 {
		t.Errorf("probability round-trip = %v, want ~%v", gotP, origP)
	}
}
