package sampler

import (
	"bufio"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gilchrisn/ddcsbm-graphgen/pkg/m1"
)

func testLogger() zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.Disabled)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n
}

func readEdgeSet(t *testing.T, path string) map[string]struct{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	set := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		set[scanner.Text()] = struct{}{}
	}
	return set
}

// TestGenerateSkipsDegenerateBlock mirrors spec.md §8 scenario 6: a block
// with endX < startX (a post-downscaling artifact) must be skipped without
// emitting edges or aborting the run.
func TestGenerateSkipsDegenerateBlock(t *testing.T) {
	dir := t.TempDir()
	model := &m1.Model{
		Meta: m1.MetaRecord{Name: "t", Values: map[string]string{}},
		Nodes: []m1.NodeRecord{
			{StartID: 0, EndID: 5, NodeType: "A"},
		},
		Edges: []m1.EdgeRecord{
			{EdgeType: "E", Blocks: []m1.EdgeBlock{
				{StartX: 3, EndX: 1, StartY: 0, EndY: 5, P: 0.9}, // degenerate: EndX < StartX
			}},
		},
	}

	nodePath := filepath.Join(dir, "n.tsv")
	edgePath := filepath.Join(dir, "e.tsv")
	stats, err := Generate(model, 1, nodePath, edgePath, DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if stats.EdgeLines != 0 {
		t.Errorf("EdgeLines = %d, want 0 (degenerate block must be skipped)", stats.EdgeLines)
	}
}

func TestGenerateNodeFileLineCount(t *testing.T) {
	dir := t.TempDir()
	model := &m1.Model{
		Meta: m1.MetaRecord{Name: "t", Values: map[string]string{}},
		Nodes: []m1.NodeRecord{
			{StartID: 0, EndID: 3, NodeType: "A"},
			{StartID: 3, EndID: 8, NodeType: "B"},
		},
		Edges: []m1.EdgeRecord{{EdgeType: "E", Blocks: nil}},
	}
	nodePath := filepath.Join(dir, "n.tsv")
	edgePath := filepath.Join(dir, "e.tsv")
	stats, err := Generate(model, 1, nodePath, edgePath, DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if stats.NodeLines != 8 {
		t.Errorf("NodeLines = %d, want 8", stats.NodeLines)
	}
	if got := countLines(t, nodePath); got != 8 {
		t.Errorf("node file has %d lines, want 8", got)
	}
}

// TestGenerateDeterministicEdgeSet mirrors spec.md §8's determinism
// property: sample(M, seed) run with different worker counts must produce
// the same edge set.
func TestGenerateDeterministicEdgeSet(t *testing.T) {
	dir := t.TempDir()
	model := manyBlocksModel(40, 8, 0.3)

	opts1 := DefaultOptions()
	opts1.MaxWorkers = 1
	opts1.MinBlocksForParallelism = 1_000_000

	opts2 := DefaultOptions()
	opts2.MaxWorkers = 4
	opts2.MinBlocksForParallelism = 0

	n1, e1 := filepath.Join(dir, "n1.tsv"), filepath.Join(dir, "e1.tsv")
	n2, e2 := filepath.Join(dir, "n2.tsv"), filepath.Join(dir, "e2.tsv")

	if _, err := Generate(model, 99, n1, e1, opts1, testLogger()); err != nil {
		t.Fatalf("Generate (1 worker): %v", err)
	}
	if _, err := Generate(model, 99, n2, e2, opts2, testLogger()); err != nil {
		t.Fatalf("Generate (4 workers): %v", err)
	}

	set1 := readEdgeSet(t, e1)
	set2 := readEdgeSet(t, e2)
	if len(set1) != len(set2) {
		t.Fatalf("edge counts differ: %d vs %d", len(set1), len(set2))
	}
	for k := range set1 {
		if _, ok := set2[k]; !ok {
			t.Errorf("edge %q present with 1 worker but missing with 4 workers", k)
		}
	}
}

func denseModel(side int, p float64) *m1.Model {
	return &m1.Model{
		Meta:  m1.MetaRecord{Name: "dense", Values: map[string]string{}},
		Nodes: []m1.NodeRecord{{StartID: 0, EndID: float64(side), NodeType: "A"}},
		Edges: []m1.EdgeRecord{{EdgeType: "E", Blocks: []m1.EdgeBlock{
			{StartX: 0, EndX: float64(side), StartY: 0, EndY: float64(side), P: p},
		}}},
	}
}

// manyBlocksModel splits a side x side square into a cellsPerAxis x
// cellsPerAxis grid of blocks, so that Generate has more than one block to
// spread across workers.
func manyBlocksModel(side, cellsPerAxis int, p float64) *m1.Model {
	step := float64(side) / float64(cellsPerAxis)
	var blocks []m1.EdgeBlock
	for i := 0; i < cellsPerAxis; i++ {
		for j := 0; j < cellsPerAxis; j++ {
			blocks = append(blocks, m1.EdgeBlock{
				StartX: float64(i) * step,
				EndX:   float64(i+1) * step,
				StartY: float64(j) * step,
				EndY:   float64(j+1) * step,
				P:      p,
			})
		}
	}
	return &m1.Model{
		Meta:  m1.MetaRecord{Name: "manyblocks", Values: map[string]string{}},
		Nodes: []m1.NodeRecord{{StartID: 0, EndID: float64(side), NodeType: "A"}},
		Edges: []m1.EdgeRecord{{EdgeType: "E", Blocks: blocks}},
	}
}

// TestGeometricSamplingMatchesBinomialExpectation mirrors spec.md §8's
// statistical property: the empirical edge count in a block of area A and
// probability p should follow Binomial(A,p). The sample mean across
// several independent draws is compared against the theoretical Binomial
// mean within a standard-error bound, using gonum's stat and distuv
// packages for the reference distribution.
func TestGeometricSamplingMatchesBinomialExpectation(t *testing.T) {
	const side = 60
	const trials = 40
	for _, p := range []float64{0.01, 0.1, 0.5, 0.9} {
		model := denseModel(side, p)
		area := float64(side * side)
		dist := distuv.Binomial{N: area, P: p}

		counts := make([]float64, trials)
		for i := 0; i < trials; i++ {
			dir := t.TempDir()
			edgePath := filepath.Join(dir, "e.tsv")
			nodePath := filepath.Join(dir, "n.tsv")
			stats, err := Generate(model, rand.Int63(), nodePath, edgePath, DefaultOptions(), testLogger())
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			counts[i] = float64(stats.EdgeLines)
		}

		mean, std := stat.MeanStdDev(counts, nil)
		expectedMean := dist.Mean()
		expectedStd := dist.StdDev()

		// Loose bound: sample mean within 6 standard errors of the
		// theoretical mean. This is a smoke test against gross
		// mis-implementation of the geometric-jump sampler, not a strict
		// statistical proof.
		se := expectedStd / math.Sqrt(float64(trials))
		if se == 0 {
			se = 1
		}
		if math.Abs(mean-expectedMean) > 6*se {
			t.Errorf("p=%v: sample mean %v (std %v) too far from Binomial mean %v", p, mean, std, expectedMean)
		}
	}
}

func TestWithInstanceSuffixPreservesExtension(t *testing.T) {
	got := withInstanceSuffix("out.tsv", 2)
	if got != "out_2.tsv" {
		t.Errorf("withInstanceSuffix = %q, want out_2.tsv", got)
	}
}

func TestGenerateManyProducesDistinctFilesPerInstance(t *testing.T) {
	dir := t.TempDir()
	model := denseModel(5, 0.5)
	rng := rand.New(rand.NewSource(1))
	stats, err := GenerateMany(model, rng, 3, filepath.Join(dir, "n.tsv"), filepath.Join(dir, "e.tsv"), DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("GenerateMany: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d results, want 3", len(stats))
	}
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "n_"+strconv.Itoa(i)+".tsv")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected instance file %s: %v", path, err)
		}
	}
}

func TestMaxEdgeTypeLengthRejectsOverlongType(t *testing.T) {
	dir := t.TempDir()
	model := &m1.Model{
		Meta:  m1.MetaRecord{Name: "t", Values: map[string]string{}},
		Nodes: []m1.NodeRecord{{StartID: 0, EndID: 1, NodeType: "A"}},
		Edges: []m1.EdgeRecord{{EdgeType: strings.Repeat("x", 100), Blocks: nil}},
	}
	_, err := Generate(model, 1, filepath.Join(dir, "n.tsv"), filepath.Join(dir, "e.tsv"), DefaultOptions(), testLogger())
	if err == nil {
		t.Error("expected an error for an edge type exceeding MaxEdgeTypeLength")
	}
}
