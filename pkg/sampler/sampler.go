// Package sampler draws realized graphs from a compiled M1 model: a
// per-block geometric-jump Bernoulli edge draw parallelized across worker
// goroutines, writing TSV node and edge files. Grounded on
// original_source/src/Generator.cpp's multithread_generate_graph.
package sampler

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/ddcsbm-graphgen/internal/randutil"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/m1"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/types"
)

// MaxEdgeTypeLength mirrors Generator.cpp's MAX_ALLOWED_TYPE_LENGTH: a
// buffer-safety constant from the original's fixed-size C string, kept here
// as a configuration-error guard against pathological edge-type strings
// even though Go's writer has no fixed buffer to overflow.
const MaxEdgeTypeLength = 64

// Options tunes the sampler's worker partitioning and output buffering,
// sourced from internal/config so defaults live in one place.
type Options struct {
	BufferBytes             int
	BufferSafetyMargin      int
	MinBlocksForParallelism int
	MaxWorkers              int
	MaxEdgeTypeLength       int
}

// DefaultOptions matches internal/config.New()'s defaults, for callers that
// construct a sampler without threading a *config.Config through.
func DefaultOptions() Options {
	maxWorkers := runtime.NumCPU() - 1
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return Options{
		BufferBytes:             100_000,
		BufferSafetyMargin:      500,
		MinBlocksForParallelism: 100,
		MaxWorkers:              maxWorkers,
		MaxEdgeTypeLength:       MaxEdgeTypeLength,
	}
}

// Stats reports the outcome of one Generate call: bytes written to each
// output file and the number of edges actually drawn, the Go analogue of
// Generator.cpp's byte-count reporting.
type Stats struct {
	NodeBytes int64
	EdgeBytes int64
	NodeLines uint64
	EdgeLines uint64
}

func (s *Stats) add(other Stats) {
	s.NodeBytes += other.NodeBytes
	s.EdgeBytes += other.EdgeBytes
	s.NodeLines += other.NodeLines
	s.EdgeLines += other.EdgeLines
}

// Generate writes one realized graph sampled from model under seed to
// nodePath and edgePath.
func Generate(model *m1.Model, seed int64, nodePath, edgePath string, opts Options, log zerolog.Logger) (Stats, error) {
	for _, e := range model.Edges {
		if len(e.EdgeType) > opts.MaxEdgeTypeLength {
			return Stats{}, fmt.Errorf("edge type %q exceeds maximum length %d", e.EdgeType, opts.MaxEdgeTypeLength)
		}
	}

	var stats Stats

	nodeBytes, nodeLines, err := writeNodes(model, nodePath)
	if err != nil {
		return stats, fmt.Errorf("writing node file %q: %w", nodePath, err)
	}
	stats.NodeBytes = nodeBytes
	stats.NodeLines = nodeLines

	edgeBytes, edgeLines, err := writeEdges(model, seed, edgePath, opts, log)
	if err != nil {
		return stats, fmt.Errorf("writing edge file %q: %w", edgePath, err)
	}
	stats.EdgeBytes = edgeBytes
	stats.EdgeLines = edgeLines

	return stats, nil
}

// GenerateMany invokes Generate n times with independent seeds drawn from
// rng. When n > 1 it appends "_<i>" (zero-based) to each path's stem while
// preserving its extension, matching spec.md §4.4's multi-instance
// contract; with n == 1 the paths are used as given.
func GenerateMany(model *m1.Model, rng *rand.Rand, n int, nodeStem, edgeStem string, opts Options, log zerolog.Logger) ([]Stats, error) {
	if n <= 0 {
		return nil, fmt.Errorf("generate count must be positive, got %d", n)
	}
	results := make([]Stats, 0, n)
	for i := 0; i < n; i++ {
		seed := rng.Int63()
		nodePath, edgePath := nodeStem, edgeStem
		if n > 1 {
			nodePath = withInstanceSuffix(nodeStem, i)
			edgePath = withInstanceSuffix(edgeStem, i)
		}
		stats, err := Generate(model, seed, nodePath, edgePath, opts, log)
		if err != nil {
			return results, fmt.Errorf("instance %d: %w", i, err)
		}
		results = append(results, stats)
	}
	return results, nil
}

func withInstanceSuffix(path string, i int) string {
	ext := ""
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		ext = path[idx:]
		path = path[:idx]
	}
	return fmt.Sprintf("%s_%d%s", path, i, ext)
}

func writeNodes(model *m1.Model, path string) (int64, uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var written int64
	var lines uint64
	for _, n := range model.Nodes {
		start := types.StartOfInterval(n.StartID)
		end := types.EndOfInterval(n.EndID)
		for id := start; id <= end; id++ {
			line := strconv.FormatUint(id, 10) + "\t" + n.NodeType + "\n"
			nn, err := w.WriteString(line)
			written += int64(nn)
			if err != nil {
				return written, lines, err
			}
			lines++
		}
	}
	if err := w.Flush(); err != nil {
		return written, lines, err
	}
	return written, lines, f.Close()
}

// block is the integer-corner form of an m1.EdgeBlock, converted once up
// front so workers never touch floating point.
type block struct {
	xs, xe, ys, ye uint64
	p              float64
}

func integerBlocks(blocks []m1.EdgeBlock) []block {
	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		xs := types.StartOfInterval(b.StartX)
		xe := types.EndOfInterval(b.EndX)
		ys := types.StartOfInterval(b.StartY)
		ye := types.EndOfInterval(b.EndY)
		if xe < xs || ye < ys {
			continue
		}
		p := b.P
		if p > 1 {
			p = 1
		}
		if p <= 0 {
			continue
		}
		out = append(out, block{xs: xs, xe: xe, ys: ys, ye: ye, p: p})
	}
	return out
}

func writeEdges(model *m1.Model, seed int64, path string, opts Options, log zerolog.Logger) (int64, uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var mu sync.Mutex
	var written int64
	var lines uint64

	rootSrc := randutil.NewSource(seed)

	edgeTypes := make([]m1.EdgeRecord, len(model.Edges))
	copy(edgeTypes, model.Edges)
	sort.Slice(edgeTypes, func(i, j int) bool { return edgeTypes[i].EdgeType < edgeTypes[j].EdgeType })

	for _, rec := range edgeTypes {
		blocks := integerBlocks(rec.Blocks)
		if len(blocks) == 0 {
			continue
		}

		workers := opts.MaxWorkers
		if len(blocks) < opts.MinBlocksForParallelism {
			workers = 1
		}
		if workers > len(blocks) {
			workers = len(blocks)
		}
		if workers < 1 {
			workers = 1
		}

		ranges := partition(len(blocks), workers)

		// One seed per block, drawn in block order, so the sampled edge set
		// depends only on seed and model, not on the worker count.
		blockSeeds := make([]int64, len(blocks))
		for i := range blockSeeds {
			blockSeeds[i] = rootSrc.Next()
		}

		var wg sync.WaitGroup
		errCh := make(chan error, workers)
		for _, r := range ranges {
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, l, err := sampleWorker(rec.EdgeType, blocks[r.start:r.end], blockSeeds[r.start:r.end], w, &mu, opts)
				mu.Lock()
				written += n
				lines += l
				mu.Unlock()
				if err != nil {
					errCh <- err
				}
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				return written, lines, err
			}
		}
		log.Info().Str("edge_type", rec.EdgeType).Int("blocks", len(blocks)).Int("workers", workers).
			Msg("sampled edge type")
	}

	if err := w.Flush(); err != nil {
		return written, lines, err
	}
	return written, lines, f.Close()
}

type blockRange struct{ start, end int }

// partition splits [0,n) into up to workers contiguous ranges, matching
// Generator.cpp's block-range-per-thread split.
func partition(n, workers int) []blockRange {
	if workers > n {
		workers = n
	}
	ranges := make([]blockRange, 0, workers)
	base := n / workers
	rem := n % workers
	start := 0
	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges = append(ranges, blockRange{start: start, end: start + size})
		start += size
	}
	return ranges
}

// sampleWorker draws edges from every block in its range using the
// geometric-jump technique, buffering serialized lines and flushing through
// mu once the buffer nears BufferBytes-BufferSafetyMargin, mirroring
// Generator.cpp's fixed-size-buffer-then-flush worker loop. Block k is
// drawn with its own *rand.Rand seeded from seeds[k].
func sampleWorker(edgeType string, blocks []block, seeds []int64, w *bufio.Writer, mu *sync.Mutex, opts Options) (int64, uint64, error) {
	buf := make([]byte, 0, opts.BufferBytes)
	flushThreshold := opts.BufferBytes - opts.BufferSafetyMargin
	if flushThreshold < 1 {
		flushThreshold = opts.BufferBytes
	}

	var written int64
	var lines uint64

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		mu.Lock()
		n, err := w.Write(buf)
		mu.Unlock()
		written += int64(n)
		buf = buf[:0]
		return err
	}

	for k, b := range blocks {
		r := rand.New(rand.NewSource(seeds[k]))
		width := b.xe - b.xs + 1
		height := b.ye - b.ys + 1
		total := width * height
		// cursor is one-before-the-first-cell; each iteration advances it by
		// a geometric gap and emits an edge at the landing cell, per
		// spec.md §4.4's linear-index decomposition.
		var cursor uint64
		first := true
		for {
			gap := randutil.GeometricGap(r, b.p)
			if first {
				cursor = gap - 1
				first = false
			} else {
				cursor += gap
			}
			if cursor >= total {
				break
			}
			xOffset := cursor / height
			yOffset := cursor % height
			line := strconv.FormatUint(b.xs+xOffset, 10) + "\t" + strconv.FormatUint(b.ys+yOffset, 10) + "\t" + edgeType + "\n"
			buf = append(buf, line...)
			lines++
			if len(buf) >= flushThreshold {
				if err := flush(); err != nil {
					return written, lines, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return written, lines, err
	}
	return written, lines, nil
}
