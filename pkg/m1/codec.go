package m1

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type readerMode int

const (
	modeNone readerMode = iota
	modeMeta
	modeNodes
	modeEdges
)

// Read deserializes an M1 model from r. Malformed or incomplete individual
// lines are logged at Warn and skipped (spec.md §4.3 "Deserialization is
// lenient"); a missing META/NODES/EDGES section is fatal, matching
// original_source/src/m1ModelFormat.cpp's read_m1_file.
func Read(r io.Reader, log zerolog.Logger) (*Model, error) {
	model := &Model{Meta: MetaRecord{Values: map[string]string{}}}

	var hasMeta, hasNodes, hasEdges bool
	var currentEdgeType string
	var currentBlocks []EdgeBlock
	mode := modeNone

	flushEdgeType := func() {
		if currentEdgeType != "" || len(currentBlocks) > 0 {
			model.Edges = append(model.Edges, EdgeRecord{EdgeType: currentEdgeType, Blocks: currentBlocks})
			hasEdges = hasEdges || len(currentBlocks) > 0
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, "# META"):
				mode = modeMeta
			case strings.HasPrefix(line, "# NODES"):
				mode = modeNodes
			case strings.HasPrefix(line, "# EDGES"):
				flushEdgeType()
				mode = modeEdges
				idx := strings.IndexByte(line, '=')
				if idx < 0 {
					return nil, fmt.Errorf("malformed '# EDGES' directive (missing '='): %q", line)
				}
				currentEdgeType = line[idx+1:]
				currentBlocks = nil
			default:
				return nil, fmt.Errorf("unexpected directive %q while parsing m1 file; the file may be malformed", line)
			}
			continue
		}

		switch mode {
		case modeNone:
			return nil, fmt.Errorf("unexpected line %q before any section directive", line)

		case modeMeta:
			key, value, ok := strings.Cut(line, "=")
			if !ok || key == "" || value == "" {
				log.Warn().Str("line", line).Msg("incomplete META line, skipping")
				continue
			}
			if key == NameMetaKey {
				model.Meta.Name = value
				hasMeta = true
			} else {
				model.Meta.Values[key] = value
			}

		case modeNodes:
			parts := strings.SplitN(line, ",", 3)
			if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
				log.Warn().Str("line", line).Msg("incomplete NODES line, skipping")
				continue
			}
			start, err1 := strconv.ParseFloat(parts[0], 64)
			end, err2 := strconv.ParseFloat(parts[1], 64)
			if err1 != nil || err2 != nil {
				log.Warn().Str("line", line).Msg("unparseable NODES line, skipping")
				continue
			}
			model.Nodes = append(model.Nodes, NodeRecord{StartID: start, EndID: end, NodeType: parts[2]})
			hasNodes = true

		case modeEdges:
			parts := strings.SplitN(line, ",", 5)
			if len(parts) != 5 {
				log.Warn().Str("line", line).Msg("incomplete EDGES line, skipping")
				continue
			}
			var empty bool
			for _, p := range parts {
				if p == "" {
					empty = true
				}
			}
			if empty {
				log.Warn().Str("line", line).Msg("incomplete EDGES line, skipping")
				continue
			}
			sx, e1 := strconv.ParseFloat(parts[0], 64)
			ex, e2 := strconv.ParseFloat(parts[1], 64)
			sy, e3 := strconv.ParseFloat(parts[2], 64)
			ey, e4 := strconv.ParseFloat(parts[3], 64)
			prob, e5 := strconv.ParseFloat(parts[4], 64)
			if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
				log.Warn().Str("line", line).Msg("unparseable EDGES line, skipping")
				continue
			}
			currentBlocks = append(currentBlocks, EdgeBlock{StartX: sx, EndX: ex, StartY: sy, EndY: ey, P: prob})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading m1 file: %w", err)
	}
	flushEdgeType()

	if !hasMeta {
		return nil, fmt.Errorf("m1 file is missing a valid META section with at least a NAME= declaration")
	}
	if !hasNodes {
		return nil, fmt.Errorf("m1 file is missing a valid NODES section with at least one node type")
	}
	if !hasEdges {
		return nil, fmt.Errorf("m1 file is missing a valid EDGES section with at least one edge type")
	}

	log.Info().Int("node_types", len(model.Nodes)).Int("edge_types", len(model.Edges)).Msg("read m1 model")
	return model, nil
}

// ReadFile opens path and deserializes it with Read.
func ReadFile(path string, log zerolog.Logger) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening m1 file %q: %w", path, err)
	}
	defer f.Close()
	return Read(f, log)
}

// Write serializes model to w in M1 text format and returns the number of
// bytes written, per original_source/src/m1ModelFormat.cpp's write_m1_file.
func Write(w io.Writer, model *Model, log zerolog.Logger) (int64, error) {
	if model.Meta.Name == "" {
		log.Warn().Msg("writing model with an empty name; M1 models should declare NAME")
	}

	bw := &byteCountWriter{w: bufio.NewWriter(w)}

	fmt.Fprintln(bw, "# META")
	fmt.Fprintf(bw, "%s=%s\n", NameMetaKey, model.Meta.Name)
	for key, value := range model.Meta.Values {
		if strings.ContainsAny(key, "=\n") {
			return bw.n, fmt.Errorf("meta key %q may not contain '=' or newline", key)
		}
		if strings.Contains(value, "\n") {
			return bw.n, fmt.Errorf("meta value for key %q may not contain a newline", key)
		}
		fmt.Fprintf(bw, "%s=%s\n", key, value)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "# NODES")
	for _, n := range model.Nodes {
		if strings.Contains(n.NodeType, "\n") {
			return bw.n, fmt.Errorf("node type %q may not contain a newline", n.NodeType)
		}
		fmt.Fprintf(bw, "%s,%s,%s\n", formatFloat(n.StartID), formatFloat(n.EndID), n.NodeType)
	}
	fmt.Fprintln(bw)

	for _, e := range model.Edges {
		if strings.Contains(e.EdgeType, "\n") {
			return bw.n, fmt.Errorf("edge type %q may not contain a newline", e.EdgeType)
		}
		fmt.Fprintf(bw, "# EDGES=%s\n", e.EdgeType)
		for _, b := range e.Blocks {
			p := b.P
			if p > 1 {
				p = 1
			}
			fmt.Fprintf(bw, "%s,%s,%s,%s,%s\n",
				formatFloat(b.StartX), formatFloat(b.EndX), formatFloat(b.StartY), formatFloat(b.EndY), formatFloat(p))
		}
		fmt.Fprintln(bw)
	}

	if err := bw.w.Flush(); err != nil {
		return bw.n, fmt.Errorf("flushing m1 file: %w", err)
	}
	return bw.n, nil
}

// WriteFile writes model to path, failing if the parent directory does not
// exist (spec.md §7 kind 2, I/O error).
func WriteFile(path string, model *Model, log zerolog.Logger) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating m1 file %q: %w", path, err)
	}
	defer f.Close()
	n, err := Write(f, model, log)
	if err != nil {
		return n, err
	}
	return n, f.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type byteCountWriter struct {
	w *bufio.Writer
	n int64
}

func (b *byteCountWriter) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	b.n += int64(n)
	return n, err
}
