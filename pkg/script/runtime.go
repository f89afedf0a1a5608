package script

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/ddcsbm-graphgen/internal/config"
	"github.com/gilchrisn/ddcsbm-graphgen/internal/randutil"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/fitter"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/ingest"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/m1"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/sampler"
)

// Runtime sequences a queue of Instructions, holding the active model and
// the PRNG that derives every downstream seed. Grounded on
// original_source/main.cpp's tokenize-parse-execute loop: dequeue next,
// dispatch by type, advance cursor; -Execute splices instead of recursing.
type Runtime struct {
	log zerolog.Logger
	cfg *config.Config
	rng *randutil.Source

	queue  []Instruction
	cursor int
	model  *m1.Model

	samplerOpts sampler.Options

	// InstructionsRun, ExecuteCalls, and GraphsGenerated mirror
	// main.cpp's end-of-run summary counters (SPEC_FULL.md §10 item 2).
	InstructionsRun int
	ExecuteCalls    int
	GraphsGenerated int
}

// NewRuntime builds a Runtime seeded from seed (spec.md §4.5: "initially
// seeded from a system entropy source, reseedable by Seed" — callers
// typically pass a seed drawn from crypto/rand or time at the CLI
// boundary).
func NewRuntime(log zerolog.Logger, cfg *config.Config, seed int64) *Runtime {
	return &Runtime{
		log: log,
		cfg: cfg,
		rng: randutil.NewSource(seed),
		samplerOpts: sampler.Options{
			BufferBytes:             cfg.SamplerBufferBytes(),
			BufferSafetyMargin:      cfg.SamplerBufferSafetyMargin(),
			MinBlocksForParallelism: cfg.SamplerMinBlocksForParallel(),
			MaxWorkers:              cfg.SamplerMaxWorkers(),
			MaxEdgeTypeLength:       cfg.SamplerMaxEdgeTypeLength(),
		},
	}
}

// Load installs instructions as the runtime's queue, resetting the cursor.
func (rt *Runtime) Load(instructions []Instruction) {
	rt.queue = instructions
	rt.cursor = 0
}

// Run dequeues and dispatches instructions until the queue is exhausted,
// returning the first error encountered — there is no partial continuation
// across instructions (spec.md §7's propagation policy).
func (rt *Runtime) Run() error {
	for rt.cursor < len(rt.queue) {
		inst := rt.queue[rt.cursor]
		rt.log.Info().Int("step", rt.cursor).Str("instruction", fmt.Sprintf("%T", inst)).Msg("executing instruction")
		if err := rt.dispatch(inst); err != nil {
			return fmt.Errorf("instruction %d (%T): %w", rt.cursor, inst, err)
		}
		rt.InstructionsRun++
		rt.cursor++
	}
	return nil
}

func (rt *Runtime) dispatch(inst Instruction) error {
	switch v := inst.(type) {
	case ReadInstruction:
		return rt.execRead(v)
	case ExecuteInstruction:
		return rt.execExecute(v)
	case LoadInstruction:
		return rt.execLoad(v)
	case SaveInstruction:
		return rt.execSave(v)
	case ScaleInstruction:
		return rt.execScale(v)
	case SeedInstruction:
		return rt.execSeed(v)
	case GenerateInstruction:
		return rt.execGenerate(v)
	case HelpInstruction:
		return rt.execHelp()
	default:
		return fmt.Errorf("unhandled instruction type %T", inst)
	}
}

func (rt *Runtime) execRead(inst ReadInstruction) error {
	ft := fitter.New(rt.log)
	maxLine := rt.cfg.IngestMaxLineBytes()

	if _, err := ingest.IngestNodes(inst.NodeFiles, inst.NodeIndex, inst.NodeTypeIndex, ft, maxLine, rt.log); err != nil {
		return fmt.Errorf("ingesting nodes: %w", err)
	}
	if _, err := ingest.IngestEdges(inst.EdgeFiles, inst.EdgeSrcIndex, inst.EdgeDstIndex, inst.EdgeTypeIndex, ft, maxLine, rt.log); err != nil {
		return fmt.Errorf("ingesting edges: %w", err)
	}
	if ft.UnknownEndpointEdges > 0 {
		rt.log.Warn().Uint64("count", ft.UnknownEndpointEdges).
			Msg("some edges referenced a node endpoint never observed in any node file")
	}

	model, err := ft.Compile(inst.Args, rt.rng.Next())
	if err != nil {
		return fmt.Errorf("compiling model: %w", err)
	}
	rt.model = model
	return nil
}

// execExecute loads the referenced script, applies every template/replace
// pair as a literal substring substitution, tokenizes and parses the
// result, then splices the resulting instructions directly after the
// current cursor — so they run next, can see the current active model, and
// are never checked for circular inclusion (spec.md §4.5).
func (rt *Runtime) execExecute(inst ExecuteInstruction) error {
	data, err := os.ReadFile(inst.Path)
	if err != nil {
		return fmt.Errorf("reading script %q: %w", inst.Path, err)
	}
	content := string(data)
	for _, pair := range inst.Templates {
		content = strings.ReplaceAll(content, pair[0], pair[1])
	}

	tokens, err := Tokenize(content)
	if err != nil {
		return fmt.Errorf("tokenizing %q: %w", inst.Path, err)
	}
	spliced, err := Parse(tokens)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", inst.Path, err)
	}

	tail := append([]Instruction{}, rt.queue[rt.cursor+1:]...)
	rt.queue = append(rt.queue[:rt.cursor+1:rt.cursor+1], spliced...)
	rt.queue = append(rt.queue, tail...)

	rt.ExecuteCalls++
	return nil
}

func (rt *Runtime) execLoad(inst LoadInstruction) error {
	model, err := m1.ReadFile(inst.Path, rt.log)
	if err != nil {
		return fmt.Errorf("loading %q: %w", inst.Path, err)
	}
	rt.model = model
	return nil
}

func (rt *Runtime) execSave(inst SaveInstruction) error {
	if rt.model == nil {
		return fmt.Errorf("-Save requires an active model; load or fit one first")
	}
	n, err := m1.WriteFile(inst.Path, rt.model, rt.log)
	if err != nil {
		return fmt.Errorf("saving %q: %w", inst.Path, err)
	}
	rt.log.Info().Str("path", inst.Path).Int64("bytes", n).Msg("saved model")
	return nil
}

func (rt *Runtime) execScale(inst ScaleInstruction) error {
	if rt.model == nil {
		return fmt.Errorf("-Scale requires an active model; load or fit one first")
	}
	result, err := m1.Scale(rt.model, inst.Factor, rt.log)
	if err != nil {
		return fmt.Errorf("scaling: %w", err)
	}
	rt.model = result.Model
	return nil
}

func (rt *Runtime) execSeed(inst SeedInstruction) error {
	rt.rng = randutil.NewSource(randutil.SeedFromString(inst.Value))
	return nil
}

func (rt *Runtime) execGenerate(inst GenerateInstruction) error {
	if rt.model == nil {
		return fmt.Errorf("-Generate requires an active model; load or fit one first")
	}
	stats, err := sampler.GenerateMany(rt.model, rt.rng.Rand(), inst.N, inst.NodeFile, inst.EdgeFile, rt.samplerOpts, rt.log)
	if err != nil {
		return fmt.Errorf("generating: %w", err)
	}
	for i, s := range stats {
		rt.log.Info().Int("instance", i).
			Int64("node_bytes", s.NodeBytes).Int64("edge_bytes", s.EdgeBytes).
			Uint64("edges", s.EdgeLines).Msg("generated graph")
	}
	rt.GraphsGenerated += inst.N
	return nil
}

const helpText = `S1 instruction script usage:

  -Read     +nodefile <paths...>      node TSV files to ingest
            +edgefile <paths...>      edge TSV files to ingest
            +nodeindex <int>          node-id column (default 0)
            +nodetypeindex <ints...>  node-type columns (default [1]; first use replaces, later uses extend)
            +edgeindex <int> <int>    source/destination columns (default 0 1)
            +edgetypeindex <ints...>  edge-type columns (default [2]; first use replaces, later uses extend)
            +arg <KEY> <VALUE>        extra meta key/value for the compiled model
  -Execute  <path> [<template> <replace>]*
                                      tokenize and splice path's instructions after this one,
                                      substituting each template/replace pair first
  -Load     <path>                    deserialize an M1 file as the active model
  -Save     <path>                    serialize the active model as an M1 file
  -Scale    <factor>                  replace the active model with a rescaled copy (factor > 0)
  -Seed     <string>                  reseed the runtime's PRNG from the given string
  -Generate <nodefile> <edgefile> <n> sample n realized graphs from the active model
  -Help                               print this text
`

func (rt *Runtime) execHelp() error {
	fmt.Print(helpText)
	return nil
}
