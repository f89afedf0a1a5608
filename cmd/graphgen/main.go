// Command graphgen is the DDcSBM generator's CLI entry point. It joins
// os.Args into a single S1 script string exactly as original_source/main.cpp
// does — arguments starting with '-' or '+' are appended bare (they are
// tags/subtags), everything else is double-quoted (it is an argument that
// may contain spaces) — then hands that script to the runtime.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/gilchrisn/ddcsbm-graphgen/internal/config"
	"github.com/gilchrisn/ddcsbm-graphgen/internal/randutil"
	"github.com/gilchrisn/ddcsbm-graphgen/pkg/script"
)

func assembleScript(args []string) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		if strings.HasPrefix(a, "-") || strings.HasPrefix(a, "+") {
			b.WriteString(a)
		} else {
			b.WriteByte('"')
			b.WriteString(a)
			b.WriteByte('"')
		}
	}
	return b.String()
}

func main() {
	cfg := config.New()
	log := cfg.Logger()

	args := os.Args[1:]
	if len(args) == 0 {
		log.Error().Msg("no arguments provided")
		os.Exit(1)
	}

	src := assembleScript(args)
	tokens, err := script.Tokenize(src)
	if err != nil {
		log.Fatal().Err(err).Msg("tokenizing arguments")
	}
	instructions, err := script.Parse(tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing arguments")
	}

	seed := randutil.SeedFromString(time.Now().String())
	rt := script.NewRuntime(log, cfg, seed)
	rt.Load(instructions)

	if err := rt.Run(); err != nil {
		log.Fatal().Err(err).Msg("running script")
	}

	log.Info().
		Int("instructions_run", rt.InstructionsRun).
		Int("execute_calls", rt.ExecuteCalls).
		Int("graphs_generated", rt.GraphsGenerated).
		Msg("done")
}
