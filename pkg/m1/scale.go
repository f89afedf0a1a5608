package m1

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// ScaleResult reports the outcome of a Scale call: how many blocks had to be
// clamped to probability 1 after dividing by the factor, out of how many
// blocks were examined in total.
type ScaleResult struct {
	Model         *Model
	ClampedBlocks uint64
	TotalBlocks   uint64
}

// Scale produces a new model with every node/block endpoint multiplied by
// factor and every block probability divided by factor (conserving expected
// degree under proportional enlargement), clamping any resulting
// probability above 1 and counting the clamps. The input model is never
// mutated. Grounded on original_source/src/m1ModelFormat.cpp's
// scale_m1_data.
func Scale(model *Model, factor float64, log zerolog.Logger) (*ScaleResult, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("scale factor must be greater than zero, got %v", factor)
	}
	if factor < 1 {
		log.Warn().Float64("factor", factor).Msg("downscaling a model is lossy; proceed with caution")
	}

	out := model.Clone()

	oldScale := 1.0
	if raw, ok := out.Meta.Values[ScaleMetaKey]; ok {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn().Str("raw", raw).Msg("non-numeric SCALE in loaded meta; new SCALE may be inaccurate")
		} else if parsed <= 0 {
			log.Warn().Float64("scale", parsed).Msg("non-positive SCALE in loaded meta; new SCALE may be inaccurate")
		} else {
			oldScale = parsed
		}
	}
	newScale := oldScale * factor
	out.Meta.Values[ScaleMetaKey] = strconv.FormatFloat(newScale, 'f', -1, 64)

	for i := range out.Nodes {
		out.Nodes[i].StartID *= factor
		out.Nodes[i].EndID *= factor
	}

	var clamped, total uint64
	for i := range out.Edges {
		blocks := out.Edges[i].Blocks
		for j := range blocks {
			blocks[j].StartX *= factor
			blocks[j].EndX *= factor
			blocks[j].StartY *= factor
			blocks[j].EndY *= factor
			blocks[j].P = blocks[j].P / factor
			total++
			if blocks[j].P > 1 {
				blocks[j].P = 1
				clamped++
			}
		}
	}

	log.Info().Float64("new_scale", newScale).Msg("scaled model")
	if clamped > 0 {
		pct := float64(clamped) / (float64(total) / 100.0)
		log.Warn().Uint64("clamped", clamped).Uint64("total", total).Float64("percent", pct).
			Msg("model failures (block probability > 1.0) remaining after scaling")
	}

	return &ScaleResult{Model: out, ClampedBlocks: clamped, TotalBlocks: total}, nil
}
