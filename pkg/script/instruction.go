package script

// Instruction is the S1 instruction sum type: a variant, not a product.
// Go has no native tagged union, so per spec.md §9's design note this is
// modeled as an interface with a private marker method — only the structs
// below can satisfy it.
type Instruction interface {
	isInstruction()
}

// ReadInstruction configures and triggers a tabular ingest, defaults
// matching spec.md §6: NodeIndex=0, NodeTypeIndex=[1],
// (EdgeSrcIndex,EdgeDstIndex)=(0,1), EdgeTypeIndex=[2].
type ReadInstruction struct {
	NodeFiles     []string
	EdgeFiles     []string
	NodeIndex     int
	NodeTypeIndex []int
	EdgeSrcIndex  int
	EdgeDstIndex  int
	EdgeTypeIndex []int
	Args          map[string]string
}

func (ReadInstruction) isInstruction() {}

// ExecuteInstruction loads, template-substitutes, tokenizes, and parses
// another script file, splicing its instructions after the current cursor.
type ExecuteInstruction struct {
	Path      string
	Templates [][2]string // literal substring substitutions, applied in order
}

func (ExecuteInstruction) isInstruction() {}

// LoadInstruction deserializes an M1 file and makes it the active model.
type LoadInstruction struct {
	Path string
}

func (LoadInstruction) isInstruction() {}

// SaveInstruction serializes the active model to an M1 file.
type SaveInstruction struct {
	Path string
}

func (SaveInstruction) isInstruction() {}

// ScaleInstruction replaces the active model with a rescaled copy.
type ScaleInstruction struct {
	Factor float64
}

func (ScaleInstruction) isInstruction() {}

// SeedInstruction reseeds the runtime's PRNG from the byte values of Value.
type SeedInstruction struct {
	Value string
}

func (SeedInstruction) isInstruction() {}

// GenerateInstruction samples N realized graphs from the active model.
type GenerateInstruction struct {
	NodeFile string
	EdgeFile string
	N        int
}

func (GenerateInstruction) isInstruction() {}

// HelpInstruction prints the full per-instruction usage grammar.
type HelpInstruction struct{}

func (HelpInstruction) isInstruction() {}
