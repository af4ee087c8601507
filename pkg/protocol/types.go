package protocol

// Wire-level constants shared by the host and the oracle parser module.
// This package has no dependencies so guest tooling can import it too.

// Default export names of the parser module ABI.
const (
	// ExportAlloc reserves a region in linear memory.
	// Signature: alloc(len: i32) -> i32 (pointer)
	ExportAlloc = "alloc"

	// ExportFree returns a region to the module allocator.
	// Signature: free(ptr: i32, len: i32)
	ExportFree = "free"

	// ExportParse parses a card's oracle text.
	// Signature: parse_oracle_text(name_ptr, name_len, text_ptr, text_len: i32) -> i32
	// The result is a NUL-terminated UTF-8 region allocated by the module.
	ExportParse = "parse_oracle_text"

	// ExportMemory is the exported linear memory.
	ExportMemory = "memory"
)

// PlaceholderName replaces an empty card name. The parser uses it to
// recognise self references ("~ deals 3 damage to any target").
const PlaceholderName = "~"

// AbilityTreePrefix marks a successful parse result. Anything else is an
// error message.
const AbilityTreePrefix = `{"abilities"`

// AbilitiesKey is the top-level key of a successful result.
const AbilitiesKey = "abilities"

// Terminator ends every result region. It is not part of the content but
// is part of the region length passed back to free.
const Terminator byte = 0

// ResultKind classifies a result string.
type ResultKind int

const (
	ResultKindTree ResultKind = iota + 1
	ResultKindError
	ResultKindMalformed
)

// String returns the kind name used in logs.
func (k ResultKind) String() string {
	switch k {
	case ResultKindTree:
		return "tree"
	case ResultKindError:
		return "error"
	case ResultKindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ABI names the exports the host binds to.
type ABI struct {
	Alloc  string `json:"alloc" yaml:"alloc"`
	Free   string `json:"free" yaml:"free"`
	Parse  string `json:"parse" yaml:"parse"`
	Memory string `json:"memory" yaml:"memory"`
}

// DefaultABI returns the export names used by boseiju_wasm.
func DefaultABI() ABI {
	return ABI{
		Alloc:  ExportAlloc,
		Free:   ExportFree,
		Parse:  ExportParse,
		Memory: ExportMemory,
	}
}

// WithDefaults fills empty names from DefaultABI.
func (a ABI) WithDefaults() ABI {
	d := DefaultABI()
	if a.Alloc == "" {
		a.Alloc = d.Alloc
	}
	if a.Free == "" {
		a.Free = d.Free
	}
	if a.Parse == "" {
		a.Parse = d.Parse
	}
	if a.Memory == "" {
		a.Memory = d.Memory
	}
	return a
}
