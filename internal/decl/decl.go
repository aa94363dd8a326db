// Package decl is the declaration registry: a compile-time table of
// (option-name, handler) descriptors that the command-line processor
// iterates. The source design (AdrianDanis/rlk, see original_source/)
// gathers these into a dedicated linker section between `begin`/`end`
// symbols, framed with a nonce per record (spec.md §6). Idiomatic Go has no
// portable way to place typed values into a custom linker section and walk
// it at runtime without reaching for non-portable linkname tricks well
// beyond what even the teacher does for scalars, so vireo takes the
// specification's explicitly-permitted alternative (b): explicit
// registration, performed from package init() functions co-located with
// each declared handler, exactly where the source's macro would have been
// invoked.
package decl

// Tag distinguishes declaration kinds. The source has CMDLine and SelfTest;
// this core only exercises CMDLine, but the tag-filtered iterator is kept
// general per spec.md §4.B.
type Tag int

const (
	CmdLine Tag = iota
	SelfTest
)

// Nonce is the framing value spec.md §6 specifies for each declaration
// record. It exists here as a documented constant even though Go's registry
// has no raw byte layout to frame, so that a port back to a linker-section
// layout would reuse the same value; nothing in this package reads it.
const Nonce uint64 = 0x4EA4789985E1AD56

// CmdLineHandler is the function signature a --key=value declaration binds.
// Per spec.md §4.C, handlers run before the heap exists and must not
// allocate.
type CmdLineHandler func(argument string)

// Declaration is one registered descriptor.
type Declaration struct {
	Tag     Tag
	Option  string // only meaningful for Tag == CmdLine
	Handler CmdLineHandler
}

var table []Declaration

// RegisterCmdLine adds a --option=value handler to the registry. Call from
// an init() function, the moment-of-definition analogue of the source's
// link-section placement.
func RegisterCmdLine(option string, handler CmdLineHandler) {
	table = append(table, Declaration{Tag: CmdLine, Option: option, Handler: handler})
}

// All returns every declaration, in registration order.
func All() []Declaration {
	return table
}

// Filter returns declarations matching tag, in registration order.
func Filter(tag Tag) []Declaration {
	var out []Declaration
	for _, d := range table {
		if d.Tag == tag {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds the first CmdLine declaration for option, if any.
func Lookup(option string) (Declaration, bool) {
	for _, d := range table {
		if d.Tag == CmdLine && d.Option == option {
			return d, true
		}
	}
	return Declaration{}, false
}
