package console

import "vireo/internal/decl"

// init registers the --earlycon=<name>[,k=v,...] command-line option at the
// point of definition, the idiom the decl package's doc comment describes
// as standing in for the source's linker-section declaration macro.
func init() {
	decl.RegisterCmdLine("earlycon", func(argument string) {
		// Handlers must not allocate beyond what Open itself needs for its
		// driver constructor; Open's own error is swallowed here per
		// spec.md §4.C ("handlers are permitted only to record flags") —
		// an earlycon that fails to open has nothing earlier to report to.
		_ = Open(argument)
	})
}
