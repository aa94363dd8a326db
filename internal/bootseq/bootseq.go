// Package bootseq asserts the fixed, total ordering of the boot sequence
// (spec.md §5, steps 1-11). The boot core is single-threaded and never
// revisits an earlier step, so the check is a monotonic counter: each step
// must be entered exactly once, in order, with nothing skipped and nothing
// repeated. A violation is a programming error in the boot core itself
// (not a runtime condition a real machine can trigger), so it panics
// through bootpanic exactly like any other configuration error.
//
// There is no direct analogue in the teacher (mazarin's kernel.go just
// calls its setup steps in a row, trusting the one function body to keep
// them ordered); this is built from the source's boot/state.rs concept of
// a single authoritative boot-time state object, generalized from holding
// state to also policing the order state is allowed to change in.
package bootseq

import "vireo/internal/bootpanic"

// Step is one of the eleven ordered stages of spec.md §5.
type Step int

const (
	SignatureChecked Step = iota + 1
	CmdLineParsed
	RegionsRecorded
	PhysicalRegionsAdded
	BuddyAttached
	CmdLineCanonicalStored
	CPUFeaturesChecked
	AddressSpaceBuilt
	Activated
	StackRelocated
	PostBootEntered
)

func (s Step) String() string {
	switch s {
	case SignatureChecked:
		return "signature-checked"
	case CmdLineParsed:
		return "cmdline-parsed"
	case RegionsRecorded:
		return "regions-recorded"
	case PhysicalRegionsAdded:
		return "physical-regions-added"
	case BuddyAttached:
		return "buddy-attached"
	case CmdLineCanonicalStored:
		return "cmdline-canonical-stored"
	case CPUFeaturesChecked:
		return "cpu-features-checked"
	case AddressSpaceBuilt:
		return "address-space-built"
	case Activated:
		return "activated"
	case StackRelocated:
		return "stack-relocated"
	case PostBootEntered:
		return "post-boot-entered"
	default:
		return "unknown"
	}
}

// Sequencer tracks which step the boot core last completed.
type Sequencer struct {
	last Step // 0 before any step has run
}

// New returns a Sequencer positioned before step 1.
func New() *Sequencer { return &Sequencer{} }

// Enter asserts step is exactly one past the last step completed, then
// records it as done. Any other value — a repeat, a skip, or going
// backwards — is fatal (spec.md §7: configuration errors are fatal).
func (s *Sequencer) Enter(step Step) {
	if step != s.last+1 {
		bootpanic.Fire(bootpanic.Fault{
			Module:  "bootseq",
			Message: "boot step out of order",
			Value:   "expected " + (s.last + 1).String() + ", got " + step.String(),
		})
	}
	s.last = step
}

// Last reports the most recently completed step (0 if none yet).
func (s *Sequencer) Last() Step { return s.last }
