package cpu

// MemoryType is a PAT-selectable caching policy for a page-table entry.
type MemoryType int

const (
	MemWriteBack MemoryType = iota
	MemWriteThrough
	MemUncacheable
	MemStrongUC
	MemWriteCombining
	MemWriteProtect
)

// patEncoding is the fixed index->encoded-value table from spec.md §4.E.
var patEncoding = [6]struct {
	index   uint
	encoded uint64
}{
	{0, 6}, // WB
	{1, 4}, // WT
	{2, 7}, // UC
	{3, 0}, // Strong-UC
	{4, 1}, // WC
	{5, 5}, // WP
}

const iaPATMSR = 0x277

// PATIndex identifies a programmed PAT slot. PWT, PCD and PAT return the
// {PWT,PCD,PAT} bit triple per spec.md §4.E: bit0=PWT, bit1=!PCD, bit2=PAT.
type PATIndex uint

func (i PATIndex) PWT() bool { return i&1 != 0 }
func (i PATIndex) PCD() bool { return i&2 == 0 }
func (i PATIndex) PAT() bool { return i&4 != 0 }

// IndexFor reports the PAT slot spec.md §4.E assigns each memory type.
func IndexFor(mt MemoryType) PATIndex {
	for _, e := range patEncoding {
		if MemoryType(e.index) == mt {
			return PATIndex(e.index)
		}
	}
	panic("cpu: IndexFor: unknown memory type")
}

// ProgramPAT installs the fixed memory-type table from spec.md §4.E,
// preserving entries 6 and 7 (architecturally unused here, but left alone
// so any pre-existing mapping relying on their default semantics keeps
// working, matching the source's pat.rs comment to the same effect).
// Requires the MSR and PAT capability tokens, which cpu.Check hands out
// through FeatureSet; see the token types for what holding one proves.
func ProgramPAT(_ MSR, _ PAT) {
	current := rdmsr(iaPATMSR)
	var next uint64
	for i, e := range patEncoding {
		shift := uint(i) * 8
		next |= (e.encoded & 0xFF) << shift
	}
	// preserve entries 6 and 7 from whatever was already programmed
	const preserveMask = uint64(0xFFFF) << 48
	next |= current & preserveMask
	wrmsr(iaPATMSR, next)
}

// ReadPATIndex returns the currently programmed encoded value (PA0..PA2
// bits, i.e. the low 3 bits of that entry's byte) for a given slot, for
// checking that programming took effect (spec.md §8 invariant 8).
func ReadPATIndex(slot uint) uint8 {
	current := rdmsr(iaPATMSR)
	shift := slot * 8
	return uint8((current >> shift) & 0x7)
}
