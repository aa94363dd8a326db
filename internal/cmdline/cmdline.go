// Package cmdline implements the boot command-line processor (spec.md
// §4.C). It is modeled directly on the source's boot/cmdline.rs: split on
// whitespace, keep only --prefixed tokens, split each on the first '=',
// dispatch to any registered decl.CmdLine handler. Process runs before the
// heap exists (component C depends only on decl and the caller-provided
// string, never on allocation beyond what the Go string/slice machinery
// already does for iteration).
package cmdline

import (
	"vireo/internal/decl"
)

var canonical string

// Process tokenises raw, dispatching each recognised --key[=value] token to
// its registered handler. Tokens without a leading "--" are ignored, as are
// recognised-but-undeclared options (spec.md §6: "unknown options are
// silently ignored"). Absent '=' yields an empty value.
func Process(raw string) {
	for _, tok := range splitWhitespace(raw) {
		if len(tok) < 2 || tok[0] != '-' || tok[1] != '-' {
			continue
		}
		key, value := splitFirst(tok[2:], '=')
		if d, ok := decl.Lookup(key); ok {
			d.Handler(value)
		}
	}
}

// Set retains an owned copy of the canonical command line once the heap is
// available (spec.md §4.C item 2; boot order step 6 in §5).
func Set(s string) {
	canonical = s
}

// Canonical returns the string last recorded by Set, or "" before step 6
// has run.
func Canonical() string {
	return canonical
}

// trueValues are the recognised spellings of a true boolean cmdline value
// (spec.md §4.C).
var trueValues = map[string]bool{
	"1": true, "on": true, "ON": true,
	"true": true, "TRUE": true,
	"enabled": true, "ENABLED": true,
}

// OptionIsTrue reports whether value is one of the recognised true
// spellings. Everything else, including "yes" and padded variants like
// "On ", is false.
func OptionIsTrue(value string) bool {
	return trueValues[value]
}

// splitWhitespace tokenises on runs of ASCII whitespace, discarding empty
// tokens, mirroring Rust's str::split_whitespace used by the source.
func splitWhitespace(s string) []string {
	var out []string
	start := -1
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// splitFirst splits s on the first occurrence of sep, matching the
// source's util::split_first_str: if sep is absent, the whole string is the
// first half and the second half is empty.
func splitFirst(s string, sep byte) (first, second string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
