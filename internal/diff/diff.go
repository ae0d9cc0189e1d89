// Package diff compares two archive snapshots by content identity of
// their outer classes and renders unified diffs of decompiled sources.
package diff

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/morozRed/classlens/internal/archive"
)

// Mode selects how the checksums of an outer class and its nested
// classes are combined.
type Mode int

const (
	// XOR folds entry CRC32 values together. Two identical nested
	// changes cancel out.
	XOR Mode = iota
	// Digest hashes the name-sorted (name, crc) records with blake3.
	Digest
)

func (m Mode) String() string {
	if m == Digest {
		return "digest"
	}
	return "xor"
}

// ParseMode accepts "xor" (or empty) and "digest".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "xor":
		return XOR, nil
	case "digest":
		return Digest, nil
	default:
		return XOR, fmt.Errorf("unknown checksum mode %q", s)
	}
}

type State int

const (
	Added State = iota + 1
	Deleted
	Modified
)

func (s State) String() string {
	switch s {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Change is one changed outer class.
type Change struct {
	Class string `json:"class"`
	State State  `json:"state"`
}

// Checksums maps each outer class name to the combined checksum of its
// .class entry and every Outer$* entry. Non-class entries are ignored.
func Checksums(arc *archive.Archive, mode Mode) map[string]uint64 {
	groups := make(map[string][]*archive.Entry)
	for _, path := range arc.ClassNames() {
		entry, _ := arc.Entry(path)
		outer := archive.OuterClass(archive.ClassName(path))
		groups[outer] = append(groups[outer], entry)
	}

	sums := make(map[string]uint64, len(groups))
	for outer, entries := range groups {
		if mode == Digest {
			sums[outer] = digest(entries)
			continue
		}
		var sum uint32
		for _, entry := range entries {
			sum ^= entry.CRC32
		}
		sums[outer] = uint64(sum)
	}
	return sums
}

func digest(entries []*archive.Entry) uint64 {
	sorted := append([]*archive.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := blake3.New()
	for _, entry := range sorted {
		h.Write([]byte(entry.Path))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(uint64(entry.CRC32), 16)))
		h.Write([]byte{'\n'})
	}
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Compare classifies every class present on either side. Unchanged
// classes are omitted.
func Compare(left, right map[string]uint64) map[string]State {
	changes := make(map[string]State)
	for class, l := range left {
		r, ok := right[class]
		switch {
		case !ok:
			changes[class] = Deleted
		case l != r:
			changes[class] = Modified
		}
	}
	for class := range right {
		if _, ok := left[class]; !ok {
			changes[class] = Added
		}
	}
	return changes
}

// Archives compares two archives with the given mode.
func Archives(left, right *archive.Archive, mode Mode) map[string]State {
	return Compare(Checksums(left, mode), Checksums(right, mode))
}

// Sorted lists changes ordered by class name.
func Sorted(changes map[string]State) []Change {
	out := make([]Change, 0, len(changes))
	for class, state := range changes {
		out = append(out, Change{Class: class, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}
