// Package archive holds an immutable, read-only snapshot of a class
// archive: entry path to raw bytes, tagged with a version string that
// partitions every cache and index built from it.
package archive

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"
)

const ClassSuffix = ".class"

var ErrEntryNotFound = errors.New("entry not found")

// Entry is one named blob. CRC32 is the checksum stored in the zip
// central directory (IEEE polynomial).
type Entry struct {
	Path  string
	Data  []byte
	CRC32 uint32
}

// Archive is safe for concurrent readers; nothing mutates it after Open.
type Archive struct {
	version string
	entries map[string]*Entry
	names   []string
}

// NewEntry builds an entry and computes its checksum.
func NewEntry(path string, data []byte) Entry {
	return Entry{Path: path, Data: data, CRC32: crc32.ChecksumIEEE(data)}
}

// FromEntries builds an archive from already materialized entries.
// Checksums are taken as given. Later duplicates replace earlier ones.
func FromEntries(version string, entries []Entry) *Archive {
	a := &Archive{
		version: version,
		entries: make(map[string]*Entry, len(entries)),
	}
	for i := range entries {
		entry := entries[i]
		a.entries[entry.Path] = &entry
	}
	a.names = make([]string, 0, len(a.entries))
	for name := range a.entries {
		a.names = append(a.names, name)
	}
	sort.Strings(a.names)
	return a
}

// Open reads a zip/jar image. When version is empty it is derived from
// the content digest so that identical archives share caches.
func Open(data []byte, version string) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if version == "" {
		version = ContentVersion(data)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
		entries = append(entries, Entry{Path: f.Name, Data: body, CRC32: f.CRC32})
	}
	return FromEntries(version, entries), nil
}

// OpenFile reads and opens an archive from disk.
func OpenFile(path, version string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
	}
	return Open(data, version)
}

// ContentVersion derives a stable version tag from archive bytes.
func ContentVersion(data []byte) string {
	sum := blake3.Sum256(data)
	return "b3-" + hex.EncodeToString(sum[:8])
}

func (a *Archive) Version() string { return a.version }

func (a *Archive) Len() int { return len(a.names) }

// Names returns every entry path in lexical order.
func (a *Archive) Names() []string {
	return append([]string(nil), a.names...)
}

func (a *Archive) Entry(path string) (*Entry, bool) {
	entry, ok := a.entries[path]
	return entry, ok
}

// Bytes returns the raw content of path or ErrEntryNotFound.
func (a *Archive) Bytes(path string) ([]byte, error) {
	entry, ok := a.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	return entry.Data, nil
}

// ClassNames lists every .class entry, nested classes included.
func (a *Archive) ClassNames() []string {
	out := make([]string, 0, len(a.names))
	for _, name := range a.names {
		if strings.HasSuffix(name, ClassSuffix) {
			out = append(out, name)
		}
	}
	return out
}

// OuterClassNames lists .class entries that are not Outer$Inner entries.
func (a *Archive) OuterClassNames() []string {
	out := make([]string, 0, len(a.names))
	for _, name := range a.names {
		if strings.HasSuffix(name, ClassSuffix) && !strings.Contains(name, "$") {
			out = append(out, name)
		}
	}
	return out
}

// Nested returns the Outer$* class entries of an outer entry path, sorted.
func (a *Archive) Nested(outerPath string) []string {
	prefix := ClassName(outerPath) + "$"
	out := make([]string, 0)
	for _, name := range a.names {
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ClassSuffix) {
			out = append(out, name)
		}
	}
	return out
}

// Filter returns a view containing only the entries keep accepts. The
// view shares entry data. When entries are dropped its version is
// derived from the parent version and the dropped paths, so views with
// different contents never share caches or indexes.
func (a *Archive) Filter(keep func(path string) bool) *Archive {
	view := &Archive{
		version: a.version,
		entries: make(map[string]*Entry, len(a.entries)),
		names:   make([]string, 0, len(a.names)),
	}
	dropped := blake3.New()
	droppedAny := false
	for _, name := range a.names {
		if !keep(name) {
			dropped.Write([]byte(name))
			dropped.Write([]byte{0})
			droppedAny = true
			continue
		}
		view.entries[name] = a.entries[name]
		view.names = append(view.names, name)
	}
	if droppedAny {
		view.version = a.version + "-" + hex.EncodeToString(dropped.Sum(nil)[:4])
	}
	return view
}

// ClassName strips the .class suffix: "a/b/C.class" -> "a/b/C".
func ClassName(path string) string {
	return strings.TrimSuffix(path, ClassSuffix)
}

// EntryPath is the inverse of ClassName.
func EntryPath(className string) string {
	if strings.HasSuffix(className, ClassSuffix) {
		return className
	}
	return className + ClassSuffix
}

// OuterClass returns the outer class name for a nested class name:
// "a/B$C$1" -> "a/B".
func OuterClass(className string) string {
	if idx := strings.Index(className, "$"); idx != -1 {
		return className[:idx]
	}
	return className
}

// SimpleName returns the last path segment of a class name.
func SimpleName(className string) string {
	className = ClassName(className)
	if idx := strings.LastIndex(className, "/"); idx != -1 {
		return className[idx+1:]
	}
	return className
}
