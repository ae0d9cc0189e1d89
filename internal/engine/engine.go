// Package engine defines the decompiler and indexer collaborators and
// ships two built-in implementations: an external-process decompiler
// and a constant-pool usage indexer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/morozRed/classlens/internal/token"
)

// ErrDecode wraps every failure raised while decompiling, indexing or
// dumping a class.
var ErrDecode = errors.New("decode failure")

// Option set identifiers. They are part of the cache key.
const (
	OptionsNormal   = "normal"
	OptionsBytecode = "bytecode"
	OptionsLambdas  = "lambdas"
)

// OptionSet returns the decompiler flags for an option set id.
func OptionSet(id string) (map[string]string, error) {
	switch id {
	case "", OptionsNormal, OptionsBytecode:
		return map[string]string{}, nil
	case OptionsLambdas:
		return map[string]string{"mark-corresponding-synthetics": "1"}, nil
	default:
		return nil, fmt.Errorf("unknown option set %q", id)
	}
}

// Resolver returns the bytes of a class by internal name (no .class
// suffix) or false when the archive has no such entry.
type Resolver func(className string) ([]byte, bool)

// Input carries everything a decompiler may consult for one class.
type Input struct {
	Resolve Resolver
	Names   []string // every resolvable internal class name
	Options map[string]string
	Visitor token.Visitor
}

type Decompiler interface {
	Decompile(ctx context.Context, className string, in Input) (string, error)
}

// DecompilerFunc adapts a function to Decompiler.
type DecompilerFunc func(ctx context.Context, className string, in Input) (string, error)

func (f DecompilerFunc) Decompile(ctx context.Context, className string, in Input) (string, error) {
	return f(ctx, className, in)
}

// UsageContext receives usage edges. Subjects are a class name or
// owner:name:descriptor; locators are tagged with c:, m: or f:.
type UsageContext interface {
	AddClassUsage(class, locator string)
	AddMethodUsage(method, locator string)
	AddFieldUsage(field, locator string)
}

type Indexer interface {
	Index(ctx context.Context, data []byte, uc UsageContext) error
	// Dump renders a textual listing of a class and its nested classes.
	Dump(ctx context.Context, classes [][]byte) (string, error)
}

func MemberKey(owner, name, descriptor string) string {
	return owner + ":" + name + ":" + descriptor
}

func ClassLocator(class string) string { return "c:" + class }

func MethodLocator(owner, name, descriptor string) string {
	return "m:" + MemberKey(owner, name, descriptor)
}

func FieldLocator(owner, name, descriptor string) string {
	return "f:" + MemberKey(owner, name, descriptor)
}

func optionFlags(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	flags := make([]string, 0, len(keys))
	for _, key := range keys {
		flags = append(flags, "-"+key+"="+options[key])
	}
	return flags
}
