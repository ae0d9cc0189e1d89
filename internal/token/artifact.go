package token

import (
	"fmt"
	"regexp"
	"strings"
)

type ArtifactKind int

const (
	Source ArtifactKind = iota
	RawBytecode
)

func (k ArtifactKind) String() string {
	if k == RawBytecode {
		return "bytecode"
	}
	return "source"
}

func (k ArtifactKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ArtifactKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "source":
		*k = Source
	case "bytecode":
		*k = RawBytecode
	default:
		return fmt.Errorf("unknown artifact kind %q", text)
	}
	return nil
}

// Artifact is the result of decompiling one entry. It is never mutated
// after it leaves the pipeline.
type Artifact struct {
	Entry  string       `json:"entry" cbor:"1,keyasint"`
	Source string       `json:"source" cbor:"2,keyasint"`
	Tokens []Token      `json:"tokens" cbor:"3,keyasint"`
	Kind   ArtifactKind `json:"kind" cbor:"4,keyasint"`
}

// Failed reports whether the artifact is a placeholder for a failure.
func (a Artifact) Failed() bool {
	if len(a.Tokens) != 0 {
		return false
	}
	for _, prefix := range []string{notFoundPrefix, decompileErrorPrefix, bytecodeErrorPrefix} {
		if strings.HasPrefix(a.Source, prefix) {
			return true
		}
	}
	return false
}

const (
	notFoundPrefix       = "// Class not found: "
	decompileErrorPrefix = "// Error during decompilation: "
	bytecodeErrorPrefix  = "// Error during bytecode retrieval: "
)

// NotFound is the placeholder for an entry missing from the archive.
func NotFound(entry string) Artifact {
	return Artifact{Entry: entry, Source: notFoundPrefix + entry, Tokens: []Token{}, Kind: Source}
}

// DecompileError is the placeholder for a decompiler failure.
func DecompileError(entry string, err error) Artifact {
	return Artifact{Entry: entry, Source: decompileErrorPrefix + err.Error(), Tokens: []Token{}, Kind: Source}
}

// BytecodeError is the placeholder for a failed bytecode dump.
func BytecodeError(entry string, err error) Artifact {
	return Artifact{Entry: entry, Source: bytecodeErrorPrefix + err.Error(), Tokens: []Token{}, Kind: RawBytecode}
}

// Visitor receives tokens as the decompiler writes them.
type Visitor interface {
	VisitClass(start, length int, declaration bool, name string)
	VisitField(start, length int, declaration bool, owner, name, descriptor string)
	VisitMethod(start, length int, declaration bool, owner, name, descriptor string)
	VisitParameter(start, length int, declaration bool, owner, methodName, methodDescriptor string, index int, name string)
	VisitLocal(start, length int, declaration bool, owner, methodName, methodDescriptor string, index int, name string)
}

// Collector is a Visitor that appends every token it sees. Parameter
// and local tokens keep the variable name but not the method identity.
type Collector struct {
	Tokens []Token
}

func (c *Collector) VisitClass(start, length int, declaration bool, name string) {
	c.Tokens = append(c.Tokens, Token{Kind: Class, Start: start, Length: length, Owner: name, Declaration: declaration})
}

func (c *Collector) VisitField(start, length int, declaration bool, owner, name, descriptor string) {
	c.Tokens = append(c.Tokens, Token{Kind: Field, Start: start, Length: length, Owner: owner, Declaration: declaration, Name: name, Descriptor: descriptor})
}

func (c *Collector) VisitMethod(start, length int, declaration bool, owner, name, descriptor string) {
	c.Tokens = append(c.Tokens, Token{Kind: Method, Start: start, Length: length, Owner: owner, Declaration: declaration, Name: name, Descriptor: descriptor})
}

func (c *Collector) VisitParameter(start, length int, declaration bool, owner, _, _ string, _ int, name string) {
	c.Tokens = append(c.Tokens, Token{Kind: Parameter, Start: start, Length: length, Owner: owner, Declaration: declaration, Name: name})
}

func (c *Collector) VisitLocal(start, length int, declaration bool, owner, _, _ string, _ int, name string) {
	c.Tokens = append(c.Tokens, Token{Kind: Local, Start: start, Length: length, Owner: owner, Declaration: declaration, Name: name})
}

// RE2 has no negative lookahead. "import static a.B.c;" never matches
// because the path must be followed by ';', and a bare "static" path is
// discarded in ImportTokens.
var importPattern = regexp.MustCompile(`(?m)^\s*import\s+([^\s;]+)\s*;`)

// ImportTokens synthesizes a non-declaration class token for every
// single-type import in source. The token spans the simple class name
// and carries the slash-separated import path as its owner.
func ImportTokens(source string) []Token {
	var out []Token
	for _, loc := range importPattern.FindAllStringSubmatchIndex(source, -1) {
		path := source[loc[2]:loc[3]]
		if path == "static" || strings.HasPrefix(path, "static.") {
			continue
		}
		importPath := strings.ReplaceAll(path, ".", "/")
		if strings.HasSuffix(importPath, "*") {
			continue
		}
		simple := importPath[strings.LastIndex(importPath, "/")+1:]
		match := source[loc[0]:loc[1]]
		out = append(out, Token{
			Kind:   Class,
			Start:  loc[0] + strings.LastIndex(match, simple),
			Length: len(importPath) - strings.LastIndex(importPath, simple),
			Owner:  importPath,
		})
	}
	return out
}

// WithImports merges import tokens into the engine tokens and re-sorts.
func WithImports(source string, tokens []Token) []Token {
	merged := make([]Token, 0, len(tokens)+8)
	merged = append(merged, tokens...)
	merged = append(merged, ImportTokens(source)...)
	Sort(merged)
	return merged
}
