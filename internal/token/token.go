// Package token defines the annotated-reference representation produced
// when an archive entry is decompiled.
package token

import (
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	Class Kind = iota
	Field
	Method
	Parameter
	Local
)

var kindNames = [...]string{"class", "field", "method", "parameter", "local"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown token kind %q", text)
}

// Token marks a span of generated source as a reference to, or the
// declaration of, a class, member or variable. Owner is the internal
// class name (slash separated) the symbol belongs to.
type Token struct {
	Kind        Kind   `json:"kind" cbor:"1,keyasint"`
	Start       int    `json:"start" cbor:"2,keyasint"`
	Length      int    `json:"length" cbor:"3,keyasint"`
	Owner       string `json:"owner" cbor:"4,keyasint"`
	Declaration bool   `json:"declaration,omitempty" cbor:"5,keyasint,omitempty"`
	Name        string `json:"name,omitempty" cbor:"6,keyasint,omitempty"`
	Descriptor  string `json:"descriptor,omitempty" cbor:"7,keyasint,omitempty"`
}

func (t Token) End() int { return t.Start + t.Length }

// Contains reports whether offset falls inside the token span.
func (t Token) Contains(offset int) bool {
	return offset >= t.Start && offset < t.End()
}

// Target is the navigation identity of a token: the class name for
// class tokens, owner:name:descriptor for members, "" otherwise.
func (t Token) Target() string {
	switch t.Kind {
	case Class:
		return t.Owner
	case Field, Method:
		return t.Owner + ":" + t.Name + ":" + t.Descriptor
	default:
		return ""
	}
}

// Sort orders tokens ascending by start. The sort is stable, so tokens
// sharing a start keep their emission order.
func Sort(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})
}

// IsSorted reports whether tokens are ascending by start.
func IsSorted(tokens []Token) bool {
	return sort.SliceIsSorted(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})
}

// At returns the first token in scan order whose span contains offset.
// Tokens must be sorted by start; the scan stops once a token starts
// past offset. Nested spans are not ranked by length.
func At(tokens []Token, offset int) (Token, bool) {
	for _, tok := range tokens {
		if tok.Start > offset {
			break
		}
		if tok.Contains(offset) {
			return tok, true
		}
	}
	return Token{}, false
}

// Declaration finds the declaring token for target, matching classes by
// name, methods by name and descriptor, and fields by name.
func Declaration(tokens []Token, kind Kind, owner, name, descriptor string) (Token, bool) {
	for _, tok := range tokens {
		if !tok.Declaration || tok.Kind != kind || tok.Owner != owner {
			continue
		}
		switch kind {
		case Method:
			if tok.Name == name && tok.Descriptor == descriptor {
				return tok, true
			}
		case Field:
			if tok.Name == name {
				return tok, true
			}
		default:
			return tok, true
		}
	}
	return Token{}, false
}

// Location converts a token start into a 1-based line and column.
func Location(source string, tok Token) (line, column int) {
	start := tok.Start
	if start > len(source) {
		start = len(source)
	}
	prefix := source[:start]
	line = strings.Count(prefix, "\n") + 1
	column = start - strings.LastIndex(prefix, "\n")
	return line, column
}
