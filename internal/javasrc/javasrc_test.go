package javasrc

import (
	"context"
	"strings"
	"testing"

	"github.com/morozRed/classlens/internal/token"
)

const sample = `package net.example;

import net.example.util.Helper;
import java.util.List;

public class Sample extends Base {
    private int count;
    private Helper helper;

    public Sample(Helper helper) {
        this.helper = helper;
    }

    public List<String> names(int limit, String... extra) {
        Inner inner = new Inner();
        return null;
    }

    static class Inner {
    }

    enum Mode { ON, OFF }
}
`

func walkSample(t *testing.T) ([]token.Token, string) {
	t.Helper()
	known := map[string]bool{
		"net/example/Sample":       true,
		"net/example/Sample$Inner": true,
		"net/example/Sample$Mode":  true,
		"net/example/Base":         true,
		"net/example/util/Helper":  true,
	}
	collector := &token.Collector{}
	if err := NewParser().Walk(context.Background(), []byte(sample), known, collector); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return collector.Tokens, sample
}

func find(tokens []token.Token, source string, kind token.Kind, text string, declaration bool) (token.Token, bool) {
	for _, tok := range tokens {
		if tok.Kind == kind && tok.Declaration == declaration && source[tok.Start:tok.End()] == text {
			return tok, true
		}
	}
	return token.Token{}, false
}

func TestWalkReportsClassDeclarations(t *testing.T) {
	tokens, source := walkSample(t)

	outer, ok := find(tokens, source, token.Class, "Sample", true)
	if !ok || outer.Owner != "net/example/Sample" {
		t.Fatalf("expected Sample declaration, got %+v ok=%v", outer, ok)
	}
	inner, ok := find(tokens, source, token.Class, "Inner", true)
	if !ok || inner.Owner != "net/example/Sample$Inner" {
		t.Fatalf("expected nested Inner declaration, got %+v ok=%v", inner, ok)
	}
	mode, ok := find(tokens, source, token.Class, "Mode", true)
	if !ok || mode.Owner != "net/example/Sample$Mode" {
		t.Fatalf("expected enum declaration, got %+v ok=%v", mode, ok)
	}
}

func TestWalkReportsMembers(t *testing.T) {
	tokens, source := walkSample(t)

	count, ok := find(tokens, source, token.Field, "count", true)
	if !ok || count.Descriptor != "I" || count.Owner != "net/example/Sample" {
		t.Fatalf("unexpected count field %+v ok=%v", count, ok)
	}
	helper, ok := find(tokens, source, token.Field, "helper", true)
	if !ok || helper.Descriptor != "Lnet/example/util/Helper;" {
		t.Fatalf("unexpected helper field %+v ok=%v", helper, ok)
	}
	names, ok := find(tokens, source, token.Method, "names", true)
	if !ok || names.Descriptor != "(I[Ljava/lang/String;)Ljava/util/List;" {
		t.Fatalf("unexpected names method %+v ok=%v", names, ok)
	}
	ctor, ok := find(tokens, source, token.Method, "Sample", true)
	if !ok || ctor.Name != "<init>" || ctor.Descriptor != "(Lnet/example/util/Helper;)V" {
		t.Fatalf("unexpected constructor %+v ok=%v", ctor, ok)
	}
	if on, ok := find(tokens, source, token.Field, "ON", true); !ok || on.Owner != "net/example/Sample$Mode" {
		t.Fatalf("unexpected enum constant %+v ok=%v", on, ok)
	}
}

func TestWalkReportsVariables(t *testing.T) {
	tokens, source := walkSample(t)

	if _, ok := find(tokens, source, token.Parameter, "limit", true); !ok {
		t.Fatalf("expected limit parameter")
	}
	if _, ok := find(tokens, source, token.Parameter, "extra", true); !ok {
		t.Fatalf("expected extra parameter")
	}
	if _, ok := find(tokens, source, token.Local, "inner", true); !ok {
		t.Fatalf("expected inner local")
	}
}

func TestWalkResolvesTypeReferences(t *testing.T) {
	tokens, source := walkSample(t)

	base, ok := find(tokens, source, token.Class, "Base", false)
	if !ok || base.Owner != "net/example/Base" {
		t.Fatalf("expected Base reference, got %+v ok=%v", base, ok)
	}
	refs := 0
	for _, tok := range tokens {
		if tok.Kind == token.Class && !tok.Declaration && tok.Owner == "net/example/Sample$Inner" {
			refs++
		}
	}
	if refs != 2 {
		t.Fatalf("expected 2 Inner references, got %d", refs)
	}
	for _, tok := range tokens {
		if tok.Kind == token.Class && strings.HasPrefix(tok.Owner, "java/") {
			t.Fatalf("expected no tokens for classes outside the archive, got %+v", tok)
		}
	}
}
