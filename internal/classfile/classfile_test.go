package classfile_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/morozRed/classlens/internal/classfile"
	"github.com/morozRed/classlens/internal/classfile/classfiletest"
)

func TestParseHeaderReadsSupertypes(t *testing.T) {
	data := classfiletest.Build(classfiletest.Class{
		Name:        "net/example/C",
		Super:       "net/example/B",
		Interfaces:  []string{"net/example/I", "java/io/Serializable"},
		AccessFlags: classfile.AccPublic | classfile.AccAbstract,
		FieldRefs:   []classfiletest.Ref{{Owner: "net/example/B", Name: "f", Descriptor: "I"}},
	})

	header, err := classfile.ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if header.Name != "net/example/C" {
		t.Fatalf("expected name net/example/C, got %q", header.Name)
	}
	if header.SuperName != "net/example/B" {
		t.Fatalf("expected super net/example/B, got %q", header.SuperName)
	}
	want := []string{"net/example/I", "java/io/Serializable"}
	if !reflect.DeepEqual(header.Interfaces, want) {
		t.Fatalf("expected interfaces %v, got %v", want, header.Interfaces)
	}
	if !classfile.IsAbstract(header.AccessFlags) || classfile.IsInterface(header.AccessFlags) {
		t.Fatalf("unexpected access flags %#x", header.AccessFlags)
	}
	if header.Major != 65 {
		t.Fatalf("expected major 65, got %d", header.Major)
	}
}

func TestParseHeaderWithoutSuper(t *testing.T) {
	header, err := classfile.ParseHeader(classfiletest.Build(classfiletest.Class{Name: "java/lang/Object"}))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if header.SuperName != "" {
		t.Fatalf("expected no super class, got %q", header.SuperName)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	_, err := classfile.ParseHeader([]byte{0xCA, 0xFE, 0xD0, 0x0D, 0, 0, 0, 0})
	if !errors.Is(err, classfile.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestParseHeaderRejectsTruncatedInput(t *testing.T) {
	data := classfiletest.Build(classfiletest.Class{Name: "A", Super: "java/lang/Object"})
	_, err := classfile.ParseHeader(data[:len(data)-12])
	if !errors.Is(err, classfile.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestConstantPoolResolvesMembers(t *testing.T) {
	data := classfiletest.Build(classfiletest.Class{
		Name:       "A",
		Super:      "java/lang/Object",
		MethodRefs: []classfiletest.Ref{{Owner: "B", Name: "run", Descriptor: "()V"}},
	})
	header, err := classfile.ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	var members []classfile.Member
	for i := 1; i < header.Pool.Len(); i++ {
		c, ok := header.Pool.At(uint16(i))
		if !ok || c.Tag != classfile.TagMethodref {
			continue
		}
		member, err := header.Pool.Member(uint16(i))
		if err != nil {
			t.Fatalf("Member(%d): %v", i, err)
		}
		members = append(members, member)
	}
	want := []classfile.Member{{Tag: classfile.TagMethodref, Owner: "B", Name: "run", Descriptor: "()V"}}
	if !reflect.DeepEqual(members, want) {
		t.Fatalf("expected %v, got %v", want, members)
	}
}
