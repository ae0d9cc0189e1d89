// Package classfiletest builds minimal synthetic class files for tests.
package classfiletest

import (
	"bytes"
	"encoding/binary"

	"github.com/morozRed/classlens/internal/classfile"
)

// Ref is a member reference placed in the constant pool.
type Ref struct {
	Owner      string
	Name       string
	Descriptor string
}

// Class describes the header and constant pool content of a class.
// Fields, methods and attributes are always emitted empty.
type Class struct {
	Name        string
	Super       string
	Interfaces  []string
	AccessFlags uint16
	Uses        []string // extra CONSTANT_Class entries
	FieldRefs   []Ref
	MethodRefs  []Ref
}

type builder struct {
	pool  bytes.Buffer
	count uint16
	utf8  map[string]uint16
	class map[string]uint16
}

// Build returns the encoded class file.
func Build(c Class) []byte {
	b := &builder{count: 1, utf8: map[string]uint16{}, class: map[string]uint16{}}

	this := b.classRef(c.Name)
	var super uint16
	if c.Super != "" {
		super = b.classRef(c.Super)
	}
	interfaces := make([]uint16, 0, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		interfaces = append(interfaces, b.classRef(iface))
	}
	for _, use := range c.Uses {
		b.classRef(use)
	}
	for _, ref := range c.FieldRefs {
		b.memberRef(classfile.TagFieldref, ref)
	}
	for _, ref := range c.MethodRefs {
		b.memberRef(classfile.TagMethodref, ref)
	}
	// A long constant exercises the two-slot rule.
	b.pool.WriteByte(classfile.TagLong)
	_ = binary.Write(&b.pool, binary.BigEndian, uint64(42))
	b.count += 2

	var out bytes.Buffer
	write := func(v any) { _ = binary.Write(&out, binary.BigEndian, v) }
	write(uint32(classfile.Magic))
	write(uint16(0))
	write(uint16(65))
	write(b.count)
	out.Write(b.pool.Bytes())
	flags := c.AccessFlags
	if flags == 0 {
		flags = classfile.AccPublic | classfile.AccSuper
	}
	write(flags)
	write(this)
	write(super)
	write(uint16(len(interfaces)))
	for _, index := range interfaces {
		write(index)
	}
	write(uint16(0)) // fields
	write(uint16(0)) // methods
	write(uint16(0)) // attributes
	return out.Bytes()
}

func (b *builder) utf8Ref(s string) uint16 {
	if index, ok := b.utf8[s]; ok {
		return index
	}
	b.pool.WriteByte(classfile.TagUtf8)
	_ = binary.Write(&b.pool, binary.BigEndian, uint16(len(s)))
	b.pool.WriteString(s)
	index := b.count
	b.count++
	b.utf8[s] = index
	return index
}

func (b *builder) classRef(name string) uint16 {
	if index, ok := b.class[name]; ok {
		return index
	}
	nameIndex := b.utf8Ref(name)
	b.pool.WriteByte(classfile.TagClass)
	_ = binary.Write(&b.pool, binary.BigEndian, nameIndex)
	index := b.count
	b.count++
	b.class[name] = index
	return index
}

func (b *builder) memberRef(tag uint8, ref Ref) uint16 {
	owner := b.classRef(ref.Owner)
	name := b.utf8Ref(ref.Name)
	descriptor := b.utf8Ref(ref.Descriptor)

	b.pool.WriteByte(classfile.TagNameAndType)
	_ = binary.Write(&b.pool, binary.BigEndian, name)
	_ = binary.Write(&b.pool, binary.BigEndian, descriptor)
	nat := b.count
	b.count++

	b.pool.WriteByte(tag)
	_ = binary.Write(&b.pool, binary.BigEndian, owner)
	_ = binary.Write(&b.pool, binary.BigEndian, nat)
	index := b.count
	b.count++
	return index
}
