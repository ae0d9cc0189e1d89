// Package classfile reads the fixed-format header of a JVM class file:
// magic, version, constant pool, access flags, this/super class and
// interfaces. Fields, methods and attributes are never decoded.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const Magic = 0xCAFEBABE

const (
	AccPublic     = 0x0001
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
	AccModule     = 0x8000
)

var (
	ErrBadMagic  = errors.New("invalid class file magic number")
	ErrTruncated = errors.New("class file truncated")
)

// Header is the decoded class header.
type Header struct {
	Name        string
	SuperName   string // empty for java/lang/Object and module-info
	Interfaces  []string
	AccessFlags uint16
	Major       uint16
	Minor       uint16
	Pool        *ConstantPool
}

func IsInterface(flags uint16) bool { return flags&AccInterface != 0 }

func IsAbstract(flags uint16) bool { return flags&AccAbstract != 0 }

func IsEnum(flags uint16) bool { return flags&AccEnum != 0 }

// ParseHeader decodes everything up to and including the interfaces
// table and stops there.
func ParseHeader(data []byte) (*Header, error) {
	r := &reader{data: data}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}

	minor, err := r.u2()
	if err != nil {
		return nil, err
	}
	major, err := r.u2()
	if err != nil {
		return nil, err
	}

	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	flags, err := r.u2()
	if err != nil {
		return nil, err
	}
	thisIndex, err := r.u2()
	if err != nil {
		return nil, err
	}
	name, err := pool.ClassName(thisIndex)
	if err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}

	superIndex, err := r.u2()
	if err != nil {
		return nil, err
	}
	superName := ""
	if superIndex != 0 {
		superName, err = pool.ClassName(superIndex)
		if err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	interfaces := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		index, err := r.u2()
		if err != nil {
			return nil, err
		}
		iface, err := pool.ClassName(index)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		interfaces = append(interfaces, iface)
	}

	return &Header{
		Name:        name,
		SuperName:   superName,
		Interfaces:  interfaces,
		AccessFlags: flags,
		Major:       major,
		Minor:       minor,
		Pool:        pool,
	}, nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) need(n int) error {
	if r.off+n > len(r.data) {
		return fmt.Errorf("%w at offset %d (need %d bytes)", ErrTruncated, r.off, n)
	}
	return nil
}

func (r *reader) u1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u8() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v, nil
}

func float32From(bits uint32) float32 { return math.Float32frombits(bits) }

func float64From(bits uint64) float64 { return math.Float64frombits(bits) }
