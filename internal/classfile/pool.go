package classfile

import (
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Constant pool tags.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Constant is one constant pool slot. Index fields A and B hold the
// referenced slot numbers for tags that point at other entries.
type Constant struct {
	Tag   uint8
	Text  string
	Int   int64
	Float float64
	A     uint16
	B     uint16
	Kind  uint8 // reference kind for MethodHandle
}

// ConstantPool is 1-indexed; slot 0 and the second slot of a
// Long/Double are zero Constants with Tag 0.
type ConstantPool struct {
	entries []Constant
}

// Member is a resolved Fieldref/Methodref/InterfaceMethodref.
type Member struct {
	Tag        uint8
	Owner      string
	Name       string
	Descriptor string
}

// modifiedUTF8 decodes a CONSTANT_Utf8 payload. NUL is stored as C0 80
// and supplementary characters as two three-byte surrogates; standard
// four-byte sequences are accepted too.
func modifiedUTF8(raw []byte) string {
	plain := true
	for _, b := range raw {
		if b >= 0x80 {
			plain = false
			break
		}
	}
	if plain {
		return string(raw)
	}

	units := make([]uint16, 0, len(raw))
	for i := 0; i < len(raw); {
		b := raw[i]
		switch {
		case b < 0x80:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0 && i+1 < len(raw) && raw[i+1]&0xC0 == 0x80:
			units = append(units, uint16(b&0x1F)<<6|uint16(raw[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0 && i+2 < len(raw) && raw[i+1]&0xC0 == 0x80 && raw[i+2]&0xC0 == 0x80:
			units = append(units, uint16(b&0x0F)<<12|uint16(raw[i+1]&0x3F)<<6|uint16(raw[i+2]&0x3F))
			i += 3
		default:
			r, size := utf8.DecodeRune(raw[i:])
			if hi, lo := utf16.EncodeRune(r); hi != utf8.RuneError {
				units = append(units, uint16(hi), uint16(lo))
			} else {
				units = append(units, uint16(utf8.RuneError))
			}
			i += size
		}
	}
	return string(utf16.Decode(units))
}

func readConstantPool(r *reader) (*ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	pool := &ConstantPool{entries: make([]Constant, count)}
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			c.Text = modifiedUTF8(raw)
		case TagInteger:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Int = int64(int32(v))
		case TagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			c.Float = float64(float32From(v))
		case TagLong, TagDouble:
			v, err := r.u8()
			if err != nil {
				return nil, err
			}
			if tag == TagLong {
				c.Int = int64(v)
			} else {
				c.Float = float64From(v)
			}
			pool.entries[i] = c
			// Long and Double occupy two slots.
			i++
			continue
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			c.A = v
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			a, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.u2()
			if err != nil {
				return nil, err
			}
			c.A, c.B = a, b
		case TagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return nil, err
			}
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			c.Kind, c.A = kind, v
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at slot %d", tag, i)
		}
		pool.entries[i] = c
	}
	return pool, nil
}

// Len returns the constant_pool_count value (one more than the highest slot).
func (p *ConstantPool) Len() int { return len(p.entries) }

// At returns the constant at slot i, or false when i is out of range or
// an unused slot.
func (p *ConstantPool) At(i uint16) (Constant, bool) {
	if int(i) <= 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, false
	}
	return p.entries[i], true
}

func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, ok := p.At(i)
	if !ok || c.Tag != TagUtf8 {
		return "", fmt.Errorf("invalid UTF8 reference #%d", i)
	}
	return c.Text, nil
}

func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, ok := p.At(i)
	if !ok || c.Tag != TagClass {
		return "", fmt.Errorf("invalid class reference #%d", i)
	}
	return p.Utf8(c.A)
}

// NameAndType resolves a NameAndType slot to its name and descriptor.
func (p *ConstantPool) NameAndType(i uint16) (string, string, error) {
	c, ok := p.At(i)
	if !ok || c.Tag != TagNameAndType {
		return "", "", fmt.Errorf("invalid name-and-type reference #%d", i)
	}
	name, err := p.Utf8(c.A)
	if err != nil {
		return "", "", err
	}
	descriptor, err := p.Utf8(c.B)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// Member resolves a field or method reference.
func (p *ConstantPool) Member(i uint16) (Member, error) {
	c, ok := p.At(i)
	if !ok {
		return Member{}, fmt.Errorf("invalid member reference #%d", i)
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return Member{}, fmt.Errorf("slot #%d is not a member reference (tag %d)", i, c.Tag)
	}
	owner, err := p.ClassName(c.A)
	if err != nil {
		return Member{}, err
	}
	name, descriptor, err := p.NameAndType(c.B)
	if err != nil {
		return Member{}, err
	}
	return Member{Tag: c.Tag, Owner: owner, Name: name, Descriptor: descriptor}, nil
}

// Describe renders slot i the way javap prints constant pool lines.
func (p *ConstantPool) Describe(i uint16) string {
	c, ok := p.At(i)
	if !ok {
		return ""
	}
	switch c.Tag {
	case TagUtf8:
		return "Utf8 " + c.Text
	case TagInteger:
		return "Integer " + strconv.FormatInt(c.Int, 10)
	case TagLong:
		return "Long " + strconv.FormatInt(c.Int, 10) + "l"
	case TagFloat:
		return "Float " + strconv.FormatFloat(c.Float, 'g', -1, 32) + "f"
	case TagDouble:
		return "Double " + strconv.FormatFloat(c.Float, 'g', -1, 64) + "d"
	case TagClass:
		name, _ := p.Utf8(c.A)
		return fmt.Sprintf("Class #%d // %s", c.A, name)
	case TagString:
		text, _ := p.Utf8(c.A)
		return fmt.Sprintf("String #%d // %s", c.A, text)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		label := map[uint8]string{
			TagFieldref:           "Fieldref",
			TagMethodref:          "Methodref",
			TagInterfaceMethodref: "InterfaceMethodref",
		}[c.Tag]
		m, err := p.Member(i)
		if err != nil {
			return fmt.Sprintf("%s #%d.#%d", label, c.A, c.B)
		}
		return fmt.Sprintf("%s #%d.#%d // %s.%s:%s", label, c.A, c.B, m.Owner, m.Name, m.Descriptor)
	case TagNameAndType:
		name, descriptor, _ := p.NameAndType(i)
		return fmt.Sprintf("NameAndType #%d:#%d // %s:%s", c.A, c.B, name, descriptor)
	case TagMethodHandle:
		return fmt.Sprintf("MethodHandle %d:#%d", c.Kind, c.A)
	case TagMethodType:
		descriptor, _ := p.Utf8(c.A)
		return fmt.Sprintf("MethodType #%d // %s", c.A, descriptor)
	case TagDynamic:
		return fmt.Sprintf("Dynamic #%d:#%d", c.A, c.B)
	case TagInvokeDynamic:
		return fmt.Sprintf("InvokeDynamic #%d:#%d", c.A, c.B)
	case TagModule:
		name, _ := p.Utf8(c.A)
		return "Module " + name
	case TagPackage:
		name, _ := p.Utf8(c.A)
		return "Package " + name
	default:
		return ""
	}
}
