package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/morozRed/classlens/internal/classfile"
)

// PoolIndexer derives usage edges from the constant pool. Every edge is
// located at the referencing class (c:<this class>), since method
// bodies are never decoded.
type PoolIndexer struct {
	// Prefixes limits recorded subjects to matching class names. Empty
	// records everything.
	Prefixes []string
}

func (p *PoolIndexer) Index(ctx context.Context, data []byte, uc UsageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header, err := classfile.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	locator := ClassLocator(header.Name)
	pool := header.Pool

	for i := 1; i < pool.Len(); i++ {
		c, ok := pool.At(uint16(i))
		if !ok {
			continue
		}
		switch c.Tag {
		case classfile.TagClass:
			name, err := pool.ClassName(uint16(i))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrDecode, header.Name, err)
			}
			name = elementClass(name)
			if name == "" || name == header.Name || !p.include(name) {
				continue
			}
			uc.AddClassUsage(name, locator)
		case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
			member, err := pool.Member(uint16(i))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrDecode, header.Name, err)
			}
			owner := elementClass(member.Owner)
			if owner == "" || !p.include(owner) {
				continue
			}
			key := MemberKey(owner, member.Name, member.Descriptor)
			if member.Tag == classfile.TagFieldref {
				uc.AddFieldUsage(key, locator)
			} else {
				uc.AddMethodUsage(key, locator)
			}
		}
	}
	return nil
}

func (p *PoolIndexer) include(name string) bool {
	if len(p.Prefixes) == 0 {
		return true
	}
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// elementClass unwraps array class names: "[[La/B;" -> "a/B". Primitive
// arrays yield "".
func elementClass(name string) string {
	if !strings.HasPrefix(name, "[") {
		return name
	}
	name = strings.TrimLeft(name, "[")
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		return name[1 : len(name)-1]
	}
	return ""
}

// Dump renders the header and constant pool of every class, separated
// by blank lines.
func (p *PoolIndexer) Dump(ctx context.Context, classes [][]byte) (string, error) {
	var b strings.Builder
	for _, data := range classes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		header, err := classfile.ParseHeader(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		writeHeader(&b, header)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeHeader(b *strings.Builder, h *classfile.Header) {
	fmt.Fprintf(b, "// class version %d.%d\n", h.Major, h.Minor)
	fmt.Fprintf(b, "// access flags 0x%X\n", h.AccessFlags)

	kind := "class"
	switch {
	case h.AccessFlags&classfile.AccAnnotation != 0:
		kind = "@interface"
	case classfile.IsInterface(h.AccessFlags):
		kind = "interface"
	case classfile.IsEnum(h.AccessFlags):
		kind = "enum"
	}
	var modifiers []string
	if h.AccessFlags&classfile.AccPublic != 0 {
		modifiers = append(modifiers, "public")
	}
	if h.AccessFlags&classfile.AccFinal != 0 {
		modifiers = append(modifiers, "final")
	}
	if classfile.IsAbstract(h.AccessFlags) && !classfile.IsInterface(h.AccessFlags) {
		modifiers = append(modifiers, "abstract")
	}
	if h.AccessFlags&classfile.AccSynthetic != 0 {
		modifiers = append(modifiers, "synthetic")
	}
	modifiers = append(modifiers, kind, h.Name)
	b.WriteString(strings.Join(modifiers, " "))
	if h.SuperName != "" {
		b.WriteString(" extends " + h.SuperName)
	}
	if len(h.Interfaces) > 0 {
		b.WriteString(" implements " + strings.Join(h.Interfaces, ", "))
	}
	b.WriteString("\n\n  Constant pool:\n")

	width := len(fmt.Sprint(h.Pool.Len() - 1))
	for i := 1; i < h.Pool.Len(); i++ {
		line := h.Pool.Describe(uint16(i))
		if line == "" {
			continue
		}
		fmt.Fprintf(b, "  %*s = %s\n", width+1, fmt.Sprintf("#%d", i), line)
	}
}
