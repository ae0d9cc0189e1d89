package javasrc

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

// methodDescriptor builds a JVM descriptor from the declared parameter
// and return types. Type variables erase to java/lang/Object.
func (w *walker) methodDescriptor(node *sitter.Node) string {
	var b strings.Builder
	b.WriteByte('(')
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			param := params.NamedChild(i)
			switch param.Type() {
			case "formal_parameter":
				typeNode := param.ChildByFieldName("type")
				if typeNode == nil {
					continue
				}
				text := typeNode.Content(w.content)
				if dims := param.ChildByFieldName("dimensions"); dims != nil {
					text += dims.Content(w.content)
				}
				b.WriteString(w.typeDescriptor(text))
			case "spread_parameter":
				for j := 0; j < int(param.NamedChildCount()); j++ {
					child := param.NamedChild(j)
					if child.Type() == "modifiers" || child.Type() == "variable_declarator" {
						continue
					}
					b.WriteString("[" + w.typeDescriptor(child.Content(w.content)))
					break
				}
			}
		}
	}
	b.WriteByte(')')
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		text := typeNode.Content(w.content)
		if dims := node.ChildByFieldName("dimensions"); dims != nil {
			text += dims.Content(w.content)
		}
		b.WriteString(w.typeDescriptor(text))
	} else {
		b.WriteByte('V')
	}
	return b.String()
}

// typeDescriptor converts a source type such as "List<String>[]" into
// a field descriptor.
func (w *walker) typeDescriptor(text string) string {
	text = stripGenerics(text)
	text = stripAnnotations(text)
	dims := 0
	for {
		trimmed := strings.TrimSpace(text)
		switch {
		case strings.HasSuffix(trimmed, "[]"):
			text = strings.TrimSuffix(trimmed, "[]")
			dims++
			continue
		case strings.HasSuffix(trimmed, "..."):
			text = strings.TrimSuffix(trimmed, "...")
			dims++
			continue
		}
		text = trimmed
		break
	}
	text = strings.Join(strings.Fields(text), "")

	prefix := strings.Repeat("[", dims)
	if d, ok := primitiveDescriptors[text]; ok {
		return prefix + d
	}
	return prefix + "L" + w.internalName(text) + ";"
}

func (w *walker) internalName(text string) string {
	if !strings.Contains(text, ".") {
		if name, ok := w.resolve(text); ok {
			return name
		}
		if len(text) == 1 && strings.ToUpper(text) == text {
			return "java/lang/Object"
		}
		return "java/lang/" + text
	}
	// Outer.Inner where Outer resolves locally.
	head, rest, _ := strings.Cut(text, ".")
	if name, ok := w.resolve(head); ok {
		return name + "$" + strings.ReplaceAll(rest, ".", "$")
	}
	return w.nestedForm(strings.ReplaceAll(text, ".", "/"))
}

func stripGenerics(text string) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripAnnotations(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, field := range fields {
		if strings.HasPrefix(field, "@") {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}
