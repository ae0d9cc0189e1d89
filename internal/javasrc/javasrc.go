// Package javasrc walks generated Java source with tree-sitter and
// reports declarations and type references as tokens.
package javasrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/morozRed/classlens/internal/token"
)

// Parser wraps a tree-sitter parser. It is not safe for concurrent use.
type Parser struct {
	parser *sitter.Parser
}

func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &Parser{parser: p}
}

// Walk parses content and reports tokens to v. known holds the internal
// names of classes that type references may resolve to; references to
// anything else are not reported.
func (p *Parser) Walk(ctx context.Context, content []byte, known map[string]bool, v token.Visitor) error {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("failed to parse java source: %w", err)
	}
	defer tree.Close()

	w := &walker{
		content:  content,
		visitor:  v,
		known:    known,
		imports:  make(map[string]string),
		declared: make(map[string]string),
	}
	root := tree.RootNode()
	w.collect(root, "")
	w.emit(root, scope{})
	return nil
}

type walker struct {
	content  []byte
	visitor  token.Visitor
	known    map[string]bool
	pkg      string
	imports  map[string]string // simple name -> internal name
	declared map[string]string // simple name -> internal name, this file
}

// scope is the enclosing class and method of a node.
type scope struct {
	owner      string
	method     string
	descriptor string
	slots      *slots
}

// slots numbers parameters and locals within one method.
type slots struct {
	params int
	locals int
}

func isTypeDeclaration(kind string) bool {
	switch kind {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return true
	}
	return false
}

// collect records the package, imports and every declared class so
// references to nested classes declared later in the file resolve.
func (w *walker) collect(node *sitter.Node, owner string) {
	switch node.Type() {
	case "package_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
				w.pkg = strings.ReplaceAll(child.Content(w.content), ".", "/")
			}
		}
		return
	case "import_declaration":
		w.collectImport(node)
		return
	}

	if isTypeDeclaration(node.Type()) {
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			name := nameNode.Content(w.content)
			owner = w.qualify(owner, name)
			w.declared[name] = owner
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.collect(node.NamedChild(i), owner)
	}
}

func (w *walker) collectImport(node *sitter.Node) {
	text := strings.TrimSpace(node.Content(w.content))
	text = strings.TrimSuffix(strings.TrimPrefix(text, "import"), ";")
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "static ") || strings.HasSuffix(text, "*") {
		return
	}
	path := strings.ReplaceAll(text, ".", "/")
	simple := path[strings.LastIndex(path, "/")+1:]
	// Nested classes are imported as a.B.C but live in a/B$C.
	w.imports[simple] = w.nestedForm(path)
}

// nestedForm rewrites a slash path to the Outer$Inner form when the
// plain form is not a known class but a $-joined prefix is.
func (w *walker) nestedForm(path string) string {
	if w.known[path] {
		return path
	}
	parts := strings.Split(path, "/")
	for split := len(parts) - 1; split > 0; split-- {
		candidate := strings.Join(parts[:split], "/") + "$" + strings.Join(parts[split:], "$")
		if w.known[candidate] {
			return candidate
		}
	}
	return path
}

func (w *walker) qualify(owner, name string) string {
	if owner != "" {
		return owner + "$" + name
	}
	if w.pkg == "" {
		return name
	}
	return w.pkg + "/" + name
}

// resolve maps a simple type name to an internal class name.
func (w *walker) resolve(simple string) (string, bool) {
	if name, ok := w.declared[simple]; ok {
		return name, true
	}
	if name, ok := w.imports[simple]; ok {
		return name, true
	}
	candidate := simple
	if w.pkg != "" {
		candidate = w.pkg + "/" + simple
	}
	if w.known[candidate] {
		return candidate, true
	}
	return "", false
}

func (w *walker) span(node *sitter.Node) (int, int) {
	start := int(node.StartByte())
	return start, int(node.EndByte()) - start
}

func (w *walker) emit(node *sitter.Node, s scope) {
	switch node.Type() {
	case "package_declaration", "import_declaration":
		return

	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			break
		}
		name := nameNode.Content(w.content)
		owner := w.qualify(s.owner, name)
		start, length := w.span(nameNode)
		w.visitor.VisitClass(start, length, true, owner)
		inner := scope{owner: owner}
		if node.Type() == "record_declaration" {
			w.emitRecordComponents(node, inner)
		}
		w.emitChildren(node, inner, nameNode)
		return

	case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			break
		}
		name := nameNode.Content(w.content)
		if node.Type() != "method_declaration" {
			name = "<init>"
		}
		descriptor := w.methodDescriptor(node)
		start, length := w.span(nameNode)
		w.visitor.VisitMethod(start, length, true, s.owner, name, descriptor)
		inner := scope{owner: s.owner, method: name, descriptor: descriptor, slots: &slots{}}
		w.emitChildren(node, inner, nameNode)
		return

	case "formal_parameter", "spread_parameter":
		if nameNode := parameterName(node); nameNode != nil && s.method != "" {
			start, length := w.span(nameNode)
			w.visitor.VisitParameter(start, length, true, s.owner, s.method, s.descriptor, s.slots.params, nameNode.Content(w.content))
			s.slots.params++
			w.emitTypes(node, s)
			return
		}

	case "field_declaration", "constant_declaration":
		typeNode := node.ChildByFieldName("type")
		for _, declarator := range namedChildrenOfType(node, "variable_declarator") {
			nameNode := declarator.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			descriptor := ""
			if typeNode != nil {
				descriptor = w.typeDescriptor(typeNode.Content(w.content))
			}
			start, length := w.span(nameNode)
			w.visitor.VisitField(start, length, true, s.owner, nameNode.Content(w.content), descriptor)
		}
		w.emitDeclaratorValues(node, s)
		return

	case "enum_constant":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			start, length := w.span(nameNode)
			w.visitor.VisitField(start, length, true, s.owner, nameNode.Content(w.content), "L"+s.owner+";")
			w.emitChildren(node, s, nameNode)
			return
		}

	case "local_variable_declaration":
		if s.method != "" {
			for _, declarator := range namedChildrenOfType(node, "variable_declarator") {
				nameNode := declarator.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				start, length := w.span(nameNode)
				w.visitor.VisitLocal(start, length, true, s.owner, s.method, s.descriptor, s.slots.locals, nameNode.Content(w.content))
				s.slots.locals++
			}
			w.emitDeclaratorValues(node, s)
			return
		}

	case "type_identifier":
		if name, ok := w.resolve(node.Content(w.content)); ok && w.known[name] {
			start, length := w.span(node)
			w.visitor.VisitClass(start, length, false, name)
		}
		return
	}

	w.emitChildren(node, s, nil)
}

func (w *walker) emitChildren(node *sitter.Node, s scope, skip *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if skip != nil && child.StartByte() == skip.StartByte() && child.EndByte() == skip.EndByte() {
			continue
		}
		w.emit(child, s)
	}
}

// emitTypes reports type references inside a declaration without
// re-reporting its declared names.
func (w *walker) emitTypes(node *sitter.Node, s scope) {
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		w.emit(typeNode, s)
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "variable_declarator" && child.Type() != "identifier" {
			w.emit(child, s)
		}
	}
}

// emitDeclaratorValues walks the declared type and initializer
// expressions of a field or local declaration.
func (w *walker) emitDeclaratorValues(node *sitter.Node, s scope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "variable_declarator" {
			w.emit(child, s)
			continue
		}
		if value := child.ChildByFieldName("value"); value != nil {
			w.emit(value, s)
		}
	}
}

func (w *walker) emitRecordComponents(node *sitter.Node, s scope) {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for _, param := range namedChildrenOfType(params, "formal_parameter") {
		nameNode := param.ChildByFieldName("name")
		typeNode := param.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		start, length := w.span(nameNode)
		w.visitor.VisitField(start, length, true, s.owner, nameNode.Content(w.content), w.typeDescriptor(typeNode.Content(w.content)))
	}
}

func parameterName(node *sitter.Node) *sitter.Node {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nameNode
	}
	for _, declarator := range namedChildrenOfType(node, "variable_declarator") {
		if nameNode := declarator.ChildByFieldName("name"); nameNode != nil {
			return nameNode
		}
	}
	return nil
}

func namedChildrenOfType(node *sitter.Node, kind string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == kind {
			out = append(out, child)
		}
	}
	return out
}
