package analyzer

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"codewarden/internal/types"
)

// PythonParser extracts entities from Python sources via Tree-sitter.
// Each file yields a module entity; classes, functions, and methods hang off
// it through contains relations. Class bases become inherits relations,
// import statements become imports relations, and call expressions become
// calls relations resolved in the second pass.
type PythonParser struct {
	parser *sitter.Parser
}

// NewPythonParser creates a Python parser.
func NewPythonParser() *PythonParser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &PythonParser{parser: p}
}

func (p *PythonParser) Language() string { return "python" }

func (p *PythonParser) Extensions() []string { return []string{".py"} }

// ParseFile extracts the module, its classes/functions/methods, and their
// relations from one Python file.
func (p *PythonParser) ParseFile(relPath string, content []byte) (*FileResult, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &FileResult{FilePath: relPath}
	root := tree.RootNode()

	moduleName := pythonModuleName(relPath)
	module := &types.CodeEntity{
		EntityID:      entityID(relPath, types.KindModule, moduleName, 1),
		Kind:          types.KindModule,
		Name:          filepath.Base(moduleName),
		QualifiedName: moduleName,
		FilePath:      relPath,
		LineStart:     1,
		LineEnd:       int(root.EndPoint().Row) + 1,
		Docstring:     pythonDocstring(root, content),
	}
	result.Entities = append(result.Entities, module)

	w := &pythonWalker{
		content: content,
		relPath: relPath,
		module:  module,
		result:  result,
	}
	w.walk(root, module, moduleName)
	return result, nil
}

type pythonWalker struct {
	content []byte
	relPath string
	module  *types.CodeEntity
	result  *FileResult
}

func (w *pythonWalker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

// walk visits named children, emitting entities under the given parent with
// the dotted qualified-name prefix.
func (w *pythonWalker) walk(node *sitter.Node, parent *types.CodeEntity, prefix string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			w.handleClass(child, parent, prefix)
		case "function_definition":
			w.handleFunction(child, parent, prefix)
		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				switch inner.Type() {
				case "class_definition":
					w.handleClass(inner, parent, prefix)
				case "function_definition":
					w.handleFunction(inner, parent, prefix)
				}
			}
		case "import_statement", "import_from_statement":
			w.handleImport(child)
		case "call":
			w.handleCall(child, parent)
		default:
			w.walk(child, parent, prefix)
		}
	}
}

func (w *pythonWalker) handleClass(node *sitter.Node, parent *types.CodeEntity, prefix string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	lineStart := int(node.StartPoint().Row) + 1
	qualified := prefix + "." + name

	class := &types.CodeEntity{
		EntityID:      entityID(w.relPath, types.KindClass, name, lineStart),
		Kind:          types.KindClass,
		Name:          name,
		QualifiedName: qualified,
		FilePath:      w.relPath,
		LineStart:     lineStart,
		LineEnd:       int(node.EndPoint().Row) + 1,
		Signature:     firstLine(w.text(node)),
		ParentID:      parent.EntityID,
	}
	if body := node.ChildByFieldName("body"); body != nil {
		class.Docstring = pythonDocstring(body, w.content)
	}
	w.result.Entities = append(w.result.Entities, class)
	w.contains(parent, class)

	// Bases become inherits edges resolved later by name.
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			base := supers.NamedChild(i)
			switch base.Type() {
			case "identifier", "attribute":
				w.result.Relations = append(w.result.Relations, &rawRelation{
					SourceID: class.EntityID,
					Target:   w.text(base),
					Kind:     types.RelInherits,
					FilePath: w.relPath,
				})
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		w.walk(body, class, qualified)
	}
}

func (w *pythonWalker) handleFunction(node *sitter.Node, parent *types.CodeEntity, prefix string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	lineStart := int(node.StartPoint().Row) + 1

	kind := types.KindFunction
	if parent.Kind == types.KindClass {
		kind = types.KindMethod
	}

	fn := &types.CodeEntity{
		EntityID:      entityID(w.relPath, kind, name, lineStart),
		Kind:          kind,
		Name:          name,
		QualifiedName: prefix + "." + name,
		FilePath:      w.relPath,
		LineStart:     lineStart,
		LineEnd:       int(node.EndPoint().Row) + 1,
		Signature:     pythonSignature(node, w.content),
		ParentID:      parent.EntityID,
	}
	if body := node.ChildByFieldName("body"); body != nil {
		fn.Docstring = pythonDocstring(body, w.content)
	}
	w.result.Entities = append(w.result.Entities, fn)
	w.contains(parent, fn)

	if body := node.ChildByFieldName("body"); body != nil {
		w.walkCalls(body, fn)
	}
}

// walkCalls collects call expressions inside a function body without
// descending into nested definitions (those emit their own calls).
func (w *pythonWalker) walkCalls(node *sitter.Node, owner *types.CodeEntity) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			w.handleFunction(child, owner, owner.QualifiedName)
			continue
		case "class_definition":
			w.handleClass(child, owner, owner.QualifiedName)
			continue
		case "call":
			w.handleCall(child, owner)
		}
		w.walkCalls(child, owner)
	}
}

func (w *pythonWalker) handleCall(node *sitter.Node, owner *types.CodeEntity) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	var target string
	switch fn.Type() {
	case "identifier":
		target = w.text(fn)
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			target = w.text(attr)
		}
	}
	if target == "" || pythonBuiltins[target] {
		return
	}
	w.result.Relations = append(w.result.Relations, &rawRelation{
		SourceID: owner.EntityID,
		Target:   target,
		Kind:     types.RelCalls,
		FilePath: w.relPath,
	})
}

func (w *pythonWalker) handleImport(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		// import a.b [as c], possibly several comma-separated
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				w.emitImport(w.text(child))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					w.emitImport(w.text(name))
				}
			}
		}
	case "import_from_statement":
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			w.emitImport(w.text(mod))
		}
	}
}

func (w *pythonWalker) emitImport(target string) {
	if target == "" {
		return
	}
	w.result.Relations = append(w.result.Relations, &rawRelation{
		SourceID: w.module.EntityID,
		Target:   target,
		Kind:     types.RelImports,
		FilePath: w.relPath,
	})
}

func (w *pythonWalker) contains(parent, child *types.CodeEntity) {
	w.result.Relations = append(w.result.Relations, &rawRelation{
		SourceID: parent.EntityID,
		TargetID: child.EntityID,
		Target:   child.QualifiedName,
		Kind:     types.RelContains,
		FilePath: w.relPath,
		Resolved: true,
	})
}

// pythonModuleName converts src/pkg/mod.py to src.pkg.mod.
func pythonModuleName(relPath string) string {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), ".py")
	p = strings.TrimSuffix(p, "/__init__")
	return strings.ReplaceAll(p, "/", ".")
}

// pythonSignature reconstructs name(params) -> ret from the def node.
func pythonSignature(node *sitter.Node, content []byte) string {
	name := node.ChildByFieldName("name")
	params := node.ChildByFieldName("parameters")
	if name == nil || params == nil {
		return ""
	}
	sig := string(content[name.StartByte():name.EndByte()]) +
		string(content[params.StartByte():params.EndByte()])
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + string(content[ret.StartByte():ret.EndByte()])
	}
	return sig
}

// pythonDocstring returns the leading string literal of a module or body.
func pythonDocstring(body *sitter.Node, content []byte) string {
	if body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return trimPythonString(string(content[str.StartByte():str.EndByte()]))
}

func trimPythonString(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// pythonBuiltins are call targets too common to be useful as graph edges.
var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true,
	"float": true, "bool": true, "list": true, "dict": true, "set": true,
	"tuple": true, "isinstance": true, "super": true, "enumerate": true,
	"zip": true, "map": true, "filter": true, "sorted": true, "open": true,
	"getattr": true, "setattr": true, "hasattr": true, "type": true,
	"repr": true, "format": true, "append": true, "get": true, "items": true,
	"keys": true, "values": true, "join": true, "split": true, "strip": true,
}
