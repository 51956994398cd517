package analyzer

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codewarden/internal/types"
)

// TypeScriptParser extracts entities from JS/TS/JSX/TSX sources via
// Tree-sitter. Extracted kinds: class, function (declarations and arrows
// bound to identifiers), interface, type_alias, enum, and exported variables
// matching UPPER_CASE / *Schema / *Config. In JSX-capable files, functions
// returning JSX with an uppercase name (or FC-typed bindings) become
// react_component; use-prefixed identifiers become react_hook.
type TypeScriptParser struct {
	tsParser  *sitter.Parser
	tsxParser *sitter.Parser
	jsParser  *sitter.Parser
}

// NewTypeScriptParser creates a TypeScript/JavaScript parser.
func NewTypeScriptParser() *TypeScriptParser {
	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())
	tx := sitter.NewParser()
	tx.SetLanguage(tsx.GetLanguage())
	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())
	return &TypeScriptParser{tsParser: ts, tsxParser: tx, jsParser: js}
}

func (p *TypeScriptParser) Language() string { return "typescript" }

func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

// ParseFile extracts entities and relations from one JS/TS file.
func (p *TypeScriptParser) ParseFile(relPath string, content []byte) (*FileResult, error) {
	ext := strings.ToLower(filepath.Ext(relPath))
	parser := p.tsParser
	switch ext {
	case ".tsx":
		parser = p.tsxParser
	case ".js", ".jsx", ".mjs", ".cjs":
		parser = p.jsParser
	}

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &FileResult{FilePath: relPath}
	root := tree.RootNode()

	moduleName := tsModuleName(relPath)
	module := &types.CodeEntity{
		EntityID:      entityID(relPath, types.KindModule, moduleName, 1),
		Kind:          types.KindModule,
		Name:          filepath.Base(moduleName),
		QualifiedName: moduleName,
		FilePath:      relPath,
		LineStart:     1,
		LineEnd:       int(root.EndPoint().Row) + 1,
	}
	result.Entities = append(result.Entities, module)

	w := &tsWalker{
		content: content,
		relPath: relPath,
		jsxFile: ext == ".tsx" || ext == ".jsx",
		module:  module,
		result:  result,
	}
	w.walk(root, module, moduleName, false)
	return result, nil
}

type tsWalker struct {
	content []byte
	relPath string
	jsxFile bool
	module  *types.CodeEntity
	result  *FileResult
}

func (w *tsWalker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *tsWalker) walk(node *sitter.Node, parent *types.CodeEntity, prefix string, exported bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "export_statement":
			w.walk(child, parent, prefix, true)
		case "class_declaration":
			w.handleClass(child, parent, prefix)
		case "function_declaration", "generator_function_declaration":
			w.handleFunction(child, parent, prefix)
		case "interface_declaration":
			w.emitNamed(child, parent, prefix, types.KindInterface)
		case "type_alias_declaration":
			w.emitNamed(child, parent, prefix, types.KindTypeAlias)
		case "enum_declaration":
			w.emitNamed(child, parent, prefix, types.KindEnum)
		case "lexical_declaration", "variable_declaration":
			w.handleVariables(child, parent, prefix, exported)
		case "import_statement":
			w.handleImport(child)
		case "call_expression":
			w.handleRequire(child)
			w.walk(child, parent, prefix, false)
		default:
			w.walk(child, parent, prefix, exported)
		}
	}
}

func (w *tsWalker) handleClass(node *sitter.Node, parent *types.CodeEntity, prefix string) {
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
	w.result.Entities = append(w.result.Entities, class)
	w.contains(parent, class)
	w.handleHeritage(node, class)

	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member.Type() != "method_definition" {
				continue
			}
			mname := member.ChildByFieldName("name")
			if mname == nil {
				continue
			}
			name := w.text(mname)
			lineStart := int(member.StartPoint().Row) + 1
			method := &types.CodeEntity{
				EntityID:      entityID(w.relPath, types.KindMethod, name, lineStart),
				Kind:          types.KindMethod,
				Name:          name,
				QualifiedName: qualified + "." + name,
				FilePath:      w.relPath,
				LineStart:     lineStart,
				LineEnd:       int(member.EndPoint().Row) + 1,
				Signature:     firstLine(w.text(member)),
				ParentID:      class.EntityID,
			}
			w.result.Entities = append(w.result.Entities, method)
			w.contains(class, method)
		}
	}
}

// handleHeritage emits inherits and implements edges from extends/implements
// clauses.
func (w *tsWalker) handleHeritage(node *sitter.Node, class *types.CodeEntity) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			clause := child.NamedChild(j)
			kind := types.RelInherits
			switch clause.Type() {
			case "implements_clause":
				kind = types.RelImplements
			case "extends_clause":
			case "identifier", "member_expression":
				// JS grammar puts the extends target directly under the
				// heritage node
				w.result.Relations = append(w.result.Relations, &rawRelation{
					SourceID: class.EntityID,
					Target:   w.text(clause),
					Kind:     types.RelInherits,
					FilePath: w.relPath,
				})
				continue
			default:
				continue
			}
			for k := 0; k < int(clause.NamedChildCount()); k++ {
				ref := clause.NamedChild(k)
				switch ref.Type() {
				case "identifier", "member_expression", "type_identifier", "generic_type":
					target := w.text(ref)
					if idx := strings.IndexByte(target, '<'); idx > 0 {
						target = target[:idx]
					}
					w.result.Relations = append(w.result.Relations, &rawRelation{
						SourceID: class.EntityID,
						Target:   target,
						Kind:     kind,
						FilePath: w.relPath,
					})
				}
			}
		}
	}
}

func (w *tsWalker) handleFunction(node *sitter.Node, parent *types.CodeEntity, prefix string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	lineStart := int(node.StartPoint().Row) + 1
	kind := w.classifyFunction(name, node, "")
	w.emit(node, parent, prefix, kind, name, lineStart, tsSignature(node, w.content))
}

// handleVariables emits arrow/function bindings and exported constants.
func (w *tsWalker) handleVariables(node *sitter.Node, parent *types.CodeEntity, prefix string, exported bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := w.text(nameNode)
		lineStart := int(decl.StartPoint().Row) + 1
		typeText := ""
		if tn := decl.ChildByFieldName("type"); tn != nil {
			typeText = w.text(tn)
		}
		value := decl.ChildByFieldName("value")

		if value != nil && (value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function") {
			kind := w.classifyFunction(name, value, typeText)
			w.emit(decl, parent, prefix, kind, name, lineStart, firstLine(w.text(decl)))
			continue
		}
		if value != nil && value.Type() == "call_expression" {
			w.handleRequire(value)
		}
		if exported && exportableVariable(name) {
			w.emit(decl, parent, prefix, types.KindVariable, name, lineStart, firstLine(w.text(decl)))
		}
	}
}

// classifyFunction decides function vs react_component vs react_hook.
func (w *tsWalker) classifyFunction(name string, fn *sitter.Node, typeText string) types.EntityKind {
	if isHookName(name) {
		return types.KindReactHook
	}
	if fcTyped(typeText) {
		return types.KindReactComponent
	}
	if w.jsxFile && startsUpper(name) && hasJSX(fn) {
		return types.KindReactComponent
	}
	return types.KindFunction
}

func (w *tsWalker) emitNamed(node *sitter.Node, parent *types.CodeEntity, prefix string, kind types.EntityKind) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	lineStart := int(node.StartPoint().Row) + 1
	w.emit(node, parent, prefix, kind, name, lineStart, firstLine(w.text(node)))
}

func (w *tsWalker) emit(node *sitter.Node, parent *types.CodeEntity, prefix string, kind types.EntityKind, name string, lineStart int, signature string) {
	e := &types.CodeEntity{
		EntityID:      entityID(w.relPath, kind, name, lineStart),
		Kind:          kind,
		Name:          name,
		QualifiedName: prefix + "." + name,
		FilePath:      w.relPath,
		LineStart:     lineStart,
		LineEnd:       int(node.EndPoint().Row) + 1,
		Signature:     signature,
		ParentID:      parent.EntityID,
	}
	w.result.Entities = append(w.result.Entities, e)
	w.contains(parent, e)
}

func (w *tsWalker) handleImport(node *sitter.Node) {
	src := node.ChildByFieldName("source")
	if src == nil {
		return
	}
	w.emitImport(strings.Trim(w.text(src), `"'`))
}

// handleRequire catches CommonJS require("mod") calls.
func (w *tsWalker) handleRequire(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || w.text(fn) != "require" {
		return
	}
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return
	}
	w.emitImport(strings.Trim(w.text(arg), `"'`))
}

func (w *tsWalker) emitImport(target string) {
	if target == "" {
		return
	}
	w.result.Relations = append(w.result.Relations, &rawRelation{
		SourceID: w.module.EntityID,
		Target:   normalizeImportPath(target, w.relPath),
		Kind:     types.RelImports,
		FilePath: w.relPath,
	})
}

func (w *tsWalker) contains(parent, child *types.CodeEntity) {
	w.result.Relations = append(w.result.Relations, &rawRelation{
		SourceID: parent.EntityID,
		TargetID: child.EntityID,
		Target:   child.QualifiedName,
		Kind:     types.RelContains,
		FilePath: w.relPath,
		Resolved: true,
	})
}

// tsModuleName converts src/lib/util.ts to src/lib/util.
func tsModuleName(relPath string) string {
	p := filepath.ToSlash(relPath)
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// normalizeImportPath rewrites relative imports against the importing file so
// the resolution pass can match them to module qualified names. Bare package
// names stay as-is and remain unresolved.
func normalizeImportPath(target, fromFile string) string {
	if !strings.HasPrefix(target, ".") {
		return target
	}
	joined := filepath.ToSlash(filepath.Join(filepath.Dir(fromFile), target))
	return strings.TrimSuffix(joined, filepath.Ext(joined))
}

func tsSignature(node *sitter.Node, content []byte) string {
	name := node.ChildByFieldName("name")
	params := node.ChildByFieldName("parameters")
	if name == nil || params == nil {
		return firstLine(string(content[node.StartByte():node.EndByte()]))
	}
	sig := string(content[name.StartByte():name.EndByte()]) +
		string(content[params.StartByte():params.EndByte()])
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += " " + string(content[ret.StartByte():ret.EndByte()])
	}
	return sig
}

// hasJSX reports whether the subtree contains a JSX node.
func hasJSX(node *sitter.Node) bool {
	t := node.Type()
	if strings.HasPrefix(t, "jsx_") {
		return true
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if hasJSX(node.NamedChild(i)) {
			return true
		}
	}
	return false
}

func startsUpper(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

// isHookName matches use + Uppercase, e.g. useState, useProjectData.
func isHookName(name string) bool {
	return len(name) > 3 && strings.HasPrefix(name, "use") &&
		name[3] >= 'A' && name[3] <= 'Z'
}

var fcGeneric = regexp.MustCompile(`\bFC\s*<`)

func fcTyped(typeText string) bool {
	return strings.Contains(typeText, "React.FC") ||
		fcGeneric.MatchString(typeText) ||
		strings.HasSuffix(strings.TrimSpace(typeText), ": FC")
}

var upperCaseName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// exportableVariable keeps only constants worth indexing.
func exportableVariable(name string) bool {
	return upperCaseName.MatchString(name) ||
		strings.HasSuffix(name, "Schema") ||
		strings.HasSuffix(name, "Config")
}
