package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/store"
	"codewarden/internal/types"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func pythonTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"a.py": "class A(B):\n    pass\n",
		"b.py": "class B:\n    def foo(self):\n        pass\n",
		"c.py": "import a\n",
	})
}

func TestAnalyzePythonTree(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()

	root := pythonTree(t)
	res, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesParsed)
	assert.Empty(t, res.Errors)

	// find_entity name="A" -> exactly one class entity
	found, err := st.FindEntities(ctx, "p1", "A", false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	entityA := found[0]
	assert.Equal(t, types.KindClass, entityA.Kind)
	assert.Equal(t, "a.A", entityA.QualifiedName)

	// A inherits B, resolved to the class in b.py
	rels, err := st.RelationsFrom(ctx, "p1", entityA.EntityID)
	require.NoError(t, err)
	var inherits []*types.CodeRelation
	for _, r := range rels {
		if r.Kind == types.RelInherits {
			inherits = append(inherits, r)
		}
	}
	require.Len(t, inherits, 1)
	assert.True(t, inherits[0].Resolved)

	target, err := st.GetEntity(ctx, "p1", inherits[0].TargetID)
	require.NoError(t, err)
	assert.Equal(t, "B", target.Name)
	assert.Equal(t, types.KindClass, target.Kind)

	// foo is a method child of B with a contains edge
	methods, err := st.FindEntities(ctx, "p1", "foo", false)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, types.KindMethod, methods[0].Kind)
	assert.Equal(t, target.EntityID, methods[0].ParentID)

	// c.py imports module a
	imports, err := st.ListRelations(ctx, "p1", types.RelImports)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.True(t, imports[0].Resolved)
	mod, err := st.GetEntity(ctx, "p1", imports[0].TargetID)
	require.NoError(t, err)
	assert.Equal(t, "a", mod.QualifiedName)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()
	root := pythonTree(t)

	_, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)
	first, err := st.ListEntities(ctx, "p1", "")
	require.NoError(t, err)
	firstRels, err := st.ListRelations(ctx, "p1", "")
	require.NoError(t, err)

	_, err = a.Analyze(ctx, root, "p1")
	require.NoError(t, err)
	second, err := st.ListEntities(ctx, "p1", "")
	require.NoError(t, err)
	secondRels, err := st.ListRelations(ctx, "p1", "")
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("entities changed between runs:\n%s", diff)
	}
	if diff := cmp.Diff(firstRels, secondRels); diff != "" {
		t.Fatalf("relations changed between runs:\n%s", diff)
	}
}

func TestAnalyzeBrokenFileIsSkipped(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	root := writeTree(t, map[string]string{
		"good.py": "def ok():\n    pass\n",
		// tree-sitter is error tolerant; unreadable bytes still parse to an
		// error tree without aborting the run
		"weird.py": "def broken(:\n  ???\n",
	})

	res, err := a.Analyze(context.Background(), root, "p1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.FilesParsed, 1)
}

func TestAnalyzePythonSignatureAndDocstring(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"m.py": "def add(a, b) -> int:\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n",
	})

	_, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)

	found, err := st.FindEntities(ctx, "p1", "add", false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "add(a, b) -> int", found[0].Signature)
	assert.Equal(t, "Add two numbers.", found[0].Docstring)
}

func TestAnalyzeTSXComponentsAndHooks(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"App.tsx": `import React from "react";

export function App() {
  return <div>hello</div>;
}

export const useCounter = () => {
  return 0;
};

export const API_URL = "https://example.com";

const helper = (x: number) => x + 1;
`,
	})

	_, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)

	components, err := st.ListEntities(ctx, "p1", types.KindReactComponent)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "App", components[0].Name)

	hooks, err := st.ListEntities(ctx, "p1", types.KindReactHook)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "useCounter", hooks[0].Name)

	vars, err := st.ListEntities(ctx, "p1", types.KindVariable)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "API_URL", vars[0].Name)

	// helper is lowercase and not exported UPPER_CASE: plain function
	fns, err := st.FindEntities(ctx, "p1", "helper", false)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, types.KindFunction, fns[0].Kind)
}

func TestAnalyzeTypeScriptDeclarations(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"models.ts": `export interface User {
  id: string;
}

export type UserID = string;

export enum Role {
  Admin,
  Viewer,
}

export class Repo implements Store {
  find(id: string) {
    return null;
  }
}

const config = require("./config");
`,
	})

	_, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)

	kinds, err := st.CountEntitiesByKind(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, kinds["interface"])
	assert.Equal(t, 1, kinds["type_alias"])
	assert.Equal(t, 1, kinds["enum"])
	assert.Equal(t, 1, kinds["class"])
	assert.Equal(t, 1, kinds["method"])

	impls, err := st.ListRelations(ctx, "p1", types.RelImplements)
	require.NoError(t, err)
	require.Len(t, impls, 1)

	imports, err := st.ListRelations(ctx, "p1", types.RelImports)
	require.NoError(t, err)
	require.Len(t, imports, 1)
}

func TestScanFilesSkipRules(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main.py":                "pass\n",
		"node_modules/pkg/index.js":  "x",
		"__pycache__/main.cpython":   "x",
		".git/config":                "x",
		".hidden/secret.py":          "pass\n",
		"venv/lib/site.py":           "pass\n",
		".archived/old.py":           "pass\n",
		"docs/readme.md":             "x",
		"web/app.tsx":                "x",
	})

	files, err := ScanFiles(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.py", "web/app.tsx"}, files)
}

func TestScanFilesWhitelistedDotDir(t *testing.T) {
	root := writeTree(t, map[string]string{
		".tools/gen.py": "pass\n",
	})
	files, err := ScanFiles(root, map[string]bool{".tools": true})
	require.NoError(t, err)
	assert.Equal(t, []string{".tools/gen.py"}, files)
}

func TestAnalyzeFilesIncremental(t *testing.T) {
	a, st := newTestAnalyzer(t)
	ctx := context.Background()
	root := pythonTree(t)

	_, err := a.Analyze(ctx, root, "p1")
	require.NoError(t, err)

	// delete b.py and touch a.py
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"),
		[]byte("class A:\n    pass\n"), 0644))

	_, err = a.AnalyzeFiles(ctx, root, "p1", []string{"a.py", "b.py"})
	require.NoError(t, err)

	gone, err := st.ListEntitiesByFile(ctx, "p1", "b.py")
	require.NoError(t, err)
	assert.Empty(t, gone)

	found, err := st.FindEntities(ctx, "p1", "A", false)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestDeriveProjectIDStable(t *testing.T) {
	assert.Equal(t, deriveProjectID("/tmp/x"), deriveProjectID("/tmp/x"))
	assert.NotEqual(t, deriveProjectID("/tmp/x"), deriveProjectID("/tmp/y"))
}
