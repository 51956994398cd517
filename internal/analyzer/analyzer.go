// Package analyzer turns a source tree into a normalized graph of code
// entities and typed relations. Parsing is per-file and tolerant; one broken
// file is skipped, never fatal. Entity ids are deterministic so re-analyzing
// an unchanged tree is a no-op at the data level.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
	"codewarden/internal/store"
	"codewarden/internal/types"
)

// parseWorkers bounds concurrent file parsing.
const parseWorkers = 8

// Analyzer orchestrates scanning, parsing, resolution, and persistence.
type Analyzer struct {
	store *store.Store
}

// New creates an analyzer backed by the given store.
func New(st *store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// Result summarizes one analysis run.
type Result struct {
	ProjectID     string   `json:"project_id"`
	ProjectPath   string   `json:"project_path"`
	FilesParsed   int      `json:"files_parsed"`
	FilesSkipped  int      `json:"files_skipped"`
	EntityCount   int      `json:"entity_count"`
	RelationCount int      `json:"relation_count"`
	ResolvedCount int      `json:"resolved_count"`
	Errors        []string `json:"errors,omitempty"`
}

// Analyze runs a full analysis of projectPath and replaces the stored graph.
// An empty projectID derives a stable id from the absolute path.
func (a *Analyzer) Analyze(ctx context.Context, projectPath, projectID string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryAnalyzer, "Analyze")
	defer timer.Stop()

	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFilesystem, err, "resolve path %s", projectPath)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFilesystem, err, "stat %s", abs)
	}
	if !info.IsDir() {
		return nil, apperr.InvalidArgs("project_path", "%s is not a directory", abs)
	}
	if projectID == "" {
		projectID = deriveProjectID(abs)
	}

	files, err := ScanFiles(abs, nil)
	if err != nil {
		return nil, err
	}
	logging.Analyzer("Analyzing %s (%d files) as project %s", abs, len(files), projectID)

	results, parseErrors := a.parseAll(ctx, abs, files)
	if len(files) > 0 && len(results) == 0 {
		return nil, apperr.New(apperr.KindInternal, "no file could be parsed in %s", abs)
	}

	entities, relations, resolved := assembleGraph(projectID, results)

	if err := a.store.UpsertProject(ctx, &types.Project{
		ProjectID: projectID,
		Name:      filepath.Base(abs),
		Path:      abs,
		Language:  dominantLanguage(files),
	}); err != nil {
		return nil, err
	}
	if err := a.store.ReplaceProjectAnalysis(ctx, projectID, entities, relations); err != nil {
		return nil, err
	}

	return &Result{
		ProjectID:     projectID,
		ProjectPath:   abs,
		FilesParsed:   len(results),
		FilesSkipped:  len(files) - len(results),
		EntityCount:   len(entities),
		RelationCount: len(relations),
		ResolvedCount: resolved,
		Errors:        parseErrors,
	}, nil
}

// AnalyzeFiles re-parses a subset of files for watch mode. Files absent on
// disk have their rows removed; new relation targets are bound against the
// stored graph afterwards.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, projectPath, projectID string, relFiles []string) (*Result, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFilesystem, err, "resolve path %s", projectPath)
	}

	var present []string
	for _, f := range relFiles {
		if _, err := os.Stat(filepath.Join(abs, f)); err == nil {
			present = append(present, f)
		}
	}
	sort.Strings(present)

	results, parseErrors := a.parseAll(ctx, abs, present)
	entities, relations, resolved := assembleGraph(projectID, results)

	if err := a.store.ReplaceFileAnalysis(ctx, projectID, relFiles, entities, relations); err != nil {
		return nil, err
	}
	n, err := a.store.ResolveRelations(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &Result{
		ProjectID:     projectID,
		ProjectPath:   abs,
		FilesParsed:   len(results),
		FilesSkipped:  len(present) - len(results),
		EntityCount:   len(entities),
		RelationCount: len(relations),
		ResolvedCount: resolved + n,
		Errors:        parseErrors,
	}, nil
}

// parseAll parses files concurrently. Each worker owns its parsers because a
// Tree-sitter parser is not safe for concurrent use.
func (a *Analyzer) parseAll(ctx context.Context, root string, files []string) ([]*FileResult, []string) {
	type indexed struct {
		pos    int
		result *FileResult
		err    error
	}

	out := make([]indexed, len(files))
	var mu sync.Mutex
	next := 0

	g, ctx := errgroup.WithContext(ctx)
	workers := parseWorkers
	if len(files) < workers {
		workers = len(files)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			parsers := newParserSet()
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				if next >= len(files) {
					mu.Unlock()
					return nil
				}
				i := next
				next++
				mu.Unlock()

				rel := files[i]
				out[i] = indexed{pos: i, result: nil, err: nil}
				parser, ok := parsers[strings.ToLower(filepath.Ext(rel))]
				if !ok {
					continue
				}
				content, err := os.ReadFile(filepath.Join(root, rel))
				if err != nil {
					out[i].err = fmt.Errorf("%s: %v", rel, err)
					continue
				}
				res, err := parser.ParseFile(rel, content)
				if err != nil {
					out[i].err = fmt.Errorf("%s: %v", rel, err)
					continue
				}
				out[i].result = res
			}
		})
	}
	// Workers only return early on context cancellation.
	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryAnalyzer).Warn("Parse pool interrupted: %v", err)
	}

	var results []*FileResult
	var errs []string
	for _, o := range out {
		if o.err != nil {
			logging.Get(logging.CategoryAnalyzer).Warn("Skipping file: %v", o.err)
			errs = append(errs, o.err.Error())
			continue
		}
		if o.result != nil {
			results = append(results, o.result)
		}
	}
	return results, errs
}

// newParserSet builds the extension dispatch table for one worker.
func newParserSet() map[string]Parser {
	py := NewPythonParser()
	ts := NewTypeScriptParser()
	set := make(map[string]Parser)
	for _, ext := range py.Extensions() {
		set[ext] = py
	}
	for _, ext := range ts.Extensions() {
		set[ext] = ts
	}
	return set
}

// assembleGraph merges per-file results into the final entity/relation lists:
// dedupes entity-id collisions with a suffix counter, then resolves relation
// targets by qualified name or unique short name.
func assembleGraph(projectID string, results []*FileResult) ([]*types.CodeEntity, []*types.CodeRelation, int) {
	sort.Slice(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })

	var entities []*types.CodeEntity
	seen := make(map[string]int)
	for _, fr := range results {
		remap := map[string]string{}
		for _, e := range fr.Entities {
			e.ProjectID = projectID
			if n := seen[e.EntityID]; n > 0 {
				seen[e.EntityID] = n + 1
				newID := fmt.Sprintf("%s-%d", e.EntityID, n+1)
				remap[e.EntityID] = newID
				e.EntityID = newID
			} else {
				seen[e.EntityID] = 1
			}
			entities = append(entities, e)
		}
		if len(remap) > 0 {
			for _, r := range fr.Relations {
				if id, ok := remap[r.SourceID]; ok {
					r.SourceID = id
				}
				if id, ok := remap[r.TargetID]; ok {
					r.TargetID = id
				}
			}
			// parent links live inside the same file
			for _, e := range fr.Entities {
				if id, ok := remap[e.ParentID]; ok {
					e.ParentID = id
				}
			}
		}
	}

	byQualified := make(map[string]string, len(entities))
	byName := make(map[string][]string)
	for _, e := range entities {
		if _, ok := byQualified[e.QualifiedName]; !ok {
			byQualified[e.QualifiedName] = e.EntityID
		}
		byName[e.Name] = append(byName[e.Name], e.EntityID)
	}

	var relations []*types.CodeRelation
	relSeen := make(map[string]int)
	resolved := 0
	for _, fr := range results {
		for _, r := range fr.Relations {
			rel := &types.CodeRelation{
				ProjectID: projectID,
				SourceID:  r.SourceID,
				Kind:      r.Kind,
				FilePath:  r.FilePath,
			}
			switch {
			case r.Resolved:
				rel.TargetID = r.TargetID
				rel.Resolved = true
			case byQualified[r.Target] != "":
				rel.TargetID = byQualified[r.Target]
				rel.Resolved = true
			case len(byName[shortName(r.Target)]) > 0:
				rel.TargetID = byName[shortName(r.Target)][0]
				rel.Resolved = true
			default:
				rel.TargetID = r.Target
				rel.Metadata = map[string]string{"resolved": "false"}
			}
			if rel.Resolved {
				resolved++
			}
			key := rel.SourceID + "|" + string(rel.Kind) + "|" + rel.TargetID
			relSeen[key]++
			rel.RelationID = relationID(key, relSeen[key])
			relations = append(relations, rel)
		}
	}
	return entities, relations, resolved
}

// relationID is deterministic so re-running analyze yields identical rows.
func relationID(key string, n int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, n)))
	return hex.EncodeToString(h[:])[:16]
}

// shortName takes the last segment of a dotted reference.
func shortName(target string) string {
	if i := strings.LastIndexByte(target, '.'); i >= 0 {
		return target[i+1:]
	}
	return target
}

// deriveProjectID hashes the absolute path into a stable id.
func deriveProjectID(absPath string) string {
	h := sha256.Sum256([]byte(absPath))
	return "proj-" + hex.EncodeToString(h[:])[:12]
}

// dominantLanguage picks the most common language among scanned files.
func dominantLanguage(files []string) string {
	counts := make(map[string]int)
	for _, f := range files {
		counts[languageOf(f)]++
	}
	best, bestN := "", 0
	for lang, n := range counts {
		if n > bestN && lang != "" {
			best, bestN = lang, n
		}
	}
	return best
}
