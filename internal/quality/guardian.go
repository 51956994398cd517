// Package quality implements the quality guardian: smell detectors over the
// entity/relation graph, technical-debt snapshots, hotspot ranking, and the
// quality report.
package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codewarden/internal/logging"
	"codewarden/internal/store"
	"codewarden/internal/types"
)

// Detector thresholds.
const (
	longFunctionMedium   = 50
	longFunctionHigh     = 100
	longFunctionCritical = 200

	godClassMethods         = 15
	godClassLOC             = 300
	godClassMethodsHigh     = 20
	godClassLOCHigh         = 500
	godClassMethodsCritical = 30
	godClassLOCCritical     = 800

	couplingMedium = 10
	couplingHigh   = 20

	maxCycleForHigh = 3
)

// issueWeights score open issues for debt computation.
var issueWeights = map[types.IssueSeverity]float64{
	types.SeverityCritical: 4,
	types.SeverityHigh:     2,
	types.SeverityMedium:   1,
	types.SeverityLow:      0.5,
}

// Subscore defaults; only code_quality_score is computed.
const (
	defaultTestScore = 6.0
	defaultDocsScore = 6.0
	defaultDepsScore = 7.0
	defaultTodoScore = 7.0
)

// Guardian runs detectors and debt scoring for one store.
type Guardian struct {
	store *store.Store
}

// New creates a guardian.
func New(st *store.Store) *Guardian {
	return &Guardian{store: st}
}

// DetectionResult summarizes one detect_code_smells run.
type DetectionResult struct {
	ProjectID   string                `json:"project_id"`
	IssuesFound int                   `json:"issues_found"`
	NewIssues   int                   `json:"new_issues"`
	Issues      []*types.QualityIssue `json:"issues"`
}

// DetectSmells runs all four detectors and persists new findings in one
// transaction. Re-running never duplicates open issues.
func (g *Guardian) DetectSmells(ctx context.Context, projectID string) (*DetectionResult, error) {
	timer := logging.StartTimer(logging.CategoryQuality, "DetectSmells")
	defer timer.Stop()

	if _, err := g.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	entities, err := g.store.ListEntities(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	relations, err := g.store.ListRelations(ctx, projectID, "")
	if err != nil {
		return nil, err
	}

	var issues []*types.QualityIssue
	issues = append(issues, g.detectCircularDependencies(projectID, entities, relations)...)
	issues = append(issues, g.detectLongFunctions(projectID, entities)...)
	issues = append(issues, g.detectGodClasses(projectID, entities)...)
	issues = append(issues, g.detectTightCoupling(projectID, entities, relations)...)

	inserted, err := g.store.SaveQualityIssues(ctx, issues)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryQuality).Info("Detected %d issues (%d new) in %s",
		len(issues), inserted, projectID)
	return &DetectionResult{
		ProjectID:   projectID,
		IssuesFound: len(issues),
		NewIssues:   inserted,
		Issues:      issues,
	}, nil
}

// detectCircularDependencies builds a directed graph from resolved imports
// relations and reports each minimal cycle once, deduplicated by vertex set.
func (g *Guardian) detectCircularDependencies(projectID string, entities []*types.CodeEntity, relations []*types.CodeRelation) []*types.QualityIssue {
	byID := make(map[string]*types.CodeEntity, len(entities))
	for _, e := range entities {
		byID[e.EntityID] = e
	}
	adj := make(map[string][]string)
	for _, r := range relations {
		if r.Kind != types.RelImports || !r.Resolved {
			continue
		}
		if byID[r.SourceID] == nil || byID[r.TargetID] == nil {
			continue
		}
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
	}
	for _, targets := range adj {
		sort.Strings(targets)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string
	onStack := make(map[string]int) // id -> stack index
	seenCycles := make(map[string]bool)
	var issues []*types.QualityIssue

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		onStack[node] = len(stack)
		stack = append(stack, node)

		for _, next := range adj[node] {
			if color[next] == gray {
				// back edge: stack[onStack[next]:] is the cycle
				cycle := append([]string(nil), stack[onStack[next]:]...)
				key := cycleKey(cycle)
				if !seenCycles[key] {
					seenCycles[key] = true
					issues = append(issues, g.cycleIssue(projectID, cycle, byID))
				}
				continue
			}
			if color[next] == white {
				dfs(next)
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, node)
		color[node] = black
	}

	roots := make([]string, 0, len(adj))
	for id := range adj {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	for _, id := range roots {
		if color[id] == white {
			dfs(id)
		}
	}
	return issues
}

func cycleKey(cycle []string) string {
	sorted := append([]string(nil), cycle...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

func (g *Guardian) cycleIssue(projectID string, cycle []string, byID map[string]*types.CodeEntity) *types.QualityIssue {
	severity := types.SeverityCritical
	if len(cycle) <= maxCycleForHigh {
		severity = types.SeverityHigh
	}
	names := make([]string, len(cycle))
	for i, id := range cycle {
		names[i] = byID[id].QualifiedName
	}
	first := byID[cycle[0]]
	return &types.QualityIssue{
		ProjectID:   projectID,
		IssueType:   "circular_dependency",
		Severity:    severity,
		EntityID:    first.EntityID,
		FilePath:    first.FilePath,
		Title:       fmt.Sprintf("Circular dependency among %d modules", len(cycle)),
		Description: fmt.Sprintf("Import cycle: %s -> %s", strings.Join(names, " -> "), names[0]),
		Suggestion:  "Break the cycle by extracting shared code or inverting one dependency",
		Metadata:    map[string]string{"cycle_length": fmt.Sprintf("%d", len(cycle))},
	}
}

// detectLongFunctions flags functions and methods by line count.
// loc = line_end - line_start, so a body spanning 51 lines scores 50 and
// passes; 52 lines scores 51 and is flagged medium.
func (g *Guardian) detectLongFunctions(projectID string, entities []*types.CodeEntity) []*types.QualityIssue {
	var issues []*types.QualityIssue
	for _, e := range entities {
		if e.Kind != types.KindFunction && e.Kind != types.KindMethod {
			continue
		}
		if e.LineEnd <= 0 {
			continue
		}
		loc := e.LineEnd - e.LineStart
		var severity types.IssueSeverity
		switch {
		case loc > longFunctionCritical:
			severity = types.SeverityCritical
		case loc > longFunctionHigh:
			severity = types.SeverityHigh
		case loc > longFunctionMedium:
			severity = types.SeverityMedium
		default:
			continue
		}
		issues = append(issues, &types.QualityIssue{
			ProjectID:   projectID,
			IssueType:   "long_function",
			Severity:    severity,
			EntityID:    e.EntityID,
			FilePath:    e.FilePath,
			LineNumber:  e.LineStart,
			Title:       fmt.Sprintf("Long %s: %s (%d lines)", e.Kind, e.Name, loc),
			Description: fmt.Sprintf("%s spans %d lines", e.QualifiedName, loc),
			Suggestion:  "Extract cohesive blocks into smaller functions",
			Metadata:    map[string]string{"loc": fmt.Sprintf("%d", loc)},
		})
	}
	return issues
}

// detectGodClasses flags classes by method count and size.
func (g *Guardian) detectGodClasses(projectID string, entities []*types.CodeEntity) []*types.QualityIssue {
	methodCount := make(map[string]int)
	for _, e := range entities {
		if e.Kind == types.KindMethod && e.ParentID != "" {
			methodCount[e.ParentID]++
		}
	}
	var issues []*types.QualityIssue
	for _, e := range entities {
		if e.Kind != types.KindClass {
			continue
		}
		methods := methodCount[e.EntityID]
		loc := 0
		if e.LineEnd > 0 {
			loc = e.LineEnd - e.LineStart
		}
		var severity types.IssueSeverity
		switch {
		case methods > godClassMethodsCritical || loc > godClassLOCCritical:
			severity = types.SeverityCritical
		case methods > godClassMethodsHigh || loc > godClassLOCHigh:
			severity = types.SeverityHigh
		case methods > godClassMethods || loc > godClassLOC:
			severity = types.SeverityMedium
		default:
			continue
		}
		issues = append(issues, &types.QualityIssue{
			ProjectID:   projectID,
			IssueType:   "god_class",
			Severity:    severity,
			EntityID:    e.EntityID,
			FilePath:    e.FilePath,
			LineNumber:  e.LineStart,
			Title:       fmt.Sprintf("God class: %s (%d methods, %d lines)", e.Name, methods, loc),
			Description: fmt.Sprintf("%s concentrates too much behavior", e.QualifiedName),
			Suggestion:  "Split responsibilities into collaborating classes",
			Metadata: map[string]string{
				"methods": fmt.Sprintf("%d", methods),
				"loc":     fmt.Sprintf("%d", loc),
			},
		})
	}
	return issues
}

// detectTightCoupling flags entities with excessive fan-in or fan-out.
func (g *Guardian) detectTightCoupling(projectID string, entities []*types.CodeEntity, relations []*types.CodeRelation) []*types.QualityIssue {
	fanIn := make(map[string]int)
	fanOut := make(map[string]int)
	for _, r := range relations {
		fanOut[r.SourceID]++
		if r.Resolved {
			fanIn[r.TargetID]++
		}
	}
	var issues []*types.QualityIssue
	for _, e := range entities {
		fan := fanIn[e.EntityID]
		if fanOut[e.EntityID] > fan {
			fan = fanOut[e.EntityID]
		}
		var severity types.IssueSeverity
		switch {
		case fan > couplingHigh:
			severity = types.SeverityHigh
		case fan > couplingMedium:
			severity = types.SeverityMedium
		default:
			continue
		}
		issues = append(issues, &types.QualityIssue{
			ProjectID:   projectID,
			IssueType:   "tight_coupling",
			Severity:    severity,
			EntityID:    e.EntityID,
			FilePath:    e.FilePath,
			LineNumber:  e.LineStart,
			Title:       fmt.Sprintf("Tight coupling: %s (fan-in %d, fan-out %d)", e.Name, fanIn[e.EntityID], fanOut[e.EntityID]),
			Description: fmt.Sprintf("%s is connected to too many entities", e.QualifiedName),
			Suggestion:  "Introduce an interface or facade to reduce direct connections",
			Metadata: map[string]string{
				"fan_in":  fmt.Sprintf("%d", fanIn[e.EntityID]),
				"fan_out": fmt.Sprintf("%d", fanOut[e.EntityID]),
			},
		})
	}
	return issues
}

// AssessDebt computes and persists a debt snapshot from open issues.
func (g *Guardian) AssessDebt(ctx context.Context, projectID string) (*types.DebtSnapshot, error) {
	if _, err := g.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	open, err := g.store.ListQualityIssues(ctx, projectID, types.IssueOpen, "", "", 0)
	if err != nil {
		return nil, err
	}

	var critical, high, medium, low int
	weightSum := 0.0
	for _, issue := range open {
		weightSum += issueWeights[issue.Severity]
		switch issue.Severity {
		case types.SeverityCritical:
			critical++
		case types.SeverityHigh:
			high++
		case types.SeverityMedium:
			medium++
		case types.SeverityLow:
			low++
		}
	}

	codeScore := 10 - weightSum/10
	if codeScore < 0 {
		codeScore = 0
	}
	overall := 0.40*codeScore + 0.25*defaultTestScore + 0.15*defaultDocsScore +
		0.10*defaultDepsScore + 0.10*defaultTodoScore
	hours := float64(8*critical + 4*high + 2*medium + low)

	snap := &types.DebtSnapshot{
		ProjectID:        projectID,
		OverallScore:     overall,
		CodeQualityScore: codeScore,
		TestScore:        defaultTestScore,
		DocsScore:        defaultDocsScore,
		DepsScore:        defaultDepsScore,
		TodoScore:        defaultTodoScore,
		CriticalCount:    critical,
		HighCount:        high,
		MediumCount:      medium,
		LowCount:         low,
		EstimatedDays:    hours / 8,
	}
	if err := g.store.SaveDebtSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Hotspot is one file ranked by accumulated issue weight.
type Hotspot struct {
	FilePath   string   `json:"file_path"`
	IssueCount int      `json:"issue_count"`
	Weight     float64  `json:"weight"`
	TopIssues  []string `json:"top_issues"`
}

// IdentifyHotspots groups open issues by file and returns the heaviest topK.
func (g *Guardian) IdentifyHotspots(ctx context.Context, projectID string, topK int) ([]*Hotspot, error) {
	if topK <= 0 {
		topK = 10
	}
	open, err := g.store.ListQualityIssues(ctx, projectID, types.IssueOpen, "", "", 0)
	if err != nil {
		return nil, err
	}

	byFile := make(map[string]*Hotspot)
	for _, issue := range open {
		if issue.FilePath == "" {
			continue
		}
		h := byFile[issue.FilePath]
		if h == nil {
			h = &Hotspot{FilePath: issue.FilePath}
			byFile[issue.FilePath] = h
		}
		h.IssueCount++
		h.Weight += issueWeights[issue.Severity]
		if len(h.TopIssues) < 3 {
			h.TopIssues = append(h.TopIssues, issue.Title)
		}
	}

	hotspots := make([]*Hotspot, 0, len(byFile))
	for _, h := range byFile {
		hotspots = append(hotspots, h)
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Weight != hotspots[j].Weight {
			return hotspots[i].Weight > hotspots[j].Weight
		}
		return hotspots[i].FilePath < hotspots[j].FilePath
	})
	if len(hotspots) > topK {
		hotspots = hotspots[:topK]
	}
	return hotspots, nil
}

// TrendPoint is one snapshot with its score delta to the previous one.
type TrendPoint struct {
	Snapshot     *types.DebtSnapshot `json:"snapshot"`
	OverallDelta float64             `json:"overall_delta"`
	CodeDelta    float64             `json:"code_quality_delta"`
}

// GetTrends returns snapshots in chronological order with deltas.
func (g *Guardian) GetTrends(ctx context.Context, projectID string, limit int) ([]*TrendPoint, error) {
	snaps, err := g.store.ListDebtSnapshots(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	points := make([]*TrendPoint, len(snaps))
	for i, snap := range snaps {
		p := &TrendPoint{Snapshot: snap}
		if i > 0 {
			p.OverallDelta = snap.OverallScore - snaps[i-1].OverallScore
			p.CodeDelta = snap.CodeQualityScore - snaps[i-1].CodeQualityScore
		}
		points[i] = p
	}
	return points, nil
}

// GenerateReport renders a markdown summary of debt, open issues, and
// hotspots.
func (g *Guardian) GenerateReport(ctx context.Context, projectID string) (string, error) {
	project, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	snap, err := g.AssessDebt(ctx, projectID)
	if err != nil {
		return "", err
	}
	open, err := g.store.ListQualityIssues(ctx, projectID, types.IssueOpen, "", "", 0)
	if err != nil {
		return "", err
	}
	hotspots, err := g.IdentifyHotspots(ctx, projectID, 5)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Quality Report: %s\n\n", project.Name)
	fmt.Fprintf(&b, "Overall score: %.1f/10 (code quality %.1f/10)\n", snap.OverallScore, snap.CodeQualityScore)
	fmt.Fprintf(&b, "Estimated effort: %.1f days\n\n", snap.EstimatedDays)
	fmt.Fprintf(&b, "## Open issues (%d)\n\n", len(open))
	fmt.Fprintf(&b, "- critical: %d\n- high: %d\n- medium: %d\n- low: %d\n\n",
		snap.CriticalCount, snap.HighCount, snap.MediumCount, snap.LowCount)

	byType := make(map[string]int)
	for _, issue := range open {
		byType[issue.IssueType]++
	}
	if len(byType) > 0 {
		b.WriteString("## By type\n\n")
		typeNames := make([]string, 0, len(byType))
		for typ := range byType {
			typeNames = append(typeNames, typ)
		}
		sort.Strings(typeNames)
		for _, typ := range typeNames {
			fmt.Fprintf(&b, "- %s: %d\n", typ, byType[typ])
		}
		b.WriteString("\n")
	}
	if len(hotspots) > 0 {
		b.WriteString("## Hotspots\n\n")
		for _, h := range hotspots {
			fmt.Fprintf(&b, "- %s (weight %.1f, %d issues)\n", h.FilePath, h.Weight, h.IssueCount)
			for _, title := range h.TopIssues {
				fmt.Fprintf(&b, "  - %s\n", title)
			}
		}
	}
	return b.String(), nil
}
