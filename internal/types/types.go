// Package types holds the domain model shared by the storage layer and the
// tool handlers: projects, code entities and relations, development sessions,
// decisions, notes, TODOs, quality issues, debt snapshots, and the error
// firewall records.
package types

import "time"

// EntityKind classifies an extracted code construct.
type EntityKind string

const (
	KindModule         EntityKind = "module"
	KindClass          EntityKind = "class"
	KindFunction       EntityKind = "function"
	KindMethod         EntityKind = "method"
	KindInterface      EntityKind = "interface"
	KindTypeAlias      EntityKind = "type_alias"
	KindEnum           EntityKind = "enum"
	KindReactComponent EntityKind = "react_component"
	KindReactHook      EntityKind = "react_hook"
	KindVariable       EntityKind = "variable"
)

// RelationKind is the typed edge between entities.
type RelationKind string

const (
	RelContains   RelationKind = "contains"
	RelInherits   RelationKind = "inherits"
	RelImplements RelationKind = "implements"
	RelImports    RelationKind = "imports"
	RelCalls      RelationKind = "calls"
)

// Project is the root aggregate; deleting it cascades everywhere.
type Project struct {
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CodeEntity is one named construct extracted by the analyzer.
// EntityID is deterministic: sha256(file_path|kind|name|line_start)[:16].
type CodeEntity struct {
	EntityID      string            `json:"entity_id"`
	ProjectID     string            `json:"project_id"`
	Kind          EntityKind        `json:"kind"`
	Name          string            `json:"name"`
	QualifiedName string            `json:"qualified_name"`
	FilePath      string            `json:"file_path"`
	LineStart     int               `json:"line_start"`
	LineEnd       int               `json:"line_end,omitempty"`
	Signature     string            `json:"signature,omitempty"`
	Docstring     string            `json:"docstring,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CodeRelation is a typed directed edge. TargetID may be an unresolved module
// path at insert time; Resolved stays false until the second pass binds it.
type CodeRelation struct {
	RelationID string            `json:"relation_id"`
	ProjectID  string            `json:"project_id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Kind       RelationKind      `json:"kind"`
	FilePath   string            `json:"file_path,omitempty"`
	Resolved   bool              `json:"resolved"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Session is one development session; append-only with a single close.
type Session struct {
	SessionID         string     `json:"session_id"`
	ProjectID         string     `json:"project_id"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	DurationMinutes   int        `json:"duration_minutes,omitempty"`
	Goals             string     `json:"goals"`
	Achievements      string     `json:"achievements,omitempty"`
	NextSteps         string     `json:"next_steps,omitempty"`
	FilesModified     []string   `json:"files_modified,omitempty"`
	IssuesEncountered []string   `json:"issues_encountered,omitempty"`
	ContextSummary    string     `json:"context_summary,omitempty"`
}

// DecisionStatus tracks the supersession lifecycle of a design decision.
type DecisionStatus string

const (
	DecisionActive     DecisionStatus = "active"
	DecisionSuperseded DecisionStatus = "superseded"
	DecisionDeprecated DecisionStatus = "deprecated"
)

// Decision records a design decision with its reasoning and alternatives.
// Invariant: Status == superseded iff SupersededBy != "".
type Decision struct {
	DecisionID   string            `json:"decision_id"`
	ProjectID    string            `json:"project_id"`
	SessionID    string            `json:"session_id,omitempty"`
	Category     string            `json:"category"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Reasoning    string            `json:"reasoning"`
	Alternatives []string          `json:"alternatives,omitempty"`
	TradeOffs    map[string]string `json:"trade_offs,omitempty"`
	ImpactScope  string            `json:"impact_scope,omitempty"`
	Status       DecisionStatus    `json:"status"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NoteCategory classifies a project note.
type NoteCategory string

const (
	NotePitfall      NoteCategory = "pitfall"
	NoteTip          NoteCategory = "tip"
	NoteOptimization NoteCategory = "optimization"
	NoteIssue        NoteCategory = "issue"
	NoteReminder     NoteCategory = "reminder"
)

// Note is a project note. Invariant: IsResolved implies ResolvedAt != nil.
type Note struct {
	NoteID          string       `json:"note_id"`
	ProjectID       string       `json:"project_id"`
	SessionID       string       `json:"session_id,omitempty"`
	Category        NoteCategory `json:"category"`
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	Importance      int          `json:"importance"` // 1..5
	RelatedCode     string       `json:"related_code,omitempty"`
	RelatedEntities []string     `json:"related_entities,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
	IsResolved      bool         `json:"is_resolved"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	ResolvedNote    string       `json:"resolved_note,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// TodoStatus is the todo lifecycle state.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoBlocked    TodoStatus = "blocked"
	TodoCancelled  TodoStatus = "cancelled"
)

// TodoCategory classifies a todo.
type TodoCategory string

const (
	TodoFeature       TodoCategory = "feature"
	TodoBugfix        TodoCategory = "bugfix"
	TodoRefactor      TodoCategory = "refactor"
	TodoTest          TodoCategory = "test"
	TodoDocumentation TodoCategory = "documentation"
)

// Todo is a unit of planned work with a dependency DAG.
// Invariants: completed iff progress=100 and CompletedAt set; DependsOn is
// acyclic within the project (checked on insert).
type Todo struct {
	TodoID              string       `json:"todo_id"`
	ProjectID           string       `json:"project_id"`
	SessionID           string       `json:"session_id,omitempty"`
	Title               string       `json:"title"`
	Description         string       `json:"description,omitempty"`
	Category            TodoCategory `json:"category"`
	Priority            int          `json:"priority"`             // 1..5
	EstimatedDifficulty int          `json:"estimated_difficulty"` // 1..5
	EstimatedHours      float64      `json:"estimated_hours,omitempty"`
	Status              TodoStatus   `json:"status"`
	Progress            int          `json:"progress"` // 0..100
	DependsOn           []string     `json:"depends_on,omitempty"`
	Blocks              []string     `json:"blocks,omitempty"` // reverse edges, derived
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CompletionNote      string       `json:"completion_note,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// IssueSeverity grades a quality issue.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// IssueStatus is the quality-issue lifecycle state.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueIgnored    IssueStatus = "ignored"
)

// QualityIssue is one detected code smell.
type QualityIssue struct {
	IssueID     string            `json:"issue_id"`
	ProjectID   string            `json:"project_id"`
	IssueType   string            `json:"issue_type"`
	Severity    IssueSeverity     `json:"severity"`
	EntityID    string            `json:"entity_id,omitempty"`
	FilePath    string            `json:"file_path,omitempty"`
	LineNumber  int               `json:"line_number,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      IssueStatus       `json:"status"`
	DetectedAt  time.Time         `json:"detected_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy  string            `json:"resolved_by,omitempty"`
}

// DebtSnapshot is an immutable point-in-time technical-debt score.
type DebtSnapshot struct {
	SnapshotID       string    `json:"snapshot_id"`
	ProjectID        string    `json:"project_id"`
	OverallScore     float64   `json:"overall_score"`
	CodeQualityScore float64   `json:"code_quality_score"`
	TestScore        float64   `json:"test_score"`
	DocsScore        float64   `json:"docs_score"`
	DepsScore        float64   `json:"deps_score"`
	TodoScore        float64   `json:"todo_score"`
	CriticalCount    int       `json:"critical_count"`
	HighCount        int       `json:"high_count"`
	MediumCount      int       `json:"medium_count"`
	LowCount         int       `json:"low_count"`
	EstimatedDays    float64   `json:"estimated_days_to_fix"`
	CreatedAt        time.Time `json:"created_at"`
}

// BlockLevel governs what happens when an operation matches an error record.
type BlockLevel string

const (
	BlockNone    BlockLevel = "none"
	BlockWarning BlockLevel = "warning"
	BlockBlock   BlockLevel = "block"
)

// ErrorRecord is a content-addressed fingerprint of a past failure.
// Invariant: ErrorID = sha256_hex(ErrorType + ":" + canonical_json(Pattern)).
type ErrorRecord struct {
	ID                 int64                  `json:"id"`
	ErrorID            string                 `json:"error_id"`
	ErrorType          string                 `json:"error_type"`
	ErrorScene         string                 `json:"error_scene"`
	Pattern            map[string]interface{} `json:"error_pattern"`
	ErrorMessage       string                 `json:"error_message"`
	Solution           string                 `json:"solution,omitempty"`
	SolutionConfidence float64                `json:"solution_confidence"`
	BlockLevel         BlockLevel             `json:"block_level"`
	AutoFix            bool                   `json:"auto_fix"`
	OccurrenceCount    int                    `json:"occurrence_count"`
	BlockedCount       int                    `json:"blocked_count"`
	LastOccurredAt     time.Time              `json:"last_occurred_at"`
	CreatedAt          time.Time              `json:"created_at"`
}

// InterceptAction is what the firewall did with a checked operation.
type InterceptAction string

const (
	InterceptPassed  InterceptAction = "passed"
	InterceptWarned  InterceptAction = "warned"
	InterceptBlocked InterceptAction = "blocked"
)

// InterceptLog is an observational record of one firewall check.
type InterceptLog struct {
	ID              int64                  `json:"id"`
	ErrorRecordID   int64                  `json:"error_record_id"`
	InterceptType   string                 `json:"intercept_type"` // before | after
	InterceptAction InterceptAction        `json:"intercept_action"`
	OperationType   string                 `json:"operation_type"`
	OperationParams map[string]interface{} `json:"operation_params,omitempty"`
	MatchConfidence float64                `json:"match_confidence"`
	SessionID       string                 `json:"session_id,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// MemoryLevel is the retention tier for stored memories.
type MemoryLevel string

const (
	MemoryShort MemoryLevel = "short"
	MemoryMid   MemoryLevel = "mid"
	MemoryLong  MemoryLevel = "long"
)

// Memory is one stored context fragment for keyword retrieval.
type Memory struct {
	MemoryID  string      `json:"memory_id"`
	ProjectID string      `json:"project_id"`
	Content   string      `json:"content"`
	Level     MemoryLevel `json:"memory_level"`
	CreatedAt time.Time   `json:"created_at"`
}

// ValidEntityKind reports whether k is one of the analyzer's entity kinds.
func ValidEntityKind(k EntityKind) bool {
	switch k {
	case KindModule, KindClass, KindFunction, KindMethod, KindInterface,
		KindTypeAlias, KindEnum, KindReactComponent, KindReactHook, KindVariable:
		return true
	}
	return false
}

// ValidBlockLevel reports whether b is a recognized block level.
func ValidBlockLevel(b BlockLevel) bool {
	return b == BlockNone || b == BlockWarning || b == BlockBlock
}
