// Package contextstore aggregates long-lived project context: development
// sessions, design decisions, notes, and the TODO dependency graph. The
// typed CRUD lives in internal/store; this layer adds the composite views
// the context tools expose.
package contextstore

import (
	"context"

	"codewarden/internal/logging"
	"codewarden/internal/store"
	"codewarden/internal/types"
)

// resume-context caps
const (
	resumeTodoLimit     = 10
	resumeDecisionLimit = 5
)

// ContextStore serves the project-context tool group.
type ContextStore struct {
	store *store.Store
}

// New creates a context store over the shared storage handle.
func New(st *store.Store) *ContextStore {
	return &ContextStore{store: st}
}

// ResumeContext is the structured snapshot returned by get_project_context.
type ResumeContext struct {
	Project         *types.Project    `json:"project"`
	LastSession     *types.Session    `json:"last_session,omitempty"`
	PendingTodos    []*types.Todo     `json:"pending_todos,omitempty"`
	InProgressTodos []*types.Todo     `json:"in_progress_todos,omitempty"`
	NextTodo        *types.Todo       `json:"next_todo,omitempty"`
	RecentDecisions []*types.Decision `json:"recent_decisions,omitempty"`
	OpenIssueNotes  []*types.Note     `json:"open_issue_notes,omitempty"`
	ImportantNotes  []*types.Note     `json:"important_notes,omitempty"`
}

// GenerateResumeContext assembles the snapshot a client needs to pick up
// work: last session, top pending and in-progress TODOs, the next actionable
// TODO, recent active decisions, unresolved issue notes, and high-importance
// notes.
func (c *ContextStore) GenerateResumeContext(ctx context.Context, projectID string) (*ResumeContext, error) {
	timer := logging.StartTimer(logging.CategoryContext, "GenerateResumeContext")
	defer timer.Stop()

	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	rc := &ResumeContext{Project: project}

	if rc.LastSession, err = c.store.LastSession(ctx, projectID); err != nil {
		return nil, err
	}
	if rc.PendingTodos, err = c.store.ListTodos(ctx, projectID, types.TodoPending, "", 1, resumeTodoLimit); err != nil {
		return nil, err
	}
	if rc.InProgressTodos, err = c.store.ListTodos(ctx, projectID, types.TodoInProgress, "", 1, resumeTodoLimit); err != nil {
		return nil, err
	}
	if rc.NextTodo, err = c.store.GetNextTodo(ctx, projectID); err != nil {
		return nil, err
	}
	if rc.RecentDecisions, err = c.store.ListDecisions(ctx, projectID, "", types.DecisionActive, resumeDecisionLimit); err != nil {
		return nil, err
	}
	if rc.OpenIssueNotes, err = c.store.ListNotes(ctx, projectID, types.NoteIssue, 1, true, 0); err != nil {
		return nil, err
	}
	if rc.ImportantNotes, err = c.store.ListNotes(ctx, projectID, "", 4, false, 0); err != nil {
		return nil, err
	}
	return rc, nil
}
