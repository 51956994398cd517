package contextstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/store"
	"codewarden/internal/types"
)

func newFixture(t *testing.T) (*ContextStore, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.UpsertProject(context.Background(), &types.Project{
		ProjectID: "p1", Name: "p1", Path: "/tmp/p1",
	}))
	return New(st), st
}

func TestGenerateResumeContextEmptyProject(t *testing.T) {
	c, _ := newFixture(t)

	rc, err := c.GenerateResumeContext(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rc.Project.ProjectID)
	assert.Nil(t, rc.LastSession)
	assert.Nil(t, rc.NextTodo)
	assert.Empty(t, rc.PendingTodos)
}

func TestGenerateResumeContextAggregates(t *testing.T) {
	c, st := newFixture(t)
	ctx := context.Background()

	sess, err := st.StartSession(ctx, "p1", "build the parser")
	require.NoError(t, err)
	_, err = st.EndSession(ctx, sess.SessionID, store.EndSessionParams{Achievements: "done"})
	require.NoError(t, err)

	first, err := st.CreateTodo(ctx, &types.Todo{ProjectID: "p1", Title: "first", Priority: 5})
	require.NoError(t, err)
	_, err = st.CreateTodo(ctx, &types.Todo{
		ProjectID: "p1", Title: "second", Priority: 4, DependsOn: []string{first.TodoID},
	})
	require.NoError(t, err)
	wip, err := st.CreateTodo(ctx, &types.Todo{ProjectID: "p1", Title: "wip", Priority: 3})
	require.NoError(t, err)
	_, err = st.UpdateTodoStatus(ctx, wip.TodoID, types.TodoInProgress, nil, "")
	require.NoError(t, err)

	_, err = st.CreateDecision(ctx, &types.Decision{
		ProjectID: "p1", Category: "architecture", Title: "use sqlite", Reasoning: "embedded",
	})
	require.NoError(t, err)

	_, err = st.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NoteIssue, Title: "flaky test", Content: "x", Importance: 3,
	})
	require.NoError(t, err)
	_, err = st.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NoteTip, Title: "hot path", Content: "x", Importance: 5,
	})
	require.NoError(t, err)

	rc, err := c.GenerateResumeContext(ctx, "p1")
	require.NoError(t, err)

	require.NotNil(t, rc.LastSession)
	assert.Equal(t, sess.SessionID, rc.LastSession.SessionID)
	assert.Len(t, rc.PendingTodos, 2)
	require.Len(t, rc.InProgressTodos, 1)
	assert.Equal(t, "wip", rc.InProgressTodos[0].Title)
	require.NotNil(t, rc.NextTodo)
	assert.Equal(t, first.TodoID, rc.NextTodo.TodoID)
	require.Len(t, rc.RecentDecisions, 1)
	require.Len(t, rc.OpenIssueNotes, 1)
	assert.Equal(t, "flaky test", rc.OpenIssueNotes[0].Title)
	require.Len(t, rc.ImportantNotes, 1)
	assert.Equal(t, "hot path", rc.ImportantNotes[0].Title)
}

func TestGenerateResumeContextUnknownProject(t *testing.T) {
	c, _ := newFixture(t)
	_, err := c.GenerateResumeContext(context.Background(), "missing")
	require.Error(t, err)
}
