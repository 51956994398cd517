package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"codewarden/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestProject(t *testing.T, s *Store, id string) *types.Project {
	t.Helper()
	p := &types.Project{ProjectID: id, Name: id, Path: "/tmp/" + id}
	require.NoError(t, s.UpsertProject(context.Background(), p))
	return p
}

func TestUpsertProjectIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestProject(t, s, "p1")
	first, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)

	p.Name = "renamed"
	require.NoError(t, s.UpsertProject(ctx, p))

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
	require.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix())

	all, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	_, err := s.StartSession(ctx, "p1", "goals")
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NoteTip, Title: "n", Content: "c", Importance: 3,
	})
	require.NoError(t, err)
	_, err = s.CreateTodo(ctx, &types.Todo{ProjectID: "p1", Title: "t", Priority: 3})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceProjectAnalysis(ctx, "p1",
		[]*types.CodeEntity{{
			EntityID: "e1", ProjectID: "p1", Kind: types.KindModule,
			Name: "m", QualifiedName: "m", FilePath: "m.py", LineStart: 1,
		}},
		[]*types.CodeRelation{{
			RelationID: "r1", ProjectID: "p1", SourceID: "e1",
			TargetID: "other", Kind: types.RelImports,
		}}))

	require.NoError(t, s.DeleteProject(ctx, "p1"))

	_, err = s.GetProject(ctx, "p1")
	require.Error(t, err)
	for _, table := range []string{
		"code_entities", "code_relations", "sessions", "notes", "todos",
		"todo_deps", "decisions", "quality_issues", "debt_snapshots", "memories",
	} {
		var n int
		require.NoError(t, s.db.QueryRow(
			"SELECT COUNT(*) FROM "+table+" WHERE project_id = 'p1'").Scan(&n))
		require.Zero(t, n, "table %s should be empty", table)
	}
}

func TestDeleteProjectUnknownIsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteProject(context.Background(), "missing")
	require.Error(t, err)
}

func TestGetProjectStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	_, err := s.CreateTodo(ctx, &types.Todo{ProjectID: "p1", Title: "a", Priority: 3})
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NoteIssue, Title: "n", Content: "c", Importance: 4,
	})
	require.NoError(t, err)

	stats, err := s.GetProjectStatistics(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Todos)
	require.Equal(t, 1, stats.Notes)
	require.Equal(t, 1, stats.TodosByStatus["pending"])
	require.Equal(t, 1, stats.NotesByCat["issue"])
	require.Equal(t, 1, stats.UnresolvedNote)
}
