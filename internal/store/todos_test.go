package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/apperr"
	"codewarden/internal/types"
)

func mustCreateTodo(t *testing.T, s *Store, todo *types.Todo) *types.Todo {
	t.Helper()
	created, err := s.CreateTodo(context.Background(), todo)
	require.NoError(t, err)
	return created
}

func TestGetNextTodoRespectsDependencyChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	t1 := mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "first", Priority: 5})
	t2 := mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "second", Priority: 4, DependsOn: []string{t1.TodoID},
	})
	t3 := mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "third", Priority: 3, DependsOn: []string{t2.TodoID},
	})

	next, err := s.GetNextTodo(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, t1.TodoID, next.TodoID)

	_, err = s.UpdateTodoStatus(ctx, t1.TodoID, types.TodoCompleted, nil, "done")
	require.NoError(t, err)

	next, err = s.GetNextTodo(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, t2.TodoID, next.TodoID)

	// t3 still waits on t2
	_, err = s.UpdateTodoStatus(ctx, t2.TodoID, types.TodoInProgress, nil, "")
	require.NoError(t, err)
	next, err = s.GetNextTodo(ctx, "p1")
	require.NoError(t, err)
	require.Nil(t, next)
	_ = t3
}

func TestGetNextTodoNoneActionable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	blocker := mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "blocker", Priority: 2})
	_, err := s.UpdateTodoStatus(ctx, blocker.TodoID, types.TodoBlocked, nil, "")
	require.NoError(t, err)
	mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "waiting", Priority: 5, DependsOn: []string{blocker.TodoID},
	})

	next, err := s.GetNextTodo(ctx, "p1")
	require.NoError(t, err)
	// blocker itself is still dependency-free but not pending; waiting has an
	// incomplete dependency
	require.Nil(t, next)
}

func TestTodoDependencyCycleRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	a := mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "a", Priority: 3})
	x := mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "x", Priority: 3, DependsOn: []string{a.TodoID},
	})
	y := mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "y", Priority: 3, DependsOn: []string{x.TodoID},
	})

	// a -> depends on y would close the loop a <- x <- y <- a
	err := s.AddTodoDependency(ctx, a.TodoID, y.TodoID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// self-dependency is a degenerate cycle
	err = s.AddTodoDependency(ctx, a.TodoID, a.TodoID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateTodoUnknownDependency(t *testing.T) {
	s := newTestStore(t)
	newTestProject(t, s, "p1")

	_, err := s.CreateTodo(context.Background(), &types.Todo{
		ProjectID: "p1", Title: "t", Priority: 3, DependsOn: []string{"missing"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// the failed insert must not leave a partial row
	todos, err := s.ListTodos(context.Background(), "p1", "", "", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestUpdateTodoStatusCompletedInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")
	todo := mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "t", Priority: 3})

	done, err := s.UpdateTodoStatus(ctx, todo.TodoID, types.TodoCompleted, nil, "shipped")
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "shipped", done.CompletionNote)

	// reopening clears the completion stamp
	p := 40
	reopened, err := s.UpdateTodoStatus(ctx, todo.TodoID, types.TodoInProgress, &p, "")
	require.NoError(t, err)
	assert.Equal(t, 40, reopened.Progress)
	assert.Nil(t, reopened.CompletedAt)
}

func TestListTodosOrderingAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "low", Priority: 1})
	mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "high-a", Priority: 5})
	mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "high-b", Priority: 5})
	mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "bug", Priority: 4, Category: types.TodoBugfix,
	})

	all, err := s.ListTodos(ctx, "p1", "", "", 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "high-a", all[0].Title) // priority desc, then created asc
	assert.Equal(t, "high-b", all[1].Title)
	assert.Equal(t, "bug", all[2].Title)

	bugs, err := s.ListTodos(ctx, "p1", "", types.TodoBugfix, 1, 0)
	require.NoError(t, err)
	require.Len(t, bugs, 1)
	assert.Equal(t, "bug", bugs[0].Title)

	important, err := s.ListTodos(ctx, "p1", "", "", 4, 0)
	require.NoError(t, err)
	assert.Len(t, important, 3)
}

func TestTodoBlocksIsReverseOfDependsOn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	base := mustCreateTodo(t, s, &types.Todo{ProjectID: "p1", Title: "base", Priority: 3})
	dep := mustCreateTodo(t, s, &types.Todo{
		ProjectID: "p1", Title: "dep", Priority: 3, DependsOn: []string{base.TodoID},
	})

	got, err := s.GetTodo(ctx, base.TodoID)
	require.NoError(t, err)
	assert.Equal(t, []string{dep.TodoID}, got.Blocks)
	assert.Empty(t, got.DependsOn)
}
