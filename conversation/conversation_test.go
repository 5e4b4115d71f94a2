package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizFlow(prompts *[]string) *Flow {
	f := NewFlow("quiz", "ask_name")
	f.OnStart(func(_ context.Context, _ int64, _ *State) error {
		*prompts = append(*prompts, "name?")
		return nil
	})
	f.Handle("ask_name", KindText, func(_ context.Context, upd *Update, st *State) (Action, error) {
		if upd.Text == "" {
			return Stay(), nil
		}
		st.Set("name", upd.Text)
		return Advance("ask_city"), nil
	})
	f.Handle("ask_city", KindText, func(_ context.Context, upd *Update, st *State) (Action, error) {
		st.Set("city", upd.Text)
		return Clear(), nil
	})
	return f
}

func TestRuntimeHappyPath(t *testing.T) {
	var prompts []string
	rt := NewRuntime(NewMemoryStore())
	rt.Register(quizFlow(&prompts))
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx, 1, "quiz", nil))
	assert.Equal(t, []string{"name?"}, prompts)

	handled, err := rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindText, Text: "Ali"})
	require.NoError(t, err)
	assert.True(t, handled)

	st, err := rt.Active(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "ask_city", st.Name)
	assert.Equal(t, "Ali", st.Get("name"))

	handled, err = rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindText, Text: "Zomin"})
	require.NoError(t, err)
	assert.True(t, handled)

	st, err = rt.Active(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRuntimeStayKeepsState(t *testing.T) {
	var prompts []string
	rt := NewRuntime(NewMemoryStore())
	rt.Register(quizFlow(&prompts))
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx, 1, "quiz", nil))
	_, err := rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindText, Text: ""})
	require.NoError(t, err)

	st, err := rt.Active(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "ask_name", st.Name)
}

func TestRuntimeNoConversationNotHandled(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	handled, err := rt.Dispatch(context.Background(), &Update{ChatID: 1, Kind: KindText, Text: "hi"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRuntimeUnhandledKindFallsThrough(t *testing.T) {
	var prompts []string
	rt := NewRuntime(NewMemoryStore())
	rt.Register(quizFlow(&prompts))
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx, 1, "quiz", nil))
	handled, err := rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindPhoto, PhotoID: "x"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRuntimeStartSeedsContext(t *testing.T) {
	var prompts []string
	rt := NewRuntime(NewMemoryStore())
	rt.Register(quizFlow(&prompts))
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx, 1, "quiz", map[string]string{"ref": "abc"}))
	st, err := rt.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "abc", st.Get("ref"))
}

func TestRuntimeReplaceStartsOtherFlow(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	ctx := context.Background()

	next := NewFlow("next", "begin")
	first := NewFlow("first", "only")
	first.Handle("only", KindText, func(_ context.Context, _ *Update, _ *State) (Action, error) {
		return Replace("next"), nil
	})
	rt.Register(first)
	rt.Register(next)

	require.NoError(t, rt.Start(ctx, 1, "first", nil))
	_, err := rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindText, Text: "go"})
	require.NoError(t, err)

	st, err := rt.Active(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "next", st.FlowID)
	assert.Equal(t, "begin", st.Name)
}

func TestRuntimeOrphanedStateDropped(t *testing.T) {
	store := NewMemoryStore()
	rt := NewRuntime(store)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 1, &State{FlowID: "gone", Name: "x"}))
	handled, err := rt.Dispatch(ctx, &Update{ChatID: 1, Kind: KindText, Text: "hi"})
	require.NoError(t, err)
	assert.False(t, handled)

	st, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRuntimeDuplicateFlowPanics(t *testing.T) {
	rt := NewRuntime(NewMemoryStore())
	rt.Register(NewFlow("dup", "a"))
	assert.Panics(t, func() { rt.Register(NewFlow("dup", "a")) })
}

func TestMemoryStoreCopiesState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	st := &State{FlowID: "f", Name: "s", Context: map[string]string{"k": "v"}}
	require.NoError(t, store.Set(ctx, 1, st))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	got.Set("k", "changed")

	again, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Get("k"))
}
