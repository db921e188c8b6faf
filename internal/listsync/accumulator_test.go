package listsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobportal/internal/model"
)

func fetchNow(t *testing.T, acc *Accumulator[item], q model.ListQuery) error {
	t.Helper()
	return acc.FetchList(context.Background(), q, acc.NextGeneration())
}

func TestFetchList_FilterChangeReplaces(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		if q.SearchText == "designer" {
			return page(3, items("designer", 1, 3)...), nil
		}
		return page(10, items(q.SearchText, (q.Page-1)*4+1, q.Page*4)...), nil
	}}
	acc := NewAccumulator[item](f, nil)

	dev := model.ListQuery{SearchText: "developer", StatusFilter: "All", Page: 1, PageSize: 4}
	require.NoError(t, fetchNow(t, acc, dev))
	require.NoError(t, fetchNow(t, acc, dev.WithPage(2)))
	require.Len(t, acc.Snapshot().Order, 8)

	require.NoError(t, fetchNow(t, acc, model.ListQuery{SearchText: "designer", StatusFilter: "All", Page: 1, PageSize: 4}))

	snap := acc.Snapshot()
	assert.Equal(t, []string{"designer-1", "designer-2", "designer-3"}, snap.Order)
	assert.Len(t, snap.ItemsByKey, 3)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, StatusSucceeded, snap.LoadStatus)
}

func TestFetchList_ResetRuleForcesPageOne(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(20, items(q.SearchText+"-p"+string(rune('0'+q.Page)), 1, 2)...), nil
	}}
	acc := NewAccumulator[item](f, nil)

	require.NoError(t, fetchNow(t, acc, model.ListQuery{SearchText: "go", Page: 1, PageSize: 2}))
	// a load-more click racing a filter change
	require.NoError(t, fetchNow(t, acc, model.ListQuery{SearchText: "rust", Page: 3, PageSize: 2}))

	seen := f.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[1].Page)

	snap := acc.Snapshot()
	assert.Equal(t, []string{"rust-p1-1", "rust-p1-2"}, snap.Order)
	assert.Equal(t, 1, snap.Query.Page)
}

func TestFetchList_FirstCallIsAlwaysPageOne(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(5, items("x", 1, 2)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	require.NoError(t, fetchNow(t, acc, model.ListQuery{Page: 4, PageSize: 2}))
	assert.Equal(t, 1, f.seen()[0].Page)
}

func TestFetchList_Append(t *testing.T) {
	cases := []struct {
		name  string
		first model.ResultPage[item]
		next  model.ResultPage[item]
		want  []string
	}{
		{
			name:  "disjoint pages",
			first: page(10, items("j", 1, 4)...),
			next:  page(10, items("j", 5, 8)...),
			want:  []string{"j-1", "j-2", "j-3", "j-4", "j-5", "j-6", "j-7", "j-8"},
		},
		{
			name:  "overlap after insert upstream",
			first: page(10, items("j", 1, 4)...),
			next:  page(10, items("j", 4, 7)...),
			want:  []string{"j-1", "j-2", "j-3", "j-4", "j-5", "j-6", "j-7"},
		},
		{
			name:  "server shrank total",
			first: page(10, items("j", 1, 4)...),
			next:  page(6, items("j", 5, 8)...),
			want:  []string{"j-1", "j-2", "j-3", "j-4", "j-5", "j-6"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
				if q.Page == 1 {
					return tc.first, nil
				}
				return tc.next, nil
			}}
			acc := NewAccumulator[item](f, nil)
			q := model.ListQuery{SearchText: "developer", Page: 1, PageSize: 4}
			require.NoError(t, fetchNow(t, acc, q))
			require.NoError(t, fetchNow(t, acc, q.WithPage(2)))

			snap := acc.Snapshot()
			assert.Equal(t, tc.want, snap.Order)
			assert.Len(t, snap.ItemsByKey, len(tc.want))
			assert.LessOrEqual(t, len(snap.Order), snap.Total)
			assert.Equal(t, tc.next.Total, snap.Total)
		})
	}
}

func TestFetchList_StaleResponseDropped(t *testing.T) {
	for _, order := range []string{"newer first", "older first"} {
		t.Run(order, func(t *testing.T) {
			f := newGatedFetcher()
			acc := NewAccumulator[item](f, nil)
			ctx := context.Background()

			g1 := acc.NextGeneration()
			done1 := make(chan error, 1)
			go func() { done1 <- acc.FetchList(ctx, model.ListQuery{SearchText: "old", Page: 1}, g1) }()
			c1 := f.next(t)

			g2 := acc.NextGeneration()
			require.Greater(t, g2, g1)
			done2 := make(chan error, 1)
			go func() { done2 <- acc.FetchList(ctx, model.ListQuery{SearchText: "new", Page: 1}, g2) }()
			c2 := f.next(t)

			if order == "newer first" {
				c2.reply(page(2, items("new", 1, 2)...), nil)
				require.NoError(t, <-done2)
				c1.reply(page(5, items("old", 1, 5)...), nil)
				require.ErrorIs(t, <-done1, ErrStale)
			} else {
				c1.reply(page(5, items("old", 1, 5)...), nil)
				require.ErrorIs(t, <-done1, ErrStale)
				c2.reply(page(2, items("new", 1, 2)...), nil)
				require.NoError(t, <-done2)
			}

			snap := acc.Snapshot()
			assert.Equal(t, []string{"new-1", "new-2"}, snap.Order)
			assert.Equal(t, 2, snap.Total)
			assert.Equal(t, "new", snap.Query.SearchText)
		})
	}
}

func TestFetchList_StaleFailureDoesNotTouchState(t *testing.T) {
	f := newGatedFetcher()
	acc := NewAccumulator[item](f, nil)
	ctx := context.Background()

	g1 := acc.NextGeneration()
	done := make(chan error, 1)
	go func() { done <- acc.FetchList(ctx, model.ListQuery{Page: 1}, g1) }()
	c1 := f.next(t)

	acc.NextGeneration()
	c1.reply(model.ResultPage[item]{}, model.Errorf(model.KindServer, "list", "boom"))
	require.ErrorIs(t, <-done, ErrStale)

	snap := acc.Snapshot()
	assert.Nil(t, snap.LastError)
	assert.NotEqual(t, StatusFailed, snap.LoadStatus)
}

func TestFetchList_FailurePreservesItems(t *testing.T) {
	fail := false
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		if fail {
			return model.ResultPage[item]{}, model.Errorf(model.KindServer, "list jobs", "database down")
		}
		return page(10, items("j", 1, 4)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	q := model.ListQuery{SearchText: "developer", Page: 1, PageSize: 4}
	require.NoError(t, fetchNow(t, acc, q))

	fail = true
	err := fetchNow(t, acc, q.WithPage(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrServer))

	snap := acc.Snapshot()
	assert.Equal(t, StatusFailed, snap.LoadStatus)
	assert.Equal(t, err, snap.LastError)
	assert.Len(t, snap.Order, 4)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 1, snap.Query.Page)

	// a filter change that fails keeps the old list too
	err = fetchNow(t, acc, model.ListQuery{SearchText: "designer", Page: 1, PageSize: 4})
	require.Error(t, err)
	assert.Len(t, acc.Snapshot().Order, 4)
}

func TestFetchList_DeadlineBecomesTimeout(t *testing.T) {
	f := newGatedFetcher()
	acc := NewAccumulator[item](f, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := acc.FetchList(ctx, model.ListQuery{Page: 1}, acc.NextGeneration())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTimeout))
	assert.Equal(t, StatusFailed, acc.Snapshot().LoadStatus)
}

func TestFetchList_LoadingVisibleToSubscribers(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(1, items("a", 1, 1)...), nil
	}}
	acc := NewAccumulator[item](f, nil)

	var statuses []LoadStatus
	unsubscribe := acc.Subscribe(func(l AccumulatedList[item]) { statuses = append(statuses, l.LoadStatus) })
	require.NoError(t, fetchNow(t, acc, model.ListQuery{Page: 1}))
	unsubscribe()
	require.NoError(t, fetchNow(t, acc, model.ListQuery{Page: 1}))

	assert.Equal(t, []LoadStatus{StatusLoading, StatusSucceeded}, statuses)
}

func TestReplaceItem(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(2, items("a", 1, 2)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	require.NoError(t, fetchNow(t, acc, model.ListQuery{Page: 1}))

	assert.True(t, acc.ReplaceItem(item{ID: "a-2", Label: "updated"}))
	assert.False(t, acc.ReplaceItem(item{ID: "a-9", Label: "new"}))

	snap := acc.Snapshot()
	assert.Equal(t, []string{"a-1", "a-2"}, snap.Order)
	assert.Equal(t, "updated", snap.ItemsByKey["a-2"].Label)
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(2, items("a", 1, 2)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	require.NoError(t, fetchNow(t, acc, model.ListQuery{Page: 1}))

	snap := acc.Snapshot()
	snap.Order[0] = "mutated"
	delete(snap.ItemsByKey, "a-2")

	again := acc.Snapshot()
	assert.Equal(t, []string{"a-1", "a-2"}, again.Order)
	assert.Len(t, again.ItemsByKey, 2)
}
