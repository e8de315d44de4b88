package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileGroupsCreatesMissingGroupOnce(t *testing.T) {
	store := mocks.NewMockGroupStore(t)
	reconciler := NewReconciler(discardLogger())
	main := []domain.Group{{ID: 1, Name: "A", Enabled: true}}

	store.EXPECT().CreateGroup(mockAnyContext(), main[0]).Return(nil).Once()

	result, err := reconciler.ReconcileGroups(context.Background(), store, NewWriteGate(noSleepClock{}, 0), "pi2", main, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	secondary := []domain.Group{{ID: 4, Name: "A", Enabled: true}}
	result, err = reconciler.ReconcileGroups(context.Background(), store, NewWriteGate(noSleepClock{}, 0), "pi2", main, secondary)
	require.NoError(t, err)
	assert.Zero(t, result.Writes())
}

func TestReconcileGroupsUpdatesOnlyChangedGroup(t *testing.T) {
	store := mocks.NewMockGroupStore(t)
	reconciler := NewReconciler(discardLogger())

	main := []domain.Group{
		{ID: 0, Name: "Default", Enabled: true},
		{ID: 1, Name: "Kids", Enabled: false, Comment: "school nights"},
		{ID: 2, Name: "IoT", Enabled: true},
	}
	secondary := []domain.Group{
		{ID: 0, Name: "Default", Enabled: true},
		{ID: 5, Name: "Kids", Enabled: true, Comment: "school nights"},
		{ID: 6, Name: "IoT", Enabled: true},
		{ID: 7, Name: "Guests", Enabled: true},
	}

	store.EXPECT().UpdateGroup(mockAnyContext(), "Kids", main[1]).Return(nil).Once()

	result, err := reconciler.ReconcileGroups(context.Background(), store, NewWriteGate(noSleepClock{}, 0), "pi2", main, secondary)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Updated: 1}, result)
}

func TestReconcileGroupsStopsOnWriteError(t *testing.T) {
	store := mocks.NewMockGroupStore(t)
	reconciler := NewReconciler(discardLogger())
	main := []domain.Group{{Name: "A"}, {Name: "B"}}

	store.EXPECT().CreateGroup(mockAnyContext(), main[0]).Return(errors.New("boom")).Once()

	_, err := reconciler.ReconcileGroups(context.Background(), store, NewWriteGate(noSleepClock{}, 0), "pi2", main, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, `create group "A"`)
}

func TestWriteGateSleepsBetweenWrites(t *testing.T) {
	store := mocks.NewMockGroupStore(t)
	clock := mocks.NewMockClock(t)
	reconciler := NewReconciler(discardLogger())
	main := []domain.Group{{Name: "A"}, {Name: "B"}, {Name: "C"}}

	store.EXPECT().CreateGroup(mockAnyContext(), mock.Anything).Return(nil).Times(3)
	clock.EXPECT().Sleep(mockAnyContext(), DefaultWriteThrottle).Return(nil).Times(2)

	result, err := reconciler.ReconcileGroups(context.Background(), store, NewWriteGate(clock, DefaultWriteThrottle), "pi2", main, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
}

func TestReconcileListsRemapsGroupsByName(t *testing.T) {
	store := mocks.NewMockListStore(t)
	reconciler := NewReconciler(discardLogger())

	in := ListInput{
		Host:            "pi2",
		MainGroups:      []domain.Group{{ID: 0, Name: "Default"}, {ID: 7, Name: "Family"}},
		SecondaryGroups: []domain.Group{{ID: 0, Name: "Default"}, {ID: 3, Name: "Family"}},
		MainLists: []domain.ListEntry{{
			ID: 11, Address: "https://example.org/hosts", Type: "block", Enabled: true, Groups: []int{7},
		}},
		GroupsSynced: true,
	}

	store.EXPECT().CreateList(mockAnyContext(), domain.ListEntry{
		ID: 11, Address: "https://example.org/hosts", Type: "block", Enabled: true, Groups: []int{3},
	}).Return(nil).Once()

	result, err := reconciler.ReconcileLists(context.Background(), store, NewWriteGate(noSleepClock{}, 0), in)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Warnings)
}

func TestReconcileListsFallsBackToDefaultGroupForMissingGroup(t *testing.T) {
	store := mocks.NewMockListStore(t)
	reconciler := NewReconciler(discardLogger())

	in := ListInput{
		Host:            "pi2",
		MainGroups:      []domain.Group{{ID: 0, Name: "Default"}, {ID: 7, Name: "Family"}},
		SecondaryGroups: []domain.Group{{ID: 0, Name: "Default"}},
		MainLists: []domain.ListEntry{{
			Address: "https://example.org/hosts", Type: "block", Enabled: true, Groups: []int{0, 7},
		}},
		SecondaryLists: []domain.ListEntry{{
			ID: 2, Address: "https://example.org/hosts", Type: "block", Enabled: false,
		}},
		GroupsSynced: true,
	}

	store.EXPECT().UpdateList(mockAnyContext(), mock.MatchedBy(func(list domain.ListEntry) bool {
		return list.Enabled && assert.ObjectsAreEqual([]int{0}, list.Groups)
	})).Return(nil).Once()

	result, err := reconciler.ReconcileLists(context.Background(), store, NewWriteGate(noSleepClock{}, 0), in)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Family", result.Warnings[0].GroupName)
}

func TestReconcileListsWithoutGroupSyncUsesDefaultGroup(t *testing.T) {
	store := mocks.NewMockListStore(t)
	reconciler := NewReconciler(discardLogger())

	in := ListInput{
		Host:            "pi2",
		MainGroups:      []domain.Group{{ID: 0, Name: "Default"}, {ID: 7, Name: "Family"}},
		SecondaryGroups: []domain.Group{{ID: 0, Name: "Default"}, {ID: 3, Name: "Family"}},
		MainLists: []domain.ListEntry{
			{Address: "a.example", Type: "allow", Enabled: true, Groups: []int{7}},
			{Address: "b.example", Type: "allow", Enabled: true},
		},
		SecondaryLists: []domain.ListEntry{
			{Address: "b.example", Type: "allow", Enabled: true, Groups: []int{0}},
		},
		GroupsSynced: false,
	}

	store.EXPECT().CreateList(mockAnyContext(), domain.ListEntry{
		Address: "a.example", Type: "allow", Enabled: true, Groups: []int{0},
	}).Return(nil).Once()

	result, err := reconciler.ReconcileLists(context.Background(), store, NewWriteGate(noSleepClock{}, 0), in)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Len(t, result.Warnings, 1)
}

func TestReconcileListsConvergesToNoWrites(t *testing.T) {
	store := mocks.NewMockListStore(t)
	reconciler := NewReconciler(discardLogger())

	in := ListInput{
		Host:            "pi2",
		MainGroups:      []domain.Group{{ID: 0, Name: "Default"}, {ID: 7, Name: "Family"}},
		SecondaryGroups: []domain.Group{{ID: 0, Name: "Default"}, {ID: 3, Name: "Family"}},
		MainLists: []domain.ListEntry{
			{Address: "a.example", Type: "block", Comment: "ads", Enabled: true, Groups: []int{7, 0, 7}},
			{Address: "b.example", Type: "allow", Enabled: true},
		},
		SecondaryLists: []domain.ListEntry{
			{Address: "a.example", Type: "block", Comment: "ads", Enabled: true, Groups: []int{3, 0}},
			{Address: "b.example", Type: "allow", Enabled: true},
		},
		GroupsSynced: true,
	}

	result, err := reconciler.ReconcileLists(context.Background(), store, NewWriteGate(noSleepClock{}, 0), in)
	require.NoError(t, err)
	assert.Zero(t, result.Writes())
}

func TestReconcileListsTreatsSameAddressWithOtherTypeAsNew(t *testing.T) {
	store := mocks.NewMockListStore(t)
	reconciler := NewReconciler(discardLogger())

	in := ListInput{
		Host:           "pi2",
		MainLists:      []domain.ListEntry{{Address: "x.example", Type: "allow", Enabled: true}},
		SecondaryLists: []domain.ListEntry{{Address: "x.example", Type: "block", Enabled: true}},
		GroupsSynced:   true,
	}

	store.EXPECT().CreateList(mockAnyContext(), mock.Anything).Return(nil).Once()

	result, err := reconciler.ReconcileLists(context.Background(), store, NewWriteGate(noSleepClock{}, 0), in)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}

func TestNormalizedHashesIgnoreInstanceLocalIDs(t *testing.T) {
	t.Parallel()

	mainGroups := []domain.Group{{ID: 0, Name: "Default", Enabled: true}, {ID: 7, Name: "Family", Enabled: true}}
	otherGroups := []domain.Group{{ID: 3, Name: "Family", Enabled: true}, {ID: 0, Name: "Default", Enabled: true}}

	a, err := HashValue(normalizeGroups(mainGroups))
	require.NoError(t, err)
	b, err := HashValue(normalizeGroups(otherGroups))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	mainLists := []domain.ListEntry{{ID: 1, Address: "a.example", Type: "block", Groups: []int{7}}}
	otherLists := []domain.ListEntry{{ID: 9, Address: "a.example", Type: "block", Groups: []int{3}}}

	c, err := HashValue(normalizeLists(mainLists, mainGroups))
	require.NoError(t, err)
	d, err := HashValue(normalizeLists(otherLists, otherGroups))
	require.NoError(t, err)
	assert.Equal(t, c, d)

	mainGroups[1].Enabled = false
	e, err := HashValue(normalizeGroups(mainGroups))
	require.NoError(t, err)
	assert.NotEqual(t, a, e)
}

func mockAnyContext() interface{} {
	return mock.Anything
}
