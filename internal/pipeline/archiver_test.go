package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiveBackend struct {
	archived int64
	err      error
	cutoff   time.Time
}

func (f *fakeArchiveBackend) ArchiveActivities(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.archived, f.err
}

type fakePruner struct {
	deleted int64
	called  bool
	cutoff  time.Time
}

func (f *fakePruner) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	f.called = true
	f.cutoff = before
	return f.deleted, nil
}

func TestArchiverRun_PrunesAfterUpload(t *testing.T) {
	backend := &fakeArchiveBackend{archived: 5}
	pruner := &fakePruner{deleted: 5}
	a := NewArchiver(backend, pruner, 30, slog.Default())

	require.NoError(t, a.Run(context.Background()))
	require.True(t, pruner.called)
	assert.Equal(t, backend.cutoff, pruner.cutoff)

	// Cutoff is retentionDays in the past, give or take test runtime.
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, pruner.cutoff, time.Minute)
}

func TestArchiverRun_NothingToArchiveSkipsPrune(t *testing.T) {
	backend := &fakeArchiveBackend{archived: 0}
	pruner := &fakePruner{}
	a := NewArchiver(backend, pruner, 30, slog.Default())

	require.NoError(t, a.Run(context.Background()))
	assert.False(t, pruner.called)
}

func TestArchiverRun_UploadFailureLeavesRows(t *testing.T) {
	backend := &fakeArchiveBackend{err: errors.New("s3 unreachable")}
	pruner := &fakePruner{}
	a := NewArchiver(backend, pruner, 30, slog.Default())

	require.Error(t, a.Run(context.Background()))
	assert.False(t, pruner.called)
}

func TestParseCron(t *testing.T) {
	c, err := parseCron("0 3 * * *")
	require.NoError(t, err)
	assert.True(t, c.matchesTime(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 1, 2, 3, 1, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)))
}

func TestParseCron_Lists(t *testing.T) {
	c, err := parseCron("0,30 * * * 1")
	require.NoError(t, err)
	// 2026-01-05 is a Monday.
	assert.True(t, c.matchesTime(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)))
}

func TestParseCron_Errors(t *testing.T) {
	_, err := parseCron("0 3 * *")
	require.Error(t, err)

	_, err = parseCron("*/5 * * * *")
	require.Error(t, err)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTime_SameDay(t *testing.T) {
	after := time.Date(2026, 1, 1, 2, 15, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), next)
}
