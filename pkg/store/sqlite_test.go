package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	store, err := Open(filepath.Join(t.TempDir(), "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestInsertAndQueryScores(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	records := []ScoreRecord{
		{ChallengeUID: "challenge-1", MinerUID: 1, MinerHotkey: "hk-1", DialogueUID: "dlg-a", Score: 0.5, FilePath: "/tmp/a.json", CreatedAt: base},
		{ChallengeUID: "challenge-1", MinerUID: 2, MinerHotkey: "hk-2", DialogueUID: "dlg-b", Score: 0.75, FilePath: "/tmp/b.json", CreatedAt: base.Add(time.Minute)},
		{ChallengeUID: "challenge-2", MinerUID: 1, MinerHotkey: "hk-1", DialogueUID: "dlg-c", Score: 0.25, FilePath: "/tmp/c.json", CreatedAt: base},
	}
	for _, record := range records {
		require.NoError(t, store.InsertScore(ctx, record))
	}

	scores, err := store.ScoresForChallenge(ctx, "challenge-1")
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// Newest first.
	require.Equal(t, "dlg-b", scores[0].DialogueUID)
	require.InDelta(t, 0.75, scores[0].Score, 1e-9)
	require.Equal(t, "dlg-a", scores[1].DialogueUID)
	require.Equal(t, "hk-1", scores[1].MinerHotkey)

	other, err := store.ScoresForChallenge(ctx, "challenge-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestScoresForUnknownChallenge(t *testing.T) {
	store := openTestStore(t)
	scores, err := store.ScoresForChallenge(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, scores)
}

func TestInsertScoreDefaultsCreatedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertScore(ctx, ScoreRecord{
		ChallengeUID: "challenge-3", MinerUID: 9, MinerHotkey: "hk-9",
		DialogueUID: "dlg-z", Score: 1.0,
	}))

	scores, err := store.ScoresForChallenge(ctx, "challenge-3")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.False(t, scores[0].CreatedAt.IsZero())
}

func TestOpenIsIdempotentOnExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.InsertScore(context.Background(), ScoreRecord{
		ChallengeUID: "challenge-1", MinerUID: 1, MinerHotkey: "hk-1", DialogueUID: "dlg-a", Score: 0.5,
	}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	scores, err := second.ScoresForChallenge(context.Background(), "challenge-1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
}
