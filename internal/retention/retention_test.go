package retention

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/storage"
	"github.com/pavelanni/examgen/internal/store"
)

type counts map[string]int

func (c counts) DocumentsPruned(kind string, n int) { c[kind] += n }

func TestPrune(t *testing.T) {
	ctx := context.Background()
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	add := func(name string, kind model.DocumentKind, age time.Duration, stored bool) {
		t.Helper()
		if stored {
			require.NoError(t, files.Put(ctx, name, bytes.NewReader([]byte("x")), 1, ""))
		}
		require.NoError(t, db.InsertDocument(ctx, store.DocumentRecord{Document: model.Document{
			Filename: name, Kind: kind, Format: model.FormatDOCX, Size: 1, CreatedAt: now.Add(-age),
		}}))
	}
	add("exam_00000000000000000000000000000001.docx", model.KindExam, 48*time.Hour, true)
	add("answer_key_00000000000000000000000000000002.docx", model.KindAnswerKey, 72*time.Hour, false)
	add("exam_00000000000000000000000000000003.docx", model.KindExam, time.Hour, true)

	obs := counts{}
	p := New(db, files, obs)
	p.now = func() time.Time { return now }

	res, err := p.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, counts{"exam": 1, "answer_key": 1}, obs)

	n, err := db.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = files.Open(ctx, "exam_00000000000000000000000000000001.docx")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	rc, _, err := files.Open(ctx, "exam_00000000000000000000000000000003.docx")
	require.NoError(t, err)
	rc.Close()
}

func TestRunStopsOnCancel(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(db, files, nil).Run(ctx, time.Hour, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
