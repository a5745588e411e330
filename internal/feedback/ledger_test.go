package feedback_test

import (
	"context"
	"testing"

	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	files map[string][]byte
}

func (f *fakeRemote) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, store.ErrNotFound
	}

	return data, nil
}

func (f *fakeRemote) Write(_ context.Context, path string, content []byte, _ string) error {
	if f.files == nil {
		f.files = make(map[string][]byte)
	}

	f.files[path] = content

	return nil
}

func newLedger(t *testing.T) *feedback.Ledger {
	t.Helper()

	docs := store.NewDocuments(&fakeRemote{}, t.TempDir(), zap.NewNop())

	return feedback.NewLedger(docs, zap.NewNop())
}

func TestLedgerCreateAndGet(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t)
	ctx := context.Background()

	entry, err := ledger.Create(ctx, feedback.Entry{
		ChatID:          "chat-1",
		CustomerMessage: "Bist du ein Bot?",
		AIResponse:      "Nein, ich bin hier ganz echt unterwegs.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, feedback.StatusPending, entry.Status)
	assert.False(t, entry.Timestamp.IsZero())

	got, err := ledger.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bist du ein Bot?", got.CustomerMessage)
}

func TestLedgerGetUnknown(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t)

	_, err := ledger.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, feedback.ErrEntryNotFound)
}

func TestLedgerASASentinel(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t)

	entry, err := ledger.Create(context.Background(), feedback.Entry{
		IsASA:      true,
		AIResponse: "Hey, lange nichts gehört! Wie geht es dir?",
	})
	require.NoError(t, err)
	assert.Equal(t, feedback.ASASentinel, entry.CustomerMessage)
}

func TestLedgerUpdateAndDelete(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t)
	ctx := context.Background()

	entry, err := ledger.Create(ctx, feedback.Entry{
		CustomerMessage: "Was machst du beruflich?",
		AIResponse:      "Ich arbeite in einer Praxis.",
	})
	require.NoError(t, err)

	entry.Reasoning = "klingt natürlich"
	require.NoError(t, ledger.Update(ctx, entry))

	got, err := ledger.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "klingt natürlich", got.Reasoning)

	require.NoError(t, ledger.Delete(ctx, entry.ID))

	_, err = ledger.Get(ctx, entry.ID)
	assert.ErrorIs(t, err, feedback.ErrEntryNotFound)

	assert.ErrorIs(t, ledger.Delete(ctx, entry.ID), feedback.ErrEntryNotFound)
}

func TestLedgerMarkEditedIdempotent(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t)
	ctx := context.Background()

	entry, err := ledger.Create(ctx, feedback.Entry{
		CustomerMessage: "Wollen wir uns treffen?",
		AIResponse:      "Lass uns erst noch etwas schreiben.",
	})
	require.NoError(t, err)

	refs := map[string]struct{}{entry.ID: {}}

	healed, err := ledger.MarkEdited(ctx, refs)
	require.NoError(t, err)
	assert.Equal(t, 1, healed)

	healed, err = ledger.MarkEdited(ctx, refs)
	require.NoError(t, err)
	assert.Zero(t, healed)

	got, err := ledger.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, feedback.StatusEdited, got.Status)
}
