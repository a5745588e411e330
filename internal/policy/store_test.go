package policy_test

import (
	"context"
	"testing"

	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRemote implements store.RemoteClient in memory.
type fakeRemote struct {
	files map[string][]byte
	reads int
}

func (f *fakeRemote) Read(_ context.Context, path string) ([]byte, error) {
	f.reads++

	content, ok := f.files[path]
	if !ok {
		return nil, store.ErrNotFound
	}

	return content, nil
}

func (f *fakeRemote) Write(_ context.Context, path string, content []byte, _ string) error {
	f.files[path] = content
	return nil
}

func newPolicyStore(t *testing.T, remote *fakeRemote) *policy.Store {
	t.Helper()

	logger := zaptest.NewLogger(t)
	docs := store.NewDocuments(remote, t.TempDir(), logger)

	return policy.NewStore(docs, nil, logger)
}

func TestStoreGetMergesDefaults(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{files: map[string][]byte{
		"config/rules.json": []byte(`{
			"forbiddenWords": ["park"],
			"situationalResponses": {"treffen": "custom text"}
		}`),
	}}
	s := newPolicyStore(t, remote)

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)

	rule, ok := cfg.Situations.Get("treffen")
	require.True(t, ok)
	assert.Equal(t, "custom text", rule.Instructions)

	// Defaults absent from the document were merged in
	_, ok = cfg.Situations.Get("geld")
	assert.True(t, ok)
}

func TestStoreGetUsesCache(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{files: map[string][]byte{
		"config/rules.json": []byte(`{"situationalResponses": {}}`),
	}}
	s := newPolicyStore(t, remote)

	ctx := context.Background()

	_, err := s.Get(ctx)
	require.NoError(t, err)

	readsAfterFirst := remote.reads

	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, readsAfterFirst, remote.reads)

	// Invalidate forces a reload
	s.Invalidate()

	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Greater(t, remote.reads, readsAfterFirst)
}

func TestStoreGetStartsFromDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{files: map[string][]byte{}}
	s := newPolicyStore(t, remote)

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.Situations, len(policy.DefaultSituations()))
}

func TestStoreSaveWritesCanonicalPath(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{files: map[string][]byte{}}
	s := newPolicyStore(t, remote)

	cfg := &policy.Config{ForbiddenWords: []string{"treffen"}}
	require.NoError(t, s.Save(context.Background(), cfg))

	_, ok := remote.files[policy.CanonicalPath]
	assert.True(t, ok)

	// The saved config is served from cache afterwards
	got, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"treffen"}, got.ForbiddenWords)
}
