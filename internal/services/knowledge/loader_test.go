package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/domain"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	idx := newTestIndex(t)
	path := writeSeed(t, `[
		{"question": "كم سعر التوصيل", "answer": "التوصيل مجاني", "category": "delivery"},
		{"question": "وش مواعيد الدوام", "answer": "من ٨ الى ١٠", "category": "hours"}
	]`)

	require.NoError(t, LoadSeedFile(context.Background(), idx, path))
	assert.Equal(t, 2, idx.Count())
}

func TestLoadSeedFileEmptyPathIsNoop(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, LoadSeedFile(context.Background(), idx, ""))
	assert.Zero(t, idx.Count())
}

func TestLoadSeedFileSkipsPopulatedIndex(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{entry("سؤال موجود", "جواب")}, false)
	require.NoError(t, err)

	path := writeSeed(t, `[{"question": "سؤال جديد", "answer": "جواب جديد"}]`)
	require.NoError(t, LoadSeedFile(ctx, idx, path))
	assert.Equal(t, 1, idx.Count(), "populated index must not be re-seeded")
}

func TestLoadSeedFileErrors(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	assert.Error(t, LoadSeedFile(ctx, idx, filepath.Join(t.TempDir(), "missing.json")))

	bad := writeSeed(t, `{"not": "an array"}`)
	assert.Error(t, LoadSeedFile(ctx, idx, bad))
}
