package knowledge

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/domain"
)

// wordEmbedder is a deterministic bag-of-words embedder: every distinct
// word gets its own dimension, so identical texts embed identically and
// texts with no shared words are orthogonal.
type wordEmbedder struct {
	mu   sync.Mutex
	dims map[string]int
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{dims: map[string]int{}}
}

func (e *wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const size = 128
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, size)
		for _, word := range strings.Fields(text) {
			dim, ok := e.dims[word]
			if !ok {
				dim = len(e.dims) % size
				e.dims[word] = dim
			}
			v[dim]++
		}
		out[i] = v
	}
	return out, nil
}

func entry(question, answer string) domain.KnowledgeEntry {
	return domain.KnowledgeEntry{Question: question, Answer: answer, Category: "general"}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(t.TempDir(), newWordEmbedder())
	require.NoError(t, err)
	return idx
}

func TestAddAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	report, err := idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل", "التوصيل مجاني لجميع الطلبات"),
		entry("ما هي مواعيد العمل", "من الساعة ٨ صباحًا حتى ١٠ مساءً"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, idx.Count())

	results, err := idx.Search(ctx, "كم سعر التوصيل", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "كم سعر التوصيل", results[0].Question)
	assert.Equal(t, "التوصيل مجاني لجميع الطلبات", results[0].Answer)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
}

func TestSearchNormalizesQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل", "التوصيل مجاني"),
	}, false)
	require.NoError(t, err)

	// diacritics and hamza variants fold onto the stored form
	results, err := idx.Search(ctx, "كم سِعرُ التوصيل", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
}

func TestSearchClampsKToCollectionSize(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{entry("سؤال واحد", "جواب")}, false)
	require.NoError(t, err)

	results, err := idx.Search(ctx, "سؤال واحد", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchEmptyIndexAndEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	results, err := idx.Search(ctx, "سؤال", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Add(ctx, []domain.KnowledgeEntry{entry("سؤال", "جواب")}, false)
	require.NoError(t, err)

	results, err = idx.Search(ctx, "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddSkipsExactDuplicates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	report, err := idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل", "التوصيل مجاني"),
		entry("كم سِعر التوصيل", "نسخة مكررة بعد التطبيع"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, idx.Count())
}

func TestAddSkipsNearDuplicates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل", "التوصيل مجاني"),
	}, true)
	require.NoError(t, err)

	// shares three of four words: cosine 3/sqrt(12) ~ 0.87, above the gate
	report, err := idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل اليوم", "جواب آخر"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 1, report.Skipped)

	// no shared words at all: accepted
	report, err = idx.Add(ctx, []domain.KnowledgeEntry{
		entry("وش مواعيد الدوام عندكم", "من ٨ الى ١٠"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
}

func TestAddSkipsEmptyQuestion(t *testing.T) {
	idx := newTestIndex(t)

	report, err := idx.Add(context.Background(), []domain.KnowledgeEntry{
		entry("   ", "جواب بلا سؤال"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 1, report.Skipped)
}

func TestDeleteByQuestionText(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{entry("كم سعر التوصيل", "التوصيل مجاني")}, false)
	require.NoError(t, err)

	deleted, err := idx.DeleteByQuestionText(ctx, "كم سِعر التوصيل")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, idx.Count())

	deleted, err = idx.DeleteByQuestionText(ctx, "سؤال غير موجود")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStats(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []domain.KnowledgeEntry{
		{Question: "كم سعر التوصيل", Answer: "مجاني", Category: "delivery"},
		{Question: "وش مواعيد الدوام", Answer: "من ٨ الى ١٠", Category: "hours"},
		{Question: "سؤال بلا جواب", Category: "general"},
	}, false)
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.AnswersWithText)
	assert.Equal(t, 1, stats.ByCategory["delivery"])
	assert.Equal(t, 1, stats.ByCategory["hours"])
	assert.Equal(t, 1, stats.ByCategory["general"])
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewIndex(dir, newWordEmbedder())
	require.NoError(t, err)
	_, err = idx.Add(ctx, []domain.KnowledgeEntry{
		entry("كم سعر التوصيل", "التوصيل مجاني"),
	}, false)
	require.NoError(t, err)

	reopened, err := NewIndex(dir, newWordEmbedder())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	assert.Equal(t, 1, reopened.Stats().Total)
}
