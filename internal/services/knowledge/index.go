// Package knowledge is the embedding-backed Q&A index. Question text is
// embedded; the canonical answer rides along as metadata and is never
// embedded itself.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

const (
	collectionName     = "knowledge"
	duplicateThreshold = 0.85
)

// Metadata keys carried on every stored question.
const (
	MetaCategory   = "category"
	MetaLanguage   = "language"
	MetaPriority   = "priority"
	MetaSource     = "source"
	MetaHasAnswer  = "has_answer"
	MetaAnswerText = "answer_text"
)

// Embedder provides question/query vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult is one ranked match.
type SearchResult struct {
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Similarity float32           `json:"similarity"`
	Metadata   map[string]string `json:"metadata"`
}

// AddReport summarizes an Add call.
type AddReport struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Stats describes the index content.
type Stats struct {
	Total           int            `json:"total"`
	Questions       int            `json:"questions"`
	AnswersWithText int            `json:"answers_with_text"`
	ByCategory      map[string]int `json:"by_category"`
}

// Index is the persistent vector store. Reads run concurrently; writes are
// serialized by mu.
type Index struct {
	mu           sync.Mutex
	db           *chromem.DB
	col          *chromem.Collection
	embedder     Embedder
	manifestPath string
	manifest     map[string]manifestEntry // doc id -> stats material
}

type manifestEntry struct {
	Question  string `json:"question"`
	Category  string `json:"category"`
	HasAnswer bool   `json:"has_answer"`
}

// NewIndex opens (creating if needed) the vector store rooted at dir.
func NewIndex(dir string, embedder Embedder) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	idx := &Index{
		db:           db,
		embedder:     embedder,
		manifestPath: filepath.Join(dir, "manifest.json"),
		manifest:     map[string]manifestEntry{},
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, idx.embedOne)
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}
	idx.col = col

	if err := idx.loadManifest(); err != nil {
		return nil, err
	}
	return idx, nil
}

// embedOne adapts the batch embedder to chromem's per-text function and
// L2-normalizes so the store's scores are cosine similarity.
func (i *Index) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := i.embedder.Embed(ctx, []string{language.NormalizeArabic(text)})
	if err != nil {
		return nil, err
	}
	return l2Normalize(vectors[0]), nil
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

func questionID(question string) string {
	h := sha256.Sum256([]byte(language.NormalizeArabic(question)))
	return hex.EncodeToString(h[:])
}

// Add stores entries, embedding the question text only. With
// checkDuplicates set, an entry whose question is >= 0.85 cosine-similar to
// an existing one is skipped and reported.
func (i *Index) Add(ctx context.Context, entries []domain.KnowledgeEntry, checkDuplicates bool) (AddReport, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var report AddReport
	for _, entry := range entries {
		normalized := language.NormalizeArabic(entry.Question)
		if normalized == "" {
			report.Skipped++
			continue
		}
		id := questionID(entry.Question)
		if _, exists := i.manifest[id]; exists {
			report.Skipped++
			continue
		}
		if checkDuplicates && i.col.Count() > 0 {
			results, err := i.col.Query(ctx, normalized, 1, nil, nil)
			if err != nil {
				return report, fmt.Errorf("duplicate check: %w", err)
			}
			if len(results) > 0 && results[0].Similarity >= duplicateThreshold {
				logger.Base().Info("skipping near-duplicate knowledge question",
					zap.String("question", entry.Question),
					zap.Float32("similarity", results[0].Similarity))
				report.Skipped++
				continue
			}
		}

		doc := chromem.Document{
			ID:       id,
			Content:  normalized,
			Metadata: entryMetadata(entry),
		}
		if err := i.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
			return report, fmt.Errorf("add knowledge entry: %w", err)
		}
		i.manifest[id] = manifestEntry{
			Question:  normalized,
			Category:  entry.Category,
			HasAnswer: entry.HasAnswer(),
		}
		report.Added++
	}
	if err := i.saveManifest(); err != nil {
		return report, err
	}
	return report, nil
}

func entryMetadata(entry domain.KnowledgeEntry) map[string]string {
	meta := map[string]string{
		MetaCategory:   entry.Category,
		MetaLanguage:   string(entry.Language),
		MetaPriority:   strconv.Itoa(entry.Priority),
		MetaSource:     entry.Source,
		MetaHasAnswer:  strconv.FormatBool(entry.HasAnswer()),
		MetaAnswerText: entry.Answer,
	}
	for k, v := range entry.Extra {
		if _, reserved := meta[k]; !reserved {
			meta[k] = v
		}
	}
	return meta
}

// Search returns the top-k stored questions by cosine similarity, highest
// first. The query goes through the same Arabic normalization as stored
// text.
func (i *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	normalized := language.NormalizeArabic(query)
	if normalized == "" {
		return nil, nil
	}
	count := i.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	results, err := i.col.Query(ctx, normalized, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, SearchResult{
			Question:   res.Content,
			Answer:     res.Metadata[MetaAnswerText],
			Similarity: res.Similarity,
			Metadata:   res.Metadata,
		})
	}
	return out, nil
}

// DeleteByQuestionText removes the entry whose normalized question matches
// exactly. Returns whether anything was deleted.
func (i *Index) DeleteByQuestionText(ctx context.Context, question string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := questionID(question)
	if _, exists := i.manifest[id]; !exists {
		return false, nil
	}
	if err := i.col.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("delete knowledge entry: %w", err)
	}
	delete(i.manifest, id)
	return true, i.saveManifest()
}

// Count returns the number of stored questions.
func (i *Index) Count() int {
	return i.col.Count()
}

// Stats summarizes the index.
func (i *Index) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	stats := Stats{
		Total:      len(i.manifest),
		Questions:  len(i.manifest),
		ByCategory: map[string]int{},
	}
	for _, m := range i.manifest {
		if m.HasAnswer {
			stats.AnswersWithText++
		}
		stats.ByCategory[m.Category]++
	}
	return stats
}

func (i *Index) loadManifest() error {
	data, err := os.ReadFile(i.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read knowledge manifest: %w", err)
	}
	if err := json.Unmarshal(data, &i.manifest); err != nil {
		return fmt.Errorf("decode knowledge manifest: %w", err)
	}
	return nil
}

func (i *Index) saveManifest() error {
	data, err := json.MarshalIndent(i.manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp := i.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write knowledge manifest: %w", err)
	}
	return os.Rename(tmp, i.manifestPath)
}
