package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/logger"
)

// LoadSeedFile populates an empty index from a JSON file of knowledge
// entries. A non-empty index is left untouched, so restarting the service
// never re-imports.
func LoadSeedFile(ctx context.Context, idx *Index, path string) error {
	if path == "" {
		return nil
	}
	if idx.Count() > 0 {
		logger.Base().Debug("knowledge index already populated, skipping seed file",
			zap.Int("count", idx.Count()))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read knowledge seed file: %w", err)
	}
	var entries []domain.KnowledgeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode knowledge seed file: %w", err)
	}

	report, err := idx.Add(ctx, entries, true)
	if err != nil {
		return fmt.Errorf("seed knowledge index: %w", err)
	}
	logger.Base().Info("seeded knowledge index",
		zap.String("path", path),
		zap.Int("added", report.Added),
		zap.Int("skipped", report.Skipped))
	return nil
}
