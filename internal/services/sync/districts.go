package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/logger"
)

// LoadDistrictSeed replaces the district table from a JSON file of
// {name, city_name} entries. The upstream API has no district endpoint, so
// the mapping ships as a local file and is reloaded on every start; an
// empty path leaves the table alone.
func LoadDistrictSeed(ctx context.Context, catalog repository.CatalogRepository, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read district seed file: %w", err)
	}
	var districts []domain.District
	if err := json.Unmarshal(data, &districts); err != nil {
		return fmt.Errorf("decode district seed file: %w", err)
	}

	if err := catalog.ReplaceDistricts(ctx, districts); err != nil {
		return fmt.Errorf("replace districts: %w", err)
	}
	logger.Base().Info("district mapping loaded",
		zap.String("path", path), zap.Int("count", len(districts)))
	return nil
}