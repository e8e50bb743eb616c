package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-projections/pkg/repositories"
)

// SeedFile is the YAML layout of a projection seed file:
//
//	projections:
//	  - srid: 4326
//	    extent: "-180 -90 180 90"
//	  - srid: 3857
//	    proj4_params: "+proj=merc ..."
//	    extent: "-20037508.34 -20037508.34 20037508.34 20037508.34"
type SeedFile struct {
	Projections []SeedProjection `yaml:"projections"`
}

// SeedProjection is one entry of a seed file. Omitted proj4 params are
// back-filled the same way as an interactive save.
type SeedProjection struct {
	SRID        int    `yaml:"srid"`
	Proj4Params string `yaml:"proj4_params"`
	Extent      string `yaml:"extent"`
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// SeedProjections saves every projection in the seed file at path, but only
// while the projections table is empty. It returns how many were created.
// ctx must carry a database scope.
func SeedProjections(
	ctx context.Context,
	svc ProjectionService,
	repo repositories.ProjectionRepository,
	path string,
	logger *zap.Logger,
) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count projections: %w", err)
	}
	if count > 0 {
		logger.Debug("Projections already present, skipping seed", zap.Int("count", count))
		return 0, nil
	}

	seed, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, entry := range seed.Projections {
		srid := entry.SRID
		_, err := svc.Save(ctx, &SaveProjectionInput{
			SRID:        &srid,
			Proj4Params: entry.Proj4Params,
			Extent:      strings.Fields(entry.Extent),
		})
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				logger.Warn("Skipping invalid seed projection",
					zap.Int("index", i),
					zap.Int("srid", entry.SRID),
					zap.Any("errors", verr.Fields))
				continue
			}
			return created, fmt.Errorf("failed to seed srid %d: %w", entry.SRID, err)
		}
		created++
	}

	logger.Info("Seeded projections",
		zap.String("file", path),
		zap.Int("created", created))
	return created, nil
}
