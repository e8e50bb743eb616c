package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-projections/pkg/database"
)

// SpatialRefSysRepository reads the PostGIS spatial_ref_sys catalog.
type SpatialRefSysRepository interface {
	// LookupProj4 returns the proj4 text for srid. found is false when the
	// SRID is unknown or has no proj4 text. An error means the lookup itself
	// failed (for example PostGIS is not installed).
	LookupProj4(ctx context.Context, srid int) (proj4 string, found bool, err error)
}

type spatialRefSysRepository struct{}

// NewSpatialRefSysRepository creates a new SpatialRefSysRepository.
func NewSpatialRefSysRepository() SpatialRefSysRepository {
	return &spatialRefSysRepository{}
}

var _ SpatialRefSysRepository = (*spatialRefSysRepository)(nil)

func (r *spatialRefSysRepository) LookupProj4(ctx context.Context, srid int) (string, bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return "", false, fmt.Errorf("no database scope in context")
	}

	var proj4 *string
	err := scope.Conn.QueryRow(ctx,
		`SELECT proj4text FROM public.spatial_ref_sys WHERE srid = $1`, srid,
	).Scan(&proj4)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up spatial_ref_sys: %w", err)
	}

	if proj4 == nil || strings.TrimSpace(*proj4) == "" {
		return "", false, nil
	}
	return strings.TrimSpace(*proj4), true, nil
}
