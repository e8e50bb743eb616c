package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/database"
	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// ProjectionRepository provides data access for projections.
type ProjectionRepository interface {
	List(ctx context.Context) ([]*models.Projection, error)
	// GetByID returns nil, nil when no projection has the given id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Projection, error)
	// SRIDTaken reports whether another projection already uses srid.
	// excludeID is ignored when uuid.Nil.
	SRIDTaken(ctx context.Context, srid int, excludeID uuid.UUID) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, p *models.Projection) error
	Update(ctx context.Context, p *models.Projection) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectionRepository struct{}

// NewProjectionRepository creates a new ProjectionRepository.
func NewProjectionRepository() ProjectionRepository {
	return &projectionRepository{}
}

var _ ProjectionRepository = (*projectionRepository)(nil)

const projectionColumns = `id, srid, proj4_params, extent, created_at, updated_at`

func (r *projectionRepository) List(ctx context.Context) ([]*models.Projection, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + projectionColumns + ` FROM projections ORDER BY srid`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projections: %w", err)
	}
	defer rows.Close()

	projections := make([]*models.Projection, 0)
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		projections = append(projections, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projections: %w", err)
	}

	return projections, nil
}

func (r *projectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Projection, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + projectionColumns + ` FROM projections WHERE id = $1`

	p, err := scanProjection(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}

func (r *projectionRepository) SRIDTaken(ctx context.Context, srid int, excludeID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var exclude *uuid.UUID
	if excludeID != uuid.Nil {
		exclude = &excludeID
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM projections
			WHERE srid = $1
			AND ($2::uuid IS NULL OR id <> $2)
		)`

	var taken bool
	if err := scope.Conn.QueryRow(ctx, query, srid, exclude).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check srid uniqueness: %w", err)
	}

	return taken, nil
}

func (r *projectionRepository) Count(ctx context.Context) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var n int
	if err := scope.Conn.QueryRow(ctx, `SELECT count(*) FROM projections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projections: %w", err)
	}
	return n, nil
}

func (r *projectionRepository) Create(ctx context.Context, p *models.Projection) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO projections (srid, proj4_params, extent)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		p.SRID,
		p.Proj4Params,
		p.Extent.String(),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create projection: %w", err)
	}

	return nil
}

func (r *projectionRepository) Update(ctx context.Context, p *models.Projection) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE projections
		SET srid = $2, proj4_params = $3, extent = $4
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		p.ID,
		p.SRID,
		p.Proj4Params,
		p.Extent.String(),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update projection: %w", err)
	}

	return nil
}

func (r *projectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM projections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete projection: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanProjection(row pgx.Row) (*models.Projection, error) {
	var p models.Projection
	var extent string

	err := row.Scan(
		&p.ID,
		&p.SRID,
		&p.Proj4Params,
		&extent,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan projection: %w", err)
	}

	p.Extent = models.ParseExtent(extent)
	return &p, nil
}

// isUniqueViolation checks for PostgreSQL error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
