package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/models"
	"github.com/ekaya-inc/ekaya-projections/pkg/repositories"
	"github.com/ekaya-inc/ekaya-projections/pkg/services"
)

// mockProjectionService is a configurable ProjectionService for handler tests.
type mockProjectionService struct {
	projections []*models.Projection
	listErr     error

	saveResult *models.Projection
	saveErr    error
	lastSave   *services.SaveProjectionInput

	deleteErr error
	deleted   []uuid.UUID

	importResult *models.ImportResult
	importErr    error
	importSRIDs  []int
}

func (m *mockProjectionService) List(ctx context.Context) ([]*models.Projection, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.projections == nil {
		return []*models.Projection{}, nil
	}
	return m.projections, nil
}

func (m *mockProjectionService) Get(ctx context.Context, id uuid.UUID) (*models.Projection, error) {
	for _, p := range m.projections {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockProjectionService) Save(ctx context.Context, input *services.SaveProjectionInput) (*models.Projection, error) {
	m.lastSave = input
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if m.saveResult != nil {
		return m.saveResult, nil
	}
	p := &models.Projection{ID: uuid.New(), Proj4Params: input.Proj4Params}
	copy(p.Extent[:], input.Extent)
	if input.SRID != nil {
		p.SRID = *input.SRID
	}
	return p, nil
}

func (m *mockProjectionService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return m.deleteErr
}

func (m *mockProjectionService) Import(ctx context.Context, srid int) (*models.ImportResult, error) {
	m.importSRIDs = append(m.importSRIDs, srid)
	if m.importErr != nil {
		return nil, m.importErr
	}
	return m.importResult, nil
}

var _ services.ProjectionService = (*mockProjectionService)(nil)

// stubProjectionRepository is an empty store; writes are discarded.
type stubProjectionRepository struct{}

func (stubProjectionRepository) List(ctx context.Context) ([]*models.Projection, error) {
	return nil, nil
}

func (stubProjectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Projection, error) {
	return nil, nil
}

func (stubProjectionRepository) SRIDTaken(ctx context.Context, srid int, excludeID uuid.UUID) (bool, error) {
	return false, nil
}

func (stubProjectionRepository) Count(ctx context.Context) (int, error) { return 0, nil }

func (stubProjectionRepository) Create(ctx context.Context, p *models.Projection) error {
	p.ID = uuid.New()
	return nil
}

func (stubProjectionRepository) Update(ctx context.Context, p *models.Projection) error { return nil }

func (stubProjectionRepository) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type stubRefSys struct{}

func (stubRefSys) LookupProj4(ctx context.Context, srid int) (string, bool, error) {
	return "", false, nil
}

var (
	_ repositories.ProjectionRepository    = stubProjectionRepository{}
	_ repositories.SpatialRefSysRepository = stubRefSys{}
)
