package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// mockProjectionRepository is an in-memory ProjectionRepository.
type mockProjectionRepository struct {
	byID map[uuid.UUID]*models.Projection

	// conflictOnWrite simulates a concurrent insert winning the unique index.
	conflictOnWrite bool
	err             error
	creates         int
	updates         int
}

func newMockProjectionRepository(seed ...*models.Projection) *mockProjectionRepository {
	m := &mockProjectionRepository{byID: make(map[uuid.UUID]*models.Projection)}
	for _, p := range seed {
		m.byID[p.ID] = p
	}
	return m
}

func (m *mockProjectionRepository) List(ctx context.Context) ([]*models.Projection, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.Projection, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SRID < out[j].SRID })
	return out, nil
}

func (m *mockProjectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Projection, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectionRepository) SRIDTaken(ctx context.Context, srid int, excludeID uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for id, p := range m.byID {
		if p.SRID == srid && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProjectionRepository) Count(ctx context.Context) (int, error) {
	return len(m.byID), m.err
}

func (m *mockProjectionRepository) Create(ctx context.Context, p *models.Projection) error {
	if m.err != nil {
		return m.err
	}
	if m.conflictOnWrite {
		return apperrors.ErrConflict
	}
	m.creates++
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockProjectionRepository) Update(ctx context.Context, p *models.Projection) error {
	if m.err != nil {
		return m.err
	}
	if m.conflictOnWrite {
		return apperrors.ErrConflict
	}
	if _, ok := m.byID[p.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.updates++
	p.UpdatedAt = time.Now()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockProjectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byID[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type mockSpatialRefSysRepository struct {
	proj4 map[int]string
	err   error
	calls int
}

func (m *mockSpatialRefSysRepository) LookupProj4(ctx context.Context, srid int) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.proj4[srid]
	return v, ok, nil
}

type mockRegistry struct {
	result *models.ImportResult
	err    error
	srids  []int
}

func (m *mockRegistry) Import(ctx context.Context, srid int) (*models.ImportResult, error) {
	m.srids = append(m.srids, srid)
	return m.result, m.err
}
