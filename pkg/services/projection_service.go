package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/models"
	"github.com/ekaya-inc/ekaya-projections/pkg/registry"
	"github.com/ekaya-inc/ekaya-projections/pkg/repositories"
)

// Validation messages, keyed by field in ValidationError.Fields.
const (
	msgSRIDRequired   = "The srid field is required."
	msgSRIDTaken      = "The srid has already been taken."
	msgExtentRequired = "The extent field is required."
	msgExtentFormat   = "The extent must contain exactly 4 values without spaces."
)

var msgExtentTooLong = fmt.Sprintf("The extent may not be greater than %d characters.", models.MaxExtentLength)

// ValidationError lists field-level problems found while saving.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// Add records msg against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// SaveProjectionInput is the editable part of a projection.
// A nil ID creates a new projection; a nil SRID means it was not supplied.
// Extent holds the tokens as submitted, before any count check.
type SaveProjectionInput struct {
	ID          *uuid.UUID
	SRID        *int
	Proj4Params string
	Extent      []string
}

// ProjectionService manages projections and imports their metadata.
type ProjectionService interface {
	List(ctx context.Context) ([]*models.Projection, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Projection, error)
	// Save validates input and creates or updates a projection.
	// Returns *ValidationError when input is invalid and apperrors.ErrNotFound
	// when input.ID does not exist.
	Save(ctx context.Context, input *SaveProjectionInput) (*models.Projection, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Import fetches bounds and proj4 text for srid from the external registry.
	Import(ctx context.Context, srid int) (*models.ImportResult, error)
}

type projectionService struct {
	repo     repositories.ProjectionRepository
	refSys   repositories.SpatialRefSysRepository
	registry registry.Registry
	logger   *zap.Logger
}

// NewProjectionService creates a new projection service.
func NewProjectionService(
	repo repositories.ProjectionRepository,
	refSys repositories.SpatialRefSysRepository,
	reg registry.Registry,
	logger *zap.Logger,
) ProjectionService {
	return &projectionService{
		repo:     repo,
		refSys:   refSys,
		registry: reg,
		logger:   logger.Named("projections"),
	}
}

var _ ProjectionService = (*projectionService)(nil)

func (s *projectionService) List(ctx context.Context) ([]*models.Projection, error) {
	projections, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	return projections, nil
}

func (s *projectionService) Get(ctx context.Context, id uuid.UUID) (*models.Projection, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get projection: %w", err)
	}
	if p == nil {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (s *projectionService) Save(ctx context.Context, input *SaveProjectionInput) (*models.Projection, error) {
	proj4 := strings.TrimSpace(input.Proj4Params)
	if proj4 == "" && input.SRID != nil && *input.SRID > 0 {
		proj4 = s.lookupProj4(ctx, *input.SRID)
	}

	extent, extentMsg := extentFromInput(input.Extent)

	verr, err := s.validate(ctx, input.ID, input.SRID, extentMsg)
	if err != nil {
		return nil, err
	}
	if verr.HasErrors() {
		return nil, verr
	}

	if input.ID == nil {
		p := &models.Projection{
			SRID:        *input.SRID,
			Proj4Params: proj4,
			Extent:      extent,
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, s.persistError("create", err)
		}
		s.logger.Info("Created projection",
			zap.String("id", p.ID.String()),
			zap.Int("srid", p.SRID))
		return p, nil
	}

	p, err := s.repo.GetByID(ctx, *input.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load projection: %w", err)
	}
	if p == nil {
		return nil, apperrors.ErrNotFound
	}

	p.SRID = *input.SRID
	p.Proj4Params = proj4
	p.Extent = extent
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, s.persistError("update", err)
	}
	s.logger.Info("Updated projection",
		zap.String("id", p.ID.String()),
		zap.Int("srid", p.SRID))
	return p, nil
}

// lookupProj4 back-fills proj4 text from spatial_ref_sys.
// Any failure yields an empty string.
func (s *projectionService) lookupProj4(ctx context.Context, srid int) string {
	proj4, found, err := s.refSys.LookupProj4(ctx, srid)
	if err != nil {
		s.logger.Debug("spatial_ref_sys lookup failed",
			zap.Int("srid", srid),
			zap.Error(err))
		return ""
	}
	if !found {
		return ""
	}
	return proj4
}

// extentFromInput converts submitted tokens to an Extent, or returns the
// validation message for the extent field.
func extentFromInput(tokens []string) (models.Extent, string) {
	blank := true
	for _, tok := range tokens {
		if strings.TrimSpace(tok) != "" {
			blank = false
			break
		}
	}
	if blank {
		return models.Extent{}, msgExtentRequired
	}

	extent, err := models.NewExtent(tokens)
	if err != nil {
		return models.Extent{}, msgExtentFormat
	}
	if utf8.RuneCountInString(extent.String()) > models.MaxExtentLength {
		return models.Extent{}, msgExtentTooLong
	}
	return extent, ""
}

func (s *projectionService) validate(ctx context.Context, id *uuid.UUID, srid *int, extentMsg string) (*ValidationError, error) {
	verr := &ValidationError{}

	if srid == nil || *srid <= 0 {
		verr.Add("srid", msgSRIDRequired)
	} else {
		exclude := uuid.Nil
		if id != nil {
			exclude = *id
		}
		taken, err := s.repo.SRIDTaken(ctx, *srid, exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to check srid uniqueness: %w", err)
		}
		if taken {
			verr.Add("srid", msgSRIDTaken)
		}
	}

	if extentMsg != "" {
		verr.Add("extent", extentMsg)
	}

	return verr, nil
}

// persistError maps a unique violation that slipped past validation
// to the same field error validation would have produced.
func (s *projectionService) persistError(op string, err error) error {
	if errors.Is(err, apperrors.ErrConflict) {
		verr := &ValidationError{}
		verr.Add("srid", msgSRIDTaken)
		return verr
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("failed to %s projection: %w", op, err)
}

func (s *projectionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to delete projection: %w", err)
	}
	s.logger.Info("Deleted projection", zap.String("id", id.String()))
	return nil
}

func (s *projectionService) Import(ctx context.Context, srid int) (*models.ImportResult, error) {
	result, err := s.registry.Import(ctx, srid)
	if err != nil {
		return nil, fmt.Errorf("failed to import srid %d: %w", srid, err)
	}
	return result, nil
}
