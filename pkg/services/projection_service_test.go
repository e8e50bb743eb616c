package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/models"
	"github.com/ekaya-inc/ekaya-projections/pkg/registry"
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

var (
	wgs84Extent = models.Extent{"-180", "-90", "180", "90"}
	wgs84Tokens = []string{"-180", "-90", "180", "90"}
)

type projectionServiceFixture struct {
	svc      ProjectionService
	repo     *mockProjectionRepository
	refSys   *mockSpatialRefSysRepository
	registry *mockRegistry
}

func setupProjectionServiceTest(t *testing.T, seed ...*models.Projection) *projectionServiceFixture {
	t.Helper()

	f := &projectionServiceFixture{
		repo:     newMockProjectionRepository(seed...),
		refSys:   &mockSpatialRefSysRepository{proj4: map[int]string{4326: wgs84Proj4}},
		registry: &mockRegistry{},
	}
	f.svc = NewProjectionService(f.repo, f.refSys, f.registry, zap.NewNop())
	return f
}

func intPtr(v int) *int { return &v }

func requireValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr
}

func TestProjectionService_Save_Create(t *testing.T) {
	f := setupProjectionServiceTest(t)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:        intPtr(3857),
		Proj4Params: "+proj=merc",
		Extent:      []string{" -1 ", "-2", "3", "4"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, 3857, p.SRID)
	assert.Equal(t, "+proj=merc", p.Proj4Params)
	assert.Equal(t, models.Extent{"-1", "-2", "3", "4"}, p.Extent, "tokens are trimmed")
	assert.Equal(t, 1, f.repo.creates)
	assert.Equal(t, 0, f.refSys.calls, "explicit proj4 skips the lookup")
}

func TestProjectionService_Save_BackfillsProj4(t *testing.T) {
	f := setupProjectionServiceTest(t)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	require.NoError(t, err)
	assert.Equal(t, wgs84Proj4, p.Proj4Params)
}

func TestProjectionService_Save_BackfillMissLeavesEmpty(t *testing.T) {
	f := setupProjectionServiceTest(t)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:        intPtr(2056),
		Proj4Params: "   ",
		Extent:      wgs84Tokens,
	})
	require.NoError(t, err)
	assert.Empty(t, p.Proj4Params)
	assert.Equal(t, 1, f.refSys.calls)
}

func TestProjectionService_Save_BackfillErrorIgnored(t *testing.T) {
	f := setupProjectionServiceTest(t)
	f.refSys.err = errors.New(`relation "public.spatial_ref_sys" does not exist`)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	require.NoError(t, err)
	assert.Empty(t, p.Proj4Params)
}

func TestProjectionService_Save_Validation(t *testing.T) {
	tooLong := []string{strings.Repeat("1", 100), strings.Repeat("2", 100), "3", strings.Repeat("4", 60)}

	tests := []struct {
		name   string
		input  *SaveProjectionInput
		fields map[string][]string
	}{
		{
			name:   "missing srid",
			input:  &SaveProjectionInput{Extent: wgs84Tokens},
			fields: map[string][]string{"srid": {msgSRIDRequired}},
		},
		{
			name:   "zero srid",
			input:  &SaveProjectionInput{SRID: intPtr(0), Extent: wgs84Tokens},
			fields: map[string][]string{"srid": {msgSRIDRequired}},
		},
		{
			name:   "missing extent",
			input:  &SaveProjectionInput{SRID: intPtr(4326)},
			fields: map[string][]string{"extent": {msgExtentRequired}},
		},
		{
			name:   "blank extent",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: []string{" ", "", "", "  "}},
			fields: map[string][]string{"extent": {msgExtentRequired}},
		},
		{
			name:   "leading blank token",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: []string{"", "-90.0", "180.0", "90.0"}},
			fields: map[string][]string{"extent": {msgExtentFormat}},
		},
		{
			name:   "two values in one token",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: []string{"-180.0 -90.0", "", "180.0", "90.0"}},
			fields: map[string][]string{"extent": {msgExtentFormat}},
		},
		{
			name:   "five tokens",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: []string{"1", "2", "3", "4", "5"}},
			fields: map[string][]string{"extent": {msgExtentFormat}},
		},
		{
			name:   "three tokens",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: []string{"1", "2", "3"}},
			fields: map[string][]string{"extent": {msgExtentFormat}},
		},
		{
			name:   "extent too long",
			input:  &SaveProjectionInput{SRID: intPtr(4326), Extent: tooLong},
			fields: map[string][]string{"extent": {msgExtentTooLong}},
		},
		{
			name:  "everything missing",
			input: &SaveProjectionInput{},
			fields: map[string][]string{
				"srid":   {msgSRIDRequired},
				"extent": {msgExtentRequired},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupProjectionServiceTest(t)

			_, err := f.svc.Save(context.Background(), tt.input)
			verr := requireValidationError(t, err)
			assert.Equal(t, tt.fields, verr.Fields)
			assert.Equal(t, 0, f.repo.creates, "nothing is written on validation failure")
		})
	}
}

func TestProjectionService_Save_ExtentAtLimit(t *testing.T) {
	f := setupProjectionServiceTest(t)
	// 3 separators + 252 characters of tokens = 255
	atLimit := []string{strings.Repeat("1", 63), strings.Repeat("2", 63), strings.Repeat("3", 63), strings.Repeat("4", 63)}
	require.Len(t, strings.Join(atLimit, " "), models.MaxExtentLength)

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{SRID: intPtr(4326), Extent: atLimit})
	require.NoError(t, err)
}

func TestProjectionService_Save_ExtentLengthCountsCharacters(t *testing.T) {
	f := setupProjectionServiceTest(t)
	// 255 characters but well over 255 bytes
	wide := strings.Repeat("é", 63)
	atLimit := []string{wide, wide, wide, wide}
	require.Greater(t, len(strings.Join(atLimit, " ")), models.MaxExtentLength)

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{SRID: intPtr(4326), Extent: atLimit})
	require.NoError(t, err)

	_, err = f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(3857),
		Extent: []string{wide, wide, wide, wide + "é"},
	})
	verr := requireValidationError(t, err)
	assert.Equal(t, []string{msgExtentTooLong}, verr.Fields["extent"])
}

func TestProjectionService_Save_ExtentRoundTrips(t *testing.T) {
	f := setupProjectionServiceTest(t)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: []string{"-180.0", " -90.0", "180.0 ", "90.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, p.Extent, models.ParseExtent(p.Extent.String()))
}

func TestProjectionService_Save_DuplicateSRID(t *testing.T) {
	existing := &models.Projection{ID: uuid.New(), SRID: 4326, Extent: wgs84Extent}
	f := setupProjectionServiceTest(t, existing)

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	verr := requireValidationError(t, err)
	assert.Equal(t, []string{msgSRIDTaken}, verr.Fields["srid"])
	assert.Equal(t, 0, f.repo.creates)
}

func TestProjectionService_Save_UpdateKeepsOwnSRID(t *testing.T) {
	existing := &models.Projection{ID: uuid.New(), SRID: 4326, Extent: wgs84Extent}
	f := setupProjectionServiceTest(t, existing)

	p, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		ID:          &existing.ID,
		SRID:        intPtr(4326),
		Proj4Params: "+proj=longlat",
		Extent:      []string{"-10", "-10", "10", "10"},
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, p.ID)
	assert.Equal(t, models.Extent{"-10", "-10", "10", "10"}, p.Extent)
	assert.Equal(t, 1, f.repo.updates)
	assert.Equal(t, 0, f.repo.creates)
}

func TestProjectionService_Save_UpdateToTakenSRID(t *testing.T) {
	a := &models.Projection{ID: uuid.New(), SRID: 4326, Extent: wgs84Extent}
	b := &models.Projection{ID: uuid.New(), SRID: 3857, Extent: wgs84Extent}
	f := setupProjectionServiceTest(t, a, b)

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		ID:     &b.ID,
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	verr := requireValidationError(t, err)
	assert.Contains(t, verr.Fields, "srid")
}

func TestProjectionService_Save_UnknownID(t *testing.T) {
	f := setupProjectionServiceTest(t)
	missing := uuid.New()

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		ID:     &missing,
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 0, f.repo.creates, "unknown id must not fall back to insert")
}

func TestProjectionService_Save_RaceMapsToValidation(t *testing.T) {
	f := setupProjectionServiceTest(t)
	f.repo.conflictOnWrite = true

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	verr := requireValidationError(t, err)
	assert.Equal(t, []string{msgSRIDTaken}, verr.Fields["srid"])
}

func TestProjectionService_Save_RepositoryError(t *testing.T) {
	f := setupProjectionServiceTest(t)
	f.repo.err = errors.New("connection reset")

	_, err := f.svc.Save(context.Background(), &SaveProjectionInput{
		SRID:   intPtr(4326),
		Extent: wgs84Tokens,
	})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProjectionService_GetAndDelete(t *testing.T) {
	existing := &models.Projection{ID: uuid.New(), SRID: 4326, Extent: wgs84Extent}
	f := setupProjectionServiceTest(t, existing)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 4326, got.SRID)

	require.NoError(t, f.svc.Delete(ctx, existing.ID))

	_, err = f.svc.Get(ctx, existing.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = f.svc.Delete(ctx, existing.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProjectionService_List_OrderedBySRID(t *testing.T) {
	f := setupProjectionServiceTest(t,
		&models.Projection{ID: uuid.New(), SRID: 4326},
		&models.Projection{ID: uuid.New(), SRID: 2056},
		&models.Projection{ID: uuid.New(), SRID: 3857},
	)

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{2056, 3857, 4326}, []int{list[0].SRID, list[1].SRID, list[2].SRID})
}

func TestProjectionService_Import(t *testing.T) {
	f := setupProjectionServiceTest(t)
	f.registry.result = &models.ImportResult{SRID: 4326, Bounds: models.Extent{"-180.0", "-90.0", "180.0", "90.0"}, Proj4: wgs84Proj4}

	result, err := f.svc.Import(context.Background(), 4326)
	require.NoError(t, err)
	assert.Equal(t, "-180.0", result.Bounds[0])
	assert.Equal(t, []int{4326}, f.registry.srids)
}

func TestProjectionService_Import_ErrorKeepsKind(t *testing.T) {
	f := setupProjectionServiceTest(t)
	f.registry.err = &registry.ImportError{SRID: 1, Kind: registry.ErrParseFailed, Err: errors.New("could not parse bounds floats")}

	_, err := f.svc.Import(context.Background(), 1)
	assert.ErrorIs(t, err, registry.ErrParseFailed)
}

func TestValidationError_Error(t *testing.T) {
	verr := &ValidationError{}
	assert.False(t, verr.HasErrors())

	verr.Add("srid", msgSRIDRequired)
	verr.Add("extent", msgExtentRequired)
	assert.True(t, verr.HasErrors())
	assert.Equal(t, "validation failed: extent, srid", verr.Error())
}
