package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-projections/pkg/auth"
	"github.com/ekaya-inc/ekaya-projections/pkg/registry"
	"github.com/ekaya-inc/ekaya-projections/pkg/services"
)

// DefaultBasePath is where the projection admin is mounted.
const DefaultBasePath = "/admin/projections"

const (
	maxSaveBodyBytes = 1 << 20
	msgSaved         = "Projection saved"
	msgDeleted       = "Projection deleted"
)

// ScopeMiddleware attaches a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// Flasher carries one-shot messages across a redirect.
type Flasher interface {
	AddFlash(w http.ResponseWriter, r *http.Request, msg string) error
	Flashes(w http.ResponseWriter, r *http.Request) []string
}

// PageRenderer renders an HTML page.
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, page string, data any) error
}

// ProjectionsHandler serves the projection admin pages and endpoints.
type ProjectionsHandler struct {
	service  services.ProjectionService
	views    PageRenderer
	flashes  Flasher
	basePath string
	logger   *zap.Logger
}

// NewProjectionsHandler creates a new projections handler mounted at basePath.
func NewProjectionsHandler(
	service services.ProjectionService,
	views PageRenderer,
	flashes Flasher,
	basePath string,
	logger *zap.Logger,
) *ProjectionsHandler {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &ProjectionsHandler{
		service:  service,
		views:    views,
		flashes:  flashes,
		basePath: strings.TrimRight(basePath, "/"),
		logger:   logger,
	}
}

// RegisterRoutes registers the projection admin routes. Every route
// requires adminRole; all but import also get a database scope.
func (h *ProjectionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminRole string, scope ScopeMiddleware) {
	admin := authMiddleware.RequireAdmin(adminRole)
	b := h.basePath

	mux.HandleFunc("GET "+b+"/list", admin(scope(h.List)))
	mux.HandleFunc("GET "+b+"/form", admin(scope(h.Form)))
	mux.HandleFunc("GET "+b+"/form/{id}", admin(scope(h.Form)))
	mux.HandleFunc("POST "+b+"/save", admin(scope(h.Save)))
	mux.HandleFunc("GET "+b+"/json", admin(scope(h.JSON)))
	mux.HandleFunc("POST "+b+"/delete/{id}", admin(scope(h.Delete)))
	mux.HandleFunc("GET "+b+"/import/{srid}", admin(h.Import))
}

// List renders the projection index page.
func (h *ProjectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	projections, err := h.service.List(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list projections", err)
		return
	}

	view := ListView{
		BasePath:    h.basePath,
		Flashes:     h.flashes.Flashes(w, r),
		Projections: projections,
	}
	if err := h.views.Render(w, http.StatusOK, PageProjectionList, view); err != nil {
		h.logger.Error("Failed to render projection list", zap.Error(err))
	}
}

// Form renders the edit form, blank when no id is in the path.
func (h *ProjectionsHandler) Form(w http.ResponseWriter, r *http.Request) {
	view := FormView{BasePath: h.basePath}

	if r.PathValue("id") != "" {
		id, ok := ParseProjectionID(w, r, h.logger)
		if !ok {
			return
		}
		p, err := h.service.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				h.notFound(w)
				return
			}
			h.internalError(w, "Failed to load projection", err)
			return
		}
		view.Projection = p
		view.Extent = p.Extent
	}

	view.Flashes = h.flashes.Flashes(w, r)
	if err := h.views.Render(w, http.StatusOK, PageProjectionForm, view); err != nil {
		h.logger.Error("Failed to render projection form", zap.Error(err))
	}
}

// Save validates and stores a projection from a JSON or form body.
func (h *ProjectionsHandler) Save(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSaveBodyBytes)

	input, err := h.decodeSaveInput(r)
	if err != nil {
		if errors.Is(err, errInvalidProjectionID) {
			h.writeError(w, http.StatusBadRequest, "invalid_projection_id", "Invalid projection ID format")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.service.Save(r.Context(), input)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			if err := WriteJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Errors: verr.Fields}); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrNotFound):
			h.notFound(w)
		default:
			h.internalError(w, "Failed to save projection", err)
		}
		return
	}

	h.logger.Info("Projection saved",
		zap.String("id", p.ID.String()),
		zap.Int("srid", p.SRID),
		zap.String("user", auth.GetUserLabel(r.Context())))

	resp := SaveResponse{Success: msgSaved, Redirect: h.basePath + "/list"}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// JSON returns every projection as {"data": [...]}.
func (h *ProjectionsHandler) JSON(w http.ResponseWriter, r *http.Request) {
	projections, err := h.service.List(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list projections", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, DataResponse{Data: projections}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete removes a projection and redirects to the list.
func (h *ProjectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w)
			return
		}
		h.internalError(w, "Failed to delete projection", err)
		return
	}

	h.logger.Info("Projection deleted",
		zap.String("id", id.String()),
		zap.String("user", auth.GetUserLabel(r.Context())))

	if err := h.flashes.AddFlash(w, r, msgDeleted); err != nil {
		h.logger.Warn("Failed to set flash message", zap.Error(err))
	}
	http.Redirect(w, r, h.basePath+"/list", http.StatusSeeOther)
}

// Import looks up bounds and proj4 text for an SRID in the external registry.
// Failures of any kind answer {"success": false}; the cause is only logged.
func (h *ProjectionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("srid")
	srid := CoerceSRID(raw)

	result, err := h.service.Import(r.Context(), srid)
	if err != nil {
		kind := "unknown"
		switch {
		case errors.Is(err, registry.ErrParseFailed):
			kind = "parse"
		case errors.Is(err, registry.ErrFetchFailed):
			kind = "fetch"
		}
		h.logger.Warn("Projection import failed",
			zap.String("srid_param", raw),
			zap.Int("srid", srid),
			zap.String("kind", kind),
			zap.Error(err))
		if err := WriteJSON(w, http.StatusOK, ImportResponse{Success: false}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	bounds := result.Bounds
	resp := ImportResponse{Success: true, Bounds: &bounds, Proj4: result.Proj4}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

var errInvalidProjectionID = errors.New("invalid projection id")

// saveRequest is the JSON save body. srid and extent accept more than one shape.
type saveRequest struct {
	ID          string          `json:"id"`
	SRID        json.RawMessage `json:"srid"`
	Proj4Params string          `json:"proj4_params"`
	Extent      json.RawMessage `json:"extent"`
}

func (h *ProjectionsHandler) decodeSaveInput(r *http.Request) (*services.SaveProjectionInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return decodeSaveJSON(r)
	}
	return decodeSaveForm(r)
}

func decodeSaveJSON(r *http.Request) (*services.SaveProjectionInput, error) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	id, err := parseOptionalID(req.ID)
	if err != nil {
		return nil, err
	}

	srid, err := decodeSRID(req.SRID)
	if err != nil {
		return nil, err
	}

	extent, err := decodeExtent(req.Extent)
	if err != nil {
		return nil, err
	}

	return &services.SaveProjectionInput{
		ID:          id,
		SRID:        srid,
		Proj4Params: req.Proj4Params,
		Extent:      extent,
	}, nil
}

func decodeSaveForm(r *http.Request) (*services.SaveProjectionInput, error) {
	if err := r.ParseMultipartForm(maxSaveBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	form := r.PostForm

	id, err := parseOptionalID(form.Get("id"))
	if err != nil {
		return nil, err
	}

	var srid *int
	if v := strings.TrimSpace(form.Get("srid")); v != "" {
		n := CoerceSRID(v)
		srid = &n
	}

	extent, ok := form["extent[]"]
	if !ok {
		extent = strings.Fields(form.Get("extent"))
	}

	return &services.SaveProjectionInput{
		ID:          id,
		SRID:        srid,
		Proj4Params: form.Get("proj4_params"),
		Extent:      extent,
	}, nil
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errInvalidProjectionID
	}
	return &id, nil
}

// decodeSRID accepts a JSON number or string. Absent, null and "" mean not supplied.
func decodeSRID(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid srid: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
	} else {
		s = string(raw)
	}

	n := CoerceSRID(s)
	return &n, nil
}

// decodeExtent accepts an array of strings or numbers, or a single space
// separated string. Tokens are returned as sent; the service checks the count.
func decodeExtent(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid extent: %w", err)
		}
		return strings.Fields(s), nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("extent must be a string or an array: %w", err)
	}

	extent := make([]string, len(parts))
	for i, part := range parts {
		part = bytes.TrimSpace(part)
		if len(part) > 0 && part[0] == '"' {
			if err := json.Unmarshal(part, &extent[i]); err != nil {
				return nil, fmt.Errorf("invalid extent value: %w", err)
			}
			continue
		}
		if !bytes.Equal(part, []byte("null")) {
			// numbers keep their literal text
			extent[i] = string(part)
		}
	}
	return extent, nil
}

func (h *ProjectionsHandler) notFound(w http.ResponseWriter) {
	h.writeError(w, http.StatusNotFound, "projection_not_found", "Projection not found")
}

func (h *ProjectionsHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", msg)
}

func (h *ProjectionsHandler) writeError(w http.ResponseWriter, status int, code, msg string) {
	if err := ErrorResponse(w, status, code, msg); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
