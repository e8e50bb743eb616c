package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// Page names, matching template files in the ui package.
const (
	PageProjectionList = "projections.html"
	PageProjectionForm = "projections-edit.html"
)

const layoutTemplate = "layout.html"

// Views renders admin pages from a template filesystem.
type Views struct {
	pages map[string]*template.Template
}

// NewViews parses every page together with the shared layout.
func NewViews(fsys fs.FS) (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template)}
	for _, page := range []string{PageProjectionList, PageProjectionForm} {
		tmpl, err := template.New(layoutTemplate).ParseFS(fsys, layoutTemplate, page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		v.pages[page] = tmpl
	}
	return v, nil
}

// Render executes page into a buffer first so a template error never
// leaves a half-written response.
func (v *Views) Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// ListView is the data for PageProjectionList.
type ListView struct {
	BasePath    string
	Flashes     []string
	Projections []*models.Projection
}

// FormView is the data for PageProjectionForm. Projection is nil for a new record.
type FormView struct {
	BasePath   string
	Flashes    []string
	Projection *models.Projection
	Extent     models.Extent
}

func (f FormView) IsNew() bool {
	return f.Projection == nil
}
