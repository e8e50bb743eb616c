// Package models contains domain types for ekaya-projections.
package models

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// MaxExtentLength is the maximum length of the serialized extent column.
const MaxExtentLength = 255

// Projection is a spatial reference system definition managed by admins.
// Stored in the projections table.
type Projection struct {
	ID          uuid.UUID `json:"id"`
	SRID        int       `json:"srid"`
	Proj4Params string    `json:"proj4_params"`
	Extent      Extent    `json:"extent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Extent is the bounding box of a projection's valid domain in
// minX minY maxX maxY order. Tokens are kept as entered; no numeric
// normalization is applied.
type Extent [4]string

// ErrExtentFormat is returned by NewExtent for anything other than four
// non-blank tokens without inner whitespace.
var ErrExtentFormat = errors.New("extent must be four values without spaces")

// NewExtent builds an Extent from user supplied tokens. Surrounding
// whitespace is trimmed; every token must be non-blank and contain no
// whitespace so that the stored form splits back into the same four values.
func NewExtent(tokens []string) (Extent, error) {
	var e Extent
	if len(tokens) != len(e) {
		return Extent{}, ErrExtentFormat
	}
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || strings.ContainsFunc(tok, unicode.IsSpace) {
			return Extent{}, ErrExtentFormat
		}
		e[i] = tok
	}
	return e, nil
}

// ParseExtent splits a stored extent string on whitespace.
// A blank string yields four empty tokens. Tokens past the fourth are dropped.
func ParseExtent(s string) Extent {
	var e Extent
	for i, field := range strings.Fields(s) {
		if i >= len(e) {
			break
		}
		e[i] = field
	}
	return e
}

// String joins the four tokens with single spaces, the stored form.
func (e Extent) String() string {
	return strings.Join(e[:], " ")
}

// ImportResult is what the external registry yields for one SRID.
type ImportResult struct {
	SRID   int    `json:"srid"`
	Bounds Extent `json:"bounds"`
	Proj4  string `json:"proj4"`
}
