package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// boundsPattern matches four comma separated decimals, e.g. "-180.0, -90.0, 180.0, 90.0".
var boundsPattern = regexp.MustCompile(`(?im)(-?\d+\.\d+),\s*(-?\d+\.\d+),\s*(-?\d+\.\d+),\s*(-?\d+\.\d+)`)

// boundsItemIndex is the position of the WGS84 bounds entry in the
// registry page's summary list.
const boundsItemIndex = 1

var (
	errBoundsItemMissing = errors.New("bounds list item not found")
	errBoundsNoMatch     = errors.New("could not parse bounds floats")
)

// ParseBounds extracts the bounds quadruple from a registry reference page.
// The page is parsed leniently; malformed markup still yields a tree.
// The bounds live in the second li of body > div#content > ul.
func ParseBounds(r io.Reader) (models.Extent, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return models.Extent{}, fmt.Errorf("failed to parse html: %w", err)
	}

	items := contentListItems(doc)
	if len(items) <= boundsItemIndex {
		return models.Extent{}, errBoundsItemMissing
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, items[boundsItemIndex]); err != nil {
		return models.Extent{}, fmt.Errorf("failed to render bounds item: %w", err)
	}

	return MatchBounds(buf.String())
}

// MatchBounds applies the bounds pattern to a markup fragment.
func MatchBounds(fragment string) (models.Extent, error) {
	m := boundsPattern.FindStringSubmatch(fragment)
	if m == nil {
		return models.Extent{}, errBoundsNoMatch
	}
	// m[0] is the full match
	return models.Extent{m[1], m[2], m[3], m[4]}, nil
}

// contentListItems returns, in document order, every li that is a child of
// a ul that is a child of div#content that is a child of body.
func contentListItems(doc *html.Node) []*html.Node {
	body := findFirst(doc, atom.Body)
	if body == nil {
		return nil
	}

	var items []*html.Node
	for div := range childElements(body, atom.Div) {
		if attr(div, "id") != "content" {
			continue
		}
		for ul := range childElements(div, atom.Ul) {
			for li := range childElements(ul, atom.Li) {
				items = append(items, li)
			}
		}
	}
	return items
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// childElements yields the direct element children of n with the given tag.
func childElements(n *html.Node, a atom.Atom) func(yield func(*html.Node) bool) {
	return func(yield func(*html.Node) bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == a {
				if !yield(c) {
					return
				}
			}
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
