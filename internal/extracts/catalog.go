// Package extracts implements the optional extract-catalog collaborator
// from §6: given a caller geometry instead of a PBF path, a Catalog lists
// available regional extracts and the greedy IoU cover picks the smallest
// sufficient set to download and merge. No concrete HTTP-backed catalog
// ships here (no extract index or HTTP client is present anywhere in the
// example pack to ground one against); only the interface and the
// selection algorithm are implemented.
package extracts

import (
	"context"

	"github.com/paulmach/orb"
)

// Extract describes one entry in a catalog: an id, a human-readable full
// name (e.g. "France/Provence-Alpes-Cote-d-Azur"), its coverage geometry,
// a download URL, and its approximate area in square kilometers.
type Extract struct {
	ID      string
	Name    string
	Geometry orb.MultiPolygon
	URL     string
	AreaKm2 float64
}

// Catalog is the external collaborator a caller may supply so the core can
// discover PBF extracts covering a geometry filter instead of requiring an
// explicit input file.
type Catalog interface {
	// ListExtracts returns every extract known to the catalog. Implementations
	// are free to cache or page internally; the core calls this once per run.
	ListExtracts(ctx context.Context) ([]Extract, error)
	// Download fetches the extract identified by id and returns a local file
	// path to the downloaded PBF.
	Download(ctx context.Context, id string) (string, error)
}
