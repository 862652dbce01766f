// README: Open job board: untargeted pending jobs indexed by site location.
package matching

import (
	"context"

	"plow/internal/types"
)

// Board lists jobs any operator may accept. It is a discovery index only;
// the job store stays authoritative and callers re-check status.
type Board interface {
	Publish(ctx context.Context, jobID types.ID, site types.Point) error
	Withdraw(ctx context.Context, jobID types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Hit, error)
}

type Hit struct {
	JobID      types.ID `json:"job_id"`
	DistanceKm float64  `json:"distance_km"`
}

const (
	// defaultRadiusKm bounds a board query when the caller gives none.
	defaultRadiusKm = 25.0
	// maxResults caps a single board page.
	maxResults = 50
)

// Clamp normalises a caller's radius and limit.
func Clamp(radiusKm float64, limit int) (float64, int) {
	if radiusKm <= 0 {
		radiusKm = defaultRadiusKm
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}
	return radiusKm, limit
}
