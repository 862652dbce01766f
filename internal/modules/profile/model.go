// README: Read-only profile lookups (locations, payout accounts, device tokens).
package profile

import (
	"context"
	"errors"

	"plow/internal/types"
)

// Provider is the read side used by the job engine. Unknown values are
// reported as nil/empty, not as errors.
type Provider interface {
	Location(ctx context.Context, userID types.ID) (*types.Point, error)
	PayoutDestination(ctx context.Context, operatorID types.ID) (string, error)
	DeviceToken(ctx context.Context, userID types.ID) (string, error)
}

// Writer updates profile data. It belongs to the profile surface, never to
// job handling.
type Writer interface {
	SetLocation(ctx context.Context, userID types.ID, p types.Point) error
	SetPayoutDestination(ctx context.Context, operatorID types.ID, dest string) error
	SetDeviceToken(ctx context.Context, userID types.ID, token string) error
}

// Geocoder resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*types.Point, error)
}

var (
	ErrInvalidLocation = errors.New("invalid location")
	ErrNoGeocodeResult = errors.New("address not found")
)

// ValidPoint reports whether p is a real coordinate.
func ValidPoint(p types.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
