// README: Google Maps geocoding for job site coordinates.
package profile

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"plow/internal/types"
)

type GoogleGeocoder struct {
	client *maps.Client
	region string
}

// NewGoogleGeocoder creates a geocoder biased to region (ccTLD, e.g. "ca").
func NewGoogleGeocoder(apiKey, region string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client, region: region}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (*types.Point, error) {
	res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  g.region,
	})
	if err != nil {
		return nil, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNoGeocodeResult
	}
	loc := res[0].Geometry.Location
	return &types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// StaticGeocoder answers from a fixed table. Used when no Maps key is set.
type StaticGeocoder map[string]types.Point

func (g StaticGeocoder) Geocode(_ context.Context, address string) (*types.Point, error) {
	p, ok := g[address]
	if !ok {
		return nil, ErrNoGeocodeResult
	}
	return &p, nil
}
