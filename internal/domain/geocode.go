package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrNoLocation is returned when a request carries neither coordinates nor a place name.
	ErrNoLocation = errors.New("either coordinates or a place name is required")
	// ErrGeocodingDisabled is returned when a place name cannot be resolved
	// because no geocoder is configured.
	ErrGeocodingDisabled = errors.New("place name given but geocoding is disabled")
	// ErrPlaceNotFound is returned when the geocoder has no match for a place name.
	ErrPlaceNotFound = errors.New("place not found")
)

// Location is a query point with optional place details.
type Location struct {
	Point
	PlaceName        string `json:"place_name,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
	GeoSource        string `json:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"
}

// ResolveLocation turns a request's coordinates or place name into a Location.
// Given coordinates always win; reverse geocoding only adds a label and its
// failure is tolerated. A place name without coordinates must resolve.
func ResolveLocation(ctx context.Context, pt *Point, place string, geocoder Geocoder, logger *slog.Logger) (Location, error) {
	place = strings.TrimSpace(place)

	if pt != nil {
		loc := Location{Point: *pt, GeoSource: "original"}
		if err := pt.Validate(); err != nil {
			return Location{}, err
		}
		if geocoder == nil {
			return loc, nil
		}
		result, err := geocoder.ReverseGeocode(ctx, pt.Lat, pt.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"lat", pt.Lat,
				"lon", pt.Lon,
				"error", err,
			)
			loc.GeoSource = "failed"
			return loc, nil
		}
		if result.FormattedAddress != "" {
			loc.PlaceName = result.PlaceName
			loc.FormattedAddress = result.FormattedAddress
			loc.GeoSource = "reverse"
		}
		return loc, nil
	}

	if place == "" {
		return Location{}, ErrNoLocation
	}
	if geocoder == nil {
		return Location{}, ErrGeocodingDisabled
	}

	result, err := geocoder.ForwardGeocode(ctx, place)
	if err != nil {
		return Location{}, fmt.Errorf("forward geocode %q: %w", place, err)
	}
	if result.Lat == 0 && result.Lon == 0 {
		return Location{}, fmt.Errorf("%q: %w", place, ErrPlaceNotFound)
	}
	return Location{
		Point:            Point{Lat: result.Lat, Lon: result.Lon},
		PlaceName:        result.PlaceName,
		FormattedAddress: result.FormattedAddress,
		GeoSource:        "forward",
	}, nil
}
