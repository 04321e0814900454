package api

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/orbitdeck/model"
)

var (
	ErrInvalidCriteria = errors.New("invalid criteria")
	ErrInvalidHitTest  = errors.New("invalid hit test")
)

// ValidateCriteriaPatch performs structural validation of a partial criteria
// update before it reaches the engine.
func ValidateCriteriaPatch(patch model.CriteriaPatch) error {
	if patch.MaxCount != nil && *patch.MaxCount <= 0 {
		return fmt.Errorf("%w: max_count must be positive", ErrInvalidCriteria)
	}
	if patch.ZoomLevel != nil && *patch.ZoomLevel < 0 {
		return fmt.Errorf("%w: zoom_level cannot be negative", ErrInvalidCriteria)
	}
	for category, quota := range patch.CategoryQuotas {
		if quota < 0 {
			return fmt.Errorf("%w: quota for category %q cannot be negative", ErrInvalidCriteria, category)
		}
	}
	if patch.Region != nil {
		if patch.ClearRegion {
			return fmt.Errorf("%w: region and clear_region are mutually exclusive", ErrInvalidCriteria)
		}
		if err := validateRegion(*patch.Region); err != nil {
			return err
		}
	}
	for _, id := range patch.AlwaysIncludeIDs {
		if id == "" {
			return fmt.Errorf("%w: always_include_ids contains an empty ID", ErrInvalidCriteria)
		}
	}
	return nil
}

func validateRegion(box model.BBox) error {
	if box.MinLat < -90 || box.MaxLat > 90 {
		return fmt.Errorf("%w: region latitudes must be within [-90, 90]", ErrInvalidCriteria)
	}
	if box.MinLat > box.MaxLat {
		return fmt.Errorf("%w: region min_lat exceeds max_lat", ErrInvalidCriteria)
	}
	if box.MinLon < -180 || box.MinLon > 180 || box.MaxLon < -180 || box.MaxLon > 180 {
		return fmt.Errorf("%w: region longitudes must be within [-180, 180]", ErrInvalidCriteria)
	}
	return nil
}

func validateHitTest(req hitTestRequest) error {
	if req.Direction.X == 0 && req.Direction.Y == 0 && req.Direction.Z == 0 {
		return fmt.Errorf("%w: direction must be non-zero", ErrInvalidHitTest)
	}
	if req.ToleranceKm <= 0 {
		return fmt.Errorf("%w: tolerance_km must be positive", ErrInvalidHitTest)
	}
	return nil
}
