package api

import (
	"time"

	"github.com/signalsfoundry/orbitdeck/model"
)

// vec3JSON is the wire form of an ECEF position or velocity, kilometres.
type vec3JSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// entityJSON is the wire form of one selected entity. Tiers are serialised as
// their names so host UIs never depend on the internal ordering.
type entityJSON struct {
	CatalogID      string    `json:"catalog_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	PriorityScore  float64   `json:"priority_score"`
	Tier           string    `json:"tier"`
	Position       vec3JSON  `json:"position"`
	Velocity       vec3JSON  `json:"velocity"`
	LastComputedAt time.Time `json:"last_computed_at"`
	Pinned         bool      `json:"pinned,omitempty"`
}

type diffJSON struct {
	Added   []entityJSON `json:"added,omitempty"`
	Updated []entityJSON `json:"updated,omitempty"`
	Removed []string     `json:"removed,omitempty"`
}

type hitTestRequest struct {
	Origin      vec3JSON `json:"origin"`
	Direction   vec3JSON `json:"direction"`
	ToleranceKm float64  `json:"tolerance_km"`
}

type hitTestResponse struct {
	Hit    bool        `json:"hit"`
	Entity *entityJSON `json:"entity,omitempty"`
}

type searchResponse struct {
	IDs []string `json:"ids"`
}

type entitiesResponse struct {
	Entities []entityJSON `json:"entities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toVec3JSON(v model.Vec3) vec3JSON {
	return vec3JSON{X: v.X, Y: v.Y, Z: v.Z}
}

func toEntityJSON(e model.SelectedEntity) entityJSON {
	return entityJSON{
		CatalogID:      e.CatalogID,
		Name:           e.Name,
		Category:       string(e.Category),
		PriorityScore:  e.PriorityScore,
		Tier:           e.Tier.String(),
		Position:       toVec3JSON(e.Position),
		Velocity:       toVec3JSON(e.Velocity),
		LastComputedAt: e.LastComputedAt,
		Pinned:         e.Pinned,
	}
}

func toDiffJSON(d model.EntityDiff) diffJSON {
	out := diffJSON{Removed: d.Removed}
	for _, e := range d.Added {
		out.Added = append(out.Added, toEntityJSON(e))
	}
	for _, e := range d.Updated {
		out.Updated = append(out.Updated, toEntityJSON(e))
	}
	return out
}
