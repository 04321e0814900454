package model

// BBox is a geographic bounding box in degrees. Longitude bounds may wrap
// across the antimeridian (MinLon > MaxLon).
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the given subsatellite point falls inside the box.
func (b BBox) Contains(latDeg, lonDeg float64) bool {
	if latDeg < b.MinLat || latDeg > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return lonDeg >= b.MinLon && lonDeg <= b.MaxLon
	}
	// Wrapped box: valid longitudes are outside the (MaxLon, MinLon) gap.
	return lonDeg >= b.MinLon || lonDeg <= b.MaxLon
}

// SelectionCriteria parameterises one selection run. AlwaysIncludeIDs are
// pinned to tier Hero and never dropped; CategoryQuotas cap how many entries
// a category may contribute through the quota phase.
type SelectionCriteria struct {
	MaxCount         int
	AlwaysIncludeIDs map[string]struct{}
	CategoryQuotas   map[Category]int
	Region           *BBox
	ZoomLevel        float64
	SearchText       string
}

// Clone returns a deep copy so a committed criteria value is never mutated
// behind an in-flight recompute.
func (c SelectionCriteria) Clone() SelectionCriteria {
	out := c
	if c.AlwaysIncludeIDs != nil {
		out.AlwaysIncludeIDs = make(map[string]struct{}, len(c.AlwaysIncludeIDs))
		for id := range c.AlwaysIncludeIDs {
			out.AlwaysIncludeIDs[id] = struct{}{}
		}
	}
	if c.CategoryQuotas != nil {
		out.CategoryQuotas = make(map[Category]int, len(c.CategoryQuotas))
		for cat, n := range c.CategoryQuotas {
			out.CategoryQuotas[cat] = n
		}
	}
	if c.Region != nil {
		r := *c.Region
		out.Region = &r
	}
	return out
}

// CriteriaPatch is a partial criteria update. Nil fields leave the current
// value unchanged; ClearRegion removes an existing region filter.
type CriteriaPatch struct {
	MaxCount         *int             `json:"max_count,omitempty"`
	ZoomLevel        *float64         `json:"zoom_level,omitempty"`
	SearchText       *string          `json:"search_text,omitempty"`
	Region           *BBox            `json:"region,omitempty"`
	ClearRegion      bool             `json:"clear_region,omitempty"`
	CategoryQuotas   map[Category]int `json:"category_quotas,omitempty"`
	AlwaysIncludeIDs []string         `json:"always_include_ids,omitempty"`
}

// ScoreWeights holds the relative weighting of recency, category importance
// and region relevance in the priority score.
type ScoreWeights struct {
	Recency            float64
	CategoryImportance float64
	RegionRelevance    float64

	// CategoryRank maps a category to its importance in [0,1]. Unlisted
	// categories rank 0.
	CategoryRank map[Category]float64
}
