package model

import "time"

// Category labels a catalog feed group (e.g. "stations", "gps-ops", "weather").
type Category string

// OrbitalElements carries the raw TLE line pair for a catalog object plus the
// parsed fields the curation layer needs for scoring and diversity bucketing.
// Position at a given time is always derived from the raw lines, not from the
// parsed summary fields.
type OrbitalElements struct {
	Line1 string
	Line2 string

	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	// MeanMotion is in revolutions per day.
	MeanMotion float64
	Epoch      time.Time
}

// CatalogEntry is one externally-sourced trackable object. ID is the stable
// external catalog number (NORAD-style, as a string). Uniqueness is enforced
// at merge time; on collision the entry with the most recent Epoch wins.
type CatalogEntry struct {
	ID       string
	Name     string
	Category Category
	Elements OrbitalElements
	Epoch    time.Time
	IsActive bool
}
