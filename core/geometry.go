package core

import (
	"math"

	"github.com/signalsfoundry/orbitdeck/model"
)

// EarthRadiusKm is the mean Earth radius used for all simple geometry in the
// curation layer (kilometres).
const EarthRadiusKm = 6371.0

// SubsatellitePoint returns the latitude/longitude (degrees) of the point
// directly beneath an ECEF position. A spherical Earth is good enough for
// region filtering; we are bucketing for display, not targeting.
func SubsatellitePoint(pos model.Vec3) (latDeg, lonDeg float64) {
	r := pos.Norm()
	if r == 0 {
		return 0, 0
	}
	latDeg = math.Asin(pos.Z/r) * 180.0 / math.Pi
	lonDeg = math.Atan2(pos.Y, pos.X) * 180.0 / math.Pi
	return latDeg, lonDeg
}

// Ray is a half-line in ECEF kilometres, used for hit testing picks from the
// host renderer's camera.
type Ray struct {
	Origin    model.Vec3
	Direction model.Vec3
}

// DistanceToPoint returns the shortest distance from the ray to a point.
// Points behind the ray origin measure to the origin itself.
func (r Ray) DistanceToPoint(p model.Vec3) float64 {
	d := r.Direction
	dNorm := d.Norm()
	if dNorm == 0 {
		return r.Origin.DistanceTo(p)
	}
	d = d.Scale(1 / dNorm)

	v := p.Sub(r.Origin)
	t := v.Dot(d)
	if t < 0 {
		return r.Origin.DistanceTo(p)
	}
	closest := model.Vec3{
		X: r.Origin.X + d.X*t,
		Y: r.Origin.Y + d.Y*t,
		Z: r.Origin.Z + d.Z*t,
	}
	return closest.DistanceTo(p)
}
