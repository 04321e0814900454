package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

// earthRotationRadPerSec is the Earth's sidereal rotation rate.
const earthRotationRadPerSec = 7.2921159e-5

// Propagator maps orbital elements and a time to an ECEF state vector. It is
// pure and side-effect-free: identical arguments return identical results.
//
// Propagation fidelity is a swappable strategy behind this one signature so
// a higher-fidelity perturbation model can replace the simplified one
// without touching selection or scheduling.
type Propagator interface {
	Propagate(el model.OrbitalElements, at time.Time) (model.StateVector, error)
}

//
// ---------- SGP4 ----------
//

// SGP4Propagator propagates from the raw TLE pair using SGP4 and converts
// ECI to ECEF via GMST. Parsed satellite records are cached keyed by the TLE
// content so repeated batch runs don't re-initialise the model.
type SGP4Propagator struct {
	mu   sync.Mutex
	sats map[string]satellite.Satellite
}

// NewSGP4Propagator creates an SGP4 propagator with an empty record cache.
func NewSGP4Propagator() *SGP4Propagator {
	return &SGP4Propagator{sats: make(map[string]satellite.Satellite)}
}

// Propagate implements Propagator. go-satellite works in kilometres, which
// is the unit this engine exposes throughout.
func (p *SGP4Propagator) Propagate(el model.OrbitalElements, at time.Time) (state model.StateVector, err error) {
	if el.Line1 == "" || el.Line2 == "" {
		return model.StateVector{}, fmt.Errorf("%w: missing TLE lines", ErrPropagation)
	}

	// go-satellite panics rather than returning errors on malformed lines;
	// convert that to the per-entity error contract.
	defer func() {
		if r := recover(); r != nil {
			state = model.StateVector{}
			err = fmt.Errorf("%w: %v", ErrPropagation, r)
		}
	}()

	sat, err := p.record(el)
	if err != nil {
		return model.StateVector{}, err
	}

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	posECI, velECI := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)

	pos := rotateECIToECEF(model.Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}, gmst)
	vel := rotateECIToECEF(model.Vec3{X: velECI.X, Y: velECI.Y, Z: velECI.Z}, gmst)
	// The ECEF frame rotates with the Earth, so remove omega x r.
	vel = model.Vec3{
		X: vel.X + earthRotationRadPerSec*pos.Y,
		Y: vel.Y - earthRotationRadPerSec*pos.X,
		Z: vel.Z,
	}

	if !finite(pos) || !finite(vel) {
		return model.StateVector{}, fmt.Errorf("%w: SGP4 produced non-finite state", ErrPropagation)
	}
	return model.StateVector{Position: pos, Velocity: vel}, nil
}

func (p *SGP4Propagator) record(el model.OrbitalElements) (satellite.Satellite, error) {
	key := el.Line1 + "\n" + el.Line2

	p.mu.Lock()
	defer p.mu.Unlock()
	if sat, ok := p.sats[key]; ok {
		return sat, nil
	}
	sat := satellite.TLEToSat(el.Line1, el.Line2, satellite.GravityWGS72)
	p.sats[key] = sat
	return sat, nil
}

//
// ---------- Simplified two-body ----------
//

// muEarth is the Earth's standard gravitational parameter in km^3/s^2.
const muEarth = 398600.4418

// KeplerPropagator is the simplified approximation strategy: a circular
// two-body orbit derived from mean motion, inclination, and RAAN. Cheap,
// deterministic, and close enough for low-fidelity LOD tiers.
type KeplerPropagator struct{}

// NewKeplerPropagator creates the simplified propagator.
func NewKeplerPropagator() *KeplerPropagator { return &KeplerPropagator{} }

// Propagate implements Propagator.
func (p *KeplerPropagator) Propagate(el model.OrbitalElements, at time.Time) (model.StateVector, error) {
	if el.MeanMotion <= 0 {
		return model.StateVector{}, fmt.Errorf("%w: non-positive mean motion", ErrPropagation)
	}
	if el.Epoch.IsZero() {
		return model.StateVector{}, fmt.Errorf("%w: missing epoch", ErrPropagation)
	}

	n := el.MeanMotion * 2 * math.Pi / 86400.0 // rad/s
	a := math.Cbrt(muEarth / (n * n))          // semi-major axis, km
	speed := math.Sqrt(muEarth / a)            // circular orbital speed, km/s

	// Phase angle from epoch; the epoch itself defines phase zero.
	dt := at.Sub(el.Epoch).Seconds()
	u := math.Mod(n*dt, 2*math.Pi)

	incl := el.InclinationDeg * math.Pi / 180.0
	raan := el.RAANDeg * math.Pi / 180.0

	// Position and velocity in the orbital plane, then rotate by
	// inclination and RAAN into ECI.
	posECI := orbitalToECI(a*math.Cos(u), a*math.Sin(u), incl, raan)
	velECI := orbitalToECI(-speed*math.Sin(u), speed*math.Cos(u), incl, raan)

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))

	pos := rotateECIToECEF(posECI, gmst)
	vel := rotateECIToECEF(velECI, gmst)
	vel = model.Vec3{
		X: vel.X + earthRotationRadPerSec*pos.Y,
		Y: vel.Y - earthRotationRadPerSec*pos.X,
		Z: vel.Z,
	}

	return model.StateVector{Position: pos, Velocity: vel}, nil
}

// orbitalToECI rotates in-plane coordinates (x toward the ascending node)
// into the inertial frame.
func orbitalToECI(x, y, incl, raan float64) model.Vec3 {
	cosR, sinR := math.Cos(raan), math.Sin(raan)
	cosI, sinI := math.Cos(incl), math.Sin(incl)
	return model.Vec3{
		X: x*cosR - y*cosI*sinR,
		Y: x*sinR + y*cosI*cosR,
		Z: y * sinI,
	}
}

// rotateECIToECEF rotates an inertial vector into the Earth-fixed frame for
// the given Greenwich sidereal angle.
func rotateECIToECEF(v model.Vec3, gmst float64) model.Vec3 {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)
	return model.Vec3{
		X: v.X*cosG + v.Y*sinG,
		Y: -v.X*sinG + v.Y*cosG,
		Z: v.Z,
	}
}

func finite(v model.Vec3) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

//
// ---------- Batch propagation ----------
//

// PropagateBatch propagates an arbitrary subset of the catalog to one time.
// A malformed entry is excluded from the result and logged; it never aborts
// the batch. The returned map is keyed by catalog ID.
func PropagateBatch(ctx context.Context, p Propagator, entries []model.CatalogEntry, at time.Time, log logging.Logger) map[string]model.StateVector {
	if log == nil {
		log = logging.Noop()
	}

	out := make(map[string]model.StateVector, len(entries))
	for _, entry := range entries {
		state, err := p.Propagate(entry.Elements, at)
		if err != nil {
			log.Warn(ctx, "entity excluded from propagation batch",
				logging.String("catalog_id", entry.ID),
				logging.String("error", err.Error()),
			)
			continue
		}
		out[entry.ID] = state
	}
	return out
}
