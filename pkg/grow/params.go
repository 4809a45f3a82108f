package grow

import (
	"errors"
	"fmt"

	"github.com/chazu/canopy/pkg/tree"
)

// ErrInvalidArgument is returned for invalid growth input.
var ErrInvalidArgument = errors.New("grow: invalid argument")

// Params are the attenuation rules applied when deriving a child branch.
// Angles are in degrees; factors multiply the parent's value.
type Params struct {
	ConeMin, ConeMax     float64
	AzimuthMax           float64
	LengthMin, LengthMax float64
	RadiusMin, RadiusMax float64
	Taper                float64 // tip radius = base radius × Taper
	ChildMin, ChildMax   int     // children per accepted branch, inclusive
	Tolerance            float64 // overlap rejection distance
	Bend                 float64 // curve bend as a fraction of length
	SproutAttempts       int     // tries per sprouted branch
}

// DefaultParams returns the standard growth rules.
func DefaultParams() Params {
	return Params{
		ConeMin:        30,
		ConeMax:        60,
		AzimuthMax:     360,
		LengthMin:      0.6,
		LengthMax:      0.8,
		RadiusMin:      0.6,
		RadiusMax:      0.8,
		Taper:          0.8,
		ChildMin:       2,
		ChildMax:       3,
		Tolerance:      tree.DefaultTolerance,
		Bend:           0.1,
		SproutAttempts: 10,
	}
}

// Validate reports the first rule that cannot produce a valid tree.
// Shrink factors must lie in (0,1) so children are strictly smaller
// than their parents.
func (p Params) Validate() error {
	switch {
	case p.ConeMin < 0 || p.ConeMax < p.ConeMin || p.ConeMax > 180:
		return fmt.Errorf("%w: cone range [%v,%v]", ErrInvalidArgument, p.ConeMin, p.ConeMax)
	case p.AzimuthMax < 0 || p.AzimuthMax > 360:
		return fmt.Errorf("%w: azimuth max %v", ErrInvalidArgument, p.AzimuthMax)
	case !shrink(p.LengthMin, p.LengthMax):
		return fmt.Errorf("%w: length range [%v,%v]", ErrInvalidArgument, p.LengthMin, p.LengthMax)
	case !shrink(p.RadiusMin, p.RadiusMax):
		return fmt.Errorf("%w: radius range [%v,%v]", ErrInvalidArgument, p.RadiusMin, p.RadiusMax)
	case p.Taper <= 0 || p.Taper > 1:
		return fmt.Errorf("%w: taper %v", ErrInvalidArgument, p.Taper)
	case p.ChildMin < 0 || p.ChildMax < p.ChildMin:
		return fmt.Errorf("%w: child range [%d,%d]", ErrInvalidArgument, p.ChildMin, p.ChildMax)
	case p.Tolerance < 0:
		return fmt.Errorf("%w: tolerance %v", ErrInvalidArgument, p.Tolerance)
	case p.Bend < 0:
		return fmt.Errorf("%w: bend %v", ErrInvalidArgument, p.Bend)
	case p.SproutAttempts < 1:
		return fmt.Errorf("%w: sprout attempts %d", ErrInvalidArgument, p.SproutAttempts)
	}
	return nil
}

func shrink(lo, hi float64) bool {
	return lo > 0 && hi >= lo && hi < 1
}
