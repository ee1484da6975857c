package replica

import "fmt"

// CadenceMode selects when the authority's change detector runs.
type CadenceMode uint8

const (
	// CadenceFrame runs the detector every render frame. There is no
	// fixed interval in this mode; observers assume a constant
	// assumedFrameRate instead of measuring the true send rate.
	CadenceFrame CadenceMode = iota
	// CadencePhysics runs the detector every fixed simulation step.
	CadencePhysics
	// CadenceInterval runs the detector every FixedInterval seconds of
	// wall-clock time, re-arming after each firing.
	CadenceInterval
)

func (m CadenceMode) String() string {
	switch m {
	case CadenceFrame:
		return "frame"
	case CadencePhysics:
		return "physics"
	case CadenceInterval:
		return "interval"
	}
	return "unknown"
}

// assumedFrameRate is the constant send rate observers assume for the
// frame-driven cadence. This is a deliberate approximation: when the
// authority's actual frame rate diverges from it, interpolation weights
// are scaled wrong by the same ratio. The true rate is never measured.
const assumedFrameRate = 60.0

// Config is the full configuration surface of one synchronizer. It is
// passed at construction and not mutated afterwards; only the authority
// role flag is runtime-mutable, and flipping it does not reset state.
type Config struct {
	// SyncPosition and SyncRotation enable replication per property.
	SyncPosition bool
	SyncRotation bool

	// CadenceMode selects the authority send cadence. FixedInterval is
	// required (seconds, > 0) only for CadenceInterval. PhysicsRate is
	// the fixed simulation step rate, required for CadencePhysics.
	CadenceMode   CadenceMode
	FixedInterval float64
	PhysicsRate   int

	// Interpolate blends between the last two confirmed samples.
	// When disabled observers snap straight to the newest sample.
	//
	// Observers must disable any host-level motion smoothing of their
	// own when this is on; stacking the two is a documented hazard,
	// not a runtime-checked error.
	Interpolate bool

	// Extrapolate continues past the newest sample when updates are
	// late, up to MaxExtrapolation extra intervals beyond it.
	Extrapolate      bool
	MaxExtrapolation float64

	// Tolerance is the approximate-equality threshold for change
	// detection. Zero selects syncmath.DefaultTolerance.
	Tolerance float64
}

// DefaultConfig replicates both properties at physics cadence with
// interpolation on and extrapolation off.
func DefaultConfig() Config {
	return Config{
		SyncPosition: true,
		SyncRotation: true,
		CadenceMode:  CadencePhysics,
		PhysicsRate:  60,
		Interpolate:  true,
	}
}

// Validate reports configuration that cannot produce a working
// synchronizer.
func (c Config) Validate() error {
	if !c.SyncPosition && !c.SyncRotation {
		return fmt.Errorf("config: nothing to replicate, both properties disabled")
	}
	switch c.CadenceMode {
	case CadenceFrame:
	case CadencePhysics:
		if c.PhysicsRate <= 0 {
			return fmt.Errorf("config: physics cadence requires PhysicsRate > 0, got %d", c.PhysicsRate)
		}
	case CadenceInterval:
		if c.FixedInterval <= 0 {
			return fmt.Errorf("config: interval cadence requires FixedInterval > 0, got %v", c.FixedInterval)
		}
	default:
		return fmt.Errorf("config: unknown cadence mode %d", c.CadenceMode)
	}
	if c.Extrapolate && c.MaxExtrapolation < 0 {
		return fmt.Errorf("config: MaxExtrapolation must be >= 0, got %v", c.MaxExtrapolation)
	}
	return nil
}

// SendInterval returns the estimated seconds between authority updates,
// used by observers to size interpolation weights. The frame cadence
// has no exact interval and yields the assumed constant rate.
func (c Config) SendInterval() float64 {
	switch c.CadenceMode {
	case CadencePhysics:
		return 1.0 / float64(c.PhysicsRate)
	case CadenceInterval:
		return c.FixedInterval
	default:
		return 1.0 / assumedFrameRate
	}
}
