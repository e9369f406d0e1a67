package lifecycle

// Phase is the process's position in the host lifecycle.
type Phase int

const (
	PhaseForeground Phase = iota
	PhaseBackground
)

func (p Phase) String() string {
	switch p {
	case PhaseForeground:
		return "foreground"
	case PhaseBackground:
		return "background"
	default:
		return "unknown"
	}
}

// PressureLevel is a coarse classification of resource scarcity.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureElevated
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "normal"
	case PressureElevated:
		return "elevated"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// State is one of the scheduler's six states. It is a value type: readers
// get immutable snapshots, only the scheduler mutates its current state.
type State struct {
	Phase    Phase         `json:"phase"`
	Pressure PressureLevel `json:"pressure"`
}

func (s State) String() string {
	return s.Phase.String() + "/" + s.Pressure.String()
}

// MultiplierTable maps each state to the factor periodic callers apply to
// their base interval. The exact values are tunable policy, not contract.
type MultiplierTable struct {
	ForegroundNormal   float64 `yaml:"foreground_normal"`
	ForegroundElevated float64 `yaml:"foreground_elevated"`
	ForegroundCritical float64 `yaml:"foreground_critical"`
	BackgroundNormal   float64 `yaml:"background_normal"`
	BackgroundElevated float64 `yaml:"background_elevated"`
	BackgroundCritical float64 `yaml:"background_critical"`
}

// DefaultMultiplierTable returns the stock policy: run as configured in
// the foreground at normal pressure, progressively less often otherwise.
func DefaultMultiplierTable() MultiplierTable {
	return MultiplierTable{
		ForegroundNormal:   1.0,
		ForegroundElevated: 1.5,
		ForegroundCritical: 2.0,
		BackgroundNormal:   3.0,
		BackgroundElevated: 4.5,
		BackgroundCritical: 6.0,
	}
}

// For looks up the multiplier for a state.
func (t MultiplierTable) For(s State) float64 {
	switch s.Phase {
	case PhaseBackground:
		switch s.Pressure {
		case PressureCritical:
			return t.BackgroundCritical
		case PressureElevated:
			return t.BackgroundElevated
		default:
			return t.BackgroundNormal
		}
	default:
		switch s.Pressure {
		case PressureCritical:
			return t.ForegroundCritical
		case PressureElevated:
			return t.ForegroundElevated
		default:
			return t.ForegroundNormal
		}
	}
}
