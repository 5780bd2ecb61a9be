package remote

// State is the power/playback state of a box as derived from its announcements
type State int

const (
	StateUnknown State = -1
	StateOff     State = 0
	StatePlaying State = 1
	StateStandby State = 2
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StatePlaying:
		return "PLAYING"
	case StateStandby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets State appear by name in JSON and YAML
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
