package ranging

// Channel identifies one trigger/echo sensor pair.
type Channel int

const (
	Front Channel = iota
	Left
	Right
)

func (c Channel) String() string {
	switch c {
	case Front:
		return "front"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Channels lists all channels in the order they must be sampled.
var Channels = []Channel{Front, Left, Right}

// EchoDriver is the minimal hardware interface the array needs.
//
// TriggerPulse emits the measurement start pulse on the channel's trigger
// line, including the microsecond-level timing of the pulse itself.
// EchoLevel reads the instantaneous level of the channel's echo line.
//
// Implementations are called from a single goroutine at a time.
type EchoDriver interface {
	TriggerPulse(c Channel) error
	EchoLevel(c Channel) (bool, error)
	Close() error
}

// Pins describes the GPIO assignment of one channel.
type Pins struct {
	Trigger int
	Echo    int
}

type silentDriver struct{}

func (silentDriver) TriggerPulse(Channel) error      { return nil }
func (silentDriver) EchoLevel(Channel) (bool, error) { return false, nil }
func (silentDriver) Close() error                    { return nil }

// Silent returns a driver whose echo line never rises, so every read
// times out and reports no obstacle. Used when GPIO is unavailable.
func Silent() EchoDriver { return silentDriver{} }
