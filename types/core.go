package types

/*

	These are the "immutable" core types of Pogo,
	provided for cross-package use (e.g. Plugins) and testing.

	There are no functions defined here.
	Struct constructors are housed in their own packages.
	Methods taking these types should create local aliases,
	for example: type Readings []Pt.Reading

*/

// Vec3 is a 3-axis vector in device-local coordinates, m/s²
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Reading is one 3-axis value as it arrives off the wire.
// A nil axis means the platform did not deliver it.
type Reading struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// Sample is the unit of work for the analyzer.
// Accel includes gravity. Linear is gravity-subtracted and only
// present when the platform has a linear acceleration sensor.
type Sample struct {
	TimestampMs int64    `json:"t"`
	Accel       Reading  `json:"acc"`
	Linear      *Reading `json:"lin,omitempty"`
}

// AudioMode selects how bounces and deviation are heard
type AudioMode string

const (
	AudioOff              AudioMode = "off"               // silent
	AudioDiscrete         AudioMode = "discrete"          // one tone burst per bounce
	AudioFrequency        AudioMode = "frequency"         // pitch follows deviation
	AudioFrequencyFadeout AudioMode = "frequency-fadeout" // pitch and volume follow deviation
)

// GravityMode is the configured preference for finding "down"
type GravityMode string

const (
	GravitySensor GravityMode = "sensor" // use linear acceleration when present
	GravityFilter GravityMode = "filter" // always low-pass the raw stream
)

// GravityDerivation is what actually happened on a given sample.
// GravitySensor falls back to Filtered when no linear reading arrives.
type GravityDerivation int

const (
	Direct   GravityDerivation = iota // acc - linear
	Filtered                          // exponential low-pass
)

// State of the analyzer
type State int

const (
	Idle State = iota
	Detecting
	Calibrating
)

// Status is the user-facing condition of the analyzer
type Status string

const (
	StatusReady       Status = "ready"
	StatusActive      Status = "active"
	StatusCalibrating Status = "calibrating"
	StatusWarning     Status = "warning"
	StatusError       Status = "error"
)

// Settings is the persisted schema.
// The store owns the format, the analyzer owns the meaning.
// Gravity is only meaningful when GravityMode is "filter".
type Settings struct {
	Sensitivity       float64     `json:"sensitivity"`
	BaselineMagnitude float64     `json:"baselineMagnitude"`
	AudioMode         AudioMode   `json:"audioMode"`
	AudioVolume       float64     `json:"audioVolume"`
	GravityMode       GravityMode `json:"gravityMode"`
	GravityX          float64     `json:"gravityX"`
	GravityY          float64     `json:"gravityY"`
	GravityZ          float64     `json:"gravityZ"`
}

// BounceRecord is the stored history of one detected bounce
type BounceRecord struct {
	SessionID   string  // uuid of the detection session
	Count       int     // bounce number within the session
	TimestampMs int64   // sample timestamp that fired
	Magnitude   float64 // vertical magnitude at the time
	Deviation   float64 // |magnitude - baseline|
}

// Snapshot is a read-only copy of analyzer state for display and the API
type Snapshot struct {
	State               State   `json:"-"`
	StateName           string  `json:"state"`
	SessionID           string  `json:"sessionId"`
	BounceCount         int     `json:"bounceCount"`
	LastBounceMs        int64   `json:"lastBounceMs"`
	Baseline            float64 `json:"baselineMagnitude"`
	Magnitude           float64 `json:"magnitude"`
	Deviation           float64 `json:"deviation"`
	Gravity             Vec3    `json:"gravity"`
	CalibrationProgress int     `json:"calibrationProgress"`
	CadenceBPM          float64 `json:"cadenceBpm"`
	TargetFrequency     float64 `json:"targetFrequency"`
	TargetVolume        float64 `json:"targetVolume"`
}
