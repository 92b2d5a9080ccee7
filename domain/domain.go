// Package domain holds the producer-side entities that travel through the
// telemetry pipeline as opaque payloads. Only codec.Registry's registered
// encoders/decoders ever look inside these types; every other stage treats
// the Envelope payload as uninterpreted bytes.
//
// Grounded on original_source/crates/aria-domain/src/entities.rs, adapted
// from Rust enums to Go tagged unions (a Kind discriminant plus the
// fields relevant to that kind), per SPEC_FULL.md §4.1.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SensorKind discriminates the payload carried by a RawSample.
type SensorKind uint8

const (
	SensorImage SensorKind = iota
	SensorAudio
	SensorIMU
	SensorLidar
	SensorTemperature
	SensorDepth
)

// Vector3 is a minimal float32 3-vector; pulling in a full linear-algebra
// dependency for three fields would be disproportionate here.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a minimal float32 orientation quaternion.
type Quaternion struct {
	X, Y, Z, W float32
}

// RawSample is a single sensor reading.
type RawSample struct {
	SensorID  string
	Timestamp time.Time
	Kind      SensorKind

	// Image
	Width, Height uint32
	Channels      uint8
	ImageData     []byte

	// Audio
	SampleRate uint32
	AudioChannels uint8
	Samples    []float32

	// IMU
	Accel, Gyro Vector3
	Mag         *Vector3

	// Lidar
	Points      []Vector3
	Intensities []float32

	// Temperature
	Celsius float32

	// Depth
	DepthData []float32
}

// ActuatorActionKind discriminates Command.Action.
type ActuatorActionKind uint8

const (
	ActionMotion ActuatorActionKind = iota
	ActionServo
	ActionDigital
	ActionAudioOut
	ActionCustom
)

// Command instructs an actuator. Kind fields beyond Action are left zero
// when unused.
type Command struct {
	ID            uuid.UUID
	Timestamp     time.Time
	ActuatorID    string
	Action        ActuatorActionKind
	Justification string

	Velocity, Angular Vector3 // ActionMotion
	JointID           string  // ActionServo
	Position, Speed   float32 // ActionServo
	Pin               uint8   // ActionDigital
	Value             bool    // ActionDigital
	AudioSamples      []float32
	AudioSampleRate   uint32
	CustomData        []byte
}

// Ack acknowledges a Command.
type Ack struct {
	CommandID uuid.UUID
	Timestamp time.Time
	Success   bool
	ErrorCode *uint32
	Message   string
}

// RobotMode is the vehicle's current operating mode.
type RobotMode uint8

const (
	ModeIdle RobotMode = iota
	ModeManual
	ModeAutonomous
	ModeSafeStop
	ModeError
)

// Pose is a position + orientation estimate.
type Pose struct {
	Position    Vector3
	Orientation Quaternion
	Covariance  *[36]float32
}

// Twist is a linear + angular velocity.
type Twist struct {
	Linear, Angular Vector3
}

// State is a full robot state estimate.
type State struct {
	Timestamp      time.Time
	Pose           Pose
	Velocity       Twist
	BatteryPercent float32
	Mode           RobotMode
	CustomState    map[string]float32
}

// GoalKind discriminates MissionGoal.
type GoalKind uint8

const (
	GoalNavigateTo GoalKind = iota
	GoalExplore
	GoalInspect
	GoalFollowPath
	GoalDock
	GoalCustom
)

// BoundingBox is an axis-aligned 3D region.
type BoundingBox struct {
	Min, Max Vector3
}

// ConstraintKind discriminates Constraint.
type ConstraintKind uint8

const (
	ConstraintMaxVelocity ConstraintKind = iota
	ConstraintAvoidRegion
	ConstraintMinBattery
	ConstraintTimeWindow
	ConstraintCustom
)

// Constraint restricts how a MissionGoal may be pursued.
type Constraint struct {
	Name           string
	Kind           ConstraintKind
	MaxVelocity    float32
	AvoidRegion    BoundingBox
	MinBattery     float32
	WindowStart    time.Time
	WindowEnd      time.Time
	CustomRule     string
}

// MissionGoal is a planning-level objective.
type MissionGoal struct {
	ID          uuid.UUID
	Priority    float32
	Kind        GoalKind
	Target      Vector3
	Tolerance   float32
	Region      BoundingBox
	ObjectID    string
	Distance    float32
	Waypoints   []Vector3
	Description string
	Parameters  map[string]float32
	Deadline    *time.Time
	Constraints []Constraint
}
