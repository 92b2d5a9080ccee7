package codec

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/aria-robotics/telemetry/domain"
	"github.com/aria-robotics/telemetry/internal/wire"
)

// Built-in schema ids for the domain package's entities.
const (
	SchemaRawSample   uint32 = 1
	SchemaCommand     uint32 = 2
	SchemaAck         uint32 = 3
	SchemaState       uint32 = 4
	SchemaMissionGoal uint32 = 5
)

// RegisterBuiltins registers the domain package's entity types into r.
// Safe to call once per registry; a second call returns
// ErrSchemaRegistered from the first duplicate.
func RegisterBuiltins(r *Registry) error {
	entries := []struct {
		id uint32
		e  Entry
	}{
		{SchemaRawSample, Entry{"RawSample", encodeRawSample, decodeRawSample}},
		{SchemaCommand, Entry{"Command", encodeCommand, decodeCommand}},
		{SchemaAck, Entry{"Ack", encodeAck, decodeAck}},
		{SchemaState, Entry{"State", encodeState, decodeState}},
		{SchemaMissionGoal, Entry{"MissionGoal", encodeMissionGoal, decodeMissionGoal}},
	}
	for _, ent := range entries {
		if err := r.Register(ent.id, ent.e); err != nil {
			return err
		}
	}
	return nil
}

var errWrongType = errors.New("codec: value has wrong type for schema")

func putVector3(buf []byte, v domain.Vector3) []byte {
	buf = wire.PutFloat32(buf, v.X)
	buf = wire.PutFloat32(buf, v.Y)
	buf = wire.PutFloat32(buf, v.Z)
	return buf
}

func readVector3(buf []byte) (domain.Vector3, []byte, error) {
	var v domain.Vector3
	var err error
	if v.X, buf, err = wire.ReadFloat32(buf); err != nil {
		return v, nil, err
	}
	if v.Y, buf, err = wire.ReadFloat32(buf); err != nil {
		return v, nil, err
	}
	if v.Z, buf, err = wire.ReadFloat32(buf); err != nil {
		return v, nil, err
	}
	return v, buf, nil
}

func putTime(buf []byte, t interface{ UnixMicro() int64 }) []byte {
	return wire.PutUint64(buf, uint64(t.UnixMicro()))
}

func encodeRawSample(v any) ([]byte, error) {
	s, ok := v.(domain.RawSample)
	if !ok {
		return nil, errors.WithStack(errWrongType)
	}
	buf := make([]byte, 0, 64)
	buf = wire.PutString(buf, s.SensorID)
	buf = putTime(buf, s.Timestamp)
	buf = append(buf, byte(s.Kind))

	switch s.Kind {
	case domain.SensorImage:
		buf = wire.PutUint32(buf, s.Width)
		buf = wire.PutUint32(buf, s.Height)
		buf = append(buf, s.Channels)
		buf = wire.PutBytes(buf, s.ImageData)
	case domain.SensorAudio:
		buf = wire.PutUint32(buf, s.SampleRate)
		buf = append(buf, s.AudioChannels)
		buf = putFloat32Slice(buf, s.Samples)
	case domain.SensorIMU:
		buf = putVector3(buf, s.Accel)
		buf = putVector3(buf, s.Gyro)
		if s.Mag != nil {
			buf = wire.PutBool(buf, true)
			buf = putVector3(buf, *s.Mag)
		} else {
			buf = wire.PutBool(buf, false)
		}
	case domain.SensorLidar:
		buf = wire.PutUint32(buf, uint32(len(s.Points)))
		for _, p := range s.Points {
			buf = putVector3(buf, p)
		}
		buf = putFloat32Slice(buf, s.Intensities)
	case domain.SensorTemperature:
		buf = wire.PutFloat32(buf, s.Celsius)
	case domain.SensorDepth:
		buf = wire.PutUint32(buf, s.Width)
		buf = wire.PutUint32(buf, s.Height)
		buf = putFloat32Slice(buf, s.DepthData)
	}
	return buf, nil
}

func putFloat32Slice(buf []byte, s []float32) []byte {
	buf = wire.PutUint32(buf, uint32(len(s)))
	for _, f := range s {
		buf = wire.PutFloat32(buf, f)
	}
	return buf
}

func readFloat32Slice(buf []byte) ([]float32, []byte, error) {
	n, rest, err := wire.ReadUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make([]float32, n)
	for i := range out {
		var f float32
		if f, rest, err = wire.ReadFloat32(rest); err != nil {
			return nil, nil, err
		}
		out[i] = f
	}
	return out, rest, nil
}

func decodeRawSample(b []byte) (any, error) {
	var s domain.RawSample
	var err error
	var micros uint64

	s.SensorID, b, err = wire.ReadString(b)
	if err != nil {
		return nil, err
	}
	micros, b, err = wire.ReadUint64(b)
	if err != nil {
		return nil, err
	}
	s.Timestamp = microsToTime(micros)
	if len(b) < 1 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	s.Kind = domain.SensorKind(b[0])
	b = b[1:]

	switch s.Kind {
	case domain.SensorImage:
		if s.Width, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if s.Height, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if len(b) < 1 {
			return nil, errors.WithStack(wire.ErrTruncated)
		}
		s.Channels, b = b[0], b[1:]
		if s.ImageData, _, err = wire.ReadBytes(b); err != nil {
			return nil, err
		}
	case domain.SensorAudio:
		if s.SampleRate, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if len(b) < 1 {
			return nil, errors.WithStack(wire.ErrTruncated)
		}
		s.AudioChannels, b = b[0], b[1:]
		if s.Samples, _, err = readFloat32Slice(b); err != nil {
			return nil, err
		}
	case domain.SensorIMU:
		if s.Accel, b, err = readVector3(b); err != nil {
			return nil, err
		}
		if s.Gyro, b, err = readVector3(b); err != nil {
			return nil, err
		}
		var present bool
		if present, b, err = wire.ReadBool(b); err != nil {
			return nil, err
		}
		if present {
			var mag domain.Vector3
			if mag, _, err = readVector3(b); err != nil {
				return nil, err
			}
			s.Mag = &mag
		}
	case domain.SensorLidar:
		var n uint32
		if n, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		s.Points = make([]domain.Vector3, n)
		for i := range s.Points {
			if s.Points[i], b, err = readVector3(b); err != nil {
				return nil, err
			}
		}
		if s.Intensities, _, err = readFloat32Slice(b); err != nil {
			return nil, err
		}
	case domain.SensorTemperature:
		if s.Celsius, _, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
	case domain.SensorDepth:
		if s.Width, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if s.Height, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if s.DepthData, _, err = readFloat32Slice(b); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("codec: unknown sensor kind %d", s.Kind)
	}
	return s, nil
}

func encodeCommand(v any) ([]byte, error) {
	c, ok := v.(domain.Command)
	if !ok {
		return nil, errors.WithStack(errWrongType)
	}
	buf := make([]byte, 0, 64)
	idBytes, _ := c.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putTime(buf, c.Timestamp)
	buf = wire.PutString(buf, c.ActuatorID)
	buf = append(buf, byte(c.Action))
	buf = wire.PutString(buf, c.Justification)

	switch c.Action {
	case domain.ActionMotion:
		buf = putVector3(buf, c.Velocity)
		buf = putVector3(buf, c.Angular)
	case domain.ActionServo:
		buf = wire.PutString(buf, c.JointID)
		buf = wire.PutFloat32(buf, c.Position)
		buf = wire.PutFloat32(buf, c.Speed)
	case domain.ActionDigital:
		buf = append(buf, c.Pin)
		buf = wire.PutBool(buf, c.Value)
	case domain.ActionAudioOut:
		buf = wire.PutUint32(buf, c.AudioSampleRate)
		buf = putFloat32Slice(buf, c.AudioSamples)
	case domain.ActionCustom:
		buf = wire.PutBytes(buf, c.CustomData)
	}
	return buf, nil
}

func decodeCommand(b []byte) (any, error) {
	var c domain.Command
	var err error
	var micros uint64

	if len(b) < 16 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	if err = c.ID.UnmarshalBinary(b[:16]); err != nil {
		return nil, err
	}
	b = b[16:]
	if micros, b, err = wire.ReadUint64(b); err != nil {
		return nil, err
	}
	c.Timestamp = microsToTime(micros)
	if c.ActuatorID, b, err = wire.ReadString(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	c.Action = domain.ActuatorActionKind(b[0])
	b = b[1:]
	if c.Justification, b, err = wire.ReadString(b); err != nil {
		return nil, err
	}

	switch c.Action {
	case domain.ActionMotion:
		if c.Velocity, b, err = readVector3(b); err != nil {
			return nil, err
		}
		if c.Angular, _, err = readVector3(b); err != nil {
			return nil, err
		}
	case domain.ActionServo:
		if c.JointID, b, err = wire.ReadString(b); err != nil {
			return nil, err
		}
		if c.Position, b, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
		if c.Speed, _, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
	case domain.ActionDigital:
		if len(b) < 1 {
			return nil, errors.WithStack(wire.ErrTruncated)
		}
		c.Pin, b = b[0], b[1:]
		if c.Value, _, err = wire.ReadBool(b); err != nil {
			return nil, err
		}
	case domain.ActionAudioOut:
		if c.AudioSampleRate, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		if c.AudioSamples, _, err = readFloat32Slice(b); err != nil {
			return nil, err
		}
	case domain.ActionCustom:
		if c.CustomData, _, err = wire.ReadBytes(b); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("codec: unknown actuator action kind %d", c.Action)
	}
	return c, nil
}

func encodeAck(v any) ([]byte, error) {
	a, ok := v.(domain.Ack)
	if !ok {
		return nil, errors.WithStack(errWrongType)
	}
	buf := make([]byte, 0, 48)
	idBytes, _ := a.CommandID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putTime(buf, a.Timestamp)
	buf = wire.PutBool(buf, a.Success)
	if a.ErrorCode != nil {
		buf = wire.PutBool(buf, true)
		buf = wire.PutUint32(buf, *a.ErrorCode)
	} else {
		buf = wire.PutBool(buf, false)
	}
	buf = wire.PutString(buf, a.Message)
	return buf, nil
}

func decodeAck(b []byte) (any, error) {
	var a domain.Ack
	var err error
	var micros uint64

	if len(b) < 16 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	if err = a.CommandID.UnmarshalBinary(b[:16]); err != nil {
		return nil, err
	}
	b = b[16:]
	if micros, b, err = wire.ReadUint64(b); err != nil {
		return nil, err
	}
	a.Timestamp = microsToTime(micros)
	if a.Success, b, err = wire.ReadBool(b); err != nil {
		return nil, err
	}
	var hasCode bool
	if hasCode, b, err = wire.ReadBool(b); err != nil {
		return nil, err
	}
	if hasCode {
		var code uint32
		if code, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		a.ErrorCode = &code
	}
	if a.Message, _, err = wire.ReadString(b); err != nil {
		return nil, err
	}
	return a, nil
}

func encodeState(v any) ([]byte, error) {
	s, ok := v.(domain.State)
	if !ok {
		return nil, errors.WithStack(errWrongType)
	}
	buf := make([]byte, 0, 96)
	buf = putTime(buf, s.Timestamp)
	buf = putVector3(buf, s.Pose.Position)
	buf = wire.PutFloat32(buf, s.Pose.Orientation.X)
	buf = wire.PutFloat32(buf, s.Pose.Orientation.Y)
	buf = wire.PutFloat32(buf, s.Pose.Orientation.Z)
	buf = wire.PutFloat32(buf, s.Pose.Orientation.W)
	buf = putVector3(buf, s.Velocity.Linear)
	buf = putVector3(buf, s.Velocity.Angular)
	buf = wire.PutFloat32(buf, s.BatteryPercent)
	buf = append(buf, byte(s.Mode))

	keys := make([]string, 0, len(s.CustomState))
	for k := range s.CustomState {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = wire.PutUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = wire.PutString(buf, k)
		buf = wire.PutFloat32(buf, s.CustomState[k])
	}
	return buf, nil
}

func decodeState(b []byte) (any, error) {
	var s domain.State
	var err error
	var micros uint64

	if micros, b, err = wire.ReadUint64(b); err != nil {
		return nil, err
	}
	s.Timestamp = microsToTime(micros)
	if s.Pose.Position, b, err = readVector3(b); err != nil {
		return nil, err
	}
	if s.Pose.Orientation.X, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if s.Pose.Orientation.Y, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if s.Pose.Orientation.Z, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if s.Pose.Orientation.W, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if s.Velocity.Linear, b, err = readVector3(b); err != nil {
		return nil, err
	}
	if s.Velocity.Angular, b, err = readVector3(b); err != nil {
		return nil, err
	}
	if s.BatteryPercent, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	s.Mode = domain.RobotMode(b[0])
	b = b[1:]

	var n uint32
	if n, b, err = wire.ReadUint32(b); err != nil {
		return nil, err
	}
	if n > 0 {
		s.CustomState = make(map[string]float32, n)
	}
	for i := uint32(0); i < n; i++ {
		var k string
		var f float32
		if k, b, err = wire.ReadString(b); err != nil {
			return nil, err
		}
		if f, b, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
		s.CustomState[k] = f
	}
	return s, nil
}

func putConstraint(buf []byte, c domain.Constraint) []byte {
	buf = wire.PutString(buf, c.Name)
	buf = append(buf, byte(c.Kind))
	switch c.Kind {
	case domain.ConstraintMaxVelocity:
		buf = wire.PutFloat32(buf, c.MaxVelocity)
	case domain.ConstraintAvoidRegion:
		buf = putVector3(buf, c.AvoidRegion.Min)
		buf = putVector3(buf, c.AvoidRegion.Max)
	case domain.ConstraintMinBattery:
		buf = wire.PutFloat32(buf, c.MinBattery)
	case domain.ConstraintTimeWindow:
		buf = putTime(buf, c.WindowStart)
		buf = putTime(buf, c.WindowEnd)
	case domain.ConstraintCustom:
		buf = wire.PutString(buf, c.CustomRule)
	}
	return buf
}

func readConstraint(b []byte) (domain.Constraint, []byte, error) {
	var c domain.Constraint
	var err error
	if c.Name, b, err = wire.ReadString(b); err != nil {
		return c, nil, err
	}
	if len(b) < 1 {
		return c, nil, errors.WithStack(wire.ErrTruncated)
	}
	c.Kind = domain.ConstraintKind(b[0])
	b = b[1:]
	switch c.Kind {
	case domain.ConstraintMaxVelocity:
		if c.MaxVelocity, b, err = wire.ReadFloat32(b); err != nil {
			return c, nil, err
		}
	case domain.ConstraintAvoidRegion:
		if c.AvoidRegion.Min, b, err = readVector3(b); err != nil {
			return c, nil, err
		}
		if c.AvoidRegion.Max, b, err = readVector3(b); err != nil {
			return c, nil, err
		}
	case domain.ConstraintMinBattery:
		if c.MinBattery, b, err = wire.ReadFloat32(b); err != nil {
			return c, nil, err
		}
	case domain.ConstraintTimeWindow:
		var startMicros, endMicros uint64
		if startMicros, b, err = wire.ReadUint64(b); err != nil {
			return c, nil, err
		}
		c.WindowStart = microsToTime(startMicros)
		if endMicros, b, err = wire.ReadUint64(b); err != nil {
			return c, nil, err
		}
		c.WindowEnd = microsToTime(endMicros)
	case domain.ConstraintCustom:
		if c.CustomRule, b, err = wire.ReadString(b); err != nil {
			return c, nil, err
		}
	default:
		return c, nil, errors.Errorf("codec: unknown constraint kind %d", c.Kind)
	}
	return c, b, nil
}

func encodeMissionGoal(v any) ([]byte, error) {
	g, ok := v.(domain.MissionGoal)
	if !ok {
		return nil, errors.WithStack(errWrongType)
	}
	buf := make([]byte, 0, 64)
	idBytes, _ := g.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = wire.PutFloat32(buf, g.Priority)
	buf = append(buf, byte(g.Kind))

	switch g.Kind {
	case domain.GoalNavigateTo:
		buf = putVector3(buf, g.Target)
		buf = wire.PutFloat32(buf, g.Tolerance)
	case domain.GoalExplore:
		buf = putVector3(buf, g.Region.Min)
		buf = putVector3(buf, g.Region.Max)
	case domain.GoalInspect:
		buf = wire.PutString(buf, g.ObjectID)
		buf = wire.PutFloat32(buf, g.Distance)
	case domain.GoalFollowPath:
		buf = wire.PutUint32(buf, uint32(len(g.Waypoints)))
		for _, w := range g.Waypoints {
			buf = putVector3(buf, w)
		}
	case domain.GoalDock:
		// no fields
	case domain.GoalCustom:
		buf = wire.PutString(buf, g.Description)
	}

	if g.Deadline != nil {
		buf = wire.PutBool(buf, true)
		buf = wire.PutUint64(buf, uint64(g.Deadline.UnixMicro()))
	} else {
		buf = wire.PutBool(buf, false)
	}

	buf = wire.PutUint32(buf, uint32(len(g.Constraints)))
	for _, c := range g.Constraints {
		buf = putConstraint(buf, c)
	}
	return buf, nil
}

func decodeMissionGoal(b []byte) (any, error) {
	var g domain.MissionGoal
	var err error

	if len(b) < 16 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	if err = g.ID.UnmarshalBinary(b[:16]); err != nil {
		return nil, err
	}
	b = b[16:]
	if g.Priority, b, err = wire.ReadFloat32(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, errors.WithStack(wire.ErrTruncated)
	}
	g.Kind = domain.GoalKind(b[0])
	b = b[1:]

	switch g.Kind {
	case domain.GoalNavigateTo:
		if g.Target, b, err = readVector3(b); err != nil {
			return nil, err
		}
		if g.Tolerance, b, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
	case domain.GoalExplore:
		if g.Region.Min, b, err = readVector3(b); err != nil {
			return nil, err
		}
		if g.Region.Max, b, err = readVector3(b); err != nil {
			return nil, err
		}
	case domain.GoalInspect:
		if g.ObjectID, b, err = wire.ReadString(b); err != nil {
			return nil, err
		}
		if g.Distance, b, err = wire.ReadFloat32(b); err != nil {
			return nil, err
		}
	case domain.GoalFollowPath:
		var n uint32
		if n, b, err = wire.ReadUint32(b); err != nil {
			return nil, err
		}
		g.Waypoints = make([]domain.Vector3, n)
		for i := range g.Waypoints {
			if g.Waypoints[i], b, err = readVector3(b); err != nil {
				return nil, err
			}
		}
	case domain.GoalDock:
		// no fields
	case domain.GoalCustom:
		if g.Description, b, err = wire.ReadString(b); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("codec: unknown goal kind %d", g.Kind)
	}

	var hasDeadline bool
	if hasDeadline, b, err = wire.ReadBool(b); err != nil {
		return nil, err
	}
	if hasDeadline {
		var micros uint64
		if micros, b, err = wire.ReadUint64(b); err != nil {
			return nil, err
		}
		t := microsToTime(micros)
		g.Deadline = &t
	}

	var nc uint32
	if nc, b, err = wire.ReadUint32(b); err != nil {
		return nil, err
	}
	g.Constraints = make([]domain.Constraint, nc)
	for i := range g.Constraints {
		if g.Constraints[i], b, err = readConstraint(b); err != nil {
			return nil, err
		}
	}
	return g, nil
}
