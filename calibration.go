package motorsbus

import "math"

// CalibrationMode selects which physical unit a joint's calibration record
// is expressed in (§3).
type CalibrationMode int

const (
	ModeDegree CalibrationMode = iota
	ModeLinear
)

func (m CalibrationMode) String() string {
	if m == ModeLinear {
		return "LINEAR"
	}
	return "DEGREE"
}

// DriveMode is the polarity of the forward mapping for a DEGREE joint (§3).
type DriveMode int

const (
	NonInverted DriveMode = 0
	Inverted    DriveMode = 1
)

// JointCalibration is a tagged variant per motor rather than the source's
// shared parallel arrays (§9 design note): DEGREE joints use DriveMode and
// HomingOffset, LINEAR joints use StartPos/EndPos. Both sets of fields exist
// on the struct, but only the ones matching Mode are meaningful — the same
// shape as a tagged union without introducing an interface per joint.
type JointCalibration struct {
	Mode         CalibrationMode
	DriveMode    DriveMode // DEGREE only
	HomingOffset int32     // DEGREE only
	StartPos     int32     // LINEAR only
	EndPos       int32     // LINEAR only
}

// CalibrationRecord is the mutable, in-memory calibration owned by a Bus
// (§3). Indexed by motor name; auto-correct mutates entries in place.
type CalibrationRecord struct {
	names  []string
	index  map[string]int
	joints []JointCalibration
}

// NewCalibrationRecord builds a record from parallel names/joints slices,
// the shape the public API accepts (§6.4 set_calibration), validating the
// LINEAR start_pos != end_pos invariant up front.
func NewCalibrationRecord(names []string, joints []JointCalibration) (*CalibrationRecord, error) {
	if len(names) != len(joints) {
		return nil, errf("calibration: %d names but %d joint entries", len(names), len(joints))
	}
	idx := make(map[string]int, len(names))
	for i, name := range names {
		if joints[i].Mode == ModeLinear && joints[i].StartPos == joints[i].EndPos {
			return nil, errf("calibration: motor %q has start_pos == end_pos", name)
		}
		idx[name] = i
	}
	return &CalibrationRecord{
		names:  append([]string(nil), names...),
		index:  idx,
		joints: append([]JointCalibration(nil), joints...),
	}, nil
}

// Names returns the calibration record's motor_names in declared order.
func (r *CalibrationRecord) Names() []string { return append([]string(nil), r.names...) }

func (r *CalibrationRecord) get(name string) (JointCalibration, bool) {
	i, ok := r.index[name]
	if !ok {
		return JointCalibration{}, false
	}
	return r.joints[i], true
}

func (r *CalibrationRecord) set(name string, j JointCalibration) {
	i := r.index[name]
	r.joints[i] = j
}

// Apply is the forward map, raw encoder counts to physical units (§4.6).
func (r *CalibrationRecord) Apply(name string, raw int32, resolution int) (float64, error) {
	joint, ok := r.get(name)
	if !ok {
		return 0, errf("calibration: unknown motor %q", name)
	}
	h := float64(resolution) / 2

	switch joint.Mode {
	case ModeDegree:
		v := float64(raw)
		if joint.DriveMode == Inverted {
			v = -v
		}
		v += float64(joint.HomingOffset)
		v = v / h * 180
		if v < -270 || v > 270 {
			return 0, &JointOutOfRangeError{MotorName: name, Value: v, Lower: -270, Upper: 270}
		}
		return v, nil

	case ModeLinear:
		span := float64(joint.EndPos - joint.StartPos)
		v := float64(raw-joint.StartPos) / span * 100
		if v < -10 || v > 110 {
			return 0, &JointOutOfRangeError{MotorName: name, Value: v, Lower: -10, Upper: 110}
		}
		return v, nil
	}
	return 0, errf("calibration: motor %q has unknown mode", name)
}

// Revert is the inverse map, physical units back to raw encoder counts,
// rounded to the nearest integer (§4.6).
func (r *CalibrationRecord) Revert(name string, physical float64, resolution int) (int32, error) {
	joint, ok := r.get(name)
	if !ok {
		return 0, errf("calibration: unknown motor %q", name)
	}
	h := float64(resolution) / 2

	switch joint.Mode {
	case ModeDegree:
		raw := physical*h/180 - float64(joint.HomingOffset)
		if joint.DriveMode == Inverted {
			raw = -raw
		}
		return int32(math.Round(raw)), nil

	case ModeLinear:
		span := float64(joint.EndPos - joint.StartPos)
		raw := physical/100*span + float64(joint.StartPos)
		return int32(math.Round(raw)), nil
	}
	return 0, errf("calibration: motor %q has unknown mode", name)
}

// ApplyAutocorrect runs the forward map and, on a hard-range violation,
// attempts exactly one whole-turn correction before re-raising (§4.6, §9:
// "one retry, then surface" — never looped). corrected reports whether the
// homing offset was mutated, so the caller can log the warning §4.6 calls
// for.
func (r *CalibrationRecord) ApplyAutocorrect(name string, raw int32, resolution int) (value float64, corrected bool, err error) {
	value, err = r.Apply(name, raw, resolution)
	if err == nil {
		return value, false, nil
	}
	outOfRange, ok := err.(*JointOutOfRangeError)
	if !ok {
		return 0, false, err
	}

	joint, ok := r.get(name)
	if !ok {
		return 0, false, err
	}

	switch joint.Mode {
	case ModeDegree:
		R := float64(resolution)
		H := R / 2
		vRaw := float64(raw)
		homing := float64(joint.HomingOffset)
		low := (-H - vRaw - homing) / R
		upp := (H - vRaw - homing) / R
		factor, ok := selectFactor(low, upp)
		if !ok {
			return 0, false, ErrCalibrationUnresolvable
		}
		joint.HomingOffset += int32(factor) * int32(resolution)
		r.set(name, joint)

		value, err = r.Apply(name, raw, resolution)
		if err != nil {
			return 0, true, err
		}
		return value, true, nil

	case ModeLinear:
		// The LINEAR auto-correct branch in the source shifts homing_offset,
		// a field LINEAR joints don't have; behavior here is unspecified
		// rather than guessed at.
		return 0, false, ErrCalibrationUnresolvable
	}
	return 0, false, outOfRange
}

// selectFactor implements the §4.6 selection rule over an interval that may
// be given with its bounds in either order: ceil of the lower bound, or
// CalibrationUnresolvable if no integer falls in range.
func selectFactor(low, upp float64) (int, bool) {
	lo, hi := low, upp
	if lo > hi {
		lo, hi = hi, lo
	}
	factor := math.Ceil(lo)
	if factor > hi {
		return 0, false
	}
	return int(factor), true
}
