package motorsbus

import (
	"fmt"

	"go.viam.com/rdk/utils"
)

// MotionController is a thin radians-in/radians-out convenience layer over
// a Bus and its calibration: callers that think in joint angles rather than
// raw Present_Position/Goal_Position counts use this instead of calling
// Read/Write directly. DEGREE joints convert via utils.RadToDeg/DegToRad;
// LINEAR joints (e.g. a gripper) are passed through as a 0..100 percentage
// mapped onto the same radian axis so a single []float64 can describe a
// mixed roster, the way the teacher's controller handled its gripper servo
// alongside five rotational joints.
type MotionController struct {
	bus   *Bus
	calib *CalibrationRecord
}

// NewMotionController binds a controller to bus's currently installed
// calibration. SetCalibration on the bus after construction is not
// reflected here; call NewMotionController again if it changes.
func NewMotionController(bus *Bus) (*MotionController, error) {
	if bus.calib == nil {
		return nil, fmt.Errorf("motorsbus: bus has no calibration installed")
	}
	return &MotionController{bus: bus, calib: bus.calib}, nil
}

func linearToRadians(percent float64) float64 {
	return (percent/100*2 - 1) * piConst
}

func radiansToLinear(rad float64) float64 {
	return (rad/piConst + 1) / 2 * 100
}

const piConst = 3.14159265358979323846

// JointPositions reads Present_Position for every motor in names (full
// roster if empty) and returns each as radians.
func (m *MotionController) JointPositions(names ...string) ([]float64, error) {
	raw, err := m.bus.Read(RegisterPresentPosition, names...)
	if err != nil {
		return nil, err
	}
	resolved := names
	if len(resolved) == 0 {
		resolved = m.bus.MotorNames()
	}

	out := make([]float64, len(raw))
	for i, name := range resolved {
		joint, ok := m.calib.get(name)
		if !ok {
			return nil, fmt.Errorf("motorsbus: motor %q has no calibration entry", name)
		}
		physical := float64(raw[i])
		if joint.Mode == ModeLinear {
			out[i] = linearToRadians(physical)
		} else {
			out[i] = utils.DegToRad(physical)
		}
	}
	return out, nil
}

// MoveToJointPositions writes Goal_Position for names (full roster if
// empty) from a radians vector.
func (m *MotionController) MoveToJointPositions(radians []float64, names ...string) error {
	resolved := names
	if len(resolved) == 0 {
		resolved = m.bus.MotorNames()
	}
	if len(radians) != len(resolved) {
		return fmt.Errorf("motorsbus: %d joint angles for %d motors", len(radians), len(resolved))
	}

	values := make([]int32, len(radians))
	for i, name := range resolved {
		joint, ok := m.calib.get(name)
		if !ok {
			return fmt.Errorf("motorsbus: motor %q has no calibration entry", name)
		}
		if joint.Mode == ModeLinear {
			values[i] = int32(radiansToLinear(radians[i]))
		} else {
			values[i] = int32(utils.RadToDeg(radians[i]))
		}
	}
	return m.bus.Write(RegisterGoalPosition, values, resolved...)
}
