package motorsbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.viam.com/rdk/logging"
)

// Config is the plain JSON-tagged settings struct a caller builds a Bus
// from, in the teacher's Validate-returns-defaults style rather than a
// framework-bound config type.
type Config struct {
	Port     string        `json:"port,omitempty"`
	Baudrate int           `json:"baudrate,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`

	Motors []Motor `json:"motors,omitempty"`

	CalibrationFile string `json:"calibration_file,omitempty"`

	Logger logging.Logger `json:"-"`
}

// Validate fills in defaults and rejects an unusable configuration.
func (cfg *Config) Validate() error {
	if cfg.Port == "" {
		return fmt.Errorf("motorsbus: config must specify a port")
	}
	if len(cfg.Motors) == 0 {
		return fmt.Errorf("motorsbus: config must list at least one motor")
	}
	if cfg.Baudrate == 0 {
		cfg.Baudrate = CanonicalBaud
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = PacketTimeoutMillis * time.Millisecond
	}
	return nil
}

// calibrationFileFormat is the JSON shape persisted to CalibrationFile: one
// entry per motor name, tagged-variant per §9's "clearer encoding"
// recommendation rather than the source's fixed parallel arrays.
type calibrationFileFormat struct {
	Joints map[string]calibrationEntry `json:"joints"`
}

type calibrationEntry struct {
	Mode         string `json:"mode"`
	DriveMode    int    `json:"drive_mode,omitempty"`
	HomingOffset int32  `json:"homing_offset,omitempty"`
	StartPos     int32  `json:"start_pos,omitempty"`
	EndPos       int32  `json:"end_pos,omitempty"`
}

func toCalibrationEntry(j JointCalibration) calibrationEntry {
	return calibrationEntry{
		Mode:         j.Mode.String(),
		DriveMode:    int(j.DriveMode),
		HomingOffset: j.HomingOffset,
		StartPos:     j.StartPos,
		EndPos:       j.EndPos,
	}
}

func fromCalibrationEntry(e calibrationEntry) JointCalibration {
	mode := ModeDegree
	if e.Mode == "LINEAR" {
		mode = ModeLinear
	}
	return JointCalibration{
		Mode:         mode,
		DriveMode:    DriveMode(e.DriveMode),
		HomingOffset: e.HomingOffset,
		StartPos:     e.StartPos,
		EndPos:       e.EndPos,
	}
}

// LoadCalibrationFile loads a calibration record from JSON, resolving a
// relative CalibrationFile path against VIAM_MODULE_DATA the same way the
// teacher's LoadCalibration does, since this module is most often deployed
// as a Viam module component's dependency.
func LoadCalibrationFile(path string) (*CalibrationRecord, error) {
	if !filepath.IsAbs(path) {
		moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
		if moduleDataDir == "" {
			moduleDataDir = os.TempDir()
		}
		path = filepath.Join(moduleDataDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("motorsbus: read calibration file: %w", err)
	}
	var fileFormat calibrationFileFormat
	if err := json.Unmarshal(data, &fileFormat); err != nil {
		return nil, fmt.Errorf("motorsbus: parse calibration file: %w", err)
	}

	names := make([]string, 0, len(fileFormat.Joints))
	joints := make([]JointCalibration, 0, len(fileFormat.Joints))
	for name, entry := range fileFormat.Joints {
		names = append(names, name)
		joints = append(joints, fromCalibrationEntry(entry))
	}
	return NewCalibrationRecord(names, joints)
}

// SaveCalibrationFile persists record to path as indented JSON.
func SaveCalibrationFile(path string, record *CalibrationRecord) error {
	fileFormat := calibrationFileFormat{Joints: make(map[string]calibrationEntry, len(record.names))}
	for _, name := range record.names {
		joint, _ := record.get(name)
		fileFormat.Joints[name] = toCalibrationEntry(joint)
	}

	data, err := json.MarshalIndent(fileFormat, "", "  ")
	if err != nil {
		return fmt.Errorf("motorsbus: marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("motorsbus: write calibration file: %w", err)
	}
	return nil
}
