package motorsbus

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.viam.com/rdk/logging"

	"github.com/feetechbus/motorsbus/internal/transport"
)

// CanonicalBaud is the baud rate every motor is expected to run at once
// configure_motors has completed (§4.5, §6.2).
const CanonicalBaud = 1_000_000

// PacketTimeoutMillis is the transport's per-round-trip timeout applied at
// connect (§5 "Cancellation / timeouts").
const PacketTimeoutMillis = 1000

const (
	readRetries = 10
	maxScanID   = 252
)

// Motor is a single entry of the motor descriptor (§3): a stable name, bus
// ID, and model string that must resolve in the Control-Table Registry.
type Motor struct {
	Name  string
	ID    byte
	Model string
}

// groupReader and groupWriter are the subset of transport.GroupSyncRead /
// transport.GroupSyncWrite the bus depends on, so tests can substitute a
// fake transport without touching a real serial port (§6.1).
type groupReader interface {
	AddParam(id byte)
	TxRxPacket() transport.CommResult
	GetData(id byte) (uint32, bool)
}

type groupWriter interface {
	AddParam(id byte, data []byte)
	ChangeParam(id byte, data []byte)
	TxPacket() transport.CommResult
}

// Transport is the set of port/packet primitives a Bus drives (§6.1). The
// production implementation is internal/transport; tests substitute a fake.
type Transport interface {
	OpenPort() error
	ClosePort() error
	SetBaudRate(baud int) error
	GetBaudRate() int
	SetPacketTimeoutMillis(ms int) error

	NewGroupSyncRead(addr uint16, width int) groupReader
	NewGroupSyncWrite(addr uint16, width int) groupWriter

	// Ping-style single-register probe used by the configuration
	// orchestrator before any roster exists (§4.5).
	ReadOne(id byte, addr uint16, width int) (uint32, error)
	WriteOne(id byte, addr uint16, data []byte) error
}

// Bus is the stateful façade described in §3/§5/§6.4: it owns the
// transport, the per-register-group handle caches, the motor roster, and
// the calibration record.
type Bus struct {
	mu sync.Mutex

	portPath string
	initBaud int
	t        Transport

	registry   *Registry
	resolution map[string]int

	motors    []Motor
	motorIdx  map[string]int
	calib     *CalibrationRecord
	connected bool

	groupReaders map[string]groupReader
	groupWriters map[string]groupWriter

	logger logging.Logger
	logs   map[string]float64
}

// NewBus constructs a Bus bound to portPath with the given roster. Extra
// control-table/resolution overrides flow straight into the Registry
// (§4.2). A nil logger is tolerated, matching servo_config.go's guard.
func NewBus(portPath string, motors []Motor, extraTable map[string]ControlTable, extraResolution map[string]int, logger logging.Logger) (*Bus, error) {
	motorIdx := make(map[string]int, len(motors))
	seenIDs := make(map[byte]bool, len(motors))
	for i, m := range motors {
		if _, dup := motorIdx[m.Name]; dup {
			return nil, errf("duplicate motor name %q in roster", m.Name)
		}
		if seenIDs[m.ID] {
			return nil, errf("duplicate motor id %d in roster", m.ID)
		}
		motorIdx[m.Name] = i
		seenIDs[m.ID] = true
	}

	reg := NewRegistry(extraTable, extraResolution)
	resolution := make(map[string]int, len(motors))
	for _, m := range motors {
		res, err := reg.Resolution(m.Model)
		if err != nil {
			return nil, err
		}
		resolution[m.Name] = res
	}

	return &Bus{
		portPath:     portPath,
		initBaud:     CanonicalBaud,
		registry:     reg,
		resolution:   resolution,
		motors:       append([]Motor(nil), motors...),
		motorIdx:     motorIdx,
		groupReaders: make(map[string]groupReader),
		groupWriters: make(map[string]groupWriter),
		logger:       logger,
		logs:         make(map[string]float64),
	}, nil
}

// WithTransport installs a Transport implementation (real or fake) before
// Connect is called. When none is installed, Connect creates the serial
// transport for the bus's port path; tests install a fake (§6.1).
func (b *Bus) WithTransport(t Transport) *Bus {
	b.t = t
	return b
}

func (b *Bus) debugf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Debugf(format, args...)
	}
}

func (b *Bus) warnf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Warnf(format, args...)
	}
}

// Connect opens the port at the configured baud and installs the packet
// timeout (§3 lifecycle, §5).
func (b *Bus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return ErrAlreadyConnected
	}
	if b.t == nil {
		b.t = newSerialTransport(b.portPath, b.initBaud)
	}
	if err := b.t.OpenPort(); err != nil {
		return &OpenFailedError{Path: b.portPath, Err: err}
	}
	if err := b.t.SetPacketTimeoutMillis(PacketTimeoutMillis); err != nil {
		b.t.ClosePort()
		return &OpenFailedError{Path: b.portPath, Err: err}
	}
	b.connected = true
	return nil
}

// Reconnect reopens the port without discarding the roster or calibration,
// for recovering from a transient USB dropout (§6.4).
func (b *Bus) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		b.t.ClosePort()
		b.connected = false
	}
	if err := b.t.OpenPort(); err != nil {
		return &OpenFailedError{Path: b.portPath, Err: err}
	}
	if err := b.t.SetPacketTimeoutMillis(PacketTimeoutMillis); err != nil {
		return &OpenFailedError{Path: b.portPath, Err: err}
	}
	b.connected = true
	return nil
}

// Disconnect releases the port and clears the group handle caches (§3, §5).
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	b.closeLocked()
	return nil
}

// closeLocked is the idempotent, never-erroring close used by Disconnect
// and any cleanup path; it must never raise (§3 destructor-path note).
func (b *Bus) closeLocked() {
	if b.t != nil {
		b.t.ClosePort()
	}
	b.groupReaders = make(map[string]groupReader)
	b.groupWriters = make(map[string]groupWriter)
	b.connected = false
}

// SetCalibration installs the calibration record consulted by Read/Write
// for Goal_Position / Present_Position (§6.4).
func (b *Bus) SetCalibration(record *CalibrationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calib = record
}

func (b *Bus) MotorNames() []string {
	names := make([]string, len(b.motors))
	for i, m := range b.motors {
		names[i] = m.Name
	}
	return names
}

func (b *Bus) MotorModels() []string {
	models := make([]string, len(b.motors))
	for i, m := range b.motors {
		models[i] = m.Model
	}
	return models
}

func (b *Bus) MotorIndices() []byte {
	ids := make([]byte, len(b.motors))
	for i, m := range b.motors {
		ids[i] = m.ID
	}
	return ids
}

// Logs returns a snapshot of the timing observations recorded by Read/Write
// (§6.4 "logs: map<string,float>").
func (b *Bus) Logs() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.logs))
	for k, v := range b.logs {
		out[k] = v
	}
	return out
}

func (b *Bus) resolveNames(names []string) []string {
	if len(names) == 0 {
		return b.MotorNames()
	}
	return names
}

func (b *Bus) lookupMotors(names []string) ([]byte, []string, error) {
	ids := make([]byte, len(names))
	models := make([]string, len(names))
	for i, name := range names {
		idx, ok := b.motorIdx[name]
		if !ok {
			return nil, nil, errf("unknown motor name %q", name)
		}
		ids[i] = b.motors[idx].ID
		models[i] = b.motors[idx].Model
	}
	return ids, models, nil
}

func groupKey(register string, names []string) string {
	return register + "_" + strings.Join(names, "_")
}

// Read implements §4.3: resolve names, validate address homogeneity, get or
// create the cached group reader, retry the round trip up to 10 times,
// reinterpret position fields as signed, apply calibration, and log timing.
func (b *Bus) Read(register string, names ...string) ([]int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, ErrNotConnected
	}

	resolved := b.resolveNames(names)
	ids, models, err := b.lookupMotors(resolved)
	if err != nil {
		return nil, err
	}
	entry, err := b.registry.AssertSameAddress(models, register)
	if err != nil {
		return nil, err
	}

	key := groupKey(register, resolved)
	reader, ok := b.groupReaders[key]
	if !ok {
		reader = b.t.NewGroupSyncRead(entry.Address, entry.Width)
		for _, id := range ids {
			reader.AddParam(id)
		}
		b.groupReaders[key] = reader
	}

	start := time.Now()
	var result transport.CommResult
	for attempt := 0; attempt < readRetries; attempt++ {
		result = reader.TxRxPacket()
		if result.Ok() {
			break
		}
	}
	if !result.Ok() {
		return nil, &BusCommError{GroupKey: key, Detail: result.String()}
	}

	values := make([]int32, len(ids))
	positionLike := register == RegisterGoalPosition || register == RegisterPresentPosition
	for i, id := range ids {
		raw, ok := reader.GetData(id)
		if !ok {
			return nil, &BusCommError{GroupKey: key, Detail: fmt.Sprintf("no data for id %d", id)}
		}
		if positionLike {
			signed := decodeSigned(raw, entry.Width)
			if b.calib != nil {
				physical, corrected, err := b.calib.ApplyAutocorrect(resolved[i], signed, b.resolution[resolved[i]])
				if err != nil {
					return nil, err
				}
				if corrected {
					b.warnf("motorsbus: auto-corrected calibration for %q", resolved[i])
				}
				values[i] = int32(math.Round(physical))
				continue
			}
			values[i] = signed
			continue
		}
		values[i] = int32(raw)
	}

	b.recordTiming("read", key, start)
	return values, nil
}

// Write implements §4.4: resolve names, broadcast a scalar if given,
// revert calibration for position registers, serialize, submit (no
// retry), and log timing.
func (b *Bus) Write(register string, values []int32, names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}

	resolved := b.resolveNames(names)
	if len(values) == 1 && len(resolved) > 1 {
		broadcast := make([]int32, len(resolved))
		for i := range broadcast {
			broadcast[i] = values[0]
		}
		values = broadcast
	}
	if len(values) != len(resolved) {
		return errf("write: %d values for %d motors", len(values), len(resolved))
	}

	ids, models, err := b.lookupMotors(resolved)
	if err != nil {
		return err
	}
	entry, err := b.registry.AssertSameAddress(models, register)
	if err != nil {
		return err
	}

	key := groupKey(register, resolved)
	writer, hasWriter := b.groupWriters[key]
	initGroup := !hasWriter

	positionLike := register == RegisterGoalPosition || register == RegisterPresentPosition
	encoded := make([][]byte, len(ids))
	for i, name := range resolved {
		v := values[i]
		if positionLike && b.calib != nil {
			raw, err := b.calib.Revert(name, float64(v), b.resolution[name])
			if err != nil {
				return err
			}
			v = raw
		}
		buf, err := encodeValue(v, entry.Width)
		if err != nil {
			return err
		}
		encoded[i] = buf
	}

	start := time.Now()
	if initGroup {
		writer = b.t.NewGroupSyncWrite(entry.Address, entry.Width)
		for i, id := range ids {
			writer.AddParam(id, encoded[i])
		}
		b.groupWriters[key] = writer
	} else {
		for i, id := range ids {
			writer.ChangeParam(id, encoded[i])
		}
	}

	if result := writer.TxPacket(); !result.Ok() {
		return &BusCommError{GroupKey: key, Detail: result.String()}
	}

	b.recordTiming("write", key, start)
	return nil
}

func (b *Bus) recordTiming(op, key string, start time.Time) {
	delta := time.Since(start).Seconds()
	now := float64(time.Now().UnixNano()) / 1e9
	b.logs[fmt.Sprintf("delta_timestamp_s_%s_%s", op, key)] = delta
	b.logs[fmt.Sprintf("timestamp_utc_%s_%s", op, key)] = now
}

// AreMotorsConfigured reports whether every roster motor responds at the
// canonical baud with its expected ID, swallowing BusCommError into false
// per §7's "no error is silently swallowed except ... inside
// are_motors_configured".
func (b *Bus) AreMotorsConfigured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return false
	}
	if b.t.GetBaudRate() != CanonicalBaud {
		if err := b.t.SetBaudRate(CanonicalBaud); err != nil {
			return false
		}
	}
	for _, m := range b.motors {
		entry, err := b.registry.Lookup(m.Model, RegisterID)
		if err != nil {
			return false
		}
		got, err := b.t.ReadOne(m.ID, entry.Address, entry.Width)
		if err != nil || byte(got) != m.ID {
			return false
		}
	}
	return true
}
