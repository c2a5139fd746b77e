package motorsbus

import (
	"testing"
	"time"
)

// fakeDevice is a single simulated physical servo: it only answers a probe
// when the transport's current baud matches its own and the target ID
// matches its current ID, exactly like a real daisy-chained SCS servo.
type fakeDevice struct {
	id     byte
	baud   int
	online bool
}

// fakeConfigureTransport simulates the shared half-duplex bus the
// configuration orchestrator drives: ReadOne/WriteOne only reach a device
// that is online and tuned to the current baud.
type fakeConfigureTransport struct {
	currentBaud int
	devices     []*fakeDevice
}

func (f *fakeConfigureTransport) OpenPort() error                  { return nil }
func (f *fakeConfigureTransport) ClosePort() error                 { return nil }
func (f *fakeConfigureTransport) SetBaudRate(baud int) error       { f.currentBaud = baud; return nil }
func (f *fakeConfigureTransport) GetBaudRate() int                 { return f.currentBaud }
func (f *fakeConfigureTransport) SetPacketTimeoutMillis(int) error { return nil }

func (f *fakeConfigureTransport) NewGroupSyncRead(addr uint16, width int) groupReader {
	return &fakeGroupReader{owner: &fakeTransport{values: map[byte]uint32{}}}
}

func (f *fakeConfigureTransport) NewGroupSyncWrite(addr uint16, width int) groupWriter {
	return &fakeGroupWriter{data: make(map[byte][]byte)}
}

func (f *fakeConfigureTransport) findDevice(id byte) *fakeDevice {
	for _, d := range f.devices {
		if d.online && d.baud == f.currentBaud && d.id == id {
			return d
		}
	}
	return nil
}

func (f *fakeConfigureTransport) ReadOne(id byte, addr uint16, width int) (uint32, error) {
	d := f.findDevice(id)
	if d == nil {
		return 0, errf("no device answered id %d at baud %d", id, f.currentBaud)
	}
	switch addr {
	case 5: // ID register
		return uint32(d.id), nil
	case 6: // Baud_Rate register
		return uint32(baudCodeForBps(d.baud)), nil
	default:
		return 0, nil
	}
}

func (f *fakeConfigureTransport) WriteOne(id byte, addr uint16, data []byte) error {
	d := f.findDevice(id)
	if d == nil {
		return errf("no device answered id %d at baud %d", id, f.currentBaud)
	}
	switch addr {
	case 5:
		d.id = data[0]
	case 6:
		d.baud = scsSeriesBaudTable[int(data[0])]
	}
	return nil
}

func baudCodeForBps(bps int) int {
	for code, b := range scsSeriesBaudTable {
		if b == bps {
			return code
		}
	}
	return -1
}

// S7: one unconfigured motor answers at id=1/baud=500000 once the operator
// plugs it in; the roster wants it relabeled to id=6 at the canonical baud.
func TestConfigureMotorsSingleMotor(t *testing.T) {
	bus, err := NewBus("/dev/fake", []Motor{{Name: "joint", ID: 6, Model: "sts3215"}}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	device := &fakeDevice{id: 1, baud: 500_000, online: false}
	ft := &fakeConfigureTransport{devices: []*fakeDevice{device}}
	bus.WithTransport(ft)
	if err := bus.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	connectedOnce := false
	confirm := func(string) error {
		device.online = true
		connectedOnce = true
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- bus.ConfigureMotors(confirm) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ConfigureMotors: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ConfigureMotors did not complete in time")
	}

	if !connectedOnce {
		t.Fatal("expected confirm callback to run")
	}
	if device.id != 6 {
		t.Fatalf("device.id = %d, want 6", device.id)
	}
	if device.baud != CanonicalBaud {
		t.Fatalf("device.baud = %d, want %d", device.baud, CanonicalBaud)
	}
	if ft.GetBaudRate() != CanonicalBaud {
		t.Fatalf("bus baud = %d, want %d", ft.GetBaudRate(), CanonicalBaud)
	}
}

func TestConfigureMotorsNoNewMotor(t *testing.T) {
	bus, err := NewBus("/dev/fake", []Motor{{Name: "joint", ID: 6, Model: "sts3215"}}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	ft := &fakeConfigureTransport{}
	bus.WithTransport(ft)
	if err := bus.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err = bus.ConfigureMotors(func(string) error { return nil })
	if err != ErrMotorNotFound {
		t.Fatalf("err = %v, want ErrMotorNotFound", err)
	}
}
