package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// PortHandler owns the UART device. Its name and method set mirror
// scservo_sdk.PortHandler: openPort/closePort/setBaudRate/getBaudRate/
// setPacketTimeoutMillis.
type PortHandler struct {
	path string

	mu      sync.Mutex
	port    serial.Port
	baud    int
	timeout time.Duration
}

// NewPortHandler constructs a handler for the given device path. The port is
// not opened until OpenPort is called.
func NewPortHandler(path string, initialBaud int) *PortHandler {
	return &PortHandler{path: path, baud: initialBaud}
}

// Path returns the device path this handler was constructed with.
func (p *PortHandler) Path() string { return p.path }

// OpenPort opens the serial device at the configured baud rate.
func (p *PortHandler) OpenPort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: p.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(p.path, mode)
	if err != nil {
		return errors.Wrapf(err, "open serial port %s", p.path)
	}
	if p.timeout > 0 {
		if err := port.SetReadTimeout(p.timeout); err != nil {
			port.Close()
			return errors.Wrapf(err, "set read timeout on %s", p.path)
		}
	}
	port.ResetInputBuffer()
	port.ResetOutputBuffer()
	p.port = port
	return nil
}

// ClosePort releases the device. Calling it when already closed is a no-op,
// matching the teacher's idempotent destructor-path disconnect.
func (p *PortHandler) ClosePort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

// SetBaudRate reopens the underlying mode at a new baud rate.
func (p *PortHandler) SetBaudRate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baud = baud
	if p.port == nil {
		return nil
	}
	if err := p.port.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}); err != nil {
		return fmt.Errorf("set baud rate %d on %s: %w", baud, p.path, err)
	}
	return nil
}

// GetBaudRate returns the baud rate most recently passed to SetBaudRate, or
// the one given at construction. A rate whose SetMode call failed is still
// the one reported.
func (p *PortHandler) GetBaudRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

// SetPacketTimeoutMillis sets the read deadline applied to every round trip,
// the Go analogue of scservo_sdk's setPacketTimeoutMillis.
func (p *PortHandler) SetPacketTimeoutMillis(ms int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = time.Duration(ms) * time.Millisecond
	if p.port == nil {
		return nil
	}
	return p.port.SetReadTimeout(p.timeout)
}

func (p *PortHandler) write(buf []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("port %s is not open", p.path)
	}
	return port.Write(buf)
}

func (p *PortHandler) read(buf []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("port %s is not open", p.path)
	}
	return port.Read(buf)
}
