package motorsbus

import "github.com/feetechbus/motorsbus/internal/transport"

// protocolVersion is fixed at 0 for the SCS/STS family (§6.2).
const protocolVersion = 0

// serialTransport adapts internal/transport's PortHandler/PacketHandler/
// GroupSyncRead/GroupSyncWrite to the Bus-facing Transport interface. It is
// the only production implementation; tests substitute a fake that never
// touches a real device.
type serialTransport struct {
	port    *transport.PortHandler
	handler *transport.PacketHandler
}

func newSerialTransport(path string, initialBaud int) *serialTransport {
	port := transport.NewPortHandler(path, initialBaud)
	return &serialTransport{
		port:    port,
		handler: transport.NewPacketHandler(port, protocolVersion),
	}
}

func (s *serialTransport) OpenPort() error                 { return s.port.OpenPort() }
func (s *serialTransport) ClosePort() error                { return s.port.ClosePort() }
func (s *serialTransport) SetBaudRate(baud int) error       { return s.port.SetBaudRate(baud) }
func (s *serialTransport) GetBaudRate() int                 { return s.port.GetBaudRate() }
func (s *serialTransport) SetPacketTimeoutMillis(ms int) error {
	return s.port.SetPacketTimeoutMillis(ms)
}

func (s *serialTransport) NewGroupSyncRead(addr uint16, width int) groupReader {
	return transport.NewGroupSyncRead(s.handler, addr, width)
}

func (s *serialTransport) NewGroupSyncWrite(addr uint16, width int) groupWriter {
	return transport.NewGroupSyncWrite(s.handler, addr, width)
}

func (s *serialTransport) ReadOne(id byte, addr uint16, width int) (uint32, error) {
	return s.handler.ReadRegister(id, addr, width)
}

func (s *serialTransport) WriteOne(id byte, addr uint16, data []byte) error {
	return s.handler.WriteRegister(id, addr, data)
}
