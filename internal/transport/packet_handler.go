package transport

import (
	"fmt"
	"time"
)

const readChunkSize = 128

// PacketHandler builds and exchanges instruction/status packets over a
// PortHandler. It mirrors scservo_sdk.PacketHandler(protocolVersion).
type PacketHandler struct {
	port            *PortHandler
	protocolVersion int
}

// NewPacketHandler binds a packet handler to a port at the given protocol
// version (0 for the SCS/STS family per spec §6.2).
func NewPacketHandler(port *PortHandler, protocolVersion int) *PacketHandler {
	return &PacketHandler{port: port, protocolVersion: protocolVersion}
}

// GetTxRxResult returns a human-readable description of a comm result, the
// Go analogue of packet_handler.get_tx_rx_result(code).
func (h *PacketHandler) GetTxRxResult(result CommResult) string {
	return result.String()
}

// txPacket writes an instruction packet without waiting for a reply. Used
// for broadcast sync-write, which servos never acknowledge.
func (h *PacketHandler) txPacket(id byte, inst byte, params []byte) CommResult {
	pkt := buildPacket(id, inst, params)
	if _, err := h.port.write(pkt); err != nil {
		return commTxFail
	}
	return CommSuccess
}

// ReadRegister issues a single Read instruction for one id/register and
// returns its little-endian value as an unsigned integer. Used for
// configuration-time probing before any GroupSyncRead roster exists (§4.5).
func (h *PacketHandler) ReadRegister(id byte, addr uint16, width int) (uint32, error) {
	params := []byte{byte(addr), byte(width)}
	data, errByt, result := h.txRxPacket(id, InstRead, params)
	if !result.Ok() {
		return 0, fmt.Errorf("read register: %s", result.String())
	}
	if errByt != 0 {
		return 0, fmt.Errorf("read register: servo reported error byte 0x%02x", errByt)
	}
	if len(data) < width {
		return 0, fmt.Errorf("read register: short reply, want %d bytes got %d", width, len(data))
	}
	var v uint32
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint32(data[i])
	}
	return v, nil
}

// WriteRegister issues a single Write instruction for one id/register.
func (h *PacketHandler) WriteRegister(id byte, addr uint16, data []byte) error {
	params := make([]byte, 0, 1+len(data))
	params = append(params, byte(addr))
	params = append(params, data...)
	_, errByt, result := h.txRxPacket(id, InstWrite, params)
	if !result.Ok() {
		return fmt.Errorf("write register: %s", result.String())
	}
	if errByt != 0 {
		return fmt.Errorf("write register: servo reported error byte 0x%02x", errByt)
	}
	return nil
}

// txRxPacket writes an instruction packet and waits for exactly one status
// reply, returning its error byte and parameters.
func (h *PacketHandler) txRxPacket(id byte, inst byte, params []byte) ([]byte, byte, CommResult) {
	pkt := buildPacket(id, inst, params)
	if _, err := h.port.write(pkt); err != nil {
		return nil, 0, commTxFail
	}
	status, err := h.readStatusPacket()
	if err != nil {
		return nil, 0, commRxTimeout
	}
	if status.id != id {
		return nil, 0, commRxCorrupt
	}
	return status.params, status.errByt, CommSuccess
}

// readStatusPacket accumulates bytes off the wire until a full, checksum-
// valid status packet is assembled or the port's configured timeout
// elapses. The accumulate-then-parse shape mirrors dxl.Driver's
// readPacketWithTimeout.
func (h *PacketHandler) readStatusPacket() (statusPacket, error) {
	deadline := time.Now().Add(h.timeout())
	var buf []byte
	chunk := make([]byte, readChunkSize)

	for time.Now().Before(deadline) {
		n, err := h.port.read(chunk)
		if err != nil {
			return statusPacket{}, err
		}
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}

		start := findHeader(buf)
		if start < 0 {
			continue
		}
		if len(buf) < start+4 {
			continue
		}
		length := int(buf[start+3])
		total := start + 4 + length
		if len(buf) < total {
			continue
		}
		return parseStatusPacket(buf[start:total])
	}
	return statusPacket{}, fmt.Errorf("timeout waiting for status packet")
}

func (h *PacketHandler) timeout() time.Duration {
	h.port.mu.Lock()
	defer h.port.mu.Unlock()
	if h.port.timeout <= 0 {
		return time.Second
	}
	return h.port.timeout
}

// findHeader locates the start of a 0xFF 0xFF packet header in buf.
func findHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == header1 && buf[i+1] == header2 {
			return i
		}
	}
	return -1
}
