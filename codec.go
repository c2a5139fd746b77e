package motorsbus

import "github.com/feetechbus/motorsbus/internal/transport"

// encodeValue serializes value into width little-endian bytes using the
// transport's low/high word split primitives (§4.1), the same LOBYTE(LOWORD)
// / HIBYTE(LOWORD) / LOBYTE(HIWORD) / HIBYTE(HIWORD) decomposition
// scservo_sdk consumers use to fill a GroupSyncWrite parameter buffer.
func encodeValue(value int32, width int) ([]byte, error) {
	u := uint32(value)
	lo := transport.LoWord(u)
	hi := transport.HiWord(u)

	switch width {
	case 1:
		return []byte{transport.LoByte(lo)}, nil
	case 2:
		return []byte{transport.LoByte(lo), transport.HiByte(lo)}, nil
	case 4:
		return []byte{
			transport.LoByte(lo), transport.HiByte(lo),
			transport.LoByte(hi), transport.HiByte(hi),
		}, nil
	default:
		return nil, &UnsupportedWidthError{Width: width}
	}
}

// decodeSigned reinterprets a raw little-endian register value as a signed
// 32-bit integer (§4.3 step 7), two's-complement over the register's own
// width so a 1 or 2-byte field doesn't pick up phantom high bits from the
// zero-extended uint32 the transport hands back.
func decodeSigned(raw uint32, width int) int32 {
	switch width {
	case 1:
		return int32(int8(raw))
	case 2:
		return int32(int16(raw))
	default:
		return int32(raw)
	}
}
