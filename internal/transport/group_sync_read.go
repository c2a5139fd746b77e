package transport

import "encoding/binary"

// GroupSyncRead batches a read of one contiguous register range across many
// servo IDs into a single bus transaction: one broadcast request packet,
// followed by one status reply per participating ID. Named and shaped after
// scservo_sdk.GroupSyncRead (addParam/txRxPacket/getData).
type GroupSyncRead struct {
	handler *PacketHandler
	addr    byte
	length  byte

	ids  []byte
	data map[byte][]byte
}

// NewGroupSyncRead binds a reader to a register address/width on the given
// handler. Parameters (IDs) are added with AddParam.
func NewGroupSyncRead(handler *PacketHandler, addr uint16, length int) *GroupSyncRead {
	return &GroupSyncRead{
		handler: handler,
		addr:    byte(addr),
		length:  byte(length),
		data:    make(map[byte][]byte),
	}
}

// AddParam registers a motor ID as a participant in this group. Adding the
// same ID twice is a no-op, matching scservo_sdk's addParam semantics.
func (g *GroupSyncRead) AddParam(id byte) {
	for _, existing := range g.ids {
		if existing == id {
			return
		}
	}
	g.ids = append(g.ids, id)
}

// TxRxPacket performs the sync-read round trip: one broadcast request, then
// one status reply read per registered ID, in registration order.
func (g *GroupSyncRead) TxRxPacket() CommResult {
	if len(g.ids) == 0 {
		return commTxFail
	}

	params := make([]byte, 0, 2+len(g.ids))
	params = append(params, g.addr, g.length)
	params = append(params, g.ids...)

	if result := g.handler.txPacket(BroadcastID, InstSyncRead, params); !result.Ok() {
		return result
	}

	for _, id := range g.ids {
		status, err := g.handler.readStatusPacket()
		if err != nil {
			return commRxTimeout
		}
		if status.errByt != 0 {
			return commRxCorrupt
		}
		if len(status.params) < int(g.length) {
			return commRxCorrupt
		}
		g.data[status.id] = append([]byte(nil), status.params[:g.length]...)
	}
	return CommSuccess
}

// GetData returns the little-endian integer value last read for id. The ok
// result is false if id never produced a successful reply.
func (g *GroupSyncRead) GetData(id byte) (uint32, bool) {
	raw, ok := g.data[id]
	if !ok {
		return 0, false
	}
	buf := make([]byte, 4)
	copy(buf, raw)
	return binary.LittleEndian.Uint32(buf), true
}
