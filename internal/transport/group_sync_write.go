package transport

// GroupSyncWrite batches a write of one contiguous register range across
// many servo IDs into a single broadcast packet. Named and shaped after
// scservo_sdk.GroupSyncWrite (addParam/changeParam/txPacket).
type GroupSyncWrite struct {
	handler *PacketHandler
	addr    byte
	length  byte

	order []byte
	data  map[byte][]byte
}

// NewGroupSyncWrite binds a writer to a register address/width.
func NewGroupSyncWrite(handler *PacketHandler, addr uint16, length int) *GroupSyncWrite {
	return &GroupSyncWrite{
		handler: handler,
		addr:    byte(addr),
		length:  byte(length),
		data:    make(map[byte][]byte),
	}
}

// AddParam registers id's payload. Re-adding an id overwrites its bytes but
// does not duplicate it in transmission order.
func (g *GroupSyncWrite) AddParam(id byte, data []byte) {
	if _, exists := g.data[id]; !exists {
		g.order = append(g.order, id)
	}
	g.data[id] = append([]byte(nil), data...)
}

// ChangeParam updates id's payload in place without touching transmission
// order — the in-place rebind §4.4 step 3 requires for reused writers.
func (g *GroupSyncWrite) ChangeParam(id byte, data []byte) {
	g.data[id] = append([]byte(nil), data...)
}

// TxPacket sends the accumulated per-ID payloads as a single broadcast
// sync-write packet. No reply is solicited (servos never ack a broadcast).
func (g *GroupSyncWrite) TxPacket() CommResult {
	if len(g.order) == 0 {
		return commTxFail
	}
	params := make([]byte, 0, 2+len(g.order)*(1+int(g.length)))
	params = append(params, g.addr, g.length)
	for _, id := range g.order {
		data := g.data[id]
		if len(data) != int(g.length) {
			return commTxFail
		}
		params = append(params, id)
		params = append(params, data...)
	}
	return g.handler.txPacket(BroadcastID, InstSyncWrite, params)
}
