package j1939

/*------------------------------------------------------------------
 *
 * Purpose:	Byte-exact encode/decode of the Transport Protocol
 *		Connection Management (TP.CM) and Data Transfer (TP.DT)
 *		frame bodies (SAE J1939-21 5.10.2-5.10.3). Multi-byte
 *		fields are little-endian.
 *
 *---------------------------------------------------------------*/

const (
	controlRTS   = 0x10
	controlCTS   = 0x11
	controlACK   = 0x13
	controlBAM   = 0x20
	controlAbort = 0xFF
)

// PayloadPerDT is the number of application payload bytes carried by
// each TP.DT frame.
const PayloadPerDT = 7

// CTSResponseLimit is the largest number of packets a receiver may
// request per CTS window.
const CTSResponseLimit = 4

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getUint16LE(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putUint24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func getUint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func buildRTSPayload(size uint16, totalPackets uint8, pgn uint32) [8]byte {
	var d [8]byte
	d[0] = controlRTS
	putUint16LE(d[1:3], size)
	d[3] = totalPackets
	d[4] = 0xFF
	putUint24LE(d[5:8], pgn)
	return d
}

func buildBAMPayload(size uint16, totalPackets uint8, pgn uint32) [8]byte {
	d := buildRTSPayload(size, totalPackets, pgn)
	d[0] = controlBAM
	return d
}

func buildACKPayload(size uint16, totalPackets uint8, pgn uint32) [8]byte {
	d := buildRTSPayload(size, totalPackets, pgn)
	d[0] = controlACK
	return d
}

func buildCTSPayload(responsePackets, nextSequence uint8, pgn uint32) [8]byte {
	var d [8]byte
	d[0] = controlCTS
	d[1] = responsePackets
	d[2] = nextSequence
	d[3] = 0xFF
	d[4] = 0xFF
	putUint24LE(d[5:8], pgn)
	return d
}

func buildAbortPayload(reason uint8, pgn uint32) [8]byte {
	var d [8]byte
	d[0] = controlAbort
	d[1] = reason
	d[2], d[3], d[4] = 0xFF, 0xFF, 0xFF
	putUint24LE(d[5:8], pgn)
	return d
}

type rtsFields struct {
	size         uint16
	totalPackets uint8
	pgn          uint32
}

func parseRTSLike(d [8]byte) rtsFields {
	return rtsFields{
		size:         getUint16LE(d[1:3]),
		totalPackets: d[3],
		pgn:          getUint24LE(d[5:8]),
	}
}

type ctsFields struct {
	responsePackets uint8
	nextSequence    uint8
	pgn             uint32
}

func parseCTS(d [8]byte) ctsFields {
	return ctsFields{
		responsePackets: d[1],
		nextSequence:    d[2],
		pgn:             getUint24LE(d[5:8]),
	}
}

type abortFields struct {
	reason uint8
	pgn    uint32
}

func parseAbort(d [8]byte) abortFields {
	return abortFields{reason: d[1], pgn: getUint24LE(d[5:8])}
}

// totalPacketsFor returns ceil(length / PayloadPerDT).
func totalPacketsFor(length int) uint8 {
	return uint8((length-1)/PayloadPerDT + 1)
}

// lastSectionFor returns the number of payload bytes carried by the
// final DT frame of a message of the given length.
func lastSectionFor(length int) int {
	r := length % PayloadPerDT
	if r == 0 {
		return PayloadPerDT
	}
	return r
}

// byteOffsetFor returns the payload offset of the packetsCount'th
// (1-based) DT frame.
func byteOffsetFor(packetsCount uint8) int {
	return (int(packetsCount) - 1) * PayloadPerDT
}

// buildDTFrame renders the packetsCount'th (1-based) DT frame for msg,
// padding the final frame's unused trailing bytes with 0xFF.
func buildDTFrame(id Identifier, msg *Message, totalPackets, packetsCount uint8) Frame {
	f := Frame{ID: id, Length: 8}
	f.Data[0] = packetsCount

	section := PayloadPerDT
	if packetsCount == totalPackets {
		section = lastSectionFor(msg.Length)
	}

	offset := byteOffsetFor(packetsCount)
	copy(f.Data[1:1+section], msg.Payload[offset:offset+section])
	for i := 1 + section; i < 8; i++ {
		f.Data[i] = 0xFF
	}

	return f
}

// reconstructIdentifier builds the identifier a reassembled message
// should carry: priority and source address come from the CM frame
// that announced it, the PGN from the RTS/BAM payload, and (for PDU1
// results) the destination is this node's own address.
func reconstructIdentifier(priority, sourceAddress uint8, pgn uint32, selfAddress uint8) Identifier {
	id := NewIdentifier(priority, 0, 0, 0, 0, sourceAddress).WithPGN(pgn)
	if !id.IsPDU2() {
		id = id.WithDestination(selfAddress)
	}
	return id
}
