package outbox

import (
	"bytes"
	"encoding/binary"
	"io"
)

const (
	magic       uint32 = 0x4E415944 // "NAYD"
	version     uint16 = 1
	headerSize         = 10 // magic(4) + version(2) + payload_len(4)
)

// errTornFrame signals that the next frame could not be fully parsed --
// either because the log ends here, or because a trailing write was
// interrupted before it was made durable. Callers must treat both cases
// identically: stop, and don't advance past what was already parsed.
var errTornFrame = io.ErrUnexpectedEOF

// encodePayload serializes rec's body, without the frame header.
func encodePayload(rec Record) []byte {
	var buf bytes.Buffer
	var u64 [8]byte
	var u32 [4]byte
	var u16 [2]byte

	binary.LittleEndian.PutUint64(u64[:], rec.CreatedMs)
	buf.Write(u64[:])
	buf.WriteByte(byte(rec.Target))

	binary.LittleEndian.PutUint16(u16[:], uint16(len(rec.IdempotencyKey)))
	buf.Write(u16[:])
	buf.WriteString(rec.IdempotencyKey)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(rec.Statement)))
	buf.Write(u32[:])
	buf.WriteString(rec.Statement)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(rec.Params)))
	buf.Write(u32[:])
	for _, p := range rec.Params {
		binary.LittleEndian.PutUint32(u32[:], uint32(len(p)))
		buf.Write(u32[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

// encodeFrame serializes rec as a complete header+payload frame.
func encodeFrame(rec Record) []byte {
	var payload = encodePayload(rec)
	var out = make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint16(out[4:6], version)
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

// decodePayload parses a payload byte slice (the bytes following a
// validated header) into a Record.
func decodePayload(b []byte) (Record, error) {
	var rec Record
	if len(b) < 8+1+2 {
		return rec, errTornFrame
	}
	rec.CreatedMs = binary.LittleEndian.Uint64(b[0:8])
	rec.Target = Target(b[8])
	b = b[9:]

	if len(b) < 2 {
		return rec, errTornFrame
	}
	var keyLen = binary.LittleEndian.Uint16(b[0:2])
	b = b[2:]
	if len(b) < int(keyLen) {
		return rec, errTornFrame
	}
	rec.IdempotencyKey = string(b[:keyLen])
	b = b[keyLen:]

	if len(b) < 4 {
		return rec, errTornFrame
	}
	var stmtLen = binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	if uint64(len(b)) < uint64(stmtLen) {
		return rec, errTornFrame
	}
	rec.Statement = string(b[:stmtLen])
	b = b[stmtLen:]

	if len(b) < 4 {
		return rec, errTornFrame
	}
	var pcount = binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]

	rec.Params = make([][]byte, 0, pcount)
	for i := uint32(0); i < pcount; i++ {
		if len(b) < 4 {
			return rec, errTornFrame
		}
		var plen = binary.LittleEndian.Uint32(b[0:4])
		b = b[4:]
		if uint64(len(b)) < uint64(plen) {
			return rec, errTornFrame
		}
		var param = make([]byte, plen)
		copy(param, b[:plen])
		rec.Params = append(rec.Params, param)
		b = b[plen:]
	}
	return rec, nil
}

// readFrame reads one complete frame from r. On any malformation --
// short header, bad magic/version, short payload, undecodable payload --
// it returns errTornFrame and the caller must stop without treating this
// as a hard error: the trailing bytes are either EOF or a torn write.
func readFrame(r io.Reader) (Record, int, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, 0, errTornFrame
	}
	var gotMagic = binary.LittleEndian.Uint32(header[0:4])
	var gotVersion = binary.LittleEndian.Uint16(header[4:6])
	var payloadLen = binary.LittleEndian.Uint32(header[6:10])
	if gotMagic != magic || gotVersion != version {
		return Record{}, 0, errTornFrame
	}

	var payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, 0, errTornFrame
	}

	rec, err := decodePayload(payload)
	if err != nil {
		return Record{}, 0, errTornFrame
	}
	return rec, headerSize + len(payload), nil
}
