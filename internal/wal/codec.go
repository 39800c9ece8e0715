package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Wire layout (spec.md §6):
//
//	tag(1) | payload
//
// Apply/Undo payload: slot(8) hash(32) height(8) bodyLen(4) body(bodyLen)
// Mark payload: origin(1); if not origin, slot(8) hash(32)

func encodeSlotKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

func decodeSeqKey(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("%w: wal key must be 8 bytes, got %d", ErrSerde, len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

func encodeLogValue(v LogValue) []byte {
	switch v.Kind {
	case KindApply, KindUndo:
		body := v.Block.Body
		buf := make([]byte, 1+8+types.HashSize+8+4+len(body))
		buf[0] = byte(v.Kind)
		off := 1
		binary.BigEndian.PutUint64(buf[off:], v.Block.Slot)
		off += 8
		copy(buf[off:], v.Block.Hash[:])
		off += types.HashSize
		binary.BigEndian.PutUint64(buf[off:], v.Block.Height)
		off += 8
		binary.BigEndian.PutUint32(buf[off:], uint32(len(body)))
		off += 4
		copy(buf[off:], body)
		return buf
	case KindMark:
		if v.Mark.IsOrigin() {
			return []byte{byte(KindMark), 0}
		}
		buf := make([]byte, 1+1+8+types.HashSize)
		buf[0] = byte(KindMark)
		buf[1] = 1
		binary.BigEndian.PutUint64(buf[2:], v.Mark.Slot)
		copy(buf[2+8:], v.Mark.Hash[:])
		return buf
	default:
		panic(fmt.Sprintf("wal: unknown LogValue kind %d", v.Kind))
	}
}

func decodeLogValue(data []byte) (LogValue, error) {
	if len(data) < 1 {
		return LogValue{}, fmt.Errorf("%w: empty wal record", ErrSerde)
	}
	kind := LogValueKind(data[0])
	rest := data[1:]

	switch kind {
	case KindApply, KindUndo:
		const fixed = 8 + types.HashSize + 8 + 4
		if len(rest) < fixed {
			return LogValue{}, fmt.Errorf("%w: truncated apply/undo record", ErrSerde)
		}
		off := 0
		slot := binary.BigEndian.Uint64(rest[off:])
		off += 8
		var hash types.Hash
		copy(hash[:], rest[off:off+types.HashSize])
		off += types.HashSize
		height := binary.BigEndian.Uint64(rest[off:])
		off += 8
		bodyLen := binary.BigEndian.Uint32(rest[off:])
		off += 4
		if uint32(len(rest)-off) < bodyLen {
			return LogValue{}, fmt.Errorf("%w: truncated body", ErrSerde)
		}
		body := make([]byte, bodyLen)
		copy(body, rest[off:off+int(bodyLen)])
		return LogValue{
			Kind: kind,
			Block: RawBlock{
				Slot:   slot,
				Hash:   hash,
				Height: height,
				Body:   body,
			},
		}, nil
	case KindMark:
		if len(rest) < 1 {
			return LogValue{}, fmt.Errorf("%w: truncated mark record", ErrSerde)
		}
		if rest[0] == 0 {
			return LogValue{Kind: KindMark, Mark: Origin}, nil
		}
		if len(rest) < 1+8+types.HashSize {
			return LogValue{}, fmt.Errorf("%w: truncated mark point", ErrSerde)
		}
		slot := binary.BigEndian.Uint64(rest[1:])
		var hash types.Hash
		copy(hash[:], rest[1+8:1+8+types.HashSize])
		return LogValue{Kind: KindMark, Mark: NewChainPoint(slot, hash)}, nil
	default:
		return LogValue{}, fmt.Errorf("%w: unknown variant tag %d", ErrSerde, kind)
	}
}
