package session

import (
	"encoding/binary"
	"errors"
)

// Record layout (offsets are 0-based; the Lua script uses 1-based):
//
//	[0]      version
//	[1:33]   hash digest
//	[33:41]  createdAt, big-endian unix seconds
//	[41:49]  updatedAt, big-endian unix seconds
//	[49]     len(userID)
//	[50:]    userID
const (
	recordVersion    = 1
	digestOffset     = 1
	createdAtOffset  = 33
	updatedAtOffset  = 41
	userLenOffset    = 49
	recordHeaderSize = 50
)

// Encode serializes s without its ID, which is part of the key.
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 {
		return nil, errors.New("userID required")
	}
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}

	buf := make([]byte, recordHeaderSize+len(s.UserID))
	buf[0] = recordVersion
	copy(buf[digestOffset:createdAtOffset], s.HashDigest[:])
	binary.BigEndian.PutUint64(buf[createdAtOffset:], uint64(s.CreatedAt))
	binary.BigEndian.PutUint64(buf[updatedAtOffset:], uint64(s.UpdatedAt))
	buf[userLenOffset] = byte(len(s.UserID))
	copy(buf[recordHeaderSize:], s.UserID)

	return buf, nil
}

// Decode parses a record produced by Encode. The returned session has no ID.
func Decode(data []byte) (*Session, error) {
	if len(data) < recordHeaderSize {
		return nil, ErrCorrupt
	}
	if data[0] != recordVersion {
		return nil, ErrCorrupt
	}

	userLen := int(data[userLenOffset])
	if userLen == 0 || len(data) != recordHeaderSize+userLen {
		return nil, ErrCorrupt
	}

	s := &Session{
		UserID:    string(data[recordHeaderSize:]),
		CreatedAt: int64(binary.BigEndian.Uint64(data[createdAtOffset:])),
		UpdatedAt: int64(binary.BigEndian.Uint64(data[updatedAtOffset:])),
	}
	copy(s.HashDigest[:], data[digestOffset:createdAtOffset])

	return s, nil
}

func encodeUnix(ts int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ts))
	return b[:]
}
