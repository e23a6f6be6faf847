package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/golang/snappy"
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfSnappy        = vfCompressionBit0
	vfSupportedMask = (vfVer1 | vfSnappy)

	minValueSize = 4
)

// value is a stored snapshot: a header of uvarints (flags, save time,
// version, data size) followed by the message.
type value struct {
	Flags   valueFlags
	SavedAt uint64
	Version uint64
	Data    []byte
}

func (vle *value) encode(buf []byte, msg []byte, compress bool) []byte {
	flags := vfVer1
	if compress {
		flags |= vfSnappy
	}
	buf = binary.AppendUvarint(buf[:0], uint64(flags))
	buf = binary.AppendUvarint(buf, vle.SavedAt)
	buf = binary.AppendUvarint(buf, vle.Version)
	if compress {
		// the size field carries the compressed size
		encoded := snappy.Encode(nil, msg)
		buf = binary.AppendUvarint(buf, uint64(len(encoded)))
		return append(buf, encoded...)
	}
	buf = binary.AppendUvarint(buf, uint64(len(msg)))
	return append(buf, msg...)
}

// decode parses the header. Data aliases the input and stays compressed.
func (vle *value) decode(data []byte) error {
	orig := data
	if len(data) < minValueSize {
		return valueErrf(orig, 0, "at least %d bytes required", minValueSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "bad flags")
	}
	if v&^uint64(vfSupportedMask) != 0 || valueFlags(v)&vfVerMask != vfVer1 {
		return valueErrf(orig, len(orig)-len(data), "unsupported flags %x", v)
	}
	vle.Flags, data = valueFlags(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "bad save time")
	}
	vle.SavedAt, data = v, data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "bad version")
	}
	vle.Version, data = v, data[n:]

	dataSize, n := binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "bad data size")
	}
	data = data[n:]
	if uint64(len(data)) != dataSize {
		return valueErrf(orig, len(orig)-len(data), "got %d bytes of data, expected %d bytes", len(data), dataSize)
	}
	vle.Data = data
	return nil
}

func (vle *value) compressed() bool {
	return vle.Flags&vfSnappy != 0
}

// message returns the uncompressed message.
func (vle *value) message() ([]byte, error) {
	if !vle.compressed() {
		return vle.Data, nil
	}
	return snappy.Decode(nil, vle.Data)
}

func valueErrf(data []byte, off int, format string, args ...any) error {
	const maxDump = 64
	if len(data) > maxDump {
		data = data[:maxDump]
	}
	return fmt.Errorf("invalid snapshot value at offset %d: %s (data: %s)", off, fmt.Sprintf(format, args...), hex.EncodeToString(data))
}
