// Package replay encodes and decodes a captured stimulation seed (its
// root signals plus the activation tasks pushed over its
// lifetime) so it can be replayed later against a fresh facade,
// exercising the round-trip property spec.md §8 calls out ("Serializing
// then replaying the initial seed via enqueueTasks yields the same
// terminal context snapshot as a fresh stimulate when handlers are
// pure"). Grounded on the teacher's pkg/persistence/codec.go: a
// versioned binary header (magic + version + checksum) wrapping an
// msgpack-encoded body, via the same vmihailenco/msgpack/v5 library.
//
// Signal payloads are stored as `any` and decode into msgpack's generic
// Go types: a small integer payload comes back as int8, for example. A
// decoded payload equals the original in value, but not always in Go
// type, so a replayed handler that stores its payload does not always
// produce a context snapshot deep-equal to the original.
package replay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/abaikov/cnstra-sub003/pkg/core"
)

const (
	magicBytes    = "CSTR"
	formatVersion = 1
)

// header mirrors the teacher's fixed binary framing: a magic tag, a
// format version (to let a future decoder reject or migrate an older
// body), and a checksum over the msgpack payload.
type header struct {
	Magic    [4]byte
	Version  uint16
	BodyLen  uint32
	Checksum uint32
}

// Capture is the serializable snapshot of one stimulation's seed.
type Capture struct {
	StimulationID core.StimulationID    `msgpack:"stimulationId"`
	RootSignals   []core.Signal         `msgpack:"rootSignals"`
	Tasks         []core.ActivationTask `msgpack:"tasks"`
}

// Encode serializes a Capture to the versioned binary format.
func Encode(c Capture) ([]byte, error) {
	body, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("replay: marshal capture: %w", err)
	}

	h := header{
		Version:  formatVersion,
		BodyLen:  uint32(len(body)),
		Checksum: crc32.ChecksumIEEE(body),
	}
	copy(h.Magic[:], magicBytes)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("replay: write header: %w", err)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses a buffer produced by Encode, validating the magic tag,
// version and checksum before trusting the body.
func Decode(data []byte) (Capture, error) {
	var h header
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Capture{}, fmt.Errorf("replay: read header: %w", err)
	}
	if string(h.Magic[:]) != magicBytes {
		return Capture{}, fmt.Errorf("replay: bad magic %q", h.Magic[:])
	}
	if h.Version != formatVersion {
		return Capture{}, fmt.Errorf("replay: unsupported version %d", h.Version)
	}

	body := data[len(data)-r.Len():]
	if uint32(len(body)) != h.BodyLen {
		return Capture{}, fmt.Errorf("replay: body length mismatch: header says %d, got %d", h.BodyLen, len(body))
	}
	if crc32.ChecksumIEEE(body) != h.Checksum {
		return Capture{}, fmt.Errorf("replay: checksum mismatch")
	}

	var c Capture
	if err := msgpack.Unmarshal(body, &c); err != nil {
		return Capture{}, fmt.Errorf("replay: unmarshal capture: %w", err)
	}
	return c, nil
}
