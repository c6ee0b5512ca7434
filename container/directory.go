package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"slices"

	"github.com/google/uuid"
)

const (
	binaryMagic   = 0x58444945 // "EIDX"
	binaryVersion = 1
	headerSize    = 64

	// maxDirectorySize bounds the directory read on open.
	maxDirectorySize = 64 << 20
)

// Kind identifies the type of a container object.
type Kind uint8

const (
	KindGroup   Kind = 1
	KindDataset Kind = 2
)

// DType identifies the element type of a dataset.
type DType uint8

// Uint64 is the only element type: node ids, edge ids and ranges.
const Uint64 DType = 1

const elemSize = 8

type object struct {
	path   string
	kind   Kind
	dtype  DType
	dims   []uint64
	offset uint64
	length uint64
}

type header struct {
	id      uuid.UUID
	dataEnd uint64
	dirLen  uint64
	dirCRC  uint32
}

func (h *header) encode() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(b[4:8], binaryVersion)
	copy(b[8:24], h.id[:])
	binary.LittleEndian.PutUint64(b[24:32], h.dataEnd)
	binary.LittleEndian.PutUint64(b[32:40], h.dirLen)
	binary.LittleEndian.PutUint32(b[40:44], h.dirCRC)
	return b
}

func decodeHeader(b []byte) (header, error) {
	var h header
	if len(b) < headerSize {
		return h, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != binaryMagic {
		return h, fmt.Errorf("%w: invalid magic: %x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(b[4:8]); version != binaryVersion {
		return h, fmt.Errorf("%w: unsupported version: %d", ErrCorrupt, version)
	}
	copy(h.id[:], b[8:24])
	h.dataEnd = binary.LittleEndian.Uint64(b[24:32])
	h.dirLen = binary.LittleEndian.Uint64(b[32:40])
	h.dirCRC = binary.LittleEndian.Uint32(b[40:44])
	if h.dataEnd < headerSize {
		return h, fmt.Errorf("%w: data end %d inside header", ErrCorrupt, h.dataEnd)
	}
	if h.dirLen > maxDirectorySize {
		return h, fmt.Errorf("%w: directory too large: %d", ErrCorrupt, h.dirLen)
	}
	return h, nil
}

func encodeDirectory(objects map[string]*object) ([]byte, error) {
	paths := make([]string, 0, len(objects))
	for p := range objects {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	pb := newPayloadBuffer(make([]byte, 0, 64*len(paths)+4))
	pb.writeUint32(uint32(len(paths)))
	for _, p := range paths {
		o := objects[p]
		pb.writeString(o.path)
		pb.writeUint8(uint8(o.kind))
		if o.kind != KindDataset {
			continue
		}
		pb.writeUint8(uint8(o.dtype))
		pb.writeUint8(uint8(len(o.dims)))
		for _, d := range o.dims {
			pb.writeUint64(d)
		}
		pb.writeUint64(o.offset)
		pb.writeUint64(o.length)
	}
	if pb.err != nil {
		return nil, pb.err
	}
	return pb.buf, nil
}

func decodeDirectory(b []byte, dataEnd uint64) (map[string]*object, error) {
	pb := newPayloadBuffer(b)
	n := pb.readUint32()
	objects := make(map[string]*object, n)

	for i := uint32(0); i < n && pb.err == nil; i++ {
		o := &object{path: pb.readString(), kind: Kind(pb.readUint8())}
		switch o.kind {
		case KindGroup:
		case KindDataset:
			o.dtype = DType(pb.readUint8())
			rank := int(pb.readUint8())
			o.dims = make([]uint64, rank)
			for j := range o.dims {
				o.dims[j] = pb.readUint64()
			}
			o.offset = pb.readUint64()
			o.length = pb.readUint64()
		default:
			return nil, fmt.Errorf("%w: object %q has unknown kind %d", ErrCorrupt, o.path, o.kind)
		}
		if pb.err != nil {
			break
		}
		if o.kind == KindDataset {
			if o.dtype != Uint64 || len(o.dims) == 0 {
				return nil, fmt.Errorf("%w: dataset %q has invalid type or rank", ErrCorrupt, o.path)
			}
			n, ok := elemCount(o.dims)
			if !ok || o.length != n*elemSize || o.offset < headerSize || o.offset > dataEnd || o.length > dataEnd-o.offset {
				return nil, fmt.Errorf("%w: dataset %q has invalid extent", ErrCorrupt, o.path)
			}
		}
		objects[o.path] = o
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, pb.err)
	}
	if pb.pos != len(pb.buf) {
		return nil, fmt.Errorf("%w: %d trailing directory bytes", ErrCorrupt, len(pb.buf)-pb.pos)
	}
	return objects, nil
}

// elemCount returns the product of dims. ok is false if the product or
// its size in bytes does not fit in an int64.
func elemCount(dims []uint64) (n uint64, ok bool) {
	n = 1
	for _, d := range dims {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return 0, false
		}
		n = lo
	}
	return n, n <= math.MaxInt64/elemSize
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("path too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readUint8() uint8 {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
