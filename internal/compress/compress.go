package compress

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/edgeidx/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks verbatim.
	None Type = 0
	// LZ4 indicates LZ4 block compression (fast).
	LZ4 Type = 1
	// Zstd indicates ZSTD block compression (better ratio).
	Zstd Type = 2
)

const (
	streamMagic     = "EIDZ"
	blockHeaderSize = 12

	// DefaultBlockSize is the uncompressed size of a block.
	DefaultBlockSize = 1 << 20
	maxBlockSize     = 64 << 20
)

var (
	// ErrCorrupt is returned when a stream fails validation.
	ErrCorrupt = errors.New("compress: corrupt stream")
	// ErrUnknownType is returned for unsupported compression types.
	ErrUnknownType = errors.New("compress: unknown compression type")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses a compression name ("none", "lz4", "zstd").
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zstandard":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

func compressBlock(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return nil, nil
	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil // incompressible
		}
		return dst[:n], nil
	case Zstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, ErrUnknownType
	}
}

func decompressBlock(t Type, src []byte, size uint32) ([]byte, error) {
	dst := make([]byte, size)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return dst, nil
	case Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(out)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, ErrUnknownType
	}
}

// Writer compresses a stream into blocks.
type Writer struct {
	w         io.Writer
	t         Type
	blockSize int
	buf       []byte
	written   int64
	started   bool
	err       error
}

// NewWriter creates a block writer. blockSize <= 0 selects DefaultBlockSize.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 || blockSize > maxBlockSize {
		blockSize = DefaultBlockSize
	}
	return &Writer{
		w:         w,
		t:         t,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

// Write buffers p, flushing full blocks.
func (c *Writer) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	total := 0
	for len(p) > 0 {
		space := c.blockSize - len(c.buf)
		n := min(space, len(p))
		c.buf = append(c.buf, p[:n]...)
		total += n
		p = p[n:]
		if len(c.buf) == c.blockSize {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (c *Writer) emit(b []byte) error {
	n, err := c.w.Write(b)
	c.written += int64(n)
	if err != nil {
		c.err = err
	}
	return err
}

func (c *Writer) preamble() error {
	if c.started {
		return nil
	}
	c.started = true
	return c.emit(append([]byte(streamMagic), byte(c.t)))
}

func (c *Writer) flushBlock() error {
	if err := c.preamble(); err != nil {
		return err
	}
	if len(c.buf) == 0 {
		return nil
	}

	compressed, err := compressBlock(c.t, c.buf)
	if err != nil {
		c.err = err
		return err
	}

	header := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(c.buf)))
	binary.LittleEndian.PutUint32(header[8:], hash.CRC32C(c.buf))

	payload := c.buf
	// Store uncompressed when compression saves less than 10%.
	if len(compressed) > 0 && float64(len(compressed)) <= float64(len(c.buf))*0.9 {
		binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
		payload = compressed
	}

	if err := c.emit(header); err != nil {
		return err
	}
	if err := c.emit(payload); err != nil {
		return err
	}
	c.buf = c.buf[:0]
	return nil
}

// Close flushes the final block. It does not close the underlying writer.
func (c *Writer) Close() error {
	if c.err != nil {
		return c.err
	}
	return c.flushBlock()
}

// BytesWritten returns the total bytes written to the underlying writer.
func (c *Writer) BytesWritten() int64 {
	return c.written
}

// PreambleSize is the number of bytes IsStream needs.
const PreambleSize = len(streamMagic) + 1

// IsStream reports whether prefix starts a compressed stream.
func IsStream(prefix []byte) bool {
	return len(prefix) >= PreambleSize && string(prefix[:len(streamMagic)]) == streamMagic && Type(prefix[len(streamMagic)]) <= Zstd
}

// Reader decompresses a block stream.
type Reader struct {
	r     *bufio.Reader
	t     Type
	block []byte
	err   error
}

// NewReader validates the stream preamble and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	pre := make([]byte, len(streamMagic)+1)
	if _, err := io.ReadFull(br, pre); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if string(pre[:len(streamMagic)]) != streamMagic {
		return nil, fmt.Errorf("%w: invalid magic", ErrCorrupt)
	}
	t := Type(pre[len(streamMagic)])
	if t > Zstd {
		return nil, ErrUnknownType
	}
	return &Reader{r: br, t: t}, nil
}

// Type returns the compression type recorded in the stream.
func (c *Reader) Type() Type {
	return c.t
}

func (c *Reader) next() error {
	header := make([]byte, blockHeaderSize)
	if _, err := io.ReadFull(c.r, header); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	size := binary.LittleEndian.Uint32(header[0:])
	stored := binary.LittleEndian.Uint32(header[4:])
	sum := binary.LittleEndian.Uint32(header[8:])
	if size > maxBlockSize || stored > maxBlockSize {
		return fmt.Errorf("%w: block too large", ErrCorrupt)
	}

	n := size
	if stored != 0 {
		n = stored
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if stored != 0 {
		var err error
		if payload, err = decompressBlock(c.t, payload, size); err != nil {
			return err
		}
	}
	if err := hash.Verify(payload, sum); err != nil {
		return fmt.Errorf("%w: block: %w", ErrCorrupt, err)
	}
	c.block = payload
	return nil
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	for len(c.block) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		if err := c.next(); err != nil {
			c.err = err
			return 0, err
		}
	}
	n := copy(p, c.block)
	c.block = c.block[n:]
	return n, nil
}
