package nn

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how model artifact blocks are compressed.
type Compression uint8

const (
	// CompressionNone stores blocks as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block format: [UncompressedSize uint32][CompressedSize uint32][Data...].
// CompressedSize 0 marks a block stored uncompressed. A header with both
// sizes 0 terminates the stream.
const (
	blockHeaderSize = 8
	blockSize       = 256 * 1024
)

// blockWriter buffers writes into fixed-size blocks and compresses each one.
type blockWriter struct {
	w           io.Writer
	compression Compression
	buf         *bytes.Buffer
}

func newBlockWriter(w io.Writer, c Compression) *blockWriter {
	return &blockWriter{
		w:           w,
		compression: c,
		buf:         bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

func (bw *blockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := blockSize - bw.buf.Len()
		if space == 0 {
			if err := bw.flush(); err != nil {
				return total, err
			}
			space = blockSize
		}
		n := min(len(p), space)
		bw.buf.Write(p[:n])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (bw *blockWriter) flush() error {
	if bw.buf.Len() == 0 {
		return nil
	}

	data := bw.buf.Bytes()
	compressed, err := compressBlock(data, bw.compression)
	if err != nil {
		return err
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(data)))
	payload := data
	// Keep the block raw when compression does not help.
	if compressed != nil && len(compressed) < len(data)*9/10 {
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(compressed)))
		payload = compressed
	}

	if _, err := bw.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := bw.w.Write(payload); err != nil {
		return err
	}
	bw.buf.Reset()
	return nil
}

// Close flushes the last block and writes the terminator.
func (bw *blockWriter) Close() error {
	if err := bw.flush(); err != nil {
		return err
	}
	var hdr [blockHeaderSize]byte
	_, err := bw.w.Write(hdr[:])
	return err
}

func compressBlock(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil // Incompressible
		}
		return dst[:n], nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, nil
	}
}

// blockReader is the streaming counterpart of blockWriter.
type blockReader struct {
	r           io.Reader
	compression Compression
	block       []byte
	off         int
	done        bool
}

func newBlockReader(r io.Reader, c Compression) *blockReader {
	return &blockReader{r: r, compression: c}
}

func (br *blockReader) Read(p []byte) (int, error) {
	for br.off == len(br.block) {
		if br.done {
			return 0, io.EOF
		}
		if err := br.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, br.block[br.off:])
	br.off += n
	return n, nil
}

func (br *blockReader) next() error {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(br.r, hdr[:]); err != nil {
		return fmt.Errorf("%w: read block header: %v", ErrBadArtifact, err)
	}

	uncompressedSize := binary.LittleEndian.Uint32(hdr[0:])
	compressedSize := binary.LittleEndian.Uint32(hdr[4:])
	if uncompressedSize == 0 && compressedSize == 0 {
		br.done = true
		br.block, br.off = nil, 0
		return nil
	}
	if uncompressedSize > blockSize {
		return fmt.Errorf("%w: block of %d bytes exceeds limit", ErrBadArtifact, uncompressedSize)
	}

	if compressedSize == 0 {
		buf := make([]byte, uncompressedSize)
		if _, err := io.ReadFull(br.r, buf); err != nil {
			return fmt.Errorf("%w: read block: %v", ErrBadArtifact, err)
		}
		br.block, br.off = buf, 0
		return nil
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(br.r, compressed); err != nil {
		return fmt.Errorf("%w: read block: %v", ErrBadArtifact, err)
	}

	result := make([]byte, uncompressedSize)
	switch br.compression {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(compressed, result)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		result = result[:n]
	case CompressionZSTD:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(compressed, result[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		result = decoded
	default:
		return fmt.Errorf("%w: compressed block in uncompressed artifact", ErrBadArtifact)
	}

	if uint32(len(result)) != uncompressedSize {
		return fmt.Errorf("%w: decompressed size mismatch", ErrBadArtifact)
	}
	br.block, br.off = result, 0
	return nil
}
