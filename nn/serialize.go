package nn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hupe1980/carml/codec"
	"github.com/hupe1980/carml/internal/fs"
	"github.com/hupe1980/carml/internal/hash"
	"gonum.org/v1/gonum/mat"
)

// Artifact layout:
//
//	magic "CARMLNN" | format version (1 byte) | compression (1 byte)
//	codec name length (1 byte) | codec name
//	block stream (see compression.go) of:
//	    config length (uint32) | codec-encoded modelConfig
//	    per parameter: rows (uint32) | cols (uint32) | float64 values
//	CRC32-C of the block stream content (uint32)
//
// All integers are little-endian.
const (
	artifactMagic   = "CARMLNN"
	artifactVersion = 1
)

type modelConfig struct {
	Name      string           `json:"name"`
	Layers    []layerConfig    `json:"layers"`
	Optimizer *optimizerConfig `json:"optimizer,omitempty"`
	Loss      string           `json:"loss,omitempty"`
	Metrics   []string         `json:"metrics,omitempty"`
}

func (m *Sequential) modelConfig() modelConfig {
	cfg := modelConfig{Name: m.name, Metrics: m.metrics}
	for _, l := range m.layers {
		cfg.Layers = append(cfg.Layers, l.config())
	}
	if m.optimizer != nil {
		oc := m.optimizer.config()
		cfg.Optimizer = &oc
	}
	if m.loss != nil {
		cfg.Loss = m.loss.Name()
	}
	return cfg
}

// Save writes the model architecture, compile settings and weights to w.
// Optimizer state is not saved.
func (m *Sequential) Save(w io.Writer, compression Compression) error {
	return m.SaveWithCodec(w, compression, codec.Default)
}

// SaveWithCodec is Save with an explicit codec for the config section.
func (m *Sequential) SaveWithCodec(w io.Writer, compression Compression, c codec.Codec) error {
	if len(m.layers) == 0 {
		return ErrNoLayers
	}
	if compression > CompressionZSTD {
		return fmt.Errorf("save: %v not supported", compression)
	}

	cfgBytes, err := c.Marshal(m.modelConfig())
	if err != nil {
		return fmt.Errorf("save: encode config: %w", err)
	}

	bw := bufio.NewWriter(w)

	header := make([]byte, 0, len(artifactMagic)+3+len(c.Name()))
	header = append(header, artifactMagic...)
	header = append(header, artifactVersion, byte(compression), byte(len(c.Name())))
	header = append(header, c.Name()...)
	if _, err := bw.Write(header); err != nil {
		return err
	}

	blocks := newBlockWriter(bw, compression)
	crc := hash.NewCRC32C()
	body := io.MultiWriter(crc, blocks)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(cfgBytes)))
	if _, err := body.Write(u32[:]); err != nil {
		return err
	}
	if _, err := body.Write(cfgBytes); err != nil {
		return err
	}

	for _, l := range m.layers {
		for _, p := range l.Params() {
			if err := writeMatrix(body, p); err != nil {
				return err
			}
		}
	}

	if err := blocks.Close(); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(u32[:], crc.Sum32())
	if _, err := bw.Write(u32[:]); err != nil {
		return err
	}
	return bw.Flush()
}

func writeMatrix(w io.Writer, p *mat.Dense) error {
	r, c := p.Dims()

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(r))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(c))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	buf := make([]byte, 0, 64*1024)
	for i := 0; i < r; i++ {
		for _, v := range p.RawRowView(i) {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
			if len(buf) == cap(buf) {
				if _, err := w.Write(buf); err != nil {
					return err
				}
				buf = buf[:0]
			}
		}
	}
	_, err := w.Write(buf)
	return err
}

func readMatrix(r io.Reader, p *mat.Dense) error {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}

	rows, cols := p.Dims()
	gotRows := int(binary.LittleEndian.Uint32(hdr[0:]))
	gotCols := int(binary.LittleEndian.Uint32(hdr[4:]))
	if gotRows != rows || gotCols != cols {
		return fmt.Errorf("%w: weights (%d, %d), layer expects (%d, %d)", ErrShapeMismatch, gotRows, gotCols, rows, cols)
	}

	buf := make([]byte, cols*8)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		row := p.RawRowView(i)
		for j := range row {
			row[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8:]))
		}
	}
	return nil
}

// Load reads a model written by Save. Compiled models are compiled again
// with a fresh optimizer state.
func Load(r io.Reader, optFns ...ModelOption) (*Sequential, error) {
	br := bufio.NewReader(r)

	fixed := make([]byte, len(artifactMagic)+3)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if string(fixed[:len(artifactMagic)]) != artifactMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadArtifact)
	}
	if v := fixed[len(artifactMagic)]; v != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArtifact, v)
	}
	compression := Compression(fixed[len(artifactMagic)+1])
	if compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrBadArtifact, compression)
	}

	name := make([]byte, fixed[len(artifactMagic)+2])
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrBadArtifact, name)
	}

	crc := hash.NewCRC32C()
	body := io.TeeReader(newBlockReader(br, compression), crc)

	var u32 [4]byte
	if _, err := io.ReadFull(body, u32[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	cfgBytes := make([]byte, binary.LittleEndian.Uint32(u32[:]))
	if _, err := io.ReadFull(body, cfgBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}

	var cfg modelConfig
	if err := c.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", ErrBadArtifact, err)
	}

	m := NewSequential(append([]ModelOption{WithName(cfg.Name)}, optFns...)...)
	for _, lc := range cfg.Layers {
		l, err := layerFromConfig(lc)
		if err != nil {
			return nil, err
		}
		if err := m.Add(l); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		for _, p := range l.Params() {
			if err := readMatrix(body, p); err != nil {
				return nil, fmt.Errorf("%w: layer %s: %w", ErrBadArtifact, l.Name(), err)
			}
		}
	}

	var one [1]byte
	if n, err := body.Read(one[:]); n != 0 || !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrBadArtifact)
	}
	if _, err := io.ReadFull(br, u32[:]); err != nil {
		return nil, fmt.Errorf("%w: missing checksum", ErrBadArtifact)
	}
	if got := binary.LittleEndian.Uint32(u32[:]); got != crc.Sum32() {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadArtifact)
	}

	if cfg.Optimizer != nil && cfg.Loss != "" {
		opt, err := optimizerFromConfig(*cfg.Optimizer)
		if err != nil {
			return nil, err
		}
		loss, err := LossByName(cfg.Loss)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		if err := m.Compile(opt, loss, cfg.Metrics...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
	}

	return m, nil
}

// SaveFile writes the model to path, creating parent directories. The file
// is replaced atomically.
func (m *Sequential) SaveFile(path string, compression Compression) error {
	return m.saveFile(fs.Default, path, compression)
}

func (m *Sequential) saveFile(fsys fs.FileSystem, path string, compression Compression) error {
	return fs.WriteAtomic(fsys, path, func(w io.Writer) error {
		return m.Save(w, compression)
	})
}

// LoadFile reads a model saved with SaveFile.
func LoadFile(path string, optFns ...ModelOption) (*Sequential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f, optFns...)
}
