package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/carml/blobstore"
	"github.com/hupe1980/carml/codec"
	"github.com/hupe1980/carml/internal/fetch"
)

// Fetcher opens dataset sources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Workspace is the registry of datasets, models and runs.
type Workspace struct {
	store       blobstore.BlobStore
	log         VersionLog
	codec       codec.Codec
	fetcher     Fetcher
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithVersionLog overrides the default blob backed version log.
func WithVersionLog(l VersionLog) Option {
	return func(ws *Workspace) {
		ws.log = l
	}
}

// WithCodec sets the codec used for new records. Existing records are read
// with the codec named in their header.
func WithCodec(c codec.Codec) Option {
	return func(ws *Workspace) {
		ws.codec = c
	}
}

// WithFetcher sets the source fetcher.
func WithFetcher(f Fetcher) Option {
	return func(ws *Workspace) {
		ws.fetcher = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ws *Workspace) {
		ws.logger = l
	}
}

// WithClock sets the time source for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(ws *Workspace) {
		ws.now = now
	}
}

// WithCommitAttempts sets how often a version reservation is retried on
// ErrConcurrentModification.
func WithCommitAttempts(n int) Option {
	return func(ws *Workspace) {
		if n > 0 {
			ws.maxAttempts = n
		}
	}
}

// New creates a Workspace on top of store.
func New(store blobstore.BlobStore, optFns ...Option) *Workspace {
	ws := &Workspace{
		store:       store,
		codec:       codec.Default,
		fetcher:     fetch.New(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		maxAttempts: 5,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(ws)
		}
	}
	if ws.log == nil {
		ws.log = NewBlobVersionLog(store)
	}
	return ws
}

// Store returns the underlying blob store.
func (ws *Workspace) Store() blobstore.BlobStore {
	return ws.store
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// reserve allocates the next version for key by committing record(version).
func (ws *Workspace) reserve(ctx context.Context, key string, record func(version uint64) string) (uint64, error) {
	for attempt := 1; attempt <= ws.maxAttempts; attempt++ {
		latest, _, err := ws.log.Latest(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("read latest version of %s: %w", key, err)
		}

		version := latest.Version + 1
		err = ws.log.Commit(ctx, key, Commit{Version: version, Record: record(version)})
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return 0, fmt.Errorf("commit version %d of %s: %w", version, key, err)
		}

		ws.logger.Debug("version taken, retrying", "key", key, "version", version, "attempt", attempt)
	}

	return 0, &CommitConflictError{Key: key, Attempts: ws.maxAttempts}
}

// resolve returns the newest commit of key whose record has been written,
// or the commit with the requested version.
func (ws *Workspace) resolve(ctx context.Context, key string, version uint64) ([]byte, bool, error) {
	commits, err := ws.log.Versions(ctx, key)
	if err != nil {
		return nil, false, err
	}

	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		if version != 0 && c.Version != version {
			continue
		}

		data, err := blobstore.ReadAll(ctx, ws.store, c.Record)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				// Reserved but never completed.
				if version != 0 {
					return nil, false, nil
				}
				continue
			}
			return nil, false, err
		}
		return data, true, nil
	}

	return nil, false, nil
}

const recordMagic = "carml-record"

// encodeRecord prefixes the payload with a header line naming the codec.
func (ws *Workspace) encodeRecord(v any) ([]byte, error) {
	payload, err := ws.codec.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(recordMagic) + len(ws.codec.Name()) + len(payload) + 2)
	buf.WriteString(recordMagic)
	buf.WriteByte(' ')
	buf.WriteString(ws.codec.Name())
	buf.WriteByte('\n')
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeRecord(data []byte, v any) error {
	header, payload, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return errors.New("record: missing header")
	}

	magic, name, ok := strings.Cut(string(header), " ")
	if !ok || magic != recordMagic {
		return fmt.Errorf("record: bad header %q", header)
	}

	c, ok := codec.ByName(name)
	if !ok {
		return fmt.Errorf("record: unknown codec %q", name)
	}
	return c.Unmarshal(payload, v)
}
