package workspace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/carml/blobstore"
)

// Commit is a single entry of a VersionLog.
type Commit struct {
	// Version is monotonically increasing per key, starting at 1.
	Version uint64
	// Record is the blob name of the version's metadata record.
	Record string
}

// VersionLog allocates versions for registry keys such as "datasets/<name>".
//
// Commit must be conditional: committing a version that already exists for
// the key fails with ErrConcurrentModification.
type VersionLog interface {
	// Latest returns the newest commit for key. ok is false when the key has
	// no commits.
	Latest(ctx context.Context, key string) (c Commit, ok bool, err error)
	// Commit records c for key.
	Commit(ctx context.Context, key string, c Commit) error
	// Versions returns all commits for key in ascending version order.
	Versions(ctx context.Context, key string) ([]Commit, error)
}

const versionsDir = "_versions"

// BlobVersionLog is a VersionLog that keeps one small blob per commit under
// "<key>/_versions/". Commits are serialized within the process; across
// processes it relies on writers not racing, which holds for the local and
// memory backends.
type BlobVersionLog struct {
	mu    sync.Mutex
	store blobstore.BlobStore
}

// NewBlobVersionLog creates a version log on top of store.
func NewBlobVersionLog(store blobstore.BlobStore) *BlobVersionLog {
	return &BlobVersionLog{store: store}
}

func commitBlobName(key string, version uint64) string {
	return fmt.Sprintf("%s/%s/%020d", key, versionsDir, version)
}

// Latest implements VersionLog.
func (l *BlobVersionLog) Latest(ctx context.Context, key string) (Commit, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	names, err := l.store.List(ctx, key+"/"+versionsDir+"/")
	if err != nil {
		return Commit{}, false, err
	}
	if len(names) == 0 {
		return Commit{}, false, nil
	}

	c, err := l.read(ctx, names[len(names)-1])
	if err != nil {
		return Commit{}, false, err
	}
	return c, true, nil
}

// Commit implements VersionLog.
func (l *BlobVersionLog) Commit(ctx context.Context, key string, c Commit) error {
	if c.Version == 0 {
		return errors.New("commit: version must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := commitBlobName(key, c.Version)
	b, err := l.store.Open(ctx, name)
	if err == nil {
		_ = b.Close()
		return ErrConcurrentModification
	}
	if !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}

	return l.store.Put(ctx, name, []byte(c.Record))
}

// Versions implements VersionLog.
func (l *BlobVersionLog) Versions(ctx context.Context, key string) ([]Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	names, err := l.store.List(ctx, key+"/"+versionsDir+"/")
	if err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(names))
	for _, name := range names {
		c, err := l.read(ctx, name)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func (l *BlobVersionLog) read(ctx context.Context, name string) (Commit, error) {
	base := name[strings.LastIndexByte(name, '/')+1:]
	version, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("version log: malformed entry %q: %w", name, err)
	}

	data, err := blobstore.ReadAll(ctx, l.store, name)
	if err != nil {
		return Commit{}, err
	}
	return Commit{Version: version, Record: string(data)}, nil
}
