package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hupe1980/carml/blobstore"
	"github.com/hupe1980/carml/internal/fetch"
	"github.com/hupe1980/carml/internal/fs"
)

// DatasetKind distinguishes raw file datasets from tabular ones.
type DatasetKind string

const (
	// KindFile is a dataset of opaque files.
	KindFile DatasetKind = "file"
	// KindTabular is a delimited text dataset with a header row.
	KindTabular DatasetKind = "tabular"
)

// DatasetFile describes one materialized file of a dataset version.
type DatasetFile struct {
	Name   string `json:"name"`
	Blob   string `json:"blob"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Dataset is a handle to a registered dataset version, or to an
// unregistered source when Version is zero.
type Dataset struct {
	Name         string            `json:"name"`
	Version      uint64            `json:"version"`
	Kind         DatasetKind       `json:"kind"`
	Description  string            `json:"description,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SourceURL    string            `json:"source_url"`
	Files        []DatasetFile     `json:"files,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`

	ws *Workspace
}

// Registered reports whether the handle refers to a stored version.
func (ds *Dataset) Registered() bool {
	return ds.Version > 0
}

// Reference returns a link to this dataset version for model registration.
func (ds *Dataset) Reference(purpose string) DatasetReference {
	return DatasetReference{Purpose: purpose, Name: ds.Name, Version: ds.Version}
}

// FileDatasetFromURL returns an unregistered file dataset backed by url.
func (ws *Workspace) FileDatasetFromURL(url string) *Dataset {
	return &Dataset{Kind: KindFile, SourceURL: url, ws: ws}
}

// TabularDatasetFromURL returns an unregistered tabular dataset backed by url.
func (ws *Workspace) TabularDatasetFromURL(url string) *Dataset {
	return &Dataset{Kind: KindTabular, SourceURL: url, ws: ws}
}

func datasetKey(name string) string {
	return "datasets/" + name
}

func datasetRecordName(name string, version uint64) string {
	return fmt.Sprintf("datasets/%s/%d/dataset.json", name, version)
}

// GetDatasetByName returns the latest version of the named dataset.
func (ws *Workspace) GetDatasetByName(ctx context.Context, name string) (*Dataset, error) {
	return ws.GetDataset(ctx, name, 0)
}

// GetDataset returns the given version of the named dataset. Version zero
// selects the latest.
func (ws *Workspace) GetDataset(ctx context.Context, name string, version uint64) (*Dataset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, ok, err := ws.resolve(ctx, datasetKey(name), version)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", name, err)
	}
	if !ok {
		if version != 0 {
			return nil, fmt.Errorf("%w: %s version %d", ErrDatasetNotFound, name, version)
		}
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}

	ds := &Dataset{}
	if err := decodeRecord(data, ds); err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", name, err)
	}
	ds.ws = ws
	return ds, nil
}

// RegisterDataset stores a new version of ds under name. The source is
// fetched once into a local temporary file, a version is reserved, and the
// content and metadata are written under that version. Registering the same
// source twice yields two versions.
func (ws *Workspace) RegisterDataset(ctx context.Context, ds *Dataset, name, description string, tags map[string]string) (*Dataset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if ds == nil || ds.SourceURL == "" {
		return nil, fmt.Errorf("register dataset %s: missing source", name)
	}

	tmp, err := ws.stage(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("register dataset %s: %w", name, err)
	}
	defer os.Remove(tmp)

	version, err := ws.reserve(ctx, datasetKey(name), func(v uint64) string {
		return datasetRecordName(name, v)
	})
	if err != nil {
		return nil, fmt.Errorf("register dataset %s: %w", name, err)
	}

	fileName := fetch.BaseName(ds.SourceURL)
	file, err := ws.upload(ctx, tmp, fmt.Sprintf("datasets/%s/%d/%s", name, version, fileName))
	if err != nil {
		return nil, fmt.Errorf("register dataset %s: %w", name, err)
	}
	file.Name = fileName

	out := &Dataset{
		Name:         name,
		Version:      version,
		Kind:         ds.Kind,
		Description:  description,
		Tags:         copyTags(tags),
		SourceURL:    ds.SourceURL,
		Files:        []DatasetFile{file},
		RegisteredAt: ws.now().UTC(),
		ws:           ws,
	}

	record, err := ws.encodeRecord(out)
	if err != nil {
		return nil, fmt.Errorf("register dataset %s: %w", name, err)
	}
	if err := ws.store.Put(ctx, datasetRecordName(name, version), record); err != nil {
		return nil, fmt.Errorf("register dataset %s: %w", name, err)
	}

	ws.logger.Debug("dataset stored", "name", name, "version", version, "kind", string(ds.Kind), "bytes", file.Size)

	return out, nil
}

// stage downloads the source of ds into a temporary file.
func (ws *Workspace) stage(ctx context.Context, ds *Dataset) (string, error) {
	rc, err := ws.fetcher.Fetch(ctx, ds.SourceURL)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "carml-dataset-*")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// upload copies a local file into the blob store, hashing it on the way.
func (ws *Workspace) upload(ctx context.Context, localPath, blobName string) (DatasetFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return DatasetFile{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := blobstore.CopyFrom(ctx, ws.store, blobName, io.TeeReader(f, h))
	if err != nil {
		return DatasetFile{}, fmt.Errorf("upload %s: %w", blobName, err)
	}

	return DatasetFile{
		Name:   path.Base(blobName),
		Blob:   blobName,
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Download materializes the dataset files into targetDir and returns their
// local paths. Unregistered handles are fetched from their source.
func (ds *Dataset) Download(ctx context.Context, targetDir string, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}

	if !ds.Registered() {
		dst := filepath.Join(targetDir, fetch.BaseName(ds.SourceURL))
		err := writeLocal(dst, overwrite, func(w io.Writer) error {
			rc, err := ds.ws.fetcher.Fetch(ctx, ds.SourceURL)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(w, rc)
			return err
		})
		if err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	paths := make([]string, 0, len(ds.Files))
	for _, file := range ds.Files {
		dst := filepath.Join(targetDir, file.Name)
		err := writeLocal(dst, overwrite, func(w io.Writer) error {
			_, err := blobstore.CopyTo(ctx, ds.ws.store, file.Blob, w)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("download %s version %d: %w", ds.Name, ds.Version, err)
		}
		paths = append(paths, dst)
	}

	ds.ws.logger.Debug("dataset downloaded", "name", ds.Name, "version", ds.Version, "dir", targetDir)

	return paths, nil
}

// ToTable parses the dataset as a CSV table with a header row.
func (ds *Dataset) ToTable(ctx context.Context) (*Table, error) {
	if ds.Kind != KindTabular {
		return nil, ErrNotTabular
	}

	if !ds.Registered() {
		rc, err := ds.ws.fetcher.Fetch(ctx, ds.SourceURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ParseCSV(rc)
	}

	if len(ds.Files) == 0 {
		return nil, fmt.Errorf("dataset %s version %d has no files", ds.Name, ds.Version)
	}

	b, err := ds.ws.store.Open(ctx, ds.Files[0].Blob)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return ParseCSV(rc)
}

// writeLocal writes dst through a temporary file in the same directory.
func writeLocal(dst string, overwrite bool, fill func(io.Writer) error) error {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, dst)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return fs.WriteAtomic(fs.Default, dst, fill)
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
