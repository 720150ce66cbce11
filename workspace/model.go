package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// DatasetReference links a model to the dataset version it was built from.
type DatasetReference struct {
	Purpose string `json:"purpose"`
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// ModelRegistration describes a model artifact to register.
type ModelRegistration struct {
	// Path is the local artifact file.
	Path        string
	Name        string
	Description string
	Tags        map[string]string
	Datasets    []DatasetReference
	// RunID is the run that produced the artifact, if any.
	RunID string
}

// Model is a registered model version.
type Model struct {
	Name         string             `json:"name"`
	Version      uint64             `json:"version"`
	Description  string             `json:"description,omitempty"`
	Tags         map[string]string  `json:"tags,omitempty"`
	Datasets     []DatasetReference `json:"datasets,omitempty"`
	RunID        string             `json:"run_id,omitempty"`
	Artifact     DatasetFile        `json:"artifact"`
	RegisteredAt time.Time          `json:"registered_at"`
}

func modelKey(name string) string {
	return "models/" + name
}

func modelRecordName(name string, version uint64) string {
	return fmt.Sprintf("models/%s/%d/model.json", name, version)
}

// RegisterModel uploads the artifact at reg.Path as a new version of
// reg.Name.
func (ws *Workspace) RegisterModel(ctx context.Context, reg ModelRegistration) (*Model, error) {
	if err := validateName(reg.Name); err != nil {
		return nil, err
	}
	if reg.Path == "" {
		return nil, fmt.Errorf("register model %s: missing artifact path", reg.Name)
	}

	version, err := ws.reserve(ctx, modelKey(reg.Name), func(v uint64) string {
		return modelRecordName(reg.Name, v)
	})
	if err != nil {
		return nil, fmt.Errorf("register model %s: %w", reg.Name, err)
	}

	artifact, err := ws.upload(ctx, reg.Path, fmt.Sprintf("models/%s/%d/%s", reg.Name, version, filepath.Base(reg.Path)))
	if err != nil {
		return nil, fmt.Errorf("register model %s: %w", reg.Name, err)
	}

	m := &Model{
		Name:         reg.Name,
		Version:      version,
		Description:  reg.Description,
		Tags:         copyTags(reg.Tags),
		Datasets:     append([]DatasetReference(nil), reg.Datasets...),
		RunID:        reg.RunID,
		Artifact:     artifact,
		RegisteredAt: ws.now().UTC(),
	}

	record, err := ws.encodeRecord(m)
	if err != nil {
		return nil, fmt.Errorf("register model %s: %w", reg.Name, err)
	}
	if err := ws.store.Put(ctx, modelRecordName(reg.Name, version), record); err != nil {
		return nil, fmt.Errorf("register model %s: %w", reg.Name, err)
	}

	ws.logger.Debug("model stored", "name", reg.Name, "version", version, "bytes", artifact.Size)

	return m, nil
}

// GetModel returns the given version of the named model. Version zero
// selects the latest.
func (ws *Workspace) GetModel(ctx context.Context, name string, version uint64) (*Model, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, ok, err := ws.resolve(ctx, modelKey(name), version)
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	m := &Model{}
	if err := decodeRecord(data, m); err != nil {
		return nil, fmt.Errorf("get model %s: %w", name, err)
	}
	return m, nil
}
