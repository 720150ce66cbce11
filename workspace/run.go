package workspace

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/carml/blobstore"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// Metric is a single logged value.
type Metric struct {
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Description string    `json:"description,omitempty"`
	LoggedAt    time.Time `json:"logged_at"`
}

// Run is the tracking context of one job execution. It is passed
// explicitly to the stages that log to it.
type Run struct {
	ID         string    `json:"id"`
	Experiment string    `json:"experiment"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	ws      *Workspace
	mu      sync.Mutex
	metrics []Metric
}

// StartRun creates a run in experiment and persists its record.
func (ws *Workspace) StartRun(ctx context.Context, experiment string) (*Run, error) {
	if err := validateName(experiment); err != nil {
		return nil, err
	}

	r := &Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Status:     RunRunning,
		StartedAt:  ws.now().UTC(),
		ws:         ws,
	}

	if err := r.persist(ctx); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	ws.logger.Info("run started", "experiment", experiment, "run_id", r.ID)

	return r, nil
}

// Workspace returns the workspace the run belongs to.
func (r *Run) Workspace() *Workspace {
	return r.ws
}

func (r *Run) prefix() string {
	return fmt.Sprintf("runs/%s/%s/", r.Experiment, r.ID)
}

// Log appends a metric and persists the metric list.
func (r *Run) Log(ctx context.Context, name string, value float64, description string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("log %s: value %v is not finite", name, value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics = append(r.metrics, Metric{
		Name:        name,
		Value:       value,
		Description: description,
		LoggedAt:    r.ws.now().UTC(),
	})

	data, err := r.ws.encodeRecord(r.metrics)
	if err != nil {
		return err
	}
	if err := r.ws.store.Put(ctx, r.prefix()+"metrics.json", data); err != nil {
		return fmt.Errorf("log %s: %w", name, err)
	}
	return nil
}

// Metrics returns a copy of the logged metrics in logging order.
func (r *Run) Metrics() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Metric(nil), r.metrics...)
}

// Finish records the final status of the run.
func (r *Run) Finish(ctx context.Context, status RunStatus) error {
	r.mu.Lock()
	r.Status = status
	r.FinishedAt = r.ws.now().UTC()
	r.mu.Unlock()

	return r.persist(ctx)
}

func (r *Run) persist(ctx context.Context) error {
	r.mu.Lock()
	snapshot := struct {
		ID         string    `json:"id"`
		Experiment string    `json:"experiment"`
		Status     RunStatus `json:"status"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at,omitzero"`
	}{r.ID, r.Experiment, r.Status, r.StartedAt, r.FinishedAt}
	r.mu.Unlock()

	data, err := r.ws.encodeRecord(snapshot)
	if err != nil {
		return err
	}
	return r.ws.store.Put(ctx, r.prefix()+"run.json", data)
}

// LoadMetrics reads the persisted metrics of a run.
func (ws *Workspace) LoadMetrics(ctx context.Context, experiment, runID string) ([]Metric, error) {
	data, err := blobstore.ReadAll(ctx, ws.store, fmt.Sprintf("runs/%s/%s/metrics.json", experiment, runID))
	if err != nil {
		return nil, err
	}

	var metrics []Metric
	if err := decodeRecord(data, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}
