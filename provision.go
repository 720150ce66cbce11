package carml

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/carml/workspace"
)

// provision makes sure the embeddings dataset exists, downloads it, and
// registers a fresh version of the components dataset.
func (p *Pipeline) provision(ctx context.Context, j *job) error {
	glove, err := p.ensureEmbeddings(ctx, j)
	if err != nil {
		return err
	}

	paths, err := glove.Download(ctx, p.opts.datasetsDir, true)
	if err != nil {
		return fmt.Errorf("download embeddings: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("embeddings dataset %s version %d has no files", glove.Name, glove.Version)
	}
	j.vectorsPath = paths[0]
	j.res.Embeddings = glove
	j.logger.InfoContext(ctx, "embeddings downloaded", "path", j.vectorsPath)

	components, err := p.ws.RegisterDataset(ctx,
		p.ws.TabularDatasetFromURL(p.opts.cardataURL),
		ComponentsDatasetName,
		ComponentsDatasetDescription,
		map[string]string{"build_number": j.args.BuildNumber},
	)
	if err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	p.opts.metrics.RecordDataset(components.Name, components.Version, true)
	j.logger.LogDataset(ctx, "registered", components)
	j.res.Components = components

	table, err := components.ToTable(ctx)
	if err != nil {
		return fmt.Errorf("load components: %w", err)
	}

	texts, err := table.Column("text")
	if err != nil {
		return err
	}
	raw, err := table.Column("label")
	if err != nil {
		return err
	}

	labels, err := parseLabels(raw)
	if err != nil {
		return err
	}

	j.texts = texts
	j.labels = labels
	j.logger.InfoContext(ctx, "components loaded", "records", table.Len())

	return nil
}

func (p *Pipeline) ensureEmbeddings(ctx context.Context, j *job) (*workspace.Dataset, error) {
	glove, err := p.ws.GetDatasetByName(ctx, EmbeddingsDatasetName)
	if err == nil {
		p.opts.metrics.RecordDataset(glove.Name, glove.Version, false)
		j.logger.LogDataset(ctx, "already registered", glove)
		return glove, nil
	}
	if !errors.Is(err, workspace.ErrDatasetNotFound) {
		return nil, fmt.Errorf("lookup embeddings: %w", err)
	}

	glove, err = p.ws.RegisterDataset(ctx,
		p.ws.FileDatasetFromURL(p.opts.gloveURL),
		EmbeddingsDatasetName,
		EmbeddingsDatasetDescription,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register embeddings: %w", err)
	}
	p.opts.metrics.RecordDataset(glove.Name, glove.Version, true)
	j.logger.LogDataset(ctx, "registered", glove)

	return glove, nil
}

// parseLabels accepts 0/1 and true/false in any case.
func parseLabels(raw []string) ([]float64, error) {
	labels := make([]float64, len(raw))
	for i, s := range raw {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, &LabelError{Row: i + 1, Value: s}
		}
		if b {
			labels[i] = 1
		}
	}
	return labels, nil
}
