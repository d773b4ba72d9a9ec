package kanban

import (
	"context"
	"fmt"

	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

func (m *Manager) CreatePipeline(ctx context.Context, subAccountID, name string) (store.Pipeline, error) {
	name, err := cleanName(name, "pipeline name")
	if err != nil {
		return store.Pipeline{}, err
	}
	item := store.Pipeline{ID: util.NewID("pl"), SubAccountID: subAccountID, Name: name}
	if err := m.repo.InsertPipeline(ctx, item); err != nil {
		return store.Pipeline{}, err
	}
	return m.repo.GetPipeline(ctx, item.ID)
}

func (m *Manager) GetPipeline(ctx context.Context, pipelineID string) (store.Pipeline, error) {
	return m.repo.GetPipeline(ctx, pipelineID)
}

func (m *Manager) ListPipelines(ctx context.Context, subAccountID string) ([]store.Pipeline, error) {
	return m.repo.ListPipelines(ctx, subAccountID)
}

func (m *Manager) RenamePipeline(ctx context.Context, pipelineID, name string) (store.Pipeline, error) {
	name, err := cleanName(name, "pipeline name")
	if err != nil {
		return store.Pipeline{}, err
	}
	if err := m.repo.UpdatePipelineName(ctx, pipelineID, name); err != nil {
		return store.Pipeline{}, err
	}
	return m.repo.GetPipeline(ctx, pipelineID)
}

// DeletePipeline removes the pipeline with its lanes, tickets and tag rows.
func (m *Manager) DeletePipeline(ctx context.Context, pipelineID string) error {
	var laneIDs []string
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.LockPipeline(ctx, pipelineID); err != nil {
			return err
		}
		lanes, err := tx.ListLanes(ctx, pipelineID)
		if err != nil {
			return err
		}
		for _, lane := range lanes {
			laneIDs = append(laneIDs, lane.ID)
		}
		if err := tx.DeletePipeline(ctx, pipelineID); err != nil {
			return fmt.Errorf("delete pipeline %s: %w", pipelineID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.invalidateLanes(ctx, laneIDs...)
	return nil
}
