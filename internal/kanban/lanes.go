package kanban

import (
	"context"

	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

// AppendLane adds a lane after the pipeline's existing lanes.
func (m *Manager) AppendLane(ctx context.Context, pipelineID, name string) (store.Lane, error) {
	name, err := cleanName(name, "lane name")
	if err != nil {
		return store.Lane{}, err
	}

	var created store.Lane
	err = m.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.LockPipeline(ctx, pipelineID); err != nil {
			return err
		}
		count, err := tx.CountLanes(ctx, pipelineID)
		if err != nil {
			return err
		}
		item := store.Lane{ID: util.NewID("ln"), PipelineID: pipelineID, Name: name, Order: count}
		if err := tx.InsertLane(ctx, item); err != nil {
			return err
		}
		created, err = tx.GetLane(ctx, item.ID)
		return err
	})
	if err != nil {
		return store.Lane{}, err
	}
	return created, nil
}

func (m *Manager) GetLane(ctx context.Context, laneID string) (store.Lane, error) {
	return m.repo.GetLane(ctx, laneID)
}

func (m *Manager) RenameLane(ctx context.Context, laneID, name string) (store.Lane, error) {
	name, err := cleanName(name, "lane name")
	if err != nil {
		return store.Lane{}, err
	}
	if err := m.repo.UpdateLaneName(ctx, laneID, name); err != nil {
		return store.Lane{}, err
	}
	return m.repo.GetLane(ctx, laneID)
}

// DeleteLane removes the lane and its tickets, then closes the gap it leaves
// in the pipeline's lane order.
func (m *Manager) DeleteLane(ctx context.Context, laneID string) error {
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		lane, err := tx.GetLane(ctx, laneID)
		if err != nil {
			return err
		}
		if err := tx.LockPipeline(ctx, lane.PipelineID); err != nil {
			return err
		}
		if err := tx.DeleteLane(ctx, laneID); err != nil {
			return err
		}
		return compactLanes(ctx, tx, lane.PipelineID)
	})
	if err != nil {
		return err
	}
	m.invalidateLanes(ctx, laneID)
	return nil
}

// ReorderLanes assigns each lane its index in orderedLaneIDs, which must list
// every lane of the pipeline exactly once.
func (m *Manager) ReorderLanes(ctx context.Context, pipelineID string, orderedLaneIDs []string) ([]store.Lane, error) {
	var lanes []store.Lane
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.LockPipeline(ctx, pipelineID); err != nil {
			return err
		}
		current, err := tx.ListLanes(ctx, pipelineID)
		if err != nil {
			return err
		}
		ids, positions := lanePositions(current)
		if err := checkPermutation(ids, orderedLaneIDs); err != nil {
			return err
		}
		for _, write := range densePlan(orderedLaneIDs, positions) {
			if err := tx.SetLanePosition(ctx, write.ID, write.Position); err != nil {
				return err
			}
		}
		lanes, err = tx.ListLanes(ctx, pipelineID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lanes, nil
}

func compactLanes(ctx context.Context, tx Repository, pipelineID string) error {
	lanes, err := tx.ListLanes(ctx, pipelineID)
	if err != nil {
		return err
	}
	ids, positions := lanePositions(lanes)
	for _, write := range densePlan(ids, positions) {
		if err := tx.SetLanePosition(ctx, write.ID, write.Position); err != nil {
			return err
		}
	}
	return nil
}

func lanePositions(lanes []store.Lane) ([]string, map[string]int) {
	ids := make([]string, 0, len(lanes))
	positions := make(map[string]int, len(lanes))
	for _, lane := range lanes {
		ids = append(ids, lane.ID)
		positions[lane.ID] = lane.Order
	}
	return ids, positions
}
