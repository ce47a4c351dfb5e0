package collab

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"workforce/internal/logger"
	"workforce/internal/mission"
)

const waveConcurrency = 4

// ExecuteReady runs pending tasks in dependency waves. Tasks of one wave run
// concurrently, higher priority first when the wave is larger than the
// concurrency cap. A task whose dependency failed is failed without running.
func (m *Manager) ExecuteReady(ctx context.Context, conversationID string) ([]TaskResult, error) {
	c, err := m.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	var all []TaskResult
	for wave := 1; ; wave++ {
		ready, blocked := c.nextWave()
		all = append(all, blocked...)
		if len(ready) == 0 {
			break
		}
		logger.Log.Info("collaboration wave", "conversation", c.id, "wave", wave, "tasks", ready)

		results := make([]TaskResult, len(ready))
		var g errgroup.Group
		g.SetLimit(waveConcurrency)
		for i, id := range ready {
			g.Go(func() error {
				results[i] = m.ExecuteCollaborativeTask(ctx, conversationID, id)
				return nil
			})
		}
		_ = g.Wait()
		all = append(all, results...)

		if ctx.Err() != nil || c.Aborted() {
			break
		}
	}
	return all, nil
}

// nextWave returns pending tasks whose dependencies all completed, ordered by
// priority then creation, and fails pending tasks blocked by a failed
// dependency.
func (c *Collaboration) nextWave() ([]string, []TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready []*Task
	var blocked []TaskResult
	for _, t := range c.tasks {
		if t.Status != mission.TaskPending {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			d := c.byID[dep]
			if d.Status == mission.TaskFailed {
				t.Status = mission.TaskFailed
				t.Error = fmt.Sprintf("dependency %s failed", dep)
				t.UpdatedAt = time.Now()
				t.CompletedAt = t.UpdatedAt
				blocked = append(blocked, resultOf(t))
				ok = false
				break
			}
			if d.Status != mission.TaskCompleted {
				ok = false
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	ids := make([]string, len(ready))
	for i, t := range ready {
		ids[i] = t.ID
	}
	return ids, blocked
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
