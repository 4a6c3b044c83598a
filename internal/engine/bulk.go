package engine

import (
	"context"
	"log"

	"github.com/alitto/pond/v2"

	"funnel-backend/internal/metadata"
)

const DefaultBulkBatchSize = 50

// BulkRequest asks for the same action list to be dispatched to many
// users. Conditions, when present, are re-evaluated per user at dispatch
// time; users that no longer match are skipped, not failed.
type BulkRequest struct {
	UserIDs    []string             `json:"user_ids"`
	Actions    []metadata.Action    `json:"actions"`
	Conditions []metadata.Condition `json:"conditions,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
	BatchSize  int                  `json:"batch_size,omitempty"`
}

// BulkUserResult is the outcome for one user in a bulk run.
type BulkUserResult struct {
	UserID  string         `json:"user_id"`
	Status  string         `json:"status"` // success, failed, skipped
	Error   string         `json:"error,omitempty"`
	Actions []ActionResult `json:"actions,omitempty"`
}

// BulkResult is the summary of a bulk run. It is always returned, even
// when the run was cut short by cancellation; NextOffset then points at
// the first unprocessed user.
type BulkResult struct {
	SuccessCount int              `json:"success_count"`
	FailCount    int              `json:"fail_count"`
	SkippedCount int              `json:"skipped_count"`
	NextOffset   int              `json:"next_offset"`
	Done         bool             `json:"done"`
	Results      []BulkUserResult `json:"results"`
}

// BulkDispatcher fans bulk requests out over a bounded worker pool.
// Users are processed in fixed-size batches; cancellation is honored at
// batch boundaries so in-flight work always completes and is counted.
type BulkDispatcher struct {
	dispatcher *Dispatcher
	provider   ContextProvider
	pool       pond.Pool
	batchSize  int
}

func NewBulkDispatcher(d *Dispatcher, provider ContextProvider, workers, batchSize int) *BulkDispatcher {
	if workers <= 0 {
		workers = 10
	}
	if batchSize <= 0 {
		batchSize = DefaultBulkBatchSize
	}
	return &BulkDispatcher{
		dispatcher: d,
		provider:   provider,
		pool:       pond.NewPool(workers),
		batchSize:  batchSize,
	}
}

// Stop releases the worker pool.
func (b *BulkDispatcher) Stop() {
	b.pool.StopAndWait()
}

// DispatchBulk runs the request and returns its summary. Individual user
// failures never abort the run.
func (b *BulkDispatcher) DispatchBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	batchSize := req.BatchSize
	if batchSize <= 0 || batchSize > b.batchSize {
		batchSize = b.batchSize
	}
	groups := metadata.GroupConditions(req.Conditions)

	result := &BulkResult{NextOffset: req.Offset}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	for offset < len(req.UserIDs) {
		if err := ctx.Err(); err != nil {
			// Cut short between batches; the summary so far still stands.
			log.Printf("WARN: bulk dispatch canceled at offset %d: %v", offset, err)
			result.NextOffset = offset
			return result, nil
		}

		end := offset + batchSize
		if end > len(req.UserIDs) {
			end = len(req.UserIDs)
		}
		batch := req.UserIDs[offset:end]
		outcomes := make([]BulkUserResult, len(batch))

		group := b.pool.NewGroup()
		for i, userID := range batch {
			i, userID := i, userID
			group.Submit(func() {
				outcomes[i] = b.processUser(ctx, userID, groups, req.Actions)
			})
		}
		group.Wait()

		for _, outcome := range outcomes {
			switch outcome.Status {
			case "success":
				result.SuccessCount++
			case "skipped":
				result.SkippedCount++
			default:
				result.FailCount++
			}
			result.Results = append(result.Results, outcome)
		}
		offset = end
		result.NextOffset = offset
	}

	result.Done = true
	return result, nil
}

func (b *BulkDispatcher) processUser(ctx context.Context, userID string, groups []metadata.ConditionGroup, actions []metadata.Action) BulkUserResult {
	outcome := BulkUserResult{UserID: userID}

	snap, err := b.provider.Snapshot(ctx, userID)
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		return outcome
	}

	// Conditions re-check at dispatch time: the user set may have been
	// computed long before the run.
	if !EvaluateGroups(groups, snap) {
		outcome.Status = "skipped"
		return outcome
	}

	outcome.Actions = b.dispatcher.Dispatch(ctx, userID, actions)
	outcome.Status = "success"
	for _, a := range outcome.Actions {
		if !a.Success {
			outcome.Status = "failed"
			outcome.Error = a.Error
			break
		}
	}
	return outcome
}

// Reimmerse enters every listed user into the active funnel version via
// the engine's normal tick path, in batches over the same pool.
func (b *BulkDispatcher) Reimmerse(ctx context.Context, fe *FunnelEngine, userIDs []string, offset int) (*BulkResult, error) {
	if fe.registry.ActiveVersion() == nil {
		return nil, ErrNoActiveVersion
	}

	result := &BulkResult{NextOffset: offset}
	if offset < 0 {
		offset = 0
	}

	for offset < len(userIDs) {
		if err := ctx.Err(); err != nil {
			result.NextOffset = offset
			return result, nil
		}

		end := offset + b.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := userIDs[offset:end]
		outcomes := make([]BulkUserResult, len(batch))

		group := b.pool.NewGroup()
		for i, userID := range batch {
			i, userID := i, userID
			group.Submit(func() {
				outcome := BulkUserResult{UserID: userID, Status: "success"}
				if _, err := fe.Tick(ctx, userID, ""); err != nil {
					outcome.Status = "failed"
					outcome.Error = err.Error()
				}
				outcomes[i] = outcome
			})
		}
		group.Wait()

		for _, outcome := range outcomes {
			if outcome.Status == "success" {
				result.SuccessCount++
			} else {
				result.FailCount++
			}
			result.Results = append(result.Results, outcome)
		}
		offset = end
		result.NextOffset = offset
	}

	result.Done = true
	return result, nil
}
