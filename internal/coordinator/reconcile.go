package coordinator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Reconcile sweeps tracked threads for inbound replies and flips the
// corresponding buildings to reply_received. Sweeps are serialized: if
// one is already running the call returns immediately with Skipped set.
// Any inbound message on a tracked thread counts as a reply.
func (c *Coordinator) Reconcile(ctx context.Context) (*SweepResult, error) {
	if !c.sweepMu.TryLock() {
		return &SweepResult{Skipped: true}, nil
	}
	defer c.sweepMu.Unlock()

	logs, err := c.store.ListEmailLogsAwaitingReply(ctx)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return &SweepResult{}, nil
	}

	byThread := make(map[string]model.EmailLog, len(logs))
	threadIDs := make([]string, 0, len(logs))
	for _, l := range logs {
		byThread[l.ThreadID] = l
		threadIDs = append(threadIDs, l.ThreadID)
	}

	result := &SweepResult{ThreadsChecked: len(threadIDs)}
	handled := make(map[string]bool)

	for ev, err := range c.mail.ListReplies(ctx, threadIDs) {
		if err != nil {
			result.Errors++
			zap.L().Warn("coordinator: reply listing error", zap.Error(err))
			continue
		}
		log, tracked := byThread[ev.ThreadID]
		if !tracked || handled[ev.ThreadID] {
			continue
		}
		handled[ev.ThreadID] = true

		if err := c.applyReply(ctx, log, ev.From); err != nil {
			result.Errors++
			zap.L().Error("coordinator: apply reply failed",
				zap.String("thread_id", ev.ThreadID), zap.Error(err))
			continue
		}
		result.RepliesFound++
	}

	zap.L().Info("coordinator: sweep complete",
		zap.Int("threads_checked", result.ThreadsChecked),
		zap.Int("replies_found", result.RepliesFound),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func (c *Coordinator) applyReply(ctx context.Context, log model.EmailLog, from string) error {
	if err := c.store.MarkEmailLogReplied(ctx, log.ThreadID); err != nil {
		return err
	}

	b, err := c.store.GetBuildingByIdentityKey(ctx, log.BuildingIdentityKey)
	if err != nil {
		// Building deleted after the send; the log flag alone is fine.
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if b.State != model.StateEmailSent {
		return nil
	}

	b.SetState(model.StateReplyReceived)
	if err := c.store.UpdateBuilding(ctx, b); err != nil {
		return err
	}
	c.cacheState(b.IdentityKey, b.State)

	zap.L().Info("coordinator: reply received",
		zap.String("identity_key", b.IdentityKey),
		zap.String("from", from),
	)
	return nil
}
