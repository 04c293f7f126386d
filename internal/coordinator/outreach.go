package coordinator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/mail"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// runOutreach drives one building from its entry stage to a terminal
// outcome. Each stage persists its transition before the next begins, so
// a crash resumes from the last durable state via the manual retry path.
func (c *Coordinator) runOutreach(ctx context.Context, job *Job, start Stage) {
	key := job.IdentityKey

	b, err := c.store.GetBuildingByIdentityKey(ctx, key)
	if err != nil {
		// Deleted between scheduling and start: abandon quietly.
		if errors.Is(err, model.ErrNotFound) {
			c.finish(key, "")
			return
		}
		c.toErrored(ctx, nil, key, err)
		return
	}

	if start == StageContactResolution {
		if !c.resolveContact(ctx, job, b) {
			return
		}
	}
	c.sendEmail(ctx, job, b)
}

// resolveContact runs the cascade under retry and a circuit breaker.
// Returns false when the run ended (terminal state or abandonment).
func (c *Coordinator) resolveContact(ctx context.Context, job *Job, b *model.Building) bool {
	key := b.IdentityKey
	c.setJobStage(job, StageContactResolution)

	b.SetState(model.StateContactResolving)
	if !c.persist(ctx, b) {
		return false
	}

	retryCfg := c.cfg.Retry
	retryCfg.OnRetry = c.retryLogger(job, string(StageContactResolution))

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	breaker := c.breakers.Get("contact")
	found, err := resilience.DoVal(stageCtx, retryCfg, func(ctx context.Context) (*model.Contact, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*model.Contact, error) {
			return c.resolver.Resolve(ctx, *b)
		})
	})
	if err != nil {
		if resilience.IsPermanent(err) {
			b.SetState(model.StateContactFailed)
			b.LastError = err.Error()
			if !c.persist(ctx, b) {
				return false
			}
			zap.L().Info("coordinator: no contact found",
				zap.String("identity_key", key))
			c.finish(key, b.State)
			return false
		}
		c.toErrored(ctx, b, key, err)
		return false
	}

	b.Contact = found
	b.SetState(model.StateContactFound)
	b.LastError = ""
	if !c.persist(ctx, b) {
		return false
	}
	return true
}

// sendEmail composes the outreach message, appends the pending log row,
// sends under retry, and finalizes both the row and the building.
func (c *Coordinator) sendEmail(ctx context.Context, job *Job, b *model.Building) {
	key := b.IdentityKey
	c.setJobStage(job, StageEmailSend)

	msg, err := mail.Compose(*b)
	if err != nil {
		c.toErrored(ctx, b, key, err)
		return
	}

	log := &model.EmailLog{
		BuildingIdentityKey: key,
		Subject:             msg.Subject,
		Body:                msg.Body,
		DeliveryStatus:      model.DeliveryPending,
	}
	if err := c.store.AppendEmailLog(ctx, log); err != nil {
		c.toErrored(ctx, b, key, err)
		return
	}

	retryCfg := c.cfg.Retry
	retryCfg.OnRetry = c.retryLogger(job, string(StageEmailSend))

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	breaker := c.breakers.Get(c.mail.Name())
	threadID, err := resilience.DoVal(stageCtx, retryCfg, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (string, error) {
			return c.mail.Send(ctx, msg)
		})
	})
	if err != nil {
		if logErr := c.store.UpdateEmailLogStatus(ctx, log.ID, model.DeliveryFailed, ""); logErr != nil {
			zap.L().Warn("coordinator: mark email log failed",
				zap.String("identity_key", key), zap.Error(logErr))
		}
		c.toErrored(ctx, b, key, err)
		return
	}

	if err := c.store.UpdateEmailLogStatus(ctx, log.ID, model.DeliverySent, threadID); err != nil {
		c.toErrored(ctx, b, key, err)
		return
	}

	b.SetState(model.StateEmailSent)
	b.LastError = ""
	if !c.persist(ctx, b) {
		return
	}
	zap.L().Info("coordinator: outreach sent",
		zap.String("identity_key", key),
		zap.String("to", msg.To),
		zap.String("thread_id", threadID),
	)
	c.finish(key, b.State)
}

// persist writes the building and caches its state. A missing row means
// the building was deleted mid-run; the job is abandoned without error.
func (c *Coordinator) persist(ctx context.Context, b *model.Building) bool {
	if err := c.store.UpdateBuilding(ctx, b); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			zap.L().Info("coordinator: building deleted mid-run, abandoning",
				zap.String("identity_key", b.IdentityKey))
			c.finish(b.IdentityKey, "")
			return false
		}
		c.toErrored(ctx, nil, b.IdentityKey, err)
		return false
	}
	c.cacheState(b.IdentityKey, b.State)
	return true
}

// toErrored moves the building into the errored escape state, freezing
// the attempt count in the persisted last_error for the operator.
func (c *Coordinator) toErrored(ctx context.Context, b *model.Building, key string, cause error) {
	zap.L().Error("coordinator: job errored",
		zap.String("identity_key", key), zap.Error(cause))

	state := model.StateErrored
	if b != nil {
		b.SetState(model.StateErrored)
		b.LastError = cause.Error()
		if err := c.store.UpdateBuilding(ctx, b); err != nil && !errors.Is(err, model.ErrNotFound) {
			zap.L().Error("coordinator: persist errored state failed",
				zap.String("identity_key", key), zap.Error(err))
		}
	}
	c.finish(key, state)
}

func (c *Coordinator) setJobStage(job *Job, stage Stage) {
	c.mu.Lock()
	job.Stage = stage
	job.Attempt = 0
	c.mu.Unlock()
}

// retryLogger updates the live job's attempt counter and logs the retry.
func (c *Coordinator) retryLogger(job *Job, stage string) func(int, error) {
	base := resilience.RetryLogger(stage, job.IdentityKey)
	return func(attempt int, err error) {
		c.mu.Lock()
		job.Attempt = attempt
		job.LastError = err.Error()
		c.mu.Unlock()
		base(attempt, err)
	}
}
