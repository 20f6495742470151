package repository

import (
	"context"

	"cambista/internal/amqp"
	"cambista/internal/core"
	applog "cambista/internal/log"
)

const eventDateLayout = "2006-01-02 15:04:05"

// SaveClient creates a client.
func (r *Repository) SaveClient(ctx context.Context, in core.ClientInput) (bool, error) {
	id, err := r.remote.SaveClient(ctx, in)
	if err != nil {
		return false, err
	}
	r.afterMutation(ctx, amqp.EntityClient, amqp.ActionCreate, int64(id), "")
	return true, nil
}

// EditClient updates client id.
func (r *Repository) EditClient(ctx context.Context, id int, in core.ClientInput) (bool, error) {
	if err := r.remote.EditClient(ctx, id, in); err != nil {
		return false, err
	}
	r.afterMutation(ctx, amqp.EntityClient, amqp.ActionUpdate, int64(id), "")
	return true, nil
}

// DeleteClient removes client id. A server refusal comes back as a
// *core.BusinessError carrying the server's message.
func (r *Repository) DeleteClient(ctx context.Context, id int) (bool, error) {
	if err := r.remote.DeleteClient(ctx, id); err != nil {
		return false, err
	}
	r.afterMutation(ctx, amqp.EntityClient, amqp.ActionDelete, int64(id), "")
	return true, nil
}

// SaveTransaction registers a movement.
func (r *Repository) SaveTransaction(ctx context.Context, in core.TransactionInput) (bool, error) {
	id, err := r.remote.SaveTransaction(ctx, in)
	if err != nil {
		return false, err
	}
	date := ""
	if !in.Date.IsZero() {
		date = in.Date.Format(eventDateLayout)
	}
	r.afterMutation(ctx, amqp.EntityTransaction, amqp.ActionCreate, id, date)
	return true, nil
}

// afterMutation drops every cached copy a write may have made stale, then
// announces the write.
func (r *Repository) afterMutation(ctx context.Context, entity, action string, id int64, date string) {
	r.InvalidateGlobalCache()
	if err := r.store.Delete(ctx, KeyClients, KeyTransactions); err != nil {
		r.logger.WarnContext(ctx, "Persisted invalidation failed", applog.FieldError, err)
	}

	fields := applog.NewFields().WithMutation(entity, action, id)
	r.logger.InfoContext(ctx, "Mutation applied", fields.ToSlice()...)

	if r.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.publisher.PublishMutation(pctx, entity, action, id, date); err != nil {
		r.logger.WarnContext(ctx, "Mutation event not published", fields.WithError(err).ToSlice()...)
	}
}
