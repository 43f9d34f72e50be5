package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/lock"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/provider"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/ratelimiter"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// Run outcomes reported through MetricHooks.OnRun.
const (
	OutcomeCompleted    = "completed"
	OutcomeSkipped      = "skipped"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// MetricHooks carries the metric callbacks injected by main so the
// processor stays free of prometheus imports. Nil fields are no-ops.
type MetricHooks struct {
	OnSent     func()
	OnFailed   func()
	OnRun      func(outcome string, elapsed time.Duration)
	OnSummary  func(domain.StatusSummary)
	OnInterest func(subscriptions int)
}

func (h *MetricHooks) fill() {
	if h.OnSent == nil {
		h.OnSent = func() {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func() {}
	}
	if h.OnRun == nil {
		h.OnRun = func(string, time.Duration) {}
	}
	if h.OnSummary == nil {
		h.OnSummary = func(domain.StatusSummary) {}
	}
	if h.OnInterest == nil {
		h.OnInterest = func(int) {}
	}
}

type ProcessorConfig struct {
	BatchSize int
	// ProcessingLease is how long an item may stay in processing before a
	// later run fails it. Zero disables the sweep.
	ProcessingLease time.Duration
}

// Processor drains the delivery queue one bounded batch at a time.
type Processor struct {
	queue    repository.QueueRepository
	subs     repository.SubscriptionRepository
	products *cache.ProductCache
	interest *cache.InterestCache
	gateway  provider.Gateway
	pacer    *ratelimiter.Pacer
	guard    lock.Locker
	cfg      ProcessorConfig
	hooks    MetricHooks
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewProcessor(
	queue repository.QueueRepository,
	subs repository.SubscriptionRepository,
	products *cache.ProductCache,
	interest *cache.InterestCache,
	gateway provider.Gateway,
	pacer *ratelimiter.Pacer,
	guard lock.Locker,
	cfg ProcessorConfig,
	hooks MetricHooks,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if guard == nil {
		guard = lock.NewLocal()
	}
	hooks.fill()
	return &Processor{
		queue: queue, subs: subs, products: products, interest: interest,
		gateway: gateway, pacer: pacer, guard: guard, cfg: cfg, hooks: hooks,
		logger: logger,
		tracer: otel.Tracer("restock/worker"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run processes at most one batch on behalf of id.
//
// The identity is checked before anything else; an unauthorized caller gets
// domain.ErrUnauthorized and the queue is not touched. If another run holds
// the guard, Run returns immediately with Skipped set and
// domain.ErrProcessorBusy. Once claimed, a batch runs to completion even if
// ctx is cancelled, so no item is left in processing by a shutdown.
func (p *Processor) Run(ctx context.Context, id auth.Identity) (domain.ProcessResult, error) {
	start := time.Now()
	var result domain.ProcessResult

	if !auth.CanDispatch(id) {
		p.hooks.OnRun(OutcomeUnauthorized, time.Since(start))
		p.logger.Warn("queue processing refused",
			zap.String("subject", id.Subject), zap.String("role", string(id.Role)))
		return result, domain.ErrUnauthorized
	}

	release, acquired, err := p.guard.TryLock(ctx)
	if err != nil {
		p.hooks.OnRun(OutcomeError, time.Since(start))
		return result, fmt.Errorf("acquire processor guard: %w", err)
	}
	if !acquired {
		result.Skipped = true
		p.hooks.OnRun(OutcomeSkipped, time.Since(start))
		p.logger.Debug("queue processor busy, skipping run", zap.String("subject", id.Subject))
		return result, domain.ErrProcessorBusy
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "queue.process",
		trace.WithAttributes(attribute.String("identity.subject", id.Subject)))
	defer span.End()

	result, err = p.runBatch(ctx)
	span.SetAttributes(
		attribute.Int("queue.processed", result.Processed),
		attribute.Int("queue.succeeded", result.Succeeded),
		attribute.Int("queue.failed", result.Failed),
	)

	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("queue processing failed", zap.Error(err))
	}
	p.hooks.OnRun(outcome, time.Since(start))
	p.observe(ctx)

	if result.Processed > 0 {
		p.logger.Info("queue batch processed",
			zap.String("subject", id.Subject),
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("already_delivered", result.AlreadyDelivered),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return result, err
}

func (p *Processor) runBatch(ctx context.Context) (domain.ProcessResult, error) {
	var result domain.ProcessResult

	if p.cfg.ProcessingLease > 0 {
		expired, err := p.queue.ExpireStale(ctx, p.cfg.ProcessingLease)
		if err != nil {
			p.logger.Warn("failed to expire stale queue items", zap.Error(err))
		} else if expired > 0 {
			p.logger.Warn("expired stale processing items", zap.Int64("count", expired))
		}
	}

	requeued, err := p.queue.RequeueFailed(ctx)
	if err != nil {
		p.logger.Warn("failed to requeue failed items", zap.Error(err))
	} else if requeued > 0 {
		p.logger.Info("requeued failed items for retry", zap.Int64("count", requeued))
	}

	items, err := p.queue.ClaimBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("claim batch: %w", err)
	}

	for _, item := range items {
		result.Processed++
		delivered, err := p.processSafely(ctx, item)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ID, err))
		case delivered:
			result.Succeeded++
		default:
			result.AlreadyDelivered++
		}
	}
	return result, nil
}

// processSafely converts a panic in one item into a failure of that item so
// the rest of the batch still runs.
func (p *Processor) processSafely(ctx context.Context, item *domain.QueueItem) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing: %v", r)
			p.logger.Error("recovered panic in queue item", zap.String("queue_item_id", item.ID), zap.Any("panic", r))
			p.fail(ctx, item, err)
		}
	}()
	return p.process(ctx, item)
}

// process delivers one claimed item. It returns sent=false with a nil error
// when the subscription turned out to be delivered already.
func (p *Processor) process(ctx context.Context, item *domain.QueueItem) (bool, error) {
	log := p.logger.With(
		zap.String("queue_item_id", item.ID),
		zap.String("product_id", item.ProductID),
		zap.Int("attempt", item.Attempts),
	)
	ctx, span := p.tracer.Start(ctx, "queue.send", trace.WithAttributes(
		attribute.String("queue.item_id", item.ID),
		attribute.String("product.id", item.ProductID),
		attribute.Int("queue.attempt", item.Attempts),
	))
	defer span.End()

	sub, err := p.subs.GetByID(ctx, item.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		err = fmt.Errorf("%w: subscription %s no longer exists", domain.ErrDataInvalid, item.SubscriptionID)
	}
	if err != nil {
		return false, p.fail(ctx, item, err)
	}
	if sub.Delivered {
		// Delivered by another path (direct mode, or a duplicate item).
		if err := p.queue.MarkSent(ctx, item.ID, p.now()); err != nil {
			log.Error("failed to close already delivered item", zap.Error(err))
			return false, err
		}
		p.interest.Remove(sub.ID, sub.ProductID)
		log.Info("subscription already delivered, closing item without send")
		return false, nil
	}

	product, ok, err := p.products.Get(ctx, item.ProductID)
	if err != nil {
		return false, p.fail(ctx, item, err)
	}
	if !ok {
		return false, p.fail(ctx, item, fmt.Errorf("%w: product %s not found", domain.ErrDataInvalid, item.ProductID))
	}

	msg, err := provider.NewRestockMessage(*sub, product)
	if err != nil {
		return false, p.fail(ctx, item, err)
	}
	msg.QueueItemID = item.ID

	if err := p.pacer.Wait(ctx); err != nil {
		return false, p.fail(ctx, item, fmt.Errorf("pacing: %w", err))
	}

	res, err := p.gateway.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("email gateway send failed", zap.Error(err), zap.Bool("retryable", domain.IsRetryable(err)))
		return false, p.fail(ctx, item, err)
	}

	if err := p.queue.MarkSent(ctx, item.ID, p.now()); err != nil {
		// The email went out but the store did not record it. The lease
		// sweep fails the item later and a retry may send a duplicate.
		log.Error("failed to mark queue item sent", zap.Error(err))
		return false, fmt.Errorf("mark sent: %w", err)
	}
	p.interest.Remove(sub.ID, sub.ProductID)
	p.hooks.OnSent()

	log.Info("restock notification sent", zap.String("provider_msg_id", res.MessageID))
	return true, nil
}

// fail records cause on the item and returns it for the caller's result.
func (p *Processor) fail(ctx context.Context, item *domain.QueueItem, cause error) error {
	p.hooks.OnFailed()
	if err := p.queue.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
		p.logger.Error("failed to mark queue item failed",
			zap.String("queue_item_id", item.ID), zap.Error(err))
	}
	if !domain.IsRetryable(cause) {
		p.logger.Warn("queue item failed with non-retryable error",
			zap.String("queue_item_id", item.ID), zap.Error(cause))
	}
	return cause
}

func (p *Processor) observe(ctx context.Context) {
	if summary, err := p.queue.StatusSummary(ctx); err == nil {
		p.hooks.OnSummary(summary)
	}
	if p.interest != nil {
		_, subs := p.interest.Size()
		p.hooks.OnInterest(subs)
	}
}
