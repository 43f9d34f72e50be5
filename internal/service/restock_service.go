package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/config"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/provider"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/ratelimiter"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// Dispatcher runs one queue processing pass; satisfied by *worker.Processor.
type Dispatcher interface {
	Run(ctx context.Context, id auth.Identity) (domain.ProcessResult, error)
}

type RestockConfig struct {
	Mode               config.DeliveryMode
	MaxAttempts        int
	ProcessImmediately bool
}

// RestockService turns a stock change into notification work for every
// pending subscriber of the product.
type RestockService struct {
	interest   *cache.InterestCache
	products   *cache.ProductCache
	subs       repository.SubscriptionRepository
	queue      repository.QueueRepository
	gateway    provider.Gateway
	pacer      *ratelimiter.Pacer
	dispatcher Dispatcher
	cfg        RestockConfig
	logger     *zap.Logger

	// OnEvent is called once per stock change; nil means no-op.
	OnEvent func(triggered bool)

	kicks sync.WaitGroup
}

func NewRestockService(
	interest *cache.InterestCache,
	products *cache.ProductCache,
	subs repository.SubscriptionRepository,
	queue repository.QueueRepository,
	gateway provider.Gateway,
	pacer *ratelimiter.Pacer,
	dispatcher Dispatcher,
	cfg RestockConfig,
	logger *zap.Logger,
) *RestockService {
	if cfg.Mode == "" {
		cfg.Mode = config.DeliveryQueued
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	return &RestockService{
		interest: interest, products: products, subs: subs, queue: queue,
		gateway: gateway, pacer: pacer, dispatcher: dispatcher,
		cfg: cfg, logger: logger,
	}
}

// NotifyRestock handles one stock change. Only a transition from zero (or
// negative) stock to positive stock triggers work; anything else returns a
// result with Triggered=false and no side effects.
func (s *RestockService) NotifyRestock(ctx context.Context, productID string, oldStock, newStock int) (domain.RestockResult, error) {
	var result domain.RestockResult
	if strings.TrimSpace(productID) == "" {
		return result, domain.ErrInvalidProduct
	}

	triggered := domain.IsRestock(oldStock, newStock)
	if s.OnEvent != nil {
		s.OnEvent(triggered)
	}
	if !triggered {
		return result, nil
	}
	result.Triggered = true

	if err := s.interest.Initialize(ctx); err != nil {
		return result, fmt.Errorf("initialize interest cache: %w", err)
	}

	pending := s.interest.Lookup(productID)
	log := s.logger.With(zap.String("product_id", productID), zap.Int("subscribers", len(pending)))
	if len(pending) == 0 {
		log.Debug("restock with no pending subscribers")
		return result, nil
	}

	if s.cfg.Mode == config.DeliveryDirect {
		s.sendDirect(ctx, productID, pending, &result)
		log.Info("restock notifications sent directly",
			zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
		return result, nil
	}

	for i := range pending {
		sub := &pending[i]
		open, err := s.queue.HasOpenItem(ctx, sub.ID)
		if err != nil {
			result.Failed++
			log.Error("failed to check open queue item", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		if open {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, sub, s.cfg.MaxAttempts); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// A concurrent restock queued it between the check and
				// the insert.
				continue
			}
			result.Failed++
			log.Error("failed to enqueue restock notification", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		result.Enqueued++
	}
	log.Info("restock notifications enqueued", zap.Int("enqueued", result.Enqueued), zap.Int("failed", result.Failed))

	if s.cfg.ProcessImmediately && result.Enqueued > 0 && s.dispatcher != nil {
		s.kick(ctx)
	}
	return result, nil
}

// kick starts a processor run in the background. A busy processor is fine:
// the items are durable and the next scheduled run picks them up.
func (s *RestockService) kick(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.kicks.Add(1)
	go func() {
		defer s.kicks.Done()
		_, err := s.dispatcher.Run(ctx, auth.SystemIdentity)
		if err != nil && !errors.Is(err, domain.ErrProcessorBusy) {
			s.logger.Warn("immediate queue processing failed", zap.Error(err))
		}
	}()
}

// Wait blocks until background processor runs started by NotifyRestock return.
func (s *RestockService) Wait() {
	s.kicks.Wait()
}

// sendDirect delivers to every subscriber inline. The delivered flag is the
// only record of success; a failed send leaves the subscription pending for
// the next restock.
func (s *RestockService) sendDirect(ctx context.Context, productID string, pending []domain.Subscription, result *domain.RestockResult) {
	product, ok, err := s.products.Get(ctx, productID)
	if err == nil && !ok {
		err = fmt.Errorf("%w: product %s not found", domain.ErrDataInvalid, productID)
	}
	if err != nil {
		result.Failed = len(pending)
		s.logger.Error("cannot send restock notifications", zap.String("product_id", productID), zap.Error(err))
		return
	}

	for _, sub := range pending {
		log := s.logger.With(zap.String("subscription_id", sub.ID), zap.String("product_id", productID))
		msg, err := provider.NewRestockMessage(sub, product)
		if err != nil {
			result.Failed++
			log.Warn("invalid restock notification", zap.Error(err))
			continue
		}
		if err := s.pacer.Wait(ctx); err != nil {
			result.Failed += len(pending) - result.Sent - result.Failed
			log.Warn("direct send interrupted", zap.Error(err))
			return
		}
		if _, err := s.gateway.Send(ctx, msg); err != nil {
			result.Failed++
			log.Warn("direct send failed", zap.Error(err))
			continue
		}
		if err := s.subs.MarkDelivered(ctx, sub.ID, time.Now().UTC()); err != nil {
			log.Error("sent but failed to mark subscription delivered", zap.Error(err))
		}
		s.interest.Remove(sub.ID, sub.ProductID)
		result.Sent++
	}
}
