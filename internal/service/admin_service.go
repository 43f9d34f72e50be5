package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// AdminService backs the operator console. Every method requires a
// privileged identity.
type AdminService struct {
	queue      repository.QueueRepository
	interest   *cache.InterestCache
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewAdminService(queue repository.QueueRepository, interest *cache.InterestCache, dispatcher Dispatcher, logger *zap.Logger) *AdminService {
	return &AdminService{queue: queue, interest: interest, dispatcher: dispatcher, logger: logger}
}

func authorize(id auth.Identity) error {
	if id.Subject == "" || !id.Privileged() {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *AdminService) Summary(ctx context.Context, id auth.Identity) (domain.StatusSummary, error) {
	if err := authorize(id); err != nil {
		return domain.StatusSummary{}, err
	}
	return s.queue.StatusSummary(ctx)
}

func (s *AdminService) ListItems(ctx context.Context, id auth.Identity, f domain.QueueFilter) ([]*domain.QueueItem, int, error) {
	if err := authorize(id); err != nil {
		return nil, 0, err
	}
	f.Normalize()
	if f.Status != nil && !f.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, *f.Status)
	}
	return s.queue.List(ctx, f)
}

// ProcessNow runs one batch immediately. Authorization is enforced by the
// processor itself.
func (s *AdminService) ProcessNow(ctx context.Context, id auth.Identity) (domain.ProcessResult, error) {
	return s.dispatcher.Run(ctx, id)
}

// RetryFailed re-arms failed items with attempts reset to zero, then runs a
// processing pass so they go out without waiting for the scheduler. Items
// that used every attempt are included only when includeExhausted is set.
// A busy processor is reported through Processing.Skipped; the items stay
// pending for the run in progress or the next tick.
func (s *AdminService) RetryFailed(ctx context.Context, id auth.Identity, includeExhausted bool) (domain.RetryResult, error) {
	var result domain.RetryResult
	if err := authorize(id); err != nil {
		return result, err
	}
	n, err := s.queue.RetryFailed(ctx, includeExhausted)
	if err != nil {
		return result, err
	}
	result.Retried = n
	s.logger.Info("failed queue items re-armed",
		zap.String("subject", id.Subject), zap.Int64("count", n), zap.Bool("include_exhausted", includeExhausted))
	if n == 0 {
		return result, nil
	}

	processed, err := s.dispatcher.Run(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrProcessorBusy) {
		s.logger.Warn("processing after retry failed; items stay pending",
			zap.String("subject", id.Subject), zap.Error(err))
	}
	result.Processing = &processed
	return result, nil
}

func (s *AdminService) ClearFailed(ctx context.Context, id auth.Identity) (int64, error) {
	if err := authorize(id); err != nil {
		return 0, err
	}
	n, err := s.queue.ClearFailed(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("failed queue items cleared", zap.String("subject", id.Subject), zap.Int64("count", n))
	return n, nil
}

// RefreshCache reloads the interest cache, or one product's bucket when
// productID is set.
func (s *AdminService) RefreshCache(ctx context.Context, id auth.Identity, productID string) error {
	if err := authorize(id); err != nil {
		return err
	}
	if productID != "" {
		return s.interest.RefreshProduct(ctx, productID)
	}
	return s.interest.RefreshAll(ctx)
}
