package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// SubscriptionService registers and withdraws restock interest and keeps
// the interest cache in step with the store.
type SubscriptionService struct {
	repo     repository.SubscriptionRepository
	interest *cache.InterestCache
	logger   *zap.Logger
}

func NewSubscriptionService(repo repository.SubscriptionRepository, interest *cache.InterestCache, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{repo: repo, interest: interest, logger: logger}
}

// Subscribe stores a new pending subscription. A second pending
// subscription for the same product and address returns domain.ErrConflict.
func (s *SubscriptionService) Subscribe(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:        uuid.New().String(),
		ProductID: req.ProductID,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	s.interest.Add(*sub)
	s.logger.Info("subscription registered",
		zap.String("subscription_id", sub.ID), zap.String("product_id", sub.ProductID))
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

// Unsubscribe deletes the subscription along with any queue items for it.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.interest.Remove(id, "")
	s.logger.Info("subscription removed", zap.String("subscription_id", id))
	return nil
}
