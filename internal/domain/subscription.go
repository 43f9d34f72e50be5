package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Subscription is a customer's registered interest in a restock of one product.
// Delivered flips false->true exactly once, when a notification is sent.
type Subscription struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	Email       string     `json:"email"`
	Delivered   bool       `json:"delivered"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Validate checks the fields a subscription must carry before it is stored
// or turned into a queue item.
func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.ProductID) == "" {
		return ErrInvalidProduct
	}
	return ValidateEmail(s.Email)
}

// ValidateEmail rejects anything net/mail cannot parse as a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// CreateSubscriptionRequest is the inbound payload for registering interest.
type CreateSubscriptionRequest struct {
	ProductID string `json:"product_id"`
	Email     string `json:"email"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	s := Subscription{ProductID: r.ProductID, Email: r.Email}
	return s.Validate()
}

// ProductDetails is the subset of a product needed to render a notification.
type ProductDetails struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents Cents  `json:"price_cents"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Cents is an amount in minor currency units.
type Cents int64

// String formats c with two decimals, e.g. 8950 -> "89.50".
func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// StockChangeRequest is posted by the inventory update path.
type StockChangeRequest struct {
	OldStock *int `json:"old_stock"`
	NewStock *int `json:"new_stock"`
}

func (r *StockChangeRequest) Validate() error {
	if r.OldStock == nil || r.NewStock == nil {
		return ErrInvalidStock
	}
	return nil
}

// IsRestock reports a zero-to-positive stock transition.
func IsRestock(oldStock, newStock int) bool {
	return oldStock <= 0 && newStock > 0
}
