package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

// TemplateData is what a transactional template needs to render a restock
// email. Markup lives with the email provider, not here.
type TemplateData struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	// Price is the display form ("89.50"); PriceCents is the exact amount.
	Price      string `json:"price"`
	PriceCents int64  `json:"price_cents"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Message is one restock notification addressed to one subscriber.
type Message struct {
	QueueItemID    string       `json:"queue_item_id,omitempty"`
	SubscriptionID string       `json:"subscription_id"`
	To             string       `json:"to"`
	Subject        string       `json:"subject"`
	Data           TemplateData `json:"data"`
}

// SendResult carries the provider's message id on success.
type SendResult struct {
	MessageID string `json:"messageId"`
}

// Gateway abstracts the transactional email provider.
// Mocking this interface in tests gives full control over provider behaviour
// without making real network calls.
type Gateway interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// NewRestockMessage builds the message for one subscription. It fails with
// domain.ErrDataInvalid when the inputs cannot produce a deliverable email.
func NewRestockMessage(sub domain.Subscription, product domain.ProductDetails) (Message, error) {
	if err := domain.ValidateEmail(sub.Email); err != nil {
		return Message{}, fmt.Errorf("%w: subscription %s: %v", domain.ErrDataInvalid, sub.ID, err)
	}
	if strings.TrimSpace(product.Name) == "" {
		return Message{}, fmt.Errorf("%w: product %s has no name", domain.ErrDataInvalid, product.ID)
	}
	return Message{
		SubscriptionID: sub.ID,
		To:             sub.Email,
		Subject:        fmt.Sprintf("%s is back in stock", product.Name),
		Data: TemplateData{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.PriceCents.String(),
			PriceCents:  int64(product.PriceCents),
			ImageURL:    product.ImageURL,
		},
	}, nil
}

// PlainText renders a text fallback body.
func (m Message) PlainText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Good news! %s is back in stock.\n", m.Data.ProductName)
	fmt.Fprintf(&b, "Price: %s\n", m.Data.Price)
	if m.Data.ImageURL != "" {
		fmt.Fprintf(&b, "%s\n", m.Data.ImageURL)
	}
	b.WriteString("\nYou received this email because you asked to be notified when this item returned.\n")
	return b.String()
}
