package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

var (
	testSub     = domain.Subscription{ID: "sub-1", ProductID: "p1", Email: "ana@example.com"}
	testProduct = domain.ProductDetails{ID: "p1", Name: "Cast Iron Pan", PriceCents: 4550, ImageURL: "https://cdn.example.com/pan.jpg"}
)

func TestNewRestockMessage(t *testing.T) {
	msg, err := NewRestockMessage(testSub, testProduct)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Cast Iron Pan is back in stock", msg.Subject)
	assert.Equal(t, "45.50", msg.Data.Price)
	assert.Equal(t, int64(4550), msg.Data.PriceCents)
	assert.Contains(t, msg.PlainText(), "45.50")

	bad := testSub
	bad.Email = "nope"
	_, err = NewRestockMessage(bad, testProduct)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)

	_, err = NewRestockMessage(testSub, domain.ProductDetails{ID: "p1"})
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestWebhookGateway_Send(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"msg-42"}`))
	}))
	defer srv.Close()

	msg, _ := NewRestockMessage(testSub, testProduct)
	res, err := NewWebhookGateway(srv.URL, time.Second).Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "msg-42", res.MessageID)
	assert.Equal(t, "ana@example.com", got.To)
	assert.Equal(t, "p1", got.Data.ProductID)
}

func TestWebhookGateway_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	msg, _ := NewRestockMessage(testSub, testProduct)
	_, err := NewWebhookGateway(srv.URL, time.Second).Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESGateway_Send(t *testing.T) {
	client := &fakeSES{}
	g := newSESGateway(client, SESConfig{FromEmail: "shop@example.com", ConfigurationSet: "restock"}, zap.NewNop())

	msg, _ := NewRestockMessage(testSub, testProduct)
	res, err := g.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.MessageID)

	require.NotNil(t, client.input)
	assert.Equal(t, "shop@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"ana@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "restock", aws.ToString(client.input.ConfigurationSetName))
	assert.True(t, strings.Contains(aws.ToString(client.input.Message.Body.Text.Data), "Cast Iron Pan"))
}

func TestSESGateway_SendError(t *testing.T) {
	client := &fakeSES{err: errors.New("Throttling: Maximum sending rate exceeded")}
	g := newSESGateway(client, SESConfig{FromEmail: "shop@example.com"}, zap.NewNop())

	msg, _ := NewRestockMessage(testSub, testProduct)
	_, err := g.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Throttling")
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "sku_12-3", sanitizeTag("sku 12-3"))
	assert.Equal(t, "unknown", sanitizeTag(""))
}

type failingGateway struct{ calls int }

func (f *failingGateway) Send(context.Context, Message) (*SendResult, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerGateway_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingGateway{}
	cfg := DefaultBreakerConfig("test")
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = time.Hour
	g := NewBreakerGateway(next, cfg, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := g.Send(context.Background(), Message{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := g.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, next.calls, "open circuit must not reach the provider")
	assert.Equal(t, "open", g.State())
	assert.True(t, domain.IsRetryable(err))
}
