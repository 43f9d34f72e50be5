package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// sesAPI is the slice of the SES client the gateway calls.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESConfig struct {
	Region    string
	FromEmail string
	// ConfigurationSet is optional; SES uses it for event publishing.
	ConfigurationSet string
}

// SESGateway sends restock emails through AWS SES.
type SESGateway struct {
	client sesAPI
	cfg    SESConfig
	logger *zap.Logger
}

func NewSESGateway(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESGateway, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return newSESGateway(ses.NewFromConfig(awsCfg), cfg, logger), nil
}

func newSESGateway(client sesAPI, cfg SESConfig, logger *zap.Logger) *SESGateway {
	return &SESGateway{client: client, cfg: cfg, logger: logger}
}

func (g *SESGateway) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("email message missing recipient")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(g.cfg.FromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.PlainText()),
					Charset: aws.String("UTF-8"),
				},
			},
		},
		Tags: []types.MessageTag{
			{Name: aws.String("product_id"), Value: aws.String(sanitizeTag(msg.Data.ProductID))},
		},
	}
	if g.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(g.cfg.ConfigurationSet)
	}

	out, err := g.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send failed: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	g.logger.Info("email sent via SES",
		zap.String("subscription_id", msg.SubscriptionID),
		zap.String("message_id", messageID),
	)
	return &SendResult{MessageID: messageID}, nil
}

// sanitizeTag keeps the characters SES allows in tag values.
func sanitizeTag(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}

var _ Gateway = (*SESGateway)(nil)
