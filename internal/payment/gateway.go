// Package payment talks to the payment gateway and verifies its callbacks.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/safar/go-grocery-store/internal/config"
	"github.com/sirupsen/logrus"
)

var ErrGatewayResponse = errors.New("unexpected gateway response")

// Gateway creates the remote order a customer later pays against.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
}

type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type RazorpayGateway struct {
	orders orderCreator
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{orders: client.Order}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}

	// The client library has no context support; abandon the call when ctx ends.
	done := make(chan result, 1)
	go func() {
		body, err := g.orders.Create(map[string]interface{}{
			"amount":   amountMinor,
			"currency": currency,
			"receipt":  receipt,
		}, nil)
		done <- result{body, err}
	}()

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "create gateway order")
	case r := <-done:
		if r.err != nil {
			return "", errors.Wrapf(r.err, "create gateway order for receipt %s", receipt)
		}
		id, ok := r.body["id"].(string)
		if !ok || id == "" {
			return "", errors.Wrapf(ErrGatewayResponse, "missing order id for receipt %s", receipt)
		}
		return id, nil
	}
}

// OfflineGateway issues local order ids. It stands in for the real gateway
// when no credentials are configured.
type OfflineGateway struct{}

func (OfflineGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "create offline order")
	}
	if amountMinor <= 0 {
		return "", errors.Errorf("invalid amount %d", amountMinor)
	}
	return "order_offline_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

// NewGateway picks the gateway implementation for cfg.
func NewGateway(cfg *config.PaymentConfig, log logrus.FieldLogger) Gateway {
	if cfg.KeyID == "" {
		log.Warn("PAYMENT_KEY_ID not set, using offline payment gateway")
		return OfflineGateway{}
	}
	log.WithField("key_id", maskKey(cfg.KeyID)).Info("using razorpay payment gateway")
	return NewRazorpayGateway(cfg.KeyID, cfg.KeySecret)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s****", key[:8])
}
