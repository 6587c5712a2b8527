// Package sms delivers verification codes out of band.
package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/fallah-auth/internal/metrics"
	"github.com/ErlanBelekov/fallah-auth/internal/phone"
)

type Gateway interface {
	Send(ctx context.Context, to, body string) error
}

// Dispatcher logs every code it is given and forwards it to the gateway.
// A nil gateway means SMS is not configured: delivery fails without a
// network call. In dev mode failures are reported as delivered, since the
// code is already in the logs.
type Dispatcher struct {
	gateway Gateway
	logger  *slog.Logger
	devMode bool
}

func NewDispatcher(gateway Gateway, logger *slog.Logger, devMode bool) *Dispatcher {
	return &Dispatcher{
		gateway: gateway,
		logger:  logger.With("component", "sms_dispatcher"),
		devMode: devMode,
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, phoneNumber, code string) bool {
	to := phone.Normalize(phoneNumber)

	d.logger.InfoContext(ctx, "verification code issued", "phone_number", to, "code", code)

	if d.gateway == nil {
		metrics.SMSDeliveriesTotal.WithLabelValues("unconfigured").Inc()
		d.logger.WarnContext(ctx, "sms gateway not configured", "phone_number", phone.Mask(to))
		return d.devMode
	}

	body := fmt.Sprintf("Your Fallah Smart verification code is %s", code)
	if err := d.gateway.Send(ctx, to, body); err != nil {
		metrics.SMSDeliveriesTotal.WithLabelValues("failed").Inc()
		attrs := []any{"phone_number", phone.Mask(to), "error", err}
		if reason := Classify(err); reason != "" {
			attrs = append(attrs, "reason", reason)
		}
		d.logger.ErrorContext(ctx, "sms delivery failed", attrs...)
		if d.devMode {
			d.logger.WarnContext(ctx, "dev mode: treating failed sms delivery as sent")
			return true
		}
		return false
	}

	metrics.SMSDeliveriesTotal.WithLabelValues("sent").Inc()
	return true
}
