package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/promo-stock-ledger/internal/events"
	"github.com/fairyhunter13/promo-stock-ledger/internal/metrics"
	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	appvalidator "github.com/fairyhunter13/promo-stock-ledger/internal/validator"
)

const tracerName = "github.com/fairyhunter13/promo-stock-ledger/internal/service"

// EventPublisher publishes committed changes. Failures never undo a commit.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

// CouponCache caches coupon metadata by code. Get returns nil, nil on a miss.
type CouponCache interface {
	Get(ctx context.Context, code string) (*model.Coupon, error)
	Set(ctx context.Context, coupon *model.Coupon) error
	Delete(ctx context.Context, code string) error
}

// Option configures the optional collaborators of a service.
type Option func(*options)

type options struct {
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	publisher EventPublisher
	cache     CouponCache
	validate  *validator.Validate
	now       func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		tracer:   otel.Tracer(tracerName),
		validate: appvalidator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithCouponCache enables the coupon read cache. Only GetByCode and Validate read from it.
func WithCouponCache(c CouponCache) Option {
	return func(o *options) { o.cache = c }
}

func WithValidator(v *validator.Validate) Option {
	return func(o *options) { o.validate = v }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func (o *options) publish(ctx context.Context, key string, event events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, key, event); err != nil {
		log.Warn().
			Err(err).
			Str("event_type", event.EventType()).
			Str("key", key).
			Msg("failed to publish event")
	}
}

func (o *options) validateStruct(req any) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}
	vs, convErr := fromValidator(err, "")
	if convErr != nil {
		return convErr
	}
	return vs.err()
}
