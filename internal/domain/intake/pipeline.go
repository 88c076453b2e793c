package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/uruk/internal/domain/dedupe"
	"github.com/okian/uruk/internal/domain/model"
	"github.com/okian/uruk/internal/domain/registration"
	"github.com/okian/uruk/internal/domain/token"
	"github.com/okian/uruk/pkg/logger"
	"github.com/okian/uruk/pkg/metrics"
)

const tracerName = "github.com/okian/uruk/internal/domain/intake"

// Validator checks a raw token against a registration policy.
type Validator interface {
	Validate(raw []byte, p *registration.Policy) token.Outcome
}

// Sink accepts records for asynchronous storage. TryWrite must not block; false
// means the record was not taken.
type Sink interface {
	TryWrite(ctx context.Context, rec model.AuditRecord) bool
}

// Pipeline validates tokens, filters replays and hands new records to the sink.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	validator Validator
	detector  dedupe.Detector
	sink      Sink
	now       func() time.Time
	tracer    trace.Tracer
	logger    logger.Logger
}

// New constructs a pipeline. validator and sink are required.
func New(validator Validator, sink Sink, opts ...Option) (*Pipeline, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: validator", ErrNilCollaborator)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink", ErrNilCollaborator)
	}
	p := &Pipeline{
		validator: validator,
		detector:  dedupe.Disabled(),
		sink:      sink,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("intake")
	}
	return p, nil
}

// Process runs one token through validation, replay detection and the sink.
// policy must not be nil.
func (p *Pipeline) Process(ctx context.Context, raw []byte, policy *registration.Policy) Result {
	ctx, span := p.tracer.Start(ctx, "intake.process",
		trace.WithAttributes(attribute.String("uruk.client_id", policy.ClientID())))
	defer span.End()

	metrics.RecordTokenReceived()
	res := p.process(ctx, raw, policy, span)

	span.SetAttributes(attribute.Bool("uruk.accepted", res.Accepted))
	if !res.Accepted {
		span.SetAttributes(attribute.String("uruk.error", string(res.Code)))
		if res.Operational {
			span.SetStatus(codes.Error, string(res.Code))
		}
	}
	return res
}

func (p *Pipeline) process(ctx context.Context, raw []byte, policy *registration.Policy, span trace.Span) Result {
	start := time.Now()
	out := p.validator.Validate(raw, policy)
	metrics.RecordValidationLatency(float64(time.Since(start).Microseconds()) / 1000)

	tok, ok := out.Token()
	if !ok {
		f, _ := out.Failure()
		code, desc := Classify(f)
		span.SetAttributes(attribute.String("uruk.status", f.Status.String()))
		metrics.RecordTokenRejected(string(code), f.Status.String())
		p.logger.Debug(ctx, "token rejected",
			logger.String("client_id", policy.ClientID()),
			logger.String("status", f.Status.String()),
			logger.String("header", f.Header),
			logger.String("claim", f.Claim),
		)
		return rejected(code, desc)
	}

	rec := model.NewAuditRecord(raw, tok, policy.ClientID(), p.now())
	key := dedupe.KeyOf(tok)
	span.SetAttributes(attribute.String("uruk.jti", tok.JTI), attribute.String("uruk.issuer", tok.Issuer))

	start = time.Now()
	first, err := p.detector.TryAdmit(ctx, key)
	metrics.RecordDuplicateCheckLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// The caller went away; nothing can be admitted, but the duplicate store is fine.
		span.RecordError(err)
		metrics.RecordOperationalFailure(string(CodeQueueUnavailable))
		p.logger.Debug(ctx, "duplicate check abandoned",
			logger.String("client_id", policy.ClientID()),
			logger.String("jti", tok.JTI),
			logger.Error(err),
		)
		return QueueUnavailable()
	}
	if err != nil {
		span.RecordError(err)
		metrics.RecordOperationalFailure(string(CodeDuplicateStoreUnavailable))
		p.logger.Error(ctx, "duplicate check failed",
			logger.String("client_id", policy.ClientID()),
			logger.String("jti", tok.JTI),
			logger.Error(err),
		)
		return unavailable(CodeDuplicateStoreUnavailable, descDuplicateStoreUnavailable)
	}
	if !first {
		span.SetAttributes(attribute.Bool("uruk.duplicate", true))
		metrics.RecordTokenDuplicate()
		p.logger.Debug(ctx, "duplicate token ignored",
			logger.String("client_id", policy.ClientID()),
			logger.String("issuer", tok.Issuer),
			logger.String("jti", tok.JTI),
		)
		return accepted()
	}

	if !p.sink.TryWrite(ctx, rec) {
		metrics.RecordOperationalFailure(string(CodeQueueUnavailable))
		p.logger.Warn(ctx, "sink refused record",
			logger.String("client_id", policy.ClientID()),
			logger.String("jti", tok.JTI),
			logger.String("record_id", rec.ID.String()),
		)
		return QueueUnavailable()
	}

	metrics.RecordTokenAccepted()
	p.logger.Debug(ctx, "token accepted",
		logger.String("client_id", policy.ClientID()),
		logger.String("jti", tok.JTI),
		logger.String("record_id", rec.ID.String()),
	)
	return accepted()
}
