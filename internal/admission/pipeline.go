package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-credit-gate/internal/audit"
	"github.com/tbourn/go-credit-gate/internal/balance"
	"github.com/tbourn/go-credit-gate/internal/domain"
	"github.com/tbourn/go-credit-gate/internal/integrity"
	"github.com/tbourn/go-credit-gate/internal/metrics"
	"github.com/tbourn/go-credit-gate/internal/ratelimit"
	"github.com/tbourn/go-credit-gate/internal/validation"
)

// Options configures a Pipeline. Limiter and Guard are required; the rest
// default to disabled or no-op collaborators.
type Options struct {
	Limiter *ratelimit.Limiter
	Guard   *integrity.Guard

	AmountRules validation.AmountRules
	ShapeRules  validation.TransactionRules

	// Balances resolves payer balances when EnforceBalance is set.
	Balances       balance.Lookup
	EnforceBalance bool

	// Audit receives one event per stage; nil means no trail.
	Audit audit.Sink

	Log zerolog.Logger
}

// Pipeline runs submissions through the admission stages in a fixed order.
// The integrity registration is the only stateful write and always runs
// last, so a rejected submission leaves no side effects behind.
type Pipeline struct {
	limiter *ratelimit.Limiter
	guard   *integrity.Guard
	amounts validation.AmountRules
	shape   validation.TransactionRules

	balances balance.Lookup
	enforce  bool

	sink audit.Sink
	log  zerolog.Logger

	validate *validatorv10.Validate
	now      func() time.Time
}

// New assembles a Pipeline from opts.
func New(opts Options) *Pipeline {
	sink := opts.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Pipeline{
		limiter:  opts.Limiter,
		guard:    opts.Guard,
		amounts:  opts.AmountRules,
		shape:    opts.ShapeRules,
		balances: opts.Balances,
		enforce:  opts.EnforceBalance,
		sink:     sink,
		log:      opts.Log,
		validate: validation.New(),
		now:      time.Now,
	}
}

// Submit runs one raw submission through every admission stage: rate limit
// (before any parsing, to shed load cheaply), payload binding, type,
// amount, balance enforcement, metadata and reference-id ceilings, and
// finally integrity registration. The first failing stage short-circuits
// with a *Rejection; success returns the transaction with status VALIDATED
// and its dedup keys held for the replay window.
func (p *Pipeline) Submit(ctx context.Context, identities []ratelimit.Identity, payload []byte) (*domain.Transaction, error) {
	start := p.now()
	tr := otel.Tracer("admission/Pipeline")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.Int("identity.count", len(identities))),
	)
	defer span.End()

	userID := userFromIdentities(identities)

	res := p.limiter.Check(ctx, identities)
	if !res.Allowed {
		cause := &RateLimitedError{
			Exceeded:   res.Exceeded,
			RetryAfter: res.RetryAfter(p.now()),
			Result:     res,
		}
		return nil, p.reject(ctx, span, start, StageRateLimit, "", userID, "", cause)
	}
	rlDetail := ""
	if res.Degraded {
		rlDetail = "store degraded, allowed open"
	}
	p.record(ctx, StageRateLimit, "", userID, audit.OutcomeSuccess, rlDetail)

	// Bind the payload into a pending transaction. Conversion failures all
	// count as bind rejections: decode, required fields, timestamp format.
	sub, err := validation.ParseSubmission(payload)
	if err != nil {
		return nil, p.reject(ctx, span, start, StageBind, "", userID, "", err)
	}
	if err := validation.CheckRequired(p.validate, sub); err != nil {
		return nil, p.reject(ctx, span, start, StageBind, sub.ID, sub.FromUser, "", err)
	}
	ts, err := validation.ParseTimestamp(sub.Timestamp)
	if err != nil {
		return nil, p.reject(ctx, span, start, StageBind, sub.ID, sub.FromUser, "", err)
	}
	tx := &domain.Transaction{
		ID:        sub.ID,
		FromUser:  sub.FromUser,
		ToUser:    sub.ToUser,
		Timestamp: ts,
		Status:    domain.StatusPending,
	}
	if tx.ID == "" {
		tx.ID = domain.NewID()
	}
	span.SetAttributes(attribute.String("transaction.id", tx.ID))
	p.record(ctx, StageBind, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	typ, err := p.shape.ValidateType(sub.Type)
	if err != nil {
		// Raw caller input must not become a metric label; the audit
		// detail carries it instead.
		return nil, p.reject(ctx, span, start, StageType, tx.ID, tx.FromUser, "", err)
	}
	tx.Type = typ
	span.SetAttributes(attribute.String("transaction.type", string(typ)))
	p.record(ctx, StageType, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	amount, err := p.amounts.Validate(string(sub.Amount))
	if err != nil {
		return nil, p.reject(ctx, span, start, StageAmount, tx.ID, tx.FromUser, string(typ), err)
	}
	tx.Amount = amount
	p.record(ctx, StageAmount, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	// Only debits can breach a balance, so credits skip the lookup.
	if p.enforce && amount.IsNegative() {
		bal, err := p.lookupBalance(ctx, tx.FromUser)
		if err != nil {
			return nil, p.reject(ctx, span, start, StageBalance, tx.ID, tx.FromUser, string(typ), err)
		}
		if err := validation.ValidateAgainstBalance(amount, bal); err != nil {
			return nil, p.reject(ctx, span, start, StageBalance, tx.ID, tx.FromUser, string(typ), err)
		}
		p.record(ctx, StageBalance, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")
	}

	md, err := p.shape.ValidateMetadata(sub.Metadata)
	if err != nil {
		return nil, p.reject(ctx, span, start, StageMetadata, tx.ID, tx.FromUser, string(typ), err)
	}
	tx.Metadata = md
	p.record(ctx, StageMetadata, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	ref, err := p.shape.ValidateReferenceID(sub.ReferenceID)
	if err != nil {
		return nil, p.reject(ctx, span, start, StageReferenceID, tx.ID, tx.FromUser, string(typ), err)
	}
	tx.ReferenceID = ref
	p.record(ctx, StageReferenceID, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	// Stamp the submission time when the caller did not assert one.
	if tx.Timestamp.IsZero() {
		tx.Timestamp = p.now().UTC()
	}

	if err := p.guard.Admit(ctx, tx); err != nil {
		return nil, p.reject(ctx, span, start, StageIntegrity, tx.ID, tx.FromUser, string(typ), err)
	}
	tx.Status = domain.StatusValidated
	p.record(ctx, StageIntegrity, tx.ID, tx.FromUser, audit.OutcomeSuccess, "")

	metrics.ObserveAdmission(StageAdmitted, metrics.OutcomeAdmitted, string(tx.Type), p.now().Sub(start))
	span.SetAttributes(attribute.String("admission.outcome", metrics.OutcomeAdmitted))
	return tx, nil
}

// lookupBalance resolves the payer balance, treating a missing wallet as
// zero funds and any other failure as ErrBalanceUnavailable (fail closed).
func (p *Pipeline) lookupBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if p.balances == nil {
		return decimal.Zero, fmt.Errorf("%w: no lookup configured", ErrBalanceUnavailable)
	}
	bal, err := p.balances.GetBalance(ctx, userID)
	if errors.Is(err, balance.ErrUserNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	return bal, nil
}

// record emits one audit event. Recording is best-effort: a sink failure
// is logged and counted, never surfaced to the submission.
func (p *Pipeline) record(ctx context.Context, stage, txID, userID, outcome, detail string) {
	ev := audit.Event{
		Stage:         stage,
		TransactionID: txID,
		UserID:        userID,
		Outcome:       outcome,
		Detail:        detail,
		At:            p.now().UTC(),
	}
	if err := p.sink.Record(ctx, ev); err != nil {
		metrics.IncAuditFailure()
		p.log.Error().Err(err).
			Str("stage", stage).
			Str("transaction_id", txID).
			Msg("audit sink failure")
	}
}

// reject finishes a submission at the failing stage: audit event, metrics
// observation, span attributes, and the uniform Rejection wrapper.
func (p *Pipeline) reject(ctx context.Context, span trace.Span, start time.Time, stage, txID, userID, txType string, cause error) error {
	p.record(ctx, stage, txID, userID, audit.OutcomeRejected, cause.Error())
	metrics.ObserveAdmission(stage, metrics.OutcomeRejected, txType, p.now().Sub(start))
	span.SetAttributes(
		attribute.String("admission.outcome", metrics.OutcomeRejected),
		attribute.String("admission.stage", stage),
	)
	return &Rejection{Stage: stage, Err: cause}
}

// userFromIdentities extracts the user identity value for audit events
// emitted before the payload is bound.
func userFromIdentities(identities []ratelimit.Identity) string {
	for _, id := range identities {
		if id.Type == ratelimit.TypeUser {
			return id.Value
		}
	}
	return ""
}
