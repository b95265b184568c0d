// Package worker orchestrates one delivery attempt pipeline per job record:
// admission, provider send, state transition, usage attribution, and the
// retry decision.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/gateway"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/metrics"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/models"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/ratelimit"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/store"
)

// Error codes persisted for failures that did not originate from a provider
// error object.
const (
	ErrCodeLocalRateLimit      = "LOCAL_RATE_LIMIT"
	ErrCodePhoneNumberNotFound = "PHONE_NUMBER_NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
)

// globalGateDelay is how long intake waits before re-checking the global
// dispatch window once it is exhausted.
const globalGateDelay = 25 * time.Millisecond

// Config contains the runtime settings the engine relies on to orchestrate
// processing and retries.
type Config struct {
	MaxAttempts         int
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
	Concurrency         int
	JobMaxBytes         int
	CostCentsPerMessage int
}

// Record represents a job record delivered to the engine. It keeps the engine
// decoupled from the concrete queue consumer while exposing the data the
// engine requires.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time

	commit func(context.Context) error
}

// Clone returns a deep copy of the record so it can be safely handed to the
// processing goroutine. The bound commit function is shared with the clone.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Key = cloneBytes(r.Key)
	clone.Value = cloneBytes(r.Value)
	return &clone
}

// BindCommit attaches the queue acknowledgement for this record.
func (r *Record) BindCommit(commit func(context.Context) error) {
	r.commit = commit
}

// Commit acknowledges the record with the queue. Records without a bound
// commit function (tests, replays) acknowledge trivially.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commit == nil {
		return nil
	}
	return r.commit(ctx)
}

// Gateway performs exactly one provider send attempt per call.
type Gateway interface {
	Send(ctx context.Context, job *models.DeliveryJob, sender *models.PhoneNumber) (string, error)
}

// MessageStore persists message lifecycle transitions.
type MessageStore interface {
	MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error
}

// PhoneNumberStore resolves sender identities.
type PhoneNumberStore interface {
	Get(ctx context.Context, id string) (*models.PhoneNumber, error)
}

// UsageStore books billable usage per successful send.
type UsageStore interface {
	Record(ctx context.Context, tenantID, phoneNumberID string, day time.Time, costCents int) error
}

// DLQPublisher routes permanently failed jobs to the dead-letter topic.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Committer acknowledges a record once its job reached a terminal outcome.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// CommitFunc adapts a plain function to the Committer interface.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error {
	return f(ctx, record)
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Gateway       Gateway
	Messages      MessageStore
	PhoneNumbers  PhoneNumberStore
	Usage         UsageStore
	SenderLimiter ratelimit.Limiter
	GlobalLimiter ratelimit.Limiter
	DLQ           DLQPublisher
	Committer     Committer
	Metrics       metrics.Service
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Engine pulls the steps of one delivery attempt together: local admission,
// the provider call, state persistence, usage attribution, dead-lettering and
// the retry/backoff decision. Each job runs as one straight-line goroutine;
// the engine bounds how many run at once.
type Engine struct {
	cfg Config

	gateway       Gateway
	messages      MessageStore
	phoneNumbers  PhoneNumberStore
	usage         UsageStore
	senderLimiter ratelimit.Limiter
	globalLimiter ratelimit.Limiter
	dlq           DLQPublisher
	committer     Committer
	metrics       metrics.Service
	logger        zerolog.Logger

	sem *semaphore.Weighted
	now func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewEngine constructs an engine using the supplied configuration and
// collaborators. The configuration and dependencies are validated to prevent
// misconfiguration at startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("worker: max attempts must be >= 1")
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("worker: concurrency must be >= 1")
	}
	if cfg.JobMaxBytes < 0 {
		return nil, errors.New("worker: job max bytes cannot be negative")
	}
	if cfg.CostCentsPerMessage < 0 {
		return nil, errors.New("worker: cost per message cannot be negative")
	}
	if deps.Gateway == nil {
		return nil, errors.New("worker: gateway dependency is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("worker: message store dependency is required")
	}
	if deps.PhoneNumbers == nil {
		return nil, errors.New("worker: phone number store dependency is required")
	}
	if deps.Usage == nil {
		return nil, errors.New("worker: usage store dependency is required")
	}
	if deps.SenderLimiter == nil {
		return nil, errors.New("worker: sender limiter dependency is required")
	}
	if deps.Committer == nil {
		return nil, errors.New("worker: committer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	mtr := deps.Metrics
	if mtr == nil {
		mtr = metrics.NewNoop()
	}

	return &Engine{
		cfg:           cfg,
		gateway:       deps.Gateway,
		messages:      deps.Messages,
		phoneNumbers:  deps.PhoneNumbers,
		usage:         deps.Usage,
		senderLimiter: deps.SenderLimiter,
		globalLimiter: deps.GlobalLimiter,
		dlq:           deps.DLQ,
		committer:     deps.Committer,
		metrics:       mtr,
		logger:        logger,
		sem:           semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:           nowFunc,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// HandleRecord validates record size, parses the job payload, waits for the
// global dispatch window, and triggers asynchronous processing. It blocks
// while the configured concurrency is saturated, which is what backpressures
// the queue consumer.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}
	e.metrics.IncJobsConsumed()

	if e.cfg.JobMaxBytes > 0 && len(record.Value) > e.cfg.JobMaxBytes {
		err := fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.JobMaxBytes)
		e.rejectRecord(ctx, record, string(record.Key), nil, err)
		return
	}

	job, err := ParseJob(record.Value)
	if err != nil {
		messageID := string(record.Key)
		if job != nil && job.MessageID != "" {
			messageID = job.MessageID
		}
		e.rejectRecord(ctx, record, messageID, job, err)
		return
	}

	// Global dispatch ceiling: a second, coarser gate in front of the
	// per-sender limiter, applied at intake so it throttles total throughput
	// across all senders.
	if e.globalLimiter != nil {
		for {
			ok, admitErr := e.globalLimiter.Admit(ctx, "global")
			if admitErr != nil {
				e.logger.Warn().Err(admitErr).Msg("global limiter unavailable; admitting")
				break
			}
			if ok {
				break
			}
			e.metrics.IncThrottled("global")
			if !e.wait(ctx, globalGateDelay) {
				return
			}
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.logger.Warn().
			Str("message_id", job.MessageID).
			Err(err).
			Msg("shutdown before job could be scheduled")
		return
	}

	go e.processJob(ctx, record.Clone(), job)
}

// rejectRecord handles jobs that never reach the send pipeline: oversized or
// unparseable payloads. The failure is persisted when a message id is known,
// then the record is dead-lettered and acknowledged.
func (e *Engine) rejectRecord(ctx context.Context, record *Record, messageID string, job *models.DeliveryJob, cause error) {
	e.logger.Warn().
		Str("message_id", messageID).
		Err(cause).
		Msg("job rejected before dispatch")

	if messageID != "" {
		if err := e.messages.MarkFailed(ctx, messageID, ErrCodeValidation, cause.Error()); err != nil {
			e.logger.Error().Str("message_id", messageID).Err(err).Msg("failed to persist validation failure")
		}
	}

	now := e.now()
	dlqRec := models.DLQRecord{
		MessageID:     messageID,
		FailureType:   models.FailureTypeValidation,
		LastError:     cause.Error(),
		ErrorCode:     ErrCodeValidation,
		FirstFailedAt: now,
		LastAttemptAt: now,
		Payload:       cloneBytes(record.Value),
	}
	if job != nil {
		dlqRec.PhoneNumberID = job.PhoneNumberID
		dlqRec.To = job.To
	}
	e.publishDLQ(ctx, dlqRec)
	e.metrics.IncFailed("validation")
	e.commitRecord(ctx, record)
}

// processJob runs the full attempt loop for one job. Retries happen inside
// this goroutine, sequentially, so two attempts of the same job never
// overlap.
func (e *Engine) processJob(ctx context.Context, record *Record, job *models.DeliveryJob) {
	defer e.sem.Release(1)

	if ctx.Err() != nil {
		return
	}

	log := e.logger.With().
		Str("message_id", job.MessageID).
		Str("phone_number_id", job.PhoneNumberID).
		Logger()

	sender, err := e.phoneNumbers.Get(ctx, job.PhoneNumberID)
	if err != nil {
		if errors.Is(err, store.ErrPhoneNumberNotFound) {
			// Data-integrity error: the job references a sender that does not
			// exist. Not retryable.
			log.Error().Msg("sender identity not found")
			e.failPermanently(ctx, record, job, 1, ErrCodePhoneNumberNotFound,
				fmt.Sprintf("phone number %s not found", job.PhoneNumberID), models.FailureTypeInfrastructure)
			return
		}
		// Storage is unreachable. Leave the record uncommitted so the queue
		// redelivers it once the dependency recovers.
		log.Error().Err(err).Msg("sender identity lookup failed; leaving job for redelivery")
		return
	}

	attempt := 1
	firstFailedAt := time.Time{}

	for {
		admitted, admitErr := e.senderLimiter.Admit(ctx, sender.ID)
		if admitErr != nil {
			log.Warn().Err(admitErr).Msg("sender limiter unavailable; admitting")
			admitted = true
		}
		if !admitted {
			// Locally throttled. Persist the rejection like any other failure,
			// then reschedule with backoff; this is not a provider failure.
			e.metrics.IncThrottled("local")
			if firstFailedAt.IsZero() {
				firstFailedAt = e.now()
			}
			e.markFailed(ctx, log, job.MessageID, ErrCodeLocalRateLimit, "per-sender rate limit exceeded")

			if attempt >= e.cfg.MaxAttempts {
				log.Warn().Int("attempt", attempt).Msg("retry budget exhausted while locally throttled")
				e.deadLetter(ctx, job, record, attempt, ErrCodeLocalRateLimit,
					"per-sender rate limit exceeded", models.FailureTypeThrottled, firstFailedAt)
				e.metrics.IncFailed("throttled")
				e.commitRecord(ctx, record)
				return
			}
			if !e.backoff(ctx, log, attempt) {
				return
			}
			attempt++
			continue
		}

		start := e.now()
		providerMessageID, sendErr := e.gateway.Send(ctx, job, sender)
		duration := e.now().Sub(start)
		e.metrics.ObserveSendDuration(duration.Seconds())

		attemptLog := log.With().Int("attempt", attempt).Dur("duration", duration).Logger()

		if sendErr == nil {
			e.completeSend(ctx, attemptLog, record, job, sender, providerMessageID)
			return
		}

		if errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded) {
			attemptLog.Warn().Err(sendErr).Msg("send interrupted; leaving job for redelivery")
			return
		}

		if firstFailedAt.IsZero() {
			firstFailedAt = e.now()
		}

		var gwErr *gateway.GatewayError
		if !errors.As(sendErr, &gwErr) {
			// Transport or dependency failure, not a provider verdict.
			attemptLog.Error().Err(sendErr).Msg("send failed without provider response")
			e.failPermanently(ctx, record, job, attempt, gateway.UnknownErrorCode, sendErr.Error(), models.FailureTypeInfrastructure)
			return
		}

		// The failure is persisted before any retry decision so the message
		// row always reflects the latest attempt's outcome.
		e.markFailed(ctx, attemptLog, job.MessageID, gwErr.ErrorCode(), gwErr.Message)

		outcome := gateway.Classify(gwErr)
		attemptLog.Warn().
			Int("provider_code", gwErr.Code).
			Str("outcome", outcome.String()).
			Err(sendErr).
			Msg("provider rejected send")

		if !outcome.Retryable() {
			e.deadLetter(ctx, job, record, attempt, gwErr.ErrorCode(), gwErr.Message, models.FailureTypePermanent, firstFailedAt)
			e.metrics.IncFailed(outcome.String())
			e.commitRecord(ctx, record)
			return
		}

		e.metrics.IncThrottled("provider")
		if attempt >= e.cfg.MaxAttempts {
			attemptLog.Warn().Msg("retry budget exhausted; throttled job permanently failed")
			e.deadLetter(ctx, job, record, attempt, gwErr.ErrorCode(), gwErr.Message, models.FailureTypeThrottled, firstFailedAt)
			e.metrics.IncFailed("throttled")
			e.commitRecord(ctx, record)
			return
		}

		e.metrics.IncRetried()
		if !e.backoff(ctx, attemptLog, attempt) {
			return
		}
		attempt++
	}
}

// completeSend persists the sent transition, books usage and acknowledges the
// record. Storage errors past this point are logged rather than retried: the
// provider accepted the message and a second send would be a double-delivery.
func (e *Engine) completeSend(ctx context.Context, log zerolog.Logger, record *Record, job *models.DeliveryJob, sender *models.PhoneNumber, providerMessageID string) {
	sentAt := e.now()
	if err := e.messages.MarkSent(ctx, job.MessageID, providerMessageID, sentAt); err != nil {
		log.Error().Err(err).Msg("failed to persist sent transition")
	}
	if err := e.usage.Record(ctx, sender.TenantID, sender.ID, sentAt, e.cfg.CostCentsPerMessage); err != nil {
		log.Error().Err(err).Msg("failed to record usage")
	} else {
		e.metrics.IncUsageRecorded()
	}
	e.metrics.IncSent()
	log.Info().Str("whatsapp_message_id", providerMessageID).Msg("message sent")
	e.commitRecord(ctx, record)
}

// failPermanently persists the failure, dead-letters the job and acknowledges
// the record. Used for terminal outcomes that bypass the retry loop.
func (e *Engine) failPermanently(ctx context.Context, record *Record, job *models.DeliveryJob, attempt int, errorCode, errorMessage, failureType string) {
	e.markFailed(ctx, e.logger, job.MessageID, errorCode, errorMessage)
	e.deadLetter(ctx, job, record, attempt, errorCode, errorMessage, failureType, e.now())
	e.metrics.IncFailed(failureType)
	e.commitRecord(ctx, record)
}

func (e *Engine) markFailed(ctx context.Context, log zerolog.Logger, messageID, errorCode, errorMessage string) {
	if err := e.messages.MarkFailed(ctx, messageID, errorCode, errorMessage); err != nil {
		log.Error().
			Str("message_id", messageID).
			Str("error_code", errorCode).
			Err(err).
			Msg("failed to persist failed transition")
	}
}

func (e *Engine) deadLetter(ctx context.Context, job *models.DeliveryJob, record *Record, attempts int, errorCode, lastError, failureType string, firstFailedAt time.Time) {
	now := e.now()
	if firstFailedAt.IsZero() {
		firstFailedAt = now
	}
	e.publishDLQ(ctx, models.DLQRecord{
		MessageID:     job.MessageID,
		PhoneNumberID: job.PhoneNumberID,
		To:            job.To,
		FailureType:   failureType,
		Attempts:      attempts,
		LastError:     lastError,
		ErrorCode:     errorCode,
		FirstFailedAt: firstFailedAt,
		LastAttemptAt: now,
		Payload:       cloneBytes(record.Value),
	})
	e.metrics.IncDeadLettered(failureType)
}

func (e *Engine) publishDLQ(ctx context.Context, record models.DLQRecord) {
	if e.dlq == nil {
		return
	}
	if err := e.dlq.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("message_id", record.MessageID).
			Err(err).
			Msg("failed to publish dead-letter record")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}
	if err := e.committer.Commit(ctx, record); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("failed to commit record offset")
	}
}

// backoff waits the exponential delay for the given attempt. It returns false
// when the context was cancelled, in which case the record stays uncommitted
// for redelivery.
func (e *Engine) backoff(ctx context.Context, log zerolog.Logger, attempt int) bool {
	delay := e.computeBackoff(attempt)
	if delay > 0 {
		log.Info().Dur("backoff", delay).Msg("scheduling retry")
	}
	if !e.wait(ctx, delay) {
		log.Warn().Msg("shutdown while waiting for retry; leaving job for redelivery")
		return false
	}
	return true
}

func (e *Engine) computeBackoff(attempt int) time.Duration {
	if e.cfg.BaseBackoff <= 0 {
		return 0
	}

	multiplier := math.Pow(2, float64(attempt-1))
	raw := time.Duration(float64(e.cfg.BaseBackoff) * multiplier)
	if e.cfg.MaxBackoff > 0 && raw > e.cfg.MaxBackoff {
		raw = e.cfg.MaxBackoff
	}

	return e.fullJitter(raw)
}

func (e *Engine) fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	e.randMu.Lock()
	defer e.randMu.Unlock()

	return time.Duration(e.rnd.Int63n(int64(max) + 1))
}

func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Drain blocks until all in-flight jobs have finished or the context
// expires. Used during graceful shutdown.
func (e *Engine) Drain(ctx context.Context) error {
	if err := e.sem.Acquire(ctx, int64(e.cfg.Concurrency)); err != nil {
		return err
	}
	e.sem.Release(int64(e.cfg.Concurrency))
	return nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}
