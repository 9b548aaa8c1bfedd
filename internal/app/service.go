// Package service runs the refresh cycle: load the roster, ask the model for
// deltas once, apply them and write the document back.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/aura/internal/adapters/gateway"
	"github.com/okian/aura/internal/adapters/repository"
	"github.com/okian/aura/internal/domain/extract"
	"github.com/okian/aura/internal/domain/model"
	"github.com/okian/aura/internal/domain/prompt"
	"github.com/okian/aura/internal/domain/scoring"
	"github.com/okian/aura/pkg/logger"
	"github.com/okian/aura/pkg/metrics"
)

// Default cycle configuration constants.
const (
	defaultModel           = "gemini-2.5-flash-lite"
	defaultTimestampLayout = "02-01-2006 15:04:05 MST"

	// maxLoggedResponse bounds how much raw model text goes into one log record.
	maxLoggedResponse = 4000
)

// Outcome is how a cycle ended.
type Outcome string

const (
	// OutcomeSuccess means deltas were applied and the document was written.
	OutcomeSuccess Outcome = "success"
	// OutcomeSkipped means the roster was empty; only the timestamp was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDegraded means the model call or its response failed; only the
	// timestamp was written.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means nothing was written.
	OutcomeFailed Outcome = "failed"
)

// Report describes one finished cycle.
type Report struct {
	RunID    string
	Outcome  Outcome
	Entities int
	// Updated counts entities whose score moved.
	Updated  int
	Warnings []scoring.Warning

	// GatewayKind is set when the model call failed.
	GatewayKind string
	// Err is the cause of a degraded cycle. It is not returned as an error.
	Err error

	// Written is true when the document was persisted.
	Written     bool
	RefreshedAt string
	Duration    time.Duration
}

// Service drives refresh cycles.
type Service struct {
	store      repository.Store
	gateway    gateway.Gateway
	updater    *scoring.Updater
	model      string
	promptOpts []prompt.Option
	now        func() time.Time
	location   *time.Location
	layout     string
	lock       bool

	logger  logger.Logger
	metrics *metrics.Manager
}

// New constructs a Service. A store and a gateway must be supplied through
// options before RunCycle is called.
func New(opts ...Option) *Service {
	s := &Service{
		updater:  scoring.NewUpdater(),
		model:    defaultModel,
		now:      time.Now,
		location: time.UTC,
		layout:   defaultTimestampLayout,
		logger:   logger.Nop(),
		metrics:  metrics.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunCycle performs one refresh. It returns an error only when no document
// was written: the store could not be locked, loaded or saved. Model and
// response failures degrade the cycle to a timestamp-only write and are
// reported through Report.Err.
func (s *Service) RunCycle(ctx context.Context) (rep Report, err error) {
	started := time.Now()
	rep = Report{RunID: uuid.NewString(), Outcome: OutcomeFailed}
	log := s.logger.With(logger.String("run_id", rep.RunID))

	defer func() {
		rep.Duration = time.Since(started)
		s.metrics.RecordCycle(string(rep.Outcome), rep.Duration)
	}()

	if s.store == nil {
		return rep, ErrNoStore
	}
	if s.gateway == nil {
		return rep, ErrNoGateway
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		s.metrics.RecordStoreError("lock")
		log.Error(ctx, "roster store is locked", logger.Error(err))
		return rep, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			log.Warn(ctx, "failed to release roster lock", logger.Error(uerr))
		}
	}()

	doc, err := s.store.Load(ctx)
	if err != nil {
		s.metrics.RecordStoreError("load")
		log.Error(ctx, "failed to load roster", logger.Error(err))
		return rep, err
	}
	rep.Entities = len(doc.Entities)
	if dups := doc.DuplicateNames(); len(dups) > 0 {
		log.Warn(ctx, "roster has duplicate names; each receives the same delta",
			logger.Any("names", dups))
	}

	text, err := prompt.Build(doc.Names(), s.promptOpts...)
	switch {
	case errors.Is(err, prompt.ErrEmptyRoster):
		rep.Outcome = OutcomeSkipped
		log.Info(ctx, "roster is empty, skipping model call")
	case err != nil:
		return rep, fmt.Errorf("build prompt: %w", err)
	default:
		s.refresh(ctx, log, doc, text, &rep)
	}

	refreshed := s.now()
	doc.LastRefreshed = refreshed.In(s.location).Format(s.layout)

	if err := s.store.Save(ctx, doc); err != nil {
		rep.Outcome = OutcomeFailed
		s.metrics.RecordStoreError("persist")
		log.Error(ctx, "failed to persist roster", logger.Error(err))
		return rep, err
	}

	rep.Written = true
	rep.RefreshedAt = doc.LastRefreshed
	s.metrics.SetRoster(rep.Entities, rep.Updated)
	s.metrics.SetLastRefresh(refreshed)

	log.Info(ctx, "refresh cycle finished",
		logger.String("outcome", string(rep.Outcome)),
		logger.Int("entities", rep.Entities),
		logger.Int("updated", rep.Updated),
		logger.Int("warnings", len(rep.Warnings)),
		logger.String("last_refreshed", rep.RefreshedAt),
	)
	return rep, nil
}

// refresh calls the model once and applies the deltas to doc. On any failure
// doc is left untouched and rep is marked degraded.
func (s *Service) refresh(ctx context.Context, log logger.Logger, doc *model.Document, text string, rep *Report) {
	callStarted := time.Now()
	raw, err := s.gateway.Generate(ctx, gateway.Request{
		Model:      s.model,
		Prompt:     text,
		JSONOutput: true,
	})
	s.metrics.RecordGatewayLatency(time.Since(callStarted))
	if err != nil {
		err = gateway.Wrap(err)
		kind := gateway.Classify(err)
		rep.Outcome = OutcomeDegraded
		rep.GatewayKind = kind.String()
		rep.Err = err
		s.metrics.RecordGatewayError(kind.String())
		log.Error(ctx, "model call failed, keeping previous scores",
			logger.String("kind", kind.String()),
			logger.String("model", s.model),
			logger.Error(err),
		)
		return
	}

	deltas, err := extract.Extract(raw)
	if err != nil {
		reason := "unknown"
		var xerr *extract.Error
		if errors.As(err, &xerr) {
			reason = string(xerr.Reason)
		}
		rep.Outcome = OutcomeDegraded
		rep.Err = err
		s.metrics.RecordExtractionError(reason)
		log.Error(ctx, "model response has no usable delta mapping, keeping previous scores",
			logger.String("reason", reason),
			logger.String("raw_response", extract.Truncate(raw, maxLoggedResponse)),
		)
		return
	}
	log.Debug(ctx, "delta mapping extracted", logger.Int("names", deltas.Len()))
	if len(deltas.Collisions) > 0 {
		log.Warn(ctx, "model response repeats names differing only in case; first value kept",
			logger.Any("dropped_keys", deltas.Collisions))
	}

	res := s.updater.Apply(doc.Entities, deltas)
	for _, w := range res.Warnings {
		log.Warn(ctx, "non-numeric delta treated as zero",
			logger.String("entity", w.Entity),
			logger.Any("value", w.Value),
			logger.String("reason", w.Reason),
		)
	}
	if len(res.Missing) > 0 {
		log.Debug(ctx, "model returned no delta for some entities",
			logger.Int("count", len(res.Missing)),
			logger.Any("names", res.Missing),
		)
	}
	s.metrics.AddCoercionWarnings(len(res.Warnings))

	rep.Outcome = OutcomeSuccess
	rep.Updated = res.Changed()
	rep.Warnings = res.Warnings
}

// acquire takes the store lock when locking is enabled and supported.
func (s *Service) acquire(ctx context.Context) (func() error, error) {
	noop := func() error { return nil }
	if !s.lock {
		return noop, nil
	}
	locker, ok := s.store.(repository.Locker)
	if !ok {
		return noop, nil
	}
	return locker.Lock(ctx)
}

// Prompt loads the roster and renders the batch prompt without calling the
// model.
func (s *Service) Prompt(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", ErrNoStore
	}
	doc, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return prompt.Build(doc.Names(), s.promptOpts...)
}
