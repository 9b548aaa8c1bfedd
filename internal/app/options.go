package service

import (
	"time"

	"github.com/okian/aura/internal/adapters/gateway"
	"github.com/okian/aura/internal/adapters/repository"
	"github.com/okian/aura/internal/domain/prompt"
	"github.com/okian/aura/internal/domain/scoring"
	"github.com/okian/aura/pkg/logger"
	"github.com/okian/aura/pkg/metrics"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the roster store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithGateway sets the model gateway.
func WithGateway(g gateway.Gateway) Option {
	return func(s *Service) {
		if g != nil {
			s.gateway = g
		}
	}
}

// WithUpdater replaces the score updater.
func WithUpdater(u *scoring.Updater) Option {
	return func(s *Service) {
		if u != nil {
			s.updater = u
		}
	}
}

// WithModel sets the model name sent to the gateway.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithPromptOptions passes options to the prompt builder.
func WithPromptOptions(opts ...prompt.Option) Option {
	return func(s *Service) {
		s.promptOpts = append(s.promptOpts, opts...)
	}
}

// WithClock replaces time.Now for the refresh timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimestamp sets the zone and layout of the refresh timestamp.
func WithTimestamp(loc *time.Location, layout string) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
		if layout != "" {
			s.layout = layout
		}
	}
}

// WithMetrics sets the metrics manager. Nil disables recording.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLock makes each cycle hold the store lock when the store supports it.
func WithLock(enabled bool) Option {
	return func(s *Service) {
		s.lock = enabled
	}
}
