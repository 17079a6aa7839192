// Package worker runs the background refresh sweeper. It keeps tokens warm
// ahead of their expiry so that mail-fetching consumers rarely hit a refresh
// on the hot path, and it notifies owners when a connection dies.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/afp-labs/mailgrant/internal/credentials"
	"github.com/afp-labs/mailgrant/internal/email"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/store/core"
	"github.com/afp-labs/mailgrant/internal/util"
)

// Config wires the sweeper.
type Config struct {
	Store    *credentials.Store
	Guard    *credentials.Guard
	Users    core.UserRepository
	Notifier *email.Notifier

	// Interval between sweeps.
	Interval time.Duration
	// Lookahead selects credentials expiring within this window. Should be
	// at least the guard's refresh skew, or the sweep warms nothing.
	Lookahead time.Duration

	Registerer prometheus.Registerer
}

// Sweeper periodically refreshes soon-to-expire credentials.
type Sweeper struct {
	cfg Config
	log *zap.Logger

	sweepsTotal    prometheus.Counter
	refreshedTotal prometheus.Counter
	failedTotal    prometheus.Counter
}

func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 10 * time.Minute
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	return &Sweeper{
		cfg: cfg,
		log: logger.Named("sweeper"),
		sweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "credential_sweeps_total",
			Help: "Sweep iterations completed.",
		}),
		refreshedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "credential_refreshes_total",
			Help: "Tokens refreshed ahead of expiry by the sweeper.",
		}),
		failedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "credential_refresh_failures_total",
			Help: "Sweeper refresh attempts that failed.",
		}),
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("sweeper started",
		logger.Duration(s.cfg.Interval),
		logger.String("lookahead", s.cfg.Lookahead.String()),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so operators can trigger it directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(s.cfg.Lookahead)
	creds, err := s.cfg.Store.ListExpiring(ctx, cutoff)
	if err != nil {
		s.log.Error("listing expiring credentials failed", logger.Err(err))
		return
	}
	s.sweepsTotal.Inc()
	if len(creds) == 0 {
		return
	}

	s.log.Debug("sweeping credentials", logger.Count(len(creds)))
	for _, cred := range creds {
		if ctx.Err() != nil {
			return
		}
		s.warm(ctx, cred)
	}
}

func (s *Sweeper) warm(ctx context.Context, cred *core.Credential) {
	// The lookahead is wider than the guard skew, so some swept credentials
	// come back without a refresh. Count only the ones the guard will
	// actually refresh.
	stale := !time.Now().UTC().Add(s.cfg.Guard.Skew()).Before(cred.TokenExpiresAt)

	_, err := s.cfg.Guard.ValidToken(ctx, cred)
	if err == nil {
		if stale {
			s.refreshedTotal.Inc()
		}
		return
	}

	s.failedTotal.Inc()
	if !errors.Is(err, credentials.ErrTokenRefresh) {
		s.log.Warn("sweep refresh error",
			logger.CredentialID(cred.ID),
			logger.Err(err))
		return
	}

	// The guard deactivates only dead grants; tell the owner those need a
	// fresh authorization.
	if !errors.Is(err, credentials.ErrInactive) || s.cfg.Notifier == nil {
		return
	}
	user, uerr := s.cfg.Users.GetByID(ctx, cred.UserID)
	if uerr != nil {
		s.log.Error("owner lookup for notice failed",
			logger.UserID(cred.UserID),
			logger.Err(uerr))
		return
	}
	if nerr := s.cfg.Notifier.ReauthorizationRequired(user.Email, cred.EmailAddress, cred.Provider); nerr != nil {
		s.log.Error("reauthorization notice failed",
			logger.UserID(cred.UserID),
			logger.Err(nerr))
		return
	}
	s.log.Info("reauthorization notice sent",
		logger.UserID(cred.UserID),
		logger.Email(util.MaskEmail(cred.EmailAddress)),
	)
}
