// Package reaper removes accounts whose email was never verified within the
// grace period, and purges expired one-time codes while it is at it.
package reaper

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/account"
	accountrepo "github.com/lumichess/account-service/internal/account/repo"
	"github.com/lumichess/account-service/internal/mailer"
	coderepo "github.com/lumichess/account-service/internal/verification/repo"
	"github.com/lumichess/account-service/pkg/utilities"
)

// Reaper sweeps on a fixed interval. Each sweep gets a snowflake id so its
// log lines can be correlated.
type Reaper struct {
	accounts *accountrepo.AccountRepo
	codes    *coderepo.CodeRepo
	mail     mailer.Sender
	logger   *zap.SugaredLogger

	Interval     time.Duration
	InitialDelay time.Duration
	GracePeriod  time.Duration
}

func New(db *sqlx.DB, mail mailer.Sender, logger *zap.SugaredLogger) *Reaper {
	return &Reaper{
		accounts:     accountrepo.NewAccountRepo(db),
		codes:        coderepo.NewCodeRepo(db),
		mail:         mail,
		logger:       logger,
		Interval:     time.Hour,
		InitialDelay: 10 * time.Second,
		GracePeriod:  account.VerificationGraceDays * 24 * time.Hour,
	}
}

// Run blocks until ctx is cancelled. A short initial delay lets the service
// finish starting before the first sweep.
func (r *Reaper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.InitialDelay):
	}
	r.Sweep(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep deletes stale unverified accounts and purges expired codes. Each
// deletion re-checks the staleness predicate, so an account verified after
// selection survives. Notification emails are best-effort and sent before
// the delete; a failed delete for one account does not stop the sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	log := r.logger.With("sweep_id", utilities.NewSnowflakeID())

	cutoff := time.Now().Add(-r.GracePeriod)
	stale, err := r.accounts.ListStaleUnverified(ctx, cutoff)
	if err != nil {
		log.Errorw("reaper list failed", "err", err)
		return
	}

	var removed int
	for _, a := range stale {
		msg := mailer.ReapedMessage(a.Firstname, account.VerificationGraceDays)
		if err := r.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
			log.Warnw("reaper notice email failed", "email", a.Email, "err", err)
		}
		ok, err := r.accounts.DeleteIfStillStale(ctx, a.ID, cutoff)
		if err != nil {
			log.Errorw("reaper delete failed", "user_id", a.ID, "err", err)
			continue
		}
		if ok {
			removed++
			log.Infow("unverified account removed", "user_id", a.ID, "email", a.Email)
		}
	}

	purged, err := r.codes.PurgeExpired(ctx)
	if err != nil {
		log.Errorw("expired code purge failed", "err", err)
	}

	if removed > 0 || purged > 0 {
		log.Infow("reaper sweep done", "accounts_removed", removed, "codes_purged", purged)
	}
}
