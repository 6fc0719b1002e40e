// Package maintenance runs background housekeeping on the shared store.
package maintenance

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"smsgate/internal/storage"
	logx "smsgate/pkg/logx"
)

const defaultSchedule = "@every 5m"

// Service prunes expired dedup records and stale rate windows on a cron
// schedule. The stores already treat expired rows as absent, so pruning is
// purely about keeping the tables small.
type Service struct {
	log   logx.Logger
	store storage.Store
	cron  *cron.Cron
}

// New accepts standard cron expressions and "@every ..." forms.
func New(store storage.Store, schedule string, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "maintenance")),
		store: store,
		cron:  cron.New(),
	}
	spec := strings.TrimSpace(schedule)
	if spec == "" {
		spec = defaultSchedule
	}
	if _, err := s.cron.AddFunc(spec, s.prune); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Start() { s.cron.Start() }

// Stop halts scheduling and waits for an in-flight prune to finish.
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := s.store.PruneExpired(ctx)
	if err != nil {
		s.log.Warn("prune failed", logx.Err(err))
		return
	}
	if removed > 0 {
		s.log.Debug("pruned expired rows", logx.Int64("removed", removed))
	}
}
