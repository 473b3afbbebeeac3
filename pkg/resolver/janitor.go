package resolver

import (
	"context"
	"time"

	"github.com/MrCodeEU/facefolio/pkg/metrics"
	"github.com/MrCodeEU/facefolio/pkg/session"
)

// pruneGrace is how much longer than the session TTL an orphaned scratch
// file is kept before it is pruned.
const pruneGrace = 10 * time.Minute

// Janitor drops expired sessions and prunes scratch files nobody can reach.
type Janitor struct {
	svc *Service
	ttl time.Duration
	now func() time.Time
}

// NewJanitor creates a janitor for sessions that live for ttl.
func NewJanitor(svc *Service, ttl time.Duration) *Janitor {
	return &Janitor{svc: svc, ttl: ttl, now: time.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one cleanup pass and returns how many sessions expired.
func (j *Janitor) Sweep() int {
	if j.ttl <= 0 {
		return 0
	}
	now := j.now()

	expired := 0
	if sweeper, ok := j.svc.sessions.(session.Sweeper); ok {
		for _, sess := range sweeper.Sweep(now) {
			j.svc.retire(sess)
			expired++
		}
	}
	if expired > 0 {
		metrics.SessionsExpired.Add(float64(expired))
		j.svc.log.Infof("Expired %d session(s)", expired)
	}

	// Registries that expire keys themselves (Redis) leave their files behind.
	if _, err := j.svc.scratch.Prune(now.Add(-(j.ttl + pruneGrace))); err != nil {
		j.svc.log.Warnf("Scratch prune failed: %v", err)
	}
	return expired
}
