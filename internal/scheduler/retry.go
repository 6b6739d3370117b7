package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/smthngslv/mycelia/internal/ctxlog"
)

// retryBaseDelay and retryMaxDelay bound the exponential backoff goRetry
// applies between attempts against an unavailable Broker or Storage Adapter.
const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// nextBackoff doubles delay up to retryMaxDelay and jitters it by up to
// 20%, so a fleet of schedulers retrying the same outage doesn't
// synchronize on the same wall-clock instant.
func nextBackoff(attempt int) time.Duration {
	delay := retryBaseDelay << attempt
	if delay <= 0 || delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 5))
	return delay + jitter
}

// goRetry runs fn in a background goroutine tracked by s.retryWG, retrying
// with exponential backoff until it succeeds or s.bgCtx is cancelled (by
// Shutdown). fn's error is expected to be transient infrastructure trouble
// (BrokerUnavailableError, StorageUnavailableError) — goRetry itself has no
// opinion on the error's shape, it simply treats non-nil as "try again".
func (s *Scheduler) goRetry(logCtx context.Context, op string, fn func(ctx context.Context) error) {
	s.retryWG.Add(1)
	go func() {
		defer s.retryWG.Done()
		for attempt := 0; ; attempt++ {
			if err := fn(s.bgCtx); err == nil {
				return
			} else if attempt == 0 {
				ctxlog.FromContext(logCtx).Warn("retrying after infrastructure error", "op", op, "error", err)
			}

			select {
			case <-s.bgCtx.Done():
				return
			case <-time.After(nextBackoff(attempt)):
			}
		}
	}()
}
