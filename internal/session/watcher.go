package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/observability"
	"token-manager-dashboard/internal/solana"
)

// watcherRetryDelay is the pause between failed subscribe attempts.
const watcherRetryDelay = 10 * time.Second

// watcher subscribes to token manager program logs on one cluster and
// invalidates that cluster's sessions on every successful transaction.
type watcher struct {
	cluster string
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (r *Registry) ensureWatcher(env environment.Environment) {
	r.mu.Lock()
	if _, ok := r.watchers[env.Label]; ok {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	w := &watcher{cluster: env.Label, cancel: cancel, done: make(chan struct{})}
	r.watchers[env.Label] = w
	r.mu.Unlock()

	log := r.log.With().Str("cluster", env.Label).Str("endpoint", env.WSEndpoint).Logger()
	go func() {
		defer close(w.done)
		r.watch(ctx, env, log)
	}()
}

func (w *watcher) stop() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// watch dials and subscribes until ctx ends, retrying after failures.
func (r *Registry) watch(ctx context.Context, env environment.Environment, log zerolog.Logger) {
	for {
		err := r.watchOnce(ctx, env, log)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", watcherRetryDelay).Msg("log subscription ended")

		select {
		case <-ctx.Done():
			return
		case <-time.After(watcherRetryDelay):
		}
	}
}

type droppedCounter interface {
	Dropped() uint64
}

func (r *Registry) watchOnce(ctx context.Context, env environment.Environment, log zerolog.Logger) error {
	client, err := r.cfg.DialWS(ctx, env.WSEndpoint)
	if err != nil {
		return err
	}
	defer client.Close()

	notifications, err := client.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []solana.PublicKey{solana.TokenManagerProgramID},
	})
	if err != nil {
		return err
	}
	log.Info().Msg("subscribed to token manager program logs")

	counter, _ := client.(droppedCounter)
	var reported uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return solana.ErrClientClosed
			}
			if counter != nil {
				if dropped := counter.Dropped(); dropped > reported {
					observability.RecordWSDropped(dropped - reported)
					reported = dropped
				}
			}
			if n.Failed {
				continue
			}
			triggered := r.Invalidate(env.Label)
			log.Debug().Str("signature", n.Signature).Uint64("slot", n.Slot).Int("triggered", triggered).Msg("program transaction")
		}
	}
}
