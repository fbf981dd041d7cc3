package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Poller struct {
	interval   time.Duration
	quit       chan struct{}
	pollMethod func(ctx context.Context) error
}

func NewPoller(interval time.Duration, pollMethod func(ctx context.Context) error) *Poller {
	return &Poller{
		interval:   interval,
		quit:       make(chan struct{}),
		pollMethod: pollMethod,
	}
}

// Start runs the poll method on every tick until ctx is cancelled or Stop is
// called. The first run happens right away.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Msgf("Starting poller with interval %s", p.interval)

	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			log.Info().Msg("Poller stopped due to context cancellation")
			return
		case <-p.quit:
			log.Info().Msg("Poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	log.Debug().Msg("Executing poll method")
	if err := p.pollMethod(ctx); err != nil {
		log.Error().Err(err).Msg("Error polling")
	} else {
		log.Debug().Msg("Poll method executed successfully")
	}
}

func (p *Poller) Stop() {
	close(p.quit)
}
