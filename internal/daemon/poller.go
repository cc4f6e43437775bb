package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/tabwarden/tabwarden/internal/browser"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/track"
)

// Poller drives the engine without browser push events: a slow tick for
// accrual and deadlines, and a fast active-tab poll that synthesizes
// tab_switch and navigation events from observed changes.
type Poller struct {
	cfg    *config.Config
	engine *track.Engine

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastTab  string
	lastURL  string
	havePrev bool
}

// NewPoller creates a poller. Start must be called to begin polling.
func NewPoller(cfg *config.Config, engine *track.Engine) *Poller {
	return &Poller{cfg: cfg, engine: engine}
}

func (p *Poller) tickInterval() time.Duration {
	sec := p.cfg.Tracking.TickSeconds
	if sec <= 0 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

func (p *Poller) pollInterval() time.Duration {
	ms := p.cfg.Tracking.PollMillis
	if ms <= 0 {
		ms = 2000
	}
	return time.Duration(ms) * time.Millisecond
}

// Start launches the tick and poll loops until Stop or ctx
// cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)
}

// Stop halts polling and waits for the loops to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	tick := time.NewTicker(p.tickInterval())
	poll := time.NewTicker(p.pollInterval())
	defer tick.Stop()
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := p.engine.Tick(ctx); err != nil {
				logger.Error().Err(err).Msg("Tick failed")
			}
		case <-poll.C:
			p.reconcile(ctx)
		}
	}
}

// reconcile compares the browser's active tab against the last observed
// one and feeds the difference to the engine as a sync event. The
// closed-tab check runs first so a session whose tab was removed ends
// as tab_closed, not as a forced_end caused by whatever tab gained
// focus.
func (p *Poller) reconcile(ctx context.Context) {
	tabs := p.engine.Tabs()

	if err := p.engine.ReapClosedTab(ctx); err != nil {
		logger.Error().Err(err).Msg("Closed-tab check failed")
	}

	tab, err := tabs.ActiveTab(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Active tab poll failed")
		return
	}
	if tab == nil || tab.ID == "" {
		p.havePrev = false
		return
	}

	source := p.classify(tab)
	p.lastTab = tab.ID
	p.lastURL = tab.URL
	p.havePrev = true

	if source == "" {
		return
	}
	if err := p.engine.SyncToActiveTab(ctx, tab, source); err != nil {
		logger.Error().Err(err).Str("source", string(source)).Msg("Tab sync failed")
	}
}

// classify maps an observed tab change to a sync source. No change
// means no event.
func (p *Poller) classify(tab *browser.Tab) track.Source {
	if !p.havePrev {
		return track.SourceUnknown
	}
	if tab.ID != p.lastTab {
		return track.SourceTabSwitch
	}
	if tab.URL != p.lastURL {
		return track.SourceNavigation
	}
	return ""
}
