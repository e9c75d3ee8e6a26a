// Package connectivity tracks whether the remote store is reachable and
// announces transitions.
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"nexuspos/backend/internal/logging"
)

const (
	TopicOnline  = "connectivity:online"
	TopicOffline = "connectivity:offline"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	online       atomic.Bool
	bus          EventBus.Bus
	pinger       Pinger
	probeTimeout time.Duration
	logger       *zap.Logger
}

func New(pinger Pinger, initiallyOnline bool, logger *zap.Logger) *Monitor {
	m := &Monitor{
		bus:          EventBus.New(),
		pinger:       pinger,
		probeTimeout: 3 * time.Second,
		logger:       logging.Named(logger, "connectivity"),
	}
	m.online.Store(initiallyOnline)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the current state. Handlers run synchronously, and only when
// the state actually changes.
func (m *Monitor) Set(online bool) {
	if !m.online.CompareAndSwap(!online, online) {
		return
	}
	if online {
		m.logger.Info("remote reachable")
		m.bus.Publish(TopicOnline)
		return
	}
	m.logger.Warn("remote unreachable, working offline")
	m.bus.Publish(TopicOffline)
}

// Probe pings the remote store and updates the state from the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	if err != nil {
		m.logger.Debug("probe failed", zap.Error(err))
	}
	m.Set(err == nil)
	return err == nil
}

func (m *Monitor) OnOnline(fn func()) error {
	return m.bus.Subscribe(TopicOnline, fn)
}

func (m *Monitor) OnOffline(fn func()) error {
	return m.bus.Subscribe(TopicOffline, fn)
}
