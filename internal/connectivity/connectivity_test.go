package connectivity

import (
	"context"
	"errors"
	"testing"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(_ context.Context) error {
	return p.err
}

func TestSetFiresOnlyOnTransitions(t *testing.T) {
	m := New(nil, false, nil)

	onlineCalls, offlineCalls := 0, 0
	if err := m.OnOnline(func() { onlineCalls++ }); err != nil {
		t.Fatalf("subscribe online: %v", err)
	}
	if err := m.OnOffline(func() { offlineCalls++ }); err != nil {
		t.Fatalf("subscribe offline: %v", err)
	}

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)
	m.Set(true)

	if onlineCalls != 2 {
		t.Fatalf("expected 2 online transitions, got %d", onlineCalls)
	}
	if offlineCalls != 1 {
		t.Fatalf("expected 1 offline transition, got %d", offlineCalls)
	}
	if !m.Online() {
		t.Fatalf("expected monitor to be online")
	}
}

func TestProbeFollowsPinger(t *testing.T) {
	pinger := &stubPinger{err: errors.New("dial tcp: refused")}
	m := New(pinger, true, nil)

	if m.Probe(context.Background()) {
		t.Fatalf("expected probe to report offline")
	}
	if m.Online() {
		t.Fatalf("expected offline state after failed probe")
	}

	reconnected := false
	_ = m.OnOnline(func() { reconnected = true })
	pinger.err = nil
	if !m.Probe(context.Background()) {
		t.Fatalf("expected probe to report online")
	}
	if !reconnected {
		t.Fatalf("expected online handler to run on reconnect")
	}
}
