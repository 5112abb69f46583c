package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/relay"
)

type submission struct {
	id        string
	amount    uint32
	recipient string
}

type fakeOracle struct {
	got chan string
	err error
}

func (o *fakeOracle) Submit(_ context.Context, requestID string) error {
	o.got <- requestID
	return o.err
}

type fakeIssuer struct {
	got chan submission
	err error
}

func (i *fakeIssuer) Pull(_ context.Context, pullID string, amount uint32, recipient string) error {
	i.got <- submission{id: pullID, amount: amount, recipient: recipient}
	return i.err
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestRelayForwardsRandomnessRequests(t *testing.T) {
	emitter := events.NewEmitter(nil)
	orc := &fakeOracle{got: make(chan string, 2)}
	r := relay.New(emitter, orc, nil, "self", "op", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type: events.EventThrowRequested,
		Data: map[string]any{"request_id": "req-throw"},
	})
	if got := waitFor(t, orc.got, "throw submission"); got != "req-throw" {
		t.Errorf("submitted id: got %q want req-throw", got)
	}

	emitter.Emit(events.Event{
		Type: events.EventSpawnRequested,
		Data: map[string]any{"request_id": "req-spawn"},
	})
	if got := waitFor(t, orc.got, "spawn submission"); got != "req-spawn" {
		t.Errorf("submitted id: got %q want req-spawn", got)
	}
}

func TestRelayForwardsPulls(t *testing.T) {
	emitter := events.NewEmitter(nil)
	issuer := &fakeIssuer{got: make(chan submission, 1)}
	r := relay.New(emitter, nil, issuer, "self", "operator-key", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type: events.EventPullRequested,
		Data: map[string]any{"pull_id": "pull-1"},
	})

	got := waitFor(t, issuer.got, "pull submission")
	if got.id != "pull-1" || got.amount != 1 || got.recipient != "operator-key" {
		t.Errorf("pull submission: %+v", got)
	}
}

// A failed submission surfaces as an alert event and nothing else; the
// chain state the request lives in was already committed.
func TestRelaySubmitFailureEmitsAlert(t *testing.T) {
	emitter := events.NewEmitter(nil)
	orc := &fakeOracle{got: make(chan string, 1), err: errors.New("oracle down")}
	alerts := make(chan events.Event, 1)
	emitter.Subscribe(events.EventOracleSubmitFailed, func(ev events.Event) { alerts <- ev })

	r := relay.New(emitter, orc, nil, "self", "op", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type: events.EventThrowRequested,
		Data: map[string]any{"request_id": "req-1"},
	})

	ev := waitFor(t, alerts, "oracle alert")
	if ev.Data["id"] != "req-1" || ev.Data["reason"] != "oracle down" {
		t.Errorf("alert: %+v", ev.Data)
	}
}

func TestRelayIssuerFailureEmitsAlert(t *testing.T) {
	emitter := events.NewEmitter(nil)
	issuer := &fakeIssuer{got: make(chan submission, 1), err: errors.New("issuer down")}
	alerts := make(chan events.Event, 1)
	emitter.Subscribe(events.EventIssuerSubmitFailed, func(ev events.Event) { alerts <- ev })

	r := relay.New(emitter, nil, issuer, "self", "op", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type: events.EventPullRequested,
		Data: map[string]any{"pull_id": "pull-1"},
	})

	ev := waitFor(t, alerts, "issuer alert")
	if ev.Data["id"] != "pull-1" || ev.Data["reason"] != "issuer down" {
		t.Errorf("alert: %+v", ev.Data)
	}
}

// A validator syncing a block some other validator proposed must not
// re-submit that block's requests; the proposer already did.
func TestRelayIgnoresForeignBlocks(t *testing.T) {
	emitter := events.NewEmitter(nil)
	orc := &fakeOracle{got: make(chan string, 2)}
	r := relay.New(emitter, orc, nil, "self", "op", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type:     events.EventThrowRequested,
		Proposer: "other-validator",
		Data:     map[string]any{"request_id": "req-foreign"},
	})
	emitter.Emit(events.Event{
		Type:     events.EventThrowRequested,
		Proposer: "self",
		Data:     map[string]any{"request_id": "req-own"},
	})

	if got := waitFor(t, orc.got, "own-block submission"); got != "req-own" {
		t.Errorf("submitted id: got %q want req-own", got)
	}
	select {
	case got := <-orc.got:
		t.Errorf("foreign-block request must not be submitted, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayMissingServicesAlert(t *testing.T) {
	emitter := events.NewEmitter(nil)
	alerts := make(chan events.Event, 2)
	emitter.Subscribe(events.EventOracleSubmitFailed, func(ev events.Event) { alerts <- ev })
	emitter.Subscribe(events.EventIssuerSubmitFailed, func(ev events.Event) { alerts <- ev })

	r := relay.New(emitter, nil, nil, "self", "op", nil)
	defer r.Stop()

	emitter.Emit(events.Event{
		Type: events.EventThrowRequested,
		Data: map[string]any{"request_id": "req-1"},
	})
	ev := waitFor(t, alerts, "missing-oracle alert")
	if ev.Type != events.EventOracleSubmitFailed {
		t.Errorf("alert type: %v", ev.Type)
	}

	emitter.Emit(events.Event{
		Type: events.EventPullRequested,
		Data: map[string]any{"pull_id": "pull-1"},
	})
	ev = waitFor(t, alerts, "missing-issuer alert")
	if ev.Type != events.EventIssuerSubmitFailed {
		t.Errorf("alert type: %v", ev.Type)
	}
}
