// Package relay bridges committed chain events to the external randomness
// oracle and reward-issuing services. Transaction handlers only record
// requests and emit events; the relay picks the chain-assigned ids up and
// performs the actual submissions. Only the proposing node runs a relay,
// so replicas re-executing the same block never contact the services twice.
package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/oracle"
	"github.com/hollowdex/wildchain/rewardsvc"
)

type jobKind int

const (
	jobRandomness jobKind = iota
	jobPull
)

type job struct {
	kind jobKind
	id   string
}

// Relay subscribes to throw_requested, spawn_requested and
// reward_pull_requested events and forwards each chain-assigned id to the
// corresponding service. Only events from blocks this node proposed are
// forwarded, so a request is submitted exactly once no matter how many
// nodes replay the block. Submissions run on a single worker so a slow
// service never blocks block production; a failed submission is reported
// as an operational alert event, never a state change.
type Relay struct {
	orc      oracle.Oracle
	issuer   rewardsvc.Issuer
	emitter  *events.Emitter
	self     string
	operator string
	log      *zap.Logger

	queue chan job
	wg    sync.WaitGroup
	done  chan struct{}
}

// New creates a Relay and subscribes it to emitter. self is this node's
// validator pubkey hex, matched against the block proposer on each event.
// orc and issuer may be nil; affected submissions then surface as alerts.
// operator is the recipient quoted on reward pulls.
func New(emitter *events.Emitter, orc oracle.Oracle, issuer rewardsvc.Issuer, self, operator string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		orc:      orc,
		issuer:   issuer,
		emitter:  emitter,
		self:     self,
		operator: operator,
		log:      log,
		queue:    make(chan job, 256),
		done:     make(chan struct{}),
	}
	emitter.Subscribe(events.EventThrowRequested, r.onRandomnessRequested)
	emitter.Subscribe(events.EventSpawnRequested, r.onRandomnessRequested)
	emitter.Subscribe(events.EventPullRequested, r.onPullRequested)
	r.wg.Add(1)
	go r.run()
	return r
}

// Stop drains the submission worker. Queued submissions are dropped; the
// affected requests simply never resolve, which the chain tolerates via
// the operator refund path.
func (r *Relay) Stop() {
	close(r.done)
	r.wg.Wait()
}

// mine reports whether ev came from a block this node proposed. Synced
// blocks were already relayed by their proposer.
func (r *Relay) mine(ev events.Event) bool {
	return ev.Proposer == "" || ev.Proposer == r.self
}

func (r *Relay) onRandomnessRequested(ev events.Event) {
	if !r.mine(ev) {
		return
	}
	id, ok := ev.Data["request_id"].(string)
	if !ok || id == "" {
		r.log.Error("randomness request event without request_id",
			zap.String("event", string(ev.Type)))
		return
	}
	r.enqueue(job{kind: jobRandomness, id: id})
}

func (r *Relay) onPullRequested(ev events.Event) {
	if !r.mine(ev) {
		return
	}
	id, ok := ev.Data["pull_id"].(string)
	if !ok || id == "" {
		r.log.Error("pull request event without pull_id")
		return
	}
	r.enqueue(job{kind: jobPull, id: id})
}

func (r *Relay) enqueue(j job) {
	select {
	case r.queue <- j:
	case <-r.done:
	default:
		r.log.Warn("relay queue full, dropping submission", zap.String("id", j.id))
	}
}

func (r *Relay) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case j := <-r.queue:
			r.submit(j)
		}
	}
}

func (r *Relay) submit(j job) {
	switch j.kind {
	case jobRandomness:
		if r.orc == nil {
			r.alert(events.EventOracleSubmitFailed, j.id, "no oracle configured")
			return
		}
		if err := r.orc.Submit(context.Background(), j.id); err != nil {
			r.log.Warn("oracle submission failed",
				zap.String("request_id", j.id), zap.Error(err))
			r.alert(events.EventOracleSubmitFailed, j.id, err.Error())
		}
	case jobPull:
		if r.issuer == nil {
			r.alert(events.EventIssuerSubmitFailed, j.id, "no issuer configured")
			return
		}
		if err := r.issuer.Pull(context.Background(), j.id, 1, r.operator); err != nil {
			r.log.Warn("reward pull submission failed",
				zap.String("pull_id", j.id), zap.Error(err))
			r.alert(events.EventIssuerSubmitFailed, j.id, err.Error())
		}
	}
}

func (r *Relay) alert(typ events.EventType, id, reason string) {
	r.emitter.Emit(events.Event{
		Type: typ,
		Data: map[string]any{"id": id, "reason": reason},
	})
}
