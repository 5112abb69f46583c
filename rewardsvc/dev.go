package rewardsvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
)

// Submitter accepts a signed transaction for inclusion in a block.
// *core.Mempool satisfies it.
type Submitter interface {
	Add(tx *core.Transaction) error
}

// Dev is an in-process reward issuer for single-node development. Each pull
// is answered after a short delay with a reward_delivery transaction
// carrying a freshly minted reward id.
type Dev struct {
	chainID string
	priv    crypto.PrivateKey
	from    string
	submit  Submitter
	delay   time.Duration
	log     *zap.Logger

	queue chan string // pull ids awaiting delivery, one worker keeps nonces ordered
	wg    sync.WaitGroup
	done  chan struct{}

	mu    sync.Mutex
	nonce uint64
}

// NewDev creates a Dev issuer signing deliveries with priv.
func NewDev(chainID string, priv crypto.PrivateKey, submit Submitter, delay time.Duration, log *zap.Logger) *Dev {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dev{
		chainID: chainID,
		priv:    priv,
		from:    priv.Public().Hex(),
		submit:  submit,
		delay:   delay,
		log:     log,
		queue:   make(chan string, 64),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Identity returns the pubkey hex the node must configure as its issuer role.
func (d *Dev) Identity() string { return d.from }

// Pull accepts pullID and schedules the delivery.
func (d *Dev) Pull(_ context.Context, pullID string, amount uint32, recipient string) error {
	select {
	case d.queue <- pullID:
	case <-d.done:
		return context.Canceled
	}
	d.log.Debug("dev issuer accepted pull",
		zap.String("pull_id", pullID),
		zap.Uint32("amount", amount),
		zap.String("recipient", recipient))
	return nil
}

// Stop drains the delivery worker; undelivered pulls stay in flight forever,
// mirroring a real issuer outage.
func (d *Dev) Stop() {
	close(d.done)
	d.wg.Wait()
}

func (d *Dev) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case id := <-d.queue:
			select {
			case <-time.After(d.delay):
			case <-d.done:
				return
			}
			d.deliver(id)
		}
	}
}

func (d *Dev) deliver(pullID string) {
	d.mu.Lock()
	nonce := d.nonce
	d.nonce++
	d.mu.Unlock()

	tx, err := core.NewTransaction(d.chainID, core.TxRewardDelivery, d.from, nonce, 0,
		core.RewardDeliveryPayload{PullID: pullID, RewardID: uuid.NewString()})
	if err != nil {
		d.log.Error("dev issuer build delivery", zap.Error(err))
		return
	}
	tx.Sign(d.priv)
	if err := d.submit.Add(tx); err != nil {
		d.log.Warn("dev issuer submit delivery",
			zap.String("pull_id", pullID), zap.Error(err))
	}
}
