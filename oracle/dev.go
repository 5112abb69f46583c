package oracle

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
)

// Submitter accepts a signed transaction for inclusion in a block.
// *core.Mempool satisfies it.
type Submitter interface {
	Add(tx *core.Transaction) error
}

// Dev is an in-process oracle for single-node development and integration
// tests. Each submitted request id is answered after a short delay with
// a signed oracle_callback transaction, the same path a production oracle
// uses, including out-of-order and delayed delivery.
type Dev struct {
	chainID string
	priv    crypto.PrivateKey
	from    string
	submit  Submitter
	delay   time.Duration
	log     *zap.Logger

	// Deliveries flow through one worker so callback nonces are assigned
	// in submission order; a fresh oracle account starts at nonce 0.
	queue chan string
	wg    sync.WaitGroup
	done  chan struct{}

	mu    sync.Mutex
	nonce uint64
	rng   *rand.Rand // nil → crypto/rand
}

// NewDev creates a Dev oracle signing callbacks with priv. A non-zero seed
// makes the delivered randomness reproducible.
func NewDev(chainID string, priv crypto.PrivateKey, submit Submitter, delay time.Duration, seed uint64, log *zap.Logger) *Dev {
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
		queue:   make(chan string, 256),
		done:    make(chan struct{}),
	}
	if seed != 0 {
		d.rng = rand.New(rand.NewPCG(seed, 0))
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Identity returns the pubkey hex the node must configure as its oracle role.
func (d *Dev) Identity() string { return d.from }

// Submit accepts requestID and schedules its callback.
func (d *Dev) Submit(_ context.Context, requestID string) error {
	select {
	case d.queue <- requestID:
	case <-d.done:
		return context.Canceled
	}
	d.log.Debug("dev oracle accepted request", zap.String("request_id", requestID))
	return nil
}

// Stop drains the delivery worker. Pending callbacks are dropped, which is
// exactly the "request that never resolves" case the chain must tolerate.
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

func (d *Dev) deliver(requestID string) {
	d.mu.Lock()
	value := d.randValue()
	nonce := d.nonce
	d.nonce++
	d.mu.Unlock()

	tx, err := core.NewTransaction(d.chainID, core.TxOracleCallback, d.from, nonce, 0,
		core.OracleCallbackPayload{RequestID: requestID, Value: value})
	if err != nil {
		d.log.Error("dev oracle build callback", zap.Error(err))
		return
	}
	tx.Sign(d.priv)
	if err := d.submit.Add(tx); err != nil {
		d.log.Warn("dev oracle submit callback",
			zap.String("request_id", requestID), zap.Error(err))
	}
}

func (d *Dev) randValue() uint64 {
	if d.rng != nil {
		return d.rng.Uint64()
	}
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return rand.Uint64()
	}
	return binary.BigEndian.Uint64(buf[:])
}
