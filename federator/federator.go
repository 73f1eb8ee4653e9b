package federator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pwang200/xbridge-witness/attestationdb"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/xchain"
)

// queueWaitSlice bounds the wait when the queue is empty; it covers the rare
// notification that lands between the drain and the wait.
const queueWaitSlice = time.Second

// Storage is what the federator needs from the attestation store.
type Storage interface {
	InsertClaim(ctx context.Context, dir xchain.Direction, row *attestationdb.ClaimRow) error
	InsertCreateAccount(ctx context.Context, dir xchain.Direction, row *attestationdb.CreateAccountRow) error
	HasClaimTx(ctx context.Context, dir xchain.Direction, txID string) (bool, error)
	HasCreateAccountTx(ctx context.Context, dir xchain.Direction, txID string) (bool, error)
	DeleteClaim(ctx context.Context, dir xchain.Direction, claimID uint64) error
}

// Submitter sends a command frame to one chain endpoint. Each chain listener
// satisfies it with its own wire client.
type Submitter interface {
	Send(cmd string, params map[string]interface{}) (uint32, error)
}

// Config carries the federator's own settings, cut out of the top-level
// configuration.
type Config struct {
	Bridge                    xchain.BridgeSpec
	LockingChainRewardAccount xchain.AccountID
	IssuingChainRewardAccount xchain.AccountID
	WitnessSubmit             bool
	SubmitAccount             xchain.AccountID
	SubmitSecret              string
	// MaxAttestations is the per-ledger batch size; a batch reaching it is
	// submitted immediately.
	MaxAttestations int
}

// Federator is the single-threaded event serializer: it consumes normalized
// bridge events, signs attestations, persists them, and accumulates
// per-direction submission batches.
type Federator struct {
	cfg        Config
	signingKey *xchain.SigningKey
	store      Storage
	logger     *log.Logger

	// destination-side submitters, set in Init (two-phase construction: the
	// listeners need the federator before they can register transport
	// callbacks).
	lockingChain Submitter
	issuingChain Submitter

	eventsMtx sync.Mutex
	events    []Event
	// notify carries the "queue went non-empty" signal; buffered so a push
	// never blocks on a busy loop.
	notify chan struct{}

	// gate keeps the loop from dispatching anything until the bootstrap has
	// run; closed by UnlockMainLoop.
	gateOnce sync.Once
	gate     chan struct{}

	requestStop atomic.Bool
	done        chan struct{}
	wg          sync.WaitGroup
	running     bool

	// batches are keyed by the direction of the observed transfer; they are
	// only touched from the loop goroutine.
	batches map[xchain.Direction]*xchain.AttestationBatch

	signFailures atomic.Uint64
}

// New builds a federator. Init must be called with both submitters before
// Start.
func New(cfg Config, signingKey *xchain.SigningKey, store Storage, logger *log.Logger) *Federator {
	if cfg.MaxAttestations <= 0 {
		cfg.MaxAttestations = 8
	}
	return &Federator{
		cfg:        cfg,
		signingKey: signingKey,
		store:      store,
		logger:     logger,
		events:     make([]Event, 0, 16),
		notify:     make(chan struct{}, 1),
		gate:       make(chan struct{}),
		done:       make(chan struct{}),
		batches: map[xchain.Direction]*xchain.AttestationBatch{
			xchain.LockingToIssuing: {Bridge: cfg.Bridge},
			xchain.IssuingToLocking: {Bridge: cfg.Bridge},
		},
	}
}

// Init wires the destination-side submitters.
func (f *Federator) Init(lockingChain, issuingChain Submitter) {
	f.lockingChain = lockingChain
	f.issuingChain = issuingChain
}

// Start spawns the loop goroutine.
func (f *Federator) Start() {
	if f.running {
		return
	}
	f.running = true
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.mainLoop()
	}()
}

// Stop requests the loop to exit, flushes pending batches, and waits for the
// goroutine. Safe to call when not started.
func (f *Federator) Stop() {
	if !f.running {
		return
	}
	f.requestStop.Store(true)
	close(f.done)
	f.wg.Wait()
	f.running = false
}

// Push enqueues an event. Thread-safe; called from listener callbacks.
func (f *Federator) Push(e Event) {
	f.eventsMtx.Lock()
	wasEmpty := len(f.events) == 0
	f.events = append(f.events, e)
	f.eventsMtx.Unlock()
	if wasEmpty {
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
}

// UnlockMainLoop opens the startup gate. Nothing is dispatched before this
// is called, which lets the bootstrap finish loading on-disk state and issue
// backfill subscriptions first.
func (f *Federator) UnlockMainLoop() {
	f.gateOnce.Do(func() { close(f.gate) })
}

// QueueLen reports the number of undispatched events.
func (f *Federator) QueueLen() int {
	f.eventsMtx.Lock()
	defer f.eventsMtx.Unlock()
	return len(f.events)
}

// GetInfo returns a liveness snapshot for server_info.
func (f *Federator) GetInfo() map[string]interface{} {
	return map[string]interface{}{
		"queued_events": f.QueueLen(),
		"sign_failures": f.signFailures.Load(),
	}
}

func (f *Federator) mainLoop() {
	select {
	case <-f.gate:
	case <-f.done:
		return
	}

	var local []Event
	for !f.requestStop.Load() {
		f.eventsMtx.Lock()
		local, f.events = f.events, local[:0]
		f.eventsMtx.Unlock()

		if len(local) == 0 {
			select {
			case <-f.notify:
			case <-f.done:
			case <-time.After(queueWaitSlice):
			}
			continue
		}

		for _, e := range local {
			f.onEvent(e)
		}
	}

	// flush whatever is still buffered before exiting
	f.submit(true, true)
	f.submit(false, true)
}

func (f *Federator) onEvent(e Event) {
	switch ev := e.(type) {
	case XChainCommitDetected:
		f.onCommitDetected(ev)
	case XChainAccountCreateCommitDetected:
		f.onAccountCreateCommitDetected(ev)
	case XChainTransferResult:
		f.onTransferResult(ev)
	case HeartbeatTimer:
		f.onHeartbeat()
	default:
		f.logger.Errorf("unknown event type %T", e)
	}
}

func (f *Federator) rewardAccount(wasLockingChainSend bool) xchain.AccountID {
	if wasLockingChainSend {
		return f.cfg.IssuingChainRewardAccount
	}
	return f.cfg.LockingChainRewardAccount
}

func (f *Federator) onCommitDetected(e XChainCommitDetected) {
	f.logger.Infof("commit detected: dir %s claimID %d tx %s ledger %d",
		e.Direction, e.ClaimID, e.TxHash, e.LedgerSeq)

	ctx := context.Background()
	wasLockingChainSend := e.Direction.WasLockingChainSend()
	txID := e.TxHash.Hex()

	seen, err := f.store.HasClaimTx(ctx, e.Direction, txID)
	if err != nil {
		f.logger.Errorf("checking claim tx %s: %v", txID, err)
		return
	}
	if seen {
		return
	}

	success := e.TxResult.IsSuccess()
	rewardAccount := f.rewardAccount(wasLockingChainSend)

	var signature []byte
	if success {
		if e.DeliveredAmount == nil {
			f.logger.Errorf("missing delivered amount in successful transfer, tx %s", txID)
		} else {
			msg := xchain.ClaimMessage(
				f.cfg.Bridge,
				e.SendingAccount,
				*e.DeliveredAmount,
				rewardAccount,
				wasLockingChainSend,
				e.ClaimID,
				e.OtherChainAccount,
			)
			signature, err = f.signingKey.Sign(msg)
			if err != nil {
				f.signFailures.Add(1)
				f.logger.Errorf("signing claim attestation for tx %s: %v", txID, err)
				return
			}
		}
	}

	row := &attestationdb.ClaimRow{
		ClaimID:        e.ClaimID,
		TxID:           txID,
		LedgerSeq:      e.LedgerSeq,
		Success:        success,
		Bridge:         f.cfg.Bridge.Serialize(),
		SendingAccount: e.SendingAccount,
		RewardAccount:  rewardAccount,
		PublicKey:      f.signingKey.Public(),
		Signature:      signature,
	}
	if e.DeliveredAmount != nil {
		var s xchain.Serializer
		s.WriteAmount(*e.DeliveredAmount)
		row.DeliveredAmt = s.Bytes()
	}
	if e.OtherChainAccount != nil {
		row.OtherChainAccount = e.OtherChainAccount.Bytes()
	}

	if err := f.store.InsertClaim(ctx, e.Direction, row); err != nil {
		if errors.Is(err, attestationdb.ErrAlreadyStored) {
			return
		}
		f.logger.Errorf("storing claim attestation for tx %s: %v", txID, err)
		return
	}

	if f.cfg.WitnessSubmit && signature != nil {
		batch := f.batches[e.Direction]
		batch.Claims = append(batch.Claims, xchain.AttestationClaim{
			PublicKey:           f.signingKey.Public(),
			Signature:           signature,
			SendingAccount:      e.SendingAccount,
			SendingAmount:       *e.DeliveredAmount,
			RewardAccount:       rewardAccount,
			WasLockingChainSend: wasLockingChainSend,
			ClaimID:             e.ClaimID,
			Destination:         e.OtherChainAccount,
		})
		f.submit(wasLockingChainSend, e.LedgerBoundary)
	}
}

func (f *Federator) onAccountCreateCommitDetected(e XChainAccountCreateCommitDetected) {
	f.logger.Infof("account create detected: dir %s createCount %d tx %s ledger %d",
		e.Direction, e.CreateCount, e.TxHash, e.LedgerSeq)

	ctx := context.Background()
	wasLockingChainSend := e.Direction.WasLockingChainSend()
	txID := e.TxHash.Hex()

	seen, err := f.store.HasCreateAccountTx(ctx, e.Direction, txID)
	if err != nil {
		f.logger.Errorf("checking create account tx %s: %v", txID, err)
		return
	}
	if seen {
		return
	}

	success := e.TxResult.IsSuccess()
	rewardAccount := f.rewardAccount(wasLockingChainSend)

	var signature []byte
	if success {
		if e.DeliveredAmount == nil {
			f.logger.Errorf("missing delivered amount in successful create transfer, tx %s", txID)
		} else {
			msg := xchain.CreateAccountMessage(
				f.cfg.Bridge,
				e.SendingAccount,
				*e.DeliveredAmount,
				e.RewardAmount,
				rewardAccount,
				wasLockingChainSend,
				e.CreateCount,
				e.Destination,
			)
			signature, err = f.signingKey.Sign(msg)
			if err != nil {
				f.signFailures.Add(1)
				f.logger.Errorf("signing create account attestation for tx %s: %v", txID, err)
				return
			}
		}
	}

	var rewardSer xchain.Serializer
	rewardSer.WriteAmount(e.RewardAmount)

	row := &attestationdb.CreateAccountRow{
		CreateCount:    e.CreateCount,
		TxID:           txID,
		LedgerSeq:      e.LedgerSeq,
		Success:        success,
		RewardAmt:      rewardSer.Bytes(),
		Bridge:         f.cfg.Bridge.Serialize(),
		SendingAccount: e.SendingAccount,
		RewardAccount:  rewardAccount,
		Destination:    e.Destination.Bytes(),
		PublicKey:      f.signingKey.Public(),
		Signature:      signature,
	}
	if e.DeliveredAmount != nil {
		var s xchain.Serializer
		s.WriteAmount(*e.DeliveredAmount)
		row.DeliveredAmt = s.Bytes()
	}

	if err := f.store.InsertCreateAccount(ctx, e.Direction, row); err != nil {
		if errors.Is(err, attestationdb.ErrAlreadyStored) {
			return
		}
		f.logger.Errorf("storing create account attestation for tx %s: %v", txID, err)
		return
	}

	if f.cfg.WitnessSubmit && signature != nil {
		batch := f.batches[e.Direction]
		batch.CreateAccounts = append(batch.CreateAccounts, xchain.AttestationCreateAccount{
			PublicKey:           f.signingKey.Public(),
			Signature:           signature,
			SendingAccount:      e.SendingAccount,
			SendingAmount:       *e.DeliveredAmount,
			RewardAmount:        e.RewardAmount,
			RewardAccount:       rewardAccount,
			WasLockingChainSend: wasLockingChainSend,
			CreateCount:         e.CreateCount,
			Destination:         e.Destination,
		})
		f.submit(wasLockingChainSend, e.LedgerBoundary)
	}
}

func (f *Federator) onTransferResult(e XChainTransferResult) {
	ctx := context.Background()
	if !e.TxResult.IsSuccess() {
		// keep the stored attestation so a later attempt can reuse it
		f.logger.Warnf("transfer result failure: dir %s claimID %d ter %d tx %s",
			e.Direction, e.ClaimID, e.TxResult, e.TxHash)
		return
	}
	if err := f.store.DeleteClaim(ctx, e.Direction, e.ClaimID); err != nil {
		if errors.Is(err, attestationdb.ErrNotFound) {
			f.logger.Debugf("transfer result for unknown claimID %d, dir %s", e.ClaimID, e.Direction)
			return
		}
		f.logger.Errorf("purging completed claim %d, dir %s: %v", e.ClaimID, e.Direction, err)
		return
	}
	f.logger.Infof("transfer complete: dir %s claimID %d", e.Direction, e.ClaimID)
}

func (f *Federator) onHeartbeat() {
	f.logger.Debug("heartbeat")
	f.submit(true, true)
	f.submit(false, true)
}

// submit flushes the batch of transfers observed on one side to the other
// side's chain. When flush is false the batch only goes out once it reaches
// the configured size; a ledger boundary (or heartbeat, or shutdown) forces
// out whatever is pending, split into ledger-sized chunks.
func (f *Federator) submit(fromLockingChain, flush bool) {
	if !f.cfg.WitnessSubmit {
		return
	}
	dir := xchain.DirectionFromLockingChainSend(fromLockingChain)
	batch := f.batches[dir]
	if batch.Size() == 0 {
		return
	}
	if !flush && batch.Size() < f.cfg.MaxAttestations {
		return
	}

	dst := f.issuingChain
	if !fromLockingChain {
		dst = f.lockingChain
	}
	if dst == nil {
		f.logger.Error("no submitter wired for direction ", dir)
		return
	}

	pending := *batch
	*batch = xchain.AttestationBatch{Bridge: f.cfg.Bridge}

	for _, chunk := range splitBatch(&pending, f.cfg.MaxAttestations) {
		txJSON := map[string]interface{}{
			"Account":                f.cfg.SubmitAccount.String(),
			"TransactionType":        "XChainAddAttestation",
			"XChainAttestationBatch": chunk.ToJSON(),
		}
		params := map[string]interface{}{
			"tx_json": txJSON,
			"secret":  f.cfg.SubmitSecret,
		}
		if _, err := dst.Send("submit", params); err != nil {
			f.logger.Errorf("submitting attestation batch, dir %s: %v", dir, err)
			// rows stay in the store; a later transfer result decides their fate
			continue
		}
		f.logger.Infof("submitted attestation batch: dir %s, %d claims, %d creates",
			dir, len(chunk.Claims), len(chunk.CreateAccounts))
	}
}

// splitBatch cuts a batch into chunks of at most max elements, keeping the
// per-ledger size bound when flushing at a boundary.
func splitBatch(b *xchain.AttestationBatch, max int) []*xchain.AttestationBatch {
	if b.Size() <= max {
		return []*xchain.AttestationBatch{b}
	}
	var out []*xchain.AttestationBatch
	cur := &xchain.AttestationBatch{Bridge: b.Bridge}
	for i := range b.Claims {
		if cur.Size() == max {
			out = append(out, cur)
			cur = &xchain.AttestationBatch{Bridge: b.Bridge}
		}
		cur.Claims = append(cur.Claims, b.Claims[i])
	}
	for i := range b.CreateAccounts {
		if cur.Size() == max {
			out = append(out, cur)
			cur = &xchain.AttestationBatch{Bridge: b.Bridge}
		}
		cur.CreateAccounts = append(cur.CreateAccounts, b.CreateAccounts[i])
	}
	if cur.Size() > 0 {
		out = append(out, cur)
	}
	return out
}
