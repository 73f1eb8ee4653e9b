package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/pwang200/xbridge-witness/attestationdb"
	"github.com/pwang200/xbridge-witness/chainlistener"
	xbwdcommon "github.com/pwang200/xbridge-witness/common"
	"github.com/pwang200/xbridge-witness/config"
	"github.com/pwang200/xbridge-witness/federator"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/rpc"
	"github.com/pwang200/xbridge-witness/xchain"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func runCmd(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}

	log.Init(c.Log)
	log.Info("Starting witness daemon")

	keyType, err := xchain.ParseKeyType(c.SigningKeyType)
	if err != nil {
		log.Fatal(err)
	}
	signingKey, err := xchain.NewSigningKey(keyType, c.SigningKeySeed)
	if err != nil {
		log.Fatal("deriving signing key: ", err)
	}

	store, err := attestationdb.NewStore(log.WithFields("module", xbwdcommon.STORE), c.DBFile())
	if err != nil {
		log.Fatal("opening attestation store: ", err)
	}
	defer store.Close()

	fedCfg := federator.Config{
		Bridge:                    c.XChainBridge,
		LockingChainRewardAccount: c.LockingChainRewardAccount,
		IssuingChainRewardAccount: c.IssuingChainRewardAccount,
		WitnessSubmit:             c.WitnessSubmit,
		SubmitSecret:              c.SubmitSecret,
		MaxAttestations:           c.MaxAttestations,
	}
	if c.WitnessSubmit {
		submitAccount, err := xchain.ParseAccountID(c.SubmitAccount)
		if err != nil {
			log.Fatal("parsing submit account: ", err)
		}
		fedCfg.SubmitAccount = submitAccount
	}

	fed := federator.New(fedCfg, signingKey, store, log.WithFields("module", xbwdcommon.FEDERATOR))

	lockingListener := chainlistener.New(
		chainlistener.LockingChain, c.XChainBridge, fed,
		log.WithFields("module", xbwdcommon.LISTENER_LOCKING),
	)
	issuingListener := chainlistener.New(
		chainlistener.IssuingChain, c.XChainBridge, fed,
		log.WithFields("module", xbwdcommon.LISTENER_ISSUING),
	)
	fed.Init(lockingListener, issuingListener)

	stopCh := make(chan struct{})
	signalStop := func() {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}

	server := createRPC(c.RPC, store, fed, signalStop)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()
	group, _ := errgroup.WithContext(ctx)
	group.Go(server.Start)
	group.Go(func() error {
		heartbeatLoop(ctx, fed, c.HeartbeatInterval.Duration)
		return nil
	})

	fed.Start()
	lockingListener.Init(c.LockingChainEndpoint)
	issuingListener.Init(c.IssuingChainEndpoint)

	// nothing is preloaded from disk (the store is consulted per event), and
	// the listeners send their subscriptions from the connect hook; the gate
	// opens right away and does not wait for either connection
	fed.UnlockMainLoop()

	waitSignal(stopCh)

	log.Info("Stopping witness daemon")
	lockingListener.Shutdown()
	issuingListener.Shutdown()
	fed.Stop()
	if err := server.Stop(); err != nil {
		log.Error("stopping RPC server: ", err)
	}
	cancel()
	if err := group.Wait(); err != nil {
		log.Error(err)
	}

	return nil
}

func createRPC(
	cfg jRPC.Config,
	store *attestationdb.Store,
	fed *federator.Federator,
	signalStop func(),
) *jRPC.Server {
	logger := log.WithFields("module", xbwdcommon.RPC)
	services := []jRPC.Service{
		{
			Name: rpc.WITNESS,
			Service: rpc.NewWitnessEndpoints(
				logger,
				cfg.ReadTimeout.Duration,
				store,
				fed,
				signalStop,
			),
		},
	}

	return jRPC.NewServer(cfg, services, jRPC.WithLogger(logger.GetSugaredLogger()))
}

// heartbeatLoop injects the batch-flush heartbeat into the federator queue.
func heartbeatLoop(ctx context.Context, fed *federator.Federator, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fed.Push(federator.HeartbeatTimer{})
		}
	}
}

func waitSignal(stopCh <-chan struct{}) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-signals:
		log.Info("terminating on signal: ", sig)
	case <-stopCh:
		log.Info("terminating on stop request")
	}
}
