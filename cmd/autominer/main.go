package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ore-autominer/internal/alertpush"
	"ore-autominer/internal/app/control"
	"ore-autominer/internal/bundle"
	"ore-autominer/internal/claims"
	"ore-autominer/internal/config"
	"ore-autominer/internal/events"
	"ore-autominer/internal/governor"
	"ore-autominer/internal/ledger"
	"ore-autominer/internal/logging"
	"ore-autominer/internal/mcpserver"
	"ore-autominer/internal/ore"
	"ore-autominer/internal/relay"
	"ore-autominer/internal/round"
	"ore-autominer/internal/scheduler"
	"ore-autominer/internal/solana"
	"ore-autominer/internal/store"
	httptransport "ore-autominer/internal/transport/http"
	"ore-autominer/internal/tracker"
	"ore-autominer/internal/wallet"
	"ore-autominer/internal/ws"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("autominer stopped")
	}
	log.Info().Msg("autominer stopped")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	rpc := solana.NewRPCClient(cfg.Chain.RPCURL,
		solana.WithTimeout(cfg.Chain.RPCTimeout),
		solana.WithMaxRetries(cfg.Chain.RPCMaxRetries),
		solana.WithRTTEstimator(solana.NewRTTEstimator(0.2)),
	)
	slots := solana.NewSlotSubscriber(cfg.Chain.WebsocketURL())
	go slots.Run(ctx)

	program, err := ore.NewProgram(cfg.Chain.ProgramID, cfg.Chain.OREMint)
	if err != nil {
		return err
	}
	oreClient := ore.NewClient(program, rpc)
	fetcher := round.NewFetcher(oreClient, rpc,
		round.WithSlotFeed(slots),
		round.WithSlotDuration(cfg.Scheduler.SlotDuration),
		round.WithTimeout(cfg.Chain.RPCTimeout),
	)

	var sender relay.Sender
	switch cfg.Chain.RelayMode {
	case config.RelayModeRPC:
		sender = relay.NewRPCSender(rpc)
	default:
		sender = relay.NewJitoSender(cfg.Chain.JitoURL, solana.WithTimeout(cfg.Chain.RPCTimeout))
	}
	tips := relay.NewTipOracle(cfg.Chain.TipFloorURL, cfg.Chain.TipDefault)

	hub := events.NewHub(cfg.Server.EventBufferSize)
	defer hub.Close()

	trk := tracker.New(st, rpc, oreClient, hub, tracker.Config{
		PollInterval:   cfg.Scheduler.ConfirmPollInterval,
		ConfirmTimeout: cfg.Scheduler.ConfirmTimeout,
		SettleTimeout:  cfg.Scheduler.SettleTimeout,
	})
	if err := trk.Reconcile(ctx); err != nil {
		return err
	}
	go trk.Run(ctx)

	submitter := bundle.NewSubmitter(bundle.Deps{
		Program:   program,
		Blockhash: rpc,
		Miners:    oreClient,
		Rows:      st,
		Sender:    sender,
		Tips:      tips,
		Tracker:   trk,
		Events:    hub,
	}, bundle.Config{
		ComputeUnitPrice: cfg.Chain.ComputeUnitPrice,
		TipFloor:         cfg.Chain.TipFloorLamports,
		Retries:          cfg.Scheduler.SubmitRetries,
		RetryBase:        cfg.Scheduler.SubmitRetryBase,
		AttemptTimeout:   cfg.Scheduler.SubmitAttemptTimeout,
	})

	wallets := wallet.NewManager(st, oreClient, cfg.Server.WalletPassphrase, cfg.Server.ReadyMinLamports)

	gov := governor.New(st, hub, nil)
	gov.SetRunnerFactory(func(sess store.Session) (governor.Runner, error) {
		signer, err := wallets.Keypair(context.Background(), sess.Wallet)
		if err != nil {
			return nil, err
		}
		return scheduler.NewRunner(sess, signer, scheduler.Deps{
			Fetcher:   fetcher,
			Governor:  gov,
			Submitter: submitter,
			Latency:   rpc.RTT(),
			Events:    hub,
		}, cfg.Scheduler), nil
	})
	defer gov.Shutdown()

	lock, closeLock, err := claimLock(cfg.Server.RedisURL)
	if err != nil {
		return err
	}
	defer closeLock()
	claimMgr := claims.NewManager(claims.Deps{
		Program:  program,
		Store:    st,
		Balances: oreClient,
		Chain:    rpc,
		Keys:     wallets,
		Lock:     lock,
		Events:   hub,
	}, claims.Config{
		FeePercent:       uint64(cfg.Server.ClaimFeePercent),
		ComputeUnitPrice: cfg.Chain.ComputeUnitPrice,
		PollInterval:     cfg.Scheduler.ConfirmPollInterval,
		ConfirmTimeout:   cfg.Scheduler.ConfirmTimeout,
	})
	defer claimMgr.Close()
	if _, err := claimMgr.Resume(ctx); err != nil {
		log.Warn().Err(err).Msg("resume pending claims")
	}

	pushCfg, err := alertpush.ConfigFromServer(cfg.Server)
	if err != nil {
		return err
	}
	pusher := alertpush.NewManager(pushCfg)
	pusher.Start(ctx, hub)

	svc := control.NewService(control.Deps{
		Sessions:     gov,
		Claims:       claimMgr,
		Wallets:      wallets,
		Rounds:       fetcher,
		Transactions: st,
		History:      ledger.New(st),
		DB:           st,
		RPC:          rpc,
	}, cfg.Chain.TipDefault)

	r := httptransport.NewRouter(httptransport.RouterDeps{
		Control:  svc,
		Hub:      hub,
		WS:       ws.NewServer(hub, ws.Config{}),
		MCP:      mcpserver.New(svc, version).Handler(),
		AdminKey: cfg.Server.AdminAPIKey,
	})
	httptransport.LogRoutes(r)

	if cfg.Server.ResumeOnStartup {
		if _, err := gov.ResumeActive(ctx); err != nil {
			log.Warn().Err(err).Msg("resume active sessions")
		}
	}

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Str("relay", cfg.Chain.RelayMode).Str("version", version).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	pusher.Wait()
	return nil
}

// claimLock uses Redis when configured so claim exclusion holds across
// processes.
func claimLock(redisURL string) (claims.Lock, func(), error) {
	if redisURL == "" {
		return claims.NewMemoryLock(), func() {}, nil
	}
	l, err := claims.NewRedisLockFromURL(redisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("claim lock backed by redis")
	return l, func() { _ = l.Close() }, nil
}
