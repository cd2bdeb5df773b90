// main wires the protocol deployment: governance, ledger, vault, kernel,
// fee sink and identity registry, plus the HTTP transport. Business logic
// lives in the internal service packages.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	accesshandler "github.com/agirails/actp-kernel-sub001/internal/access/handler"
	accessmodels "github.com/agirails/actp-kernel-sub001/internal/access/models"
	accessservice "github.com/agirails/actp-kernel-sub001/internal/access/service"
	accessstore "github.com/agirails/actp-kernel-sub001/internal/access/store"
	escrowhandler "github.com/agirails/actp-kernel-sub001/internal/escrow/handler"
	escrowservice "github.com/agirails/actp-kernel-sub001/internal/escrow/service"
	escrowstore "github.com/agirails/actp-kernel-sub001/internal/escrow/store"
	feesinkhandler "github.com/agirails/actp-kernel-sub001/internal/feesink/handler"
	feesinkservice "github.com/agirails/actp-kernel-sub001/internal/feesink/service"
	feesinkstore "github.com/agirails/actp-kernel-sub001/internal/feesink/store"
	identityhandler "github.com/agirails/actp-kernel-sub001/internal/identity/handler"
	identityservice "github.com/agirails/actp-kernel-sub001/internal/identity/service"
	identitystore "github.com/agirails/actp-kernel-sub001/internal/identity/store"
	jwttoken "github.com/agirails/actp-kernel-sub001/internal/jwt_token"
	kernelhandler "github.com/agirails/actp-kernel-sub001/internal/kernel/handler"
	kernelmetrics "github.com/agirails/actp-kernel-sub001/internal/kernel/metrics"
	kernelservice "github.com/agirails/actp-kernel-sub001/internal/kernel/service"
	kernelstore "github.com/agirails/actp-kernel-sub001/internal/kernel/store"
	"github.com/agirails/actp-kernel-sub001/internal/ledger"
	"github.com/agirails/actp-kernel-sub001/internal/platform/config"
	"github.com/agirails/actp-kernel-sub001/internal/platform/httpserver"
	"github.com/agirails/actp-kernel-sub001/internal/platform/logger"
	platformmetrics "github.com/agirails/actp-kernel-sub001/internal/platform/metrics"
	"github.com/agirails/actp-kernel-sub001/internal/platform/postgres"
	platformredis "github.com/agirails/actp-kernel-sub001/internal/platform/redis"
	httptransport "github.com/agirails/actp-kernel-sub001/internal/transport/http"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
	auditpublisher "github.com/agirails/actp-kernel-sub001/pkg/platform/audit/publisher"
	auditkafka "github.com/agirails/actp-kernel-sub001/pkg/platform/audit/publishers/kafka"
	auditmemory "github.com/agirails/actp-kernel-sub001/pkg/platform/audit/store/memory"
)

func main() {
	configPath := flag.String("config", os.Getenv("ACTP_CONFIG"), "path to YAML config")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit trail. Kafka when brokers are configured, the in-process store
	// otherwise.
	var auditStore audit.Store
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaStore, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithLogger(log),
		auditpublisher.WithAsyncBuffer(256))
	defer publisher.Close()

	// Protocol roles. Missing config seeds fresh identities so a dev
	// deployment boots without ceremony.
	authority := partyFromConfig(cfg.Kernel.Authority, log, "authority")
	operator := partyFromConfig(cfg.Sink.Operator, log, "sink operator")
	kernelID := id.NewParty()
	vaultAccount := id.NewParty()
	sinkAccount := id.NewParty()
	vaultID := id.VaultID(id.NewParty())

	// Governance.
	accessState, err := accessmodels.NewAccessState(authority, cfg.Kernel.FeeRateBps)
	if err != nil {
		return err
	}
	accessState.FeeRecipient = sinkAccount
	access := accessservice.New(accessstore.NewInMemory(accessState),
		accessservice.WithLogger(log),
		accessservice.WithAuditPublisher(publisher))

	// Value substrate and escrow vault.
	funds := ledger.NewInMemory()
	vault := escrowservice.NewVault(vaultID, vaultAccount, escrowstore.NewInMemory(), funds, kernelID,
		escrowservice.WithLogger(log))

	// Transaction store: postgres when configured.
	var txStore kernelservice.Store
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		txStore = kernelstore.NewPostgres(db)
	} else {
		txStore = kernelstore.NewInMemory()
	}

	kernel := kernelservice.New(kernelID, txStore, access,
		kernelservice.WithLogger(log),
		kernelservice.WithAuditPublisher(publisher),
		kernelservice.WithMetrics(kernelmetrics.New()))
	kernel.RegisterVault(vaultID, vault)

	// Fee sink: redis-backed withdrawal ledger when configured.
	var sinkLedger feesinkservice.LedgerStore
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sinkLedger = feesinkstore.NewRedisLedger(redisClient.Client, "actp:sink:ledger")
	} else {
		sinkLedger = feesinkstore.NewInMemoryLedger()
	}
	sink := feesinkservice.New(sinkAccount, kernelID, operator, cfg.Sink.DailyCap,
		sinkLedger, feesinkstore.NewInMemoryArchive(), funds, kernel, access,
		feesinkservice.WithLogger(log),
		feesinkservice.WithAuditPublisher(publisher))
	kernel.RegisterSink(sinkAccount, sink)

	// Identity registry.
	registry := identityservice.New(id.NewParty(), identitystore.NewInMemory(),
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher))

	// Transport.
	validator := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	escrowReads := escrowhandler.New()
	escrowReads.RegisterVault(vaultID, vault)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Metrics:   platformmetrics.New(),
		Validator: validator,
		Server:    cfg.Server,
		Public:    []httptransport.Registrar{escrowReads},
		Protected: []httptransport.Registrar{
			kernelhandler.New(kernel, log),
			accesshandler.New(access, log),
			feesinkhandler.New(sink, log),
			identityhandler.New(registry, log),
		},
		Health: func(r *http.Request) error {
			if redisClient != nil {
				if err := redisClient.Health(r.Context()); err != nil {
					return err
				}
			}
			if db != nil {
				return db.PingContext(r.Context())
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server",
			slog.String("addr", cfg.Server.Addr),
			slog.String("authority", authority.String()),
			slog.String("vault", vaultID.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// partyFromConfig parses a configured role identity, minting one for dev
// deployments when absent.
func partyFromConfig(raw string, log *slog.Logger, role string) id.PartyID {
	if raw == "" {
		party := id.NewParty()
		log.Warn("no identity configured, generated one",
			slog.String("role", role), slog.String("party", party.String()))
		return party
	}
	party, err := id.ParseParty(raw)
	if err != nil {
		log.Error("invalid configured identity", slog.String("role", role), slog.Any("error", err))
		os.Exit(1)
	}
	return party
}
