package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/castellan/iamcore/internal/auth/bunadapter"
	"github.com/castellan/iamcore/internal/cqrs"
	"github.com/castellan/iamcore/internal/cqrs/handlers"
	"github.com/castellan/iamcore/internal/db/bunx"
	"github.com/castellan/iamcore/internal/enforcer"
	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/modelconfig"
	"github.com/castellan/iamcore/internal/policyadmin"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/castellan/iamcore/internal/principal"
	"github.com/castellan/iamcore/internal/repository"
	"github.com/castellan/iamcore/internal/rolecache"
	"github.com/castellan/iamcore/internal/telemetry"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the iamcore policy administration service",
	Long: `Starts the iamcore policy administration service: bootstraps the
database, Casbin enforcer, role cache, and command/query bus, then blocks
until terminated. Transport (RPC/HTTP) is out of scope; this command wires
the core the bus dispatches against.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		ruleRepo := repository.NewBunRuleRepository(db)
		modelRepo := repository.NewBunModelConfigRepository(db)
		tokenRepo := repository.NewBunTokenRepository(db)
		outboxRepo := repository.NewBunOutboxRepository(db)
		userRepo := repository.NewBunUserRepository(db)

		modelSvc := modelconfig.New(modelRepo, nil)

		casbinAdapter, err := bunadapter.NewAdapter(db)
		if err != nil {
			return fmt.Errorf("configure casbin adapter: %w", err)
		}

		rawEnforcer, err := enforcer.InitEnforcer(cfg.CasbinModelPath, casbinAdapter)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		loadBaseModel := func() (casbinmodel.Model, error) {
			return casbinmodel.NewModelFromFile(cfg.CasbinModelPath)
		}
		coord := enforcer.New(rawEnforcer, modelSvc, casbinAdapter, loadBaseModel)

		if enforcerMetrics, err := telemetry.NewEnforcerMetrics(); err != nil {
			log.Printf("enforcer metrics disabled: %v", err)
		} else {
			coord.WithMetrics(enforcerMetrics)
		}

		roleCache, err := rolecache.New(cfg.RedisAddr, cfg.RoleCacheKeyPrefix)
		if err != nil {
			return fmt.Errorf("connect to role cache: %w", err)
		}
		defer roleCache.Close()

		publisher := events.NewPublisher(outboxRepo)

		lookup := func(ctx context.Context, uid, domain string) ([]string, error) {
			page, err := ruleRepo.PageRelations(ctx, 1, 10000, repository.RelationFilter{
				ChildSubject: uid,
				Domain:       domain,
			})
			if err != nil {
				return nil, err
			}
			roles := make([]string, 0, len(page.Records))
			for _, tuple := range page.Records {
				roles = append(roles, policymapper.RelationFromPositional(tuple).ParentRole)
			}
			return roles, nil
		}

		signer := principal.NewTokenSigner(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
		// Held for the transport layer to call into; this command wires the
		// core but does not itself expose password-login/refresh endpoints.
		_ = principal.New(userRepo, tokenRepo, roleCache, lookup, publisher, signer)

		policyMutation := policyadmin.New(ruleRepo, coord, publisher)

		bus := cqrs.New()
		handlers.Register(
			bus,
			handlers.NewPolicyHandlers(policyMutation),
			handlers.NewPolicyQueryHandlers(ruleRepo),
			handlers.NewModelHandlers(modelSvc, coord, publisher),
			handlers.NewModelQueryHandlers(modelRepo, modelSvc),
			handlers.NewUserHandlers(userRepo),
		)

		if busMetrics, err := telemetry.NewBusMetrics(); err != nil {
			log.Printf("cqrs bus metrics disabled: %v", err)
		} else {
			bus.WithMetrics(busMetrics)
		}

		log.Printf("iamcore policy core ready")

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		sig := <-shutdown
		log.Printf("received signal %v, shutting down", sig)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
