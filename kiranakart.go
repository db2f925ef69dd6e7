// Package kiranakart wires the storefront state layer into a single
// embeddable application: catalog, cart, orders, wallet, auth,
// notifications, wishlist, and support tickets over a local database.
package kiranakart

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rahulmehra/kiranakart/internal/auth"
	"github.com/rahulmehra/kiranakart/internal/cart"
	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/internal/orders"
	"github.com/rahulmehra/kiranakart/internal/products"
	"github.com/rahulmehra/kiranakart/internal/tickets"
	"github.com/rahulmehra/kiranakart/internal/users"
	"github.com/rahulmehra/kiranakart/internal/wishlist"
	"github.com/rahulmehra/kiranakart/pkg/config"
	"github.com/rahulmehra/kiranakart/pkg/db"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
	"github.com/rahulmehra/kiranakart/pkg/metrics"
	"github.com/rahulmehra/kiranakart/pkg/redis"
	"github.com/rahulmehra/kiranakart/pkg/seed"
	"github.com/rahulmehra/kiranakart/pkg/session"
)

// App is the assembled application. Construct it once with Bootstrap and
// share it; every service on it is safe for the embedding process to call
// directly.
type App struct {
	Config config.Config
	Logger *logger.Logger

	Auth          auth.Service
	Users         users.Service
	Products      products.Service
	Cart          cart.Service
	Wishlist      wishlist.Service
	Orders        orders.Service
	Tickets       tickets.Service
	Notifications notifications.Service
	Sessions      *session.Manager

	dbClient    *db.Client
	redisClient *redis.Client
}

// Options tunes bootstrap. The zero value loads config from the
// environment and registers metrics on the default registerer.
type Options struct {
	// Config overrides environment loading when non-nil.
	Config *config.Config
	// Registerer receives the order metrics; nil uses the default.
	Registerer prometheus.Registerer
	// Catalog overrides the seed data installed on reset; nil uses the
	// built-in catalog.
	Catalog *seed.Catalog
}

// Bootstrap loads configuration, opens the database, applies migrations
// and the seed reset, then wires every service. Callers own Close.
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	logg := logger.New(logger.Options{
		ServiceName: "kiranakart",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}

	if err := seed.Migrate(dbClient.DB()); err != nil {
		dbClient.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "run migrations")
	}

	catalog := seed.DefaultCatalog()
	if opts.Catalog != nil {
		catalog = *opts.Catalog
	}
	if cfg.Seed.ResetOnBoot {
		if err := seed.Reset(ctx, dbClient.DB(), catalog); err != nil {
			dbClient.Close()
			return nil, err
		}
	}

	// Session tokens and the flash slot live in redis when configured,
	// otherwise in process memory.
	var (
		redisClient *redis.Client
		tokenStore  session.TokenStore
		flashStore  notifications.FlashStore
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			dbClient.Close()
			return nil, err
		}
		tokenStore = redisClient
		flashStore = notifications.NewRedisFlash(redisClient, cfg.Flash.TTL)
	} else {
		tokenStore = session.NewMemoryStore()
		flashStore = notifications.NewMemoryFlash(cfg.Flash.TTL)
	}

	app, err := assemble(cfg, logg, dbClient, tokenStore, flashStore, opts.Registerer)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		dbClient.Close()
		return nil, err
	}
	app.redisClient = redisClient

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "application bootstrapped")
	return app, nil
}

func assemble(
	cfg config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	tokenStore session.TokenStore,
	flashStore notifications.FlashStore,
	registerer prometheus.Registerer,
) (*App, error) {
	gdb := dbClient.DB()

	sessionManager, err := session.NewManager(tokenStore, cfg.Session.TTL())
	if err != nil {
		return nil, err
	}

	usersRepo := users.NewRepository(gdb)
	notificationsRepo := notifications.NewRepository(gdb)
	productsRepo := products.NewRepository(gdb)
	cartRepo := cart.NewRepository(gdb)
	wishlistRepo := wishlist.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	ticketsRepo := tickets.NewRepository(gdb)

	// The preference source is the users service itself; wire the
	// dispatcher first against a late-bound indirection.
	prefs := &prefsProxy{}
	notificationsSvc, err := notifications.NewService(notificationsRepo, prefs, flashStore)
	if err != nil {
		return nil, err
	}

	usersSvc, err := users.NewService(usersRepo, dbClient, notificationsSvc, sessionManager, logg)
	if err != nil {
		return nil, err
	}
	prefs.source = usersSvc

	authSvc, err := auth.NewService(usersRepo, sessionManager, cfg.Session, cfg.Password, cfg.Auth, logg)
	if err != nil {
		return nil, err
	}

	productsSvc, err := products.NewService(productsRepo, usersRepo, dbClient, notificationsSvc, logg)
	if err != nil {
		return nil, err
	}

	cartSvc, err := cart.NewService(cartRepo, productsSvc, notificationsSvc, logg)
	if err != nil {
		return nil, err
	}

	wishlistSvc, err := wishlist.NewService(wishlistRepo, productsSvc)
	if err != nil {
		return nil, err
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ordersSvc, err := orders.NewService(
		ordersRepo, cartSvc, usersSvc, dbClient, notificationsSvc,
		metrics.NewOrderMetrics(registerer), logg,
	)
	if err != nil {
		return nil, err
	}

	ticketsSvc, err := tickets.NewService(ticketsRepo, notificationsSvc)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:        cfg,
		Logger:        logg,
		Auth:          authSvc,
		Users:         usersSvc,
		Products:      productsSvc,
		Cart:          cartSvc,
		Wishlist:      wishlistSvc,
		Orders:        ordersSvc,
		Tickets:       ticketsSvc,
		Notifications: notificationsSvc,
		Sessions:      sessionManager,
		dbClient:      dbClient,
	}, nil
}

// Close releases the database and redis handles.
func (a *App) Close() error {
	var firstErr error
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			firstErr = err
		}
	}
	if a.dbClient != nil {
		if err := a.dbClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// prefsProxy breaks the users ↔ notifications construction cycle.
type prefsProxy struct {
	source notifications.PrefsSource
}

func (p *prefsProxy) PrefsFor(ctx context.Context, userID uuid.UUID) (models.NotificationPrefs, error) {
	return p.source.PrefsFor(ctx, userID)
}
