// Command seed-db prepares a development database: it runs migrations, loads
// a small demo catalog, gives the demo shopper a delivery address and prints
// bearer tokens for the shopper and an admin.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/identity"
	"github.com/xenking/nursery-kart/internal/storage/postgres"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discount(s string) decimal.NullDecimal { return decimal.NewNullDecimal(price(s)) }

var demoCatalog = []product.Product{
	{ID: "boston-fern", Slug: "boston-fern", Name: "Boston Fern", Category: "plants", Type: "indoor", Price: price("499"), DiscountPrice: discount("399")},
	{ID: "snake-plant", Slug: "snake-plant", Name: "Snake Plant", Category: "plants", Type: "indoor", Price: price("349")},
	{ID: "money-plant", Slug: "money-plant", Name: "Money Plant", Category: "plants", Type: "indoor", Price: price("199"), DiscountPrice: discount("149")},
	{ID: "areca-palm", Slug: "areca-palm", Name: "Areca Palm", Category: "plants", Type: "outdoor", Price: price("899")},
	{ID: "clay-pot-8", Slug: "clay-pot-8", Name: "Clay Pot 8in", Category: "pots", Price: price("150")},
	{ID: "ceramic-pot-6", Slug: "ceramic-pot-6", Name: "Ceramic Pot 6in", Category: "pots", Price: price("299"), DiscountPrice: discount("249")},
	{ID: "hanging-planter", Slug: "hanging-planter", Name: "Hanging Planter", Category: "planters", Price: price("450")},
	{ID: "potting-mix-5kg", Slug: "potting-mix-5kg", Name: "Potting Mix 5kg", Category: "accessories", Price: price("220")},
}

func main() {
	var (
		databaseURL string
		jwtSecret   string
		userID      string
		tokenTTL    time.Duration
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "token signing secret (or NURSERY_JWT_SECRET env)")
	flag.StringVar(&userID, "user", "demo-shopper", "demo shopper id")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("NURSERY_JWT_SECRET")
	}
	if jwtSecret == "" {
		lg.Fatal("jwt secret is required: set --jwt-secret or NURSERY_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, userID); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	if err := printTokens(identity.NewVerifier(jwtSecret), userID, tokenTTL); err != nil {
		lg.Fatal("Issue tokens", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, userID string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, p := range demoCatalog {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Catalog seeded", zap.Int("products", len(demoCatalog)))

	saved, err := postgres.NewAddressRepository(pool).Replace(ctx, userID, []address.Address{{
		ID:      "home",
		Label:   "Home",
		Name:    "Demo Shopper",
		Line1:   "12 Garden Road",
		City:    "Pune",
		State:   "MH",
		Pincode: "411001",
		Phone:   "9000000000",
	}})
	if err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	lg.Info("Addresses seeded", zap.String("user_id", userID), zap.Int("count", len(saved)))
	return nil
}

func printTokens(v *identity.Verifier, userID string, ttl time.Duration) error {
	shopper, err := v.Issue(userID, "", ttl)
	if err != nil {
		return err
	}
	admin, err := v.Issue("demo-admin", identity.RoleAdmin, ttl)
	if err != nil {
		return err
	}
	fmt.Printf("NURSERY_TOKEN=%s\n", shopper)
	fmt.Printf("NURSERY_ADMIN_TOKEN=%s\n", admin)
	return nil
}
