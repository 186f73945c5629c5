// Command storefront is the shopper-side client of the nursery API. It keeps
// a guest cart while signed out, merges it on sign-in, edits the cart line by
// line and drives checkout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/client"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/gueststore"
	"github.com/xenking/nursery-kart/internal/identity"
)

// Config is read from NURSERY_ variables, .env files and storefront.yaml.
type Config struct {
	APIURL string `default:"http://localhost:8080" usage:"Nursery API base URL" env:"API_URL"`
	Token  string `usage:"Bearer token of the signed-in shopper; empty means signed out"`
	// Guest is "memory" or "sqlite:<path>".
	Guest string `default:"sqlite:nursery-guest.db" usage:"Guest cart store"`
	Debug bool   `default:"false" usage:"Log at debug level"`
	Retry client.RetryPolicy
}

func loadConfig() (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "NURSERY",
		SkipFlags: true,
		Files:     []string{"storefront.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// openGuestStore opens the store named by dsn.
func openGuestStore(ctx context.Context, dsn string) (cart.GuestStore, func() error, error) {
	if dsn == "memory" {
		return gueststore.NewMemory(), func() error { return nil }, nil
	}
	path, ok := strings.CutPrefix(dsn, "sqlite:")
	if !ok || path == "" {
		return nil, nil, errors.Errorf("unknown guest store %q", dsn)
	}
	s, err := gueststore.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		usage()
		return errors.Errorf("unknown command %q", name)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lg, err := newLogger(cfg.Debug)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = lg.Sync() }()
	ctx = zctx.Base(ctx, lg)

	guest, closeGuest, err := openGuestStore(ctx, cfg.Guest)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeGuest(); err != nil {
			lg.Warn("Close guest store", zap.Error(err))
		}
	}()

	api, err := client.New(client.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Retry:   cfg.Retry,
	}, otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		return errors.Wrap(err, "create api client")
	}

	// A token that does not decode means signed out.
	userID, _ := identity.UserIDFromToken(cfg.Token)
	if userID != "" {
		ctx = zctx.With(ctx, zap.String("user_id", userID))
	}

	return cmd.run(ctx, &shop{
		api:    api,
		guest:  guest,
		userID: userID,
		out:    os.Stdout,
	}, args)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: storefront <command> [args]")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].help)
	}
}
