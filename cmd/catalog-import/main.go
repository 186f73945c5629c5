// Command catalog-import loads product feeds into the catalog. Each feed is
// a JSON-lines file, optionally gzip-compressed, with one product per line.
// Feeds are given oldest first: when a product appears in several feeds the
// last feed wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/storage/postgres"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxLineSize   = 1 << 20
	upsertWorkers = 4
	progressEvery = 10_000
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
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
	if flag.NArg() == 0 {
		lg.Fatal("no feed files given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, flag.Args()); err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}
	lg.Info("Catalog import completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, feeds []string) error {
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: one bloom filter of product ids per feed.
	lg.Info("Pass 1: indexing feeds", zap.Int("feeds", len(feeds)))
	filters, err := buildFilters(ctx, lg, feeds)
	if err != nil {
		return errors.Wrap(err, "index feeds")
	}

	// Pass 2: products no later feed may override are final right away.
	lg.Info("Pass 2: resolving products")
	products, err := resolve(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "resolve products")
	}
	lg.Info("Products resolved", zap.Int("count", len(products)))
	if len(products) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return upsert(ctx, lg, postgres.NewProductRepository(pool), products)
}

func buildFilters(ctx context.Context, lg *zap.Logger, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count int
			if err := streamFeed(ctx, path, func(p product.Product) {
				filter.AddString(p.ID)
				count++
			}); err != nil {
				return errors.Wrapf(err, "index feed %d", i+1)
			}
			lg.Info("Feed indexed", zap.String("feed", path), zap.Int("products", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// feedResult is what pass 2 found in one feed.
type feedResult struct {
	// final products appear in no later feed.
	final []product.Product
	// candidates may be overridden by a later feed; last occurrence per id.
	candidates map[string]product.Product
}

// resolve returns every product once, taken from the last feed carrying it.
func resolve(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]product.Product, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			res := feedResult{candidates: make(map[string]product.Product)}
			if err := streamFeed(ctx, path, func(p product.Product) {
				if inLater(filters, i, p.ID) {
					res.candidates[p.ID] = p
					return
				}
				res.final = append(res.final, p)
			}); err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(results), nil
}

// merge keeps a final product as is and, for each candidate id, the copy from
// the last feed that really has it. Bloom false positives make a product a
// candidate without a later copy; it is then taken from its own feed.
func merge(results []feedResult) []product.Product {
	var out []product.Product
	taken := make(map[string]bool)
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		// Walk backwards so the last line of a feed wins.
		for j := len(r.final) - 1; j >= 0; j-- {
			p := r.final[j]
			if taken[p.ID] {
				continue
			}
			taken[p.ID] = true
			out = append(out, p)
		}
		for id, p := range r.candidates {
			if taken[id] {
				continue
			}
			taken[id] = true
			out = append(out, p)
		}
	}
	return out
}

func inLater(filters []*bloom.BloomFilter, idx int, id string) bool {
	for _, f := range filters[idx+1:] {
		if f.TestString(id) {
			return true
		}
	}
	return false
}

func upsert(ctx context.Context, lg *zap.Logger, repo product.Repository, products []product.Product) error {
	lg.Info("Writing products", zap.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertWorkers)
	for i, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			if (i+1)%progressEvery == 0 {
				lg.Info("Write progress", zap.Int("written", i+1), zap.Int("total", len(products)))
			}
			return nil
		})
	}
	return g.Wait()
}

// streamFeed calls fn for each product in the feed at path. Blank lines are
// skipped; a malformed line fails the feed.
func streamFeed(ctx context.Context, path string, fn func(p product.Product)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		p, err := wire.DecodeProduct(jx.DecodeBytes(data))
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		fn(p)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
