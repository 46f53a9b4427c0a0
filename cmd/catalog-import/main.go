// Command catalog-import loads product feeds into the catalog. Feeds are
// gzipped CSV files (sku,name,price,category,stock); files are parsed
// concurrently and a bloom filter drops SKUs already accepted from an
// earlier feed, so the first feed listing a SKU wins.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001

	upsertProductSQL = `INSERT INTO products (id, name, price, category, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			stock = EXCLUDED.stock`
)

type productRow struct {
	SKU      string
	Name     string
	Price    decimal.Decimal
	Category string
	Stock    int
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one feed file is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("parsing feeds", slog.Int("files", len(files)))

	rowsByFile := make([][]productRow, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFeed(gctx, i, f, rowsByFile))
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	// Deduplicate across feeds in feed order. The filter may rarely report a
	// fresh SKU as seen; the fallback map keeps the result exact.
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	accepted := make(map[string]struct{})
	var rows []productRow
	for _, fileRows := range rowsByFile {
		for _, row := range fileRows {
			if seen.TestString(row.SKU) {
				if _, ok := accepted[row.SKU]; ok {
					continue
				}
			}
			seen.AddString(row.SKU)
			accepted[row.SKU] = struct{}{}
			rows = append(rows, row)
		}
	}

	slog.Info("unique products found", slog.Int("count", len(rows)))
	if len(rows) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeProducts(ctx, pool, rows)
}

// parseFeed reads one gzipped CSV feed into rowsByFile[idx].
func parseFeed(ctx context.Context, idx int, path string, rowsByFile [][]productRow) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(bufio.NewReader(f))
		if err != nil {
			return errors.Wrapf(err, "gzip reader for %s", path)
		}
		defer gz.Close()

		reader := csv.NewReader(gz)
		reader.FieldsPerRecord = 5

		var (
			rows  []productRow
			count int
		)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}

			row, err := parseRecord(record)
			if err != nil {
				slog.Warn("skipping malformed row",
					slog.String("file", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			rows = append(rows, row)
			count++
		}

		slog.Info("feed parsed", slog.String("file", path), slog.Int("rows", count))

		rowsByFile[idx] = rows
		return nil
	}
}

func parseRecord(record []string) (productRow, error) {
	price, err := decimal.NewFromString(record[2])
	if err != nil {
		return productRow{}, errors.Wrap(err, "price")
	}
	stock, err := strconv.Atoi(record[4])
	if err != nil {
		return productRow{}, errors.Wrap(err, "stock")
	}
	if record[0] == "" || stock < 0 {
		return productRow{}, errors.New("invalid sku or stock")
	}
	return productRow{
		SKU:      record[0],
		Name:     record[1],
		Price:    price,
		Category: record[3],
		Stock:    stock,
	}, nil
}

// writeProducts upserts rows with a small worker pool.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, rows []productRow) error {
	slog.Info("upserting products", slog.Int("count", len(rows)))

	var (
		mu      sync.Mutex
		written int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, row := range rows {
		g.Go(func() error {
			_, err := pool.Exec(gctx, upsertProductSQL, row.SKU, row.Name, row.Price, row.Category, row.Stock)
			if err != nil {
				return errors.Wrapf(err, "upsert product %s", row.SKU)
			}
			mu.Lock()
			written++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("products written", slog.Int("count", written))
	return nil
}
