// Command catalog-ingest bulk-loads a product catalog from gzipped JSONL
// exports into the database. Files are decompressed and parsed concurrently;
// a bloom filter drops duplicate IDs across files before rows are upserted in
// batches.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/timeseats/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
)

const upsertProductSQL = `INSERT INTO products (id, name, price, created_at, updated_at)
	VALUES ($1, $2, $3, now(), now())
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()`

type catalogRow struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog*.json.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog*.json.gz"))
	if err != nil {
		return errors.Wrap(err, "glob catalog files")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog*.json.gz files in %s", dataDir)
	}

	slog.Info("parsing catalog files", slog.Int("files", len(files)))

	rows, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse catalog files")
	}

	slog.Info("unique products parsed", slog.Int("count", len(rows)))

	if len(rows) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeProducts(ctx, pool, rows)
}

// parseFiles decompresses and parses every file concurrently. A shared bloom
// filter drops IDs already seen; the rare false positive is confirmed against
// the exact seen-set so no product is lost.
func parseFiles(ctx context.Context, files []string) ([]catalogRow, error) {
	var (
		mu     sync.Mutex
		seen   = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		exact  = make(map[string]struct{})
		unique []catalogRow
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			return parseFile(ctx, f, func(row catalogRow) {
				mu.Lock()
				defer mu.Unlock()

				if seen.TestString(row.ID) {
					if _, dup := exact[row.ID]; dup {
						return
					}
				}
				seen.AddString(row.ID)
				exact[row.ID] = struct{}{}
				unique = append(unique, row)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return unique, nil
}

func parseFile(ctx context.Context, path string, emit func(catalogRow)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader %s", path)
	}
	defer func() { _ = zr.Close() }()

	var count int
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var row catalogRow
		if err := json.Unmarshal(line, &row); err != nil {
			return errors.Wrapf(err, "parse line %d of %s", count+1, path)
		}
		if row.ID == "" || row.Name == "" {
			continue
		}
		emit(row)

		count++
		if count%progressEvery == 0 {
			slog.Info("parsing progress", slog.String("file", path), slog.Int("lines", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("parsed file", slog.String("file", path), slog.Int("lines", count))
	return nil
}

// writeProducts upserts rows in batches over a single connection.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, rows []catalogRow) error {
	slog.Info("writing products", slog.Int("count", len(rows)), slog.Int("batch_size", batchSize))

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		var batch pgx.Batch
		for _, row := range rows[start:end] {
			batch.Queue(upsertProductSQL, row.ID, row.Name, row.Price)
		}
		if err := pool.SendBatch(ctx, &batch).Close(); err != nil {
			return errors.Wrapf(err, "write batch at offset %d", start)
		}
	}

	return nil
}
