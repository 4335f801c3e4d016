// Command seed-db loads a product catalog into the database and generates
// aligned sales slots for one service day, with an initial stock level for
// every (product, slot) pair. It is idempotent: rerunning upserts products
// and skips slots that already exist.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/timeseats/internal/domain/slot"
	"github.com/xenking/timeseats/internal/repository"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()`

	insertSlotSQL = `INSERT INTO sales_slots (id, start_time, end_time, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT DO NOTHING`

	upsertInventorySQL = `INSERT INTO product_inventories
			(product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, now(), now())
		ON CONFLICT (product_id, sales_slot_id) DO NOTHING`
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		slotsDate    string
		openTime     string
		closeTime    string
		initialQty   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&slotsDate, "slots-date", "", "date to generate sales slots for (YYYY-MM-DD, empty skips slots)")
	flag.StringVar(&openTime, "open", "11:00", "first slot start (HH:MM, must sit on a 30-minute boundary)")
	flag.StringVar(&closeTime, "close", "14:00", "last slot end (HH:MM, must sit on a 30-minute boundary)")
	flag.IntVar(&initialQty, "initial-qty", 20, "initial stock per product per generated slot")
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

	if err := run(ctx, databaseURL, productsFile, slotsDate, openTime, closeTime, initialQty); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, slotsDate, openTime, closeTime string, initialQty int) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	productIDs, err := seedProducts(ctx, pool, productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}

	if slotsDate == "" {
		return nil
	}

	slotIDs, err := seedSlots(ctx, pool, slotsDate, openTime, closeTime)
	if err != nil {
		return errors.Wrap(err, "seed slots")
	}

	if err := seedInventory(ctx, pool, productIDs, slotIDs, initialQty); err != nil {
		return errors.Wrap(err, "seed inventory")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) ([]string, error) {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price); err != nil {
			return nil, errors.Wrapf(err, "upsert product %s", p.Name)
		}
		ids = append(ids, p.ID)

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return ids, nil
}

// seedSlots creates back-to-back slots covering [open, close) on the given
// date. Both bounds must sit on a slot alignment boundary.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, date, openTime, closeTime string) ([]string, error) {
	open, err := time.ParseInLocation("2006-01-02 15:04", date+" "+openTime, time.Local)
	if err != nil {
		return nil, errors.Wrap(err, "parse open time")
	}
	closeAt, err := time.ParseInLocation("2006-01-02 15:04", date+" "+closeTime, time.Local)
	if err != nil {
		return nil, errors.Wrap(err, "parse close time")
	}
	if !open.Truncate(slot.Alignment).Equal(open) || !closeAt.Truncate(slot.Alignment).Equal(closeAt) {
		return nil, errors.Errorf("open and close must sit on %s boundaries", slot.Alignment)
	}
	if !closeAt.After(open) {
		return nil, errors.New("close must be after open")
	}

	var ids []string
	for start := open; start.Before(closeAt); start = start.Add(slot.Alignment) {
		id := uuid.New().String()
		end := start.Add(slot.Alignment)
		if _, err := pool.Exec(ctx, insertSlotSQL, id, start, end, true); err != nil {
			return nil, errors.Wrapf(err, "insert slot %s", start.Format(time.RFC3339))
		}
		ids = append(ids, id)

		slog.Info("created slot",
			slog.String("id", id),
			slog.Time("start", start),
			slog.Time("end", end),
		)
	}

	return ids, nil
}

func seedInventory(ctx context.Context, pool *pgxpool.Pool, productIDs, slotIDs []string, qty int) error {
	slog.Info("seeding inventory",
		slog.Int("products", len(productIDs)),
		slog.Int("slots", len(slotIDs)),
		slog.Int("initial_qty", qty),
	)

	for _, slotID := range slotIDs {
		for _, productID := range productIDs {
			if _, err := pool.Exec(ctx, upsertInventorySQL, productID, slotID, qty); err != nil {
				return errors.Wrapf(err, "seed inventory for product %s slot %s", productID, slotID)
			}
		}
	}

	return nil
}
