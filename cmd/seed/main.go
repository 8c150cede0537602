// Package main provides a CLI tool for seeding the database with demo data:
// a small catalog and an initial ledger history bulk-loaded over COPY.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stokado/internal/core/entity"
	"stokado/internal/core/types"
	"stokado/internal/domain/catalogs/item"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/internal/infrastructure/storage/postgres/catalog_repo"
	"stokado/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	itemRepo := catalog_repo.NewItemRepo(txManager)
	locationRepo := catalog_repo.NewLocationRepo(txManager)
	inserter := postgres.NewBatchInserter(txManager)

	locations := []*location.Location{
		location.NewLocation("WH-MAIN", "Main warehouse"),
		location.NewLocation("WH-NORTH", "North warehouse"),
		location.NewLocation("SHOWROOM", "Showroom floor"),
	}
	items := []*item.Item{
		item.NewItem("BOLT-M8", "Bolt M8x40", "pcs"),
		item.NewItem("PLY-18", "Plywood 18mm", "m2"),
		item.NewItem("PAINT-WH", "Paint, white", "l"),
	}
	items[0].MinStock = types.MustQuantity("100")
	items[1].MinStock = types.MustQuantity("20")

	for _, loc := range locations {
		if err := locationRepo.Create(ctx, loc); err != nil {
			log.Fatalw("failed to seed location", "code", loc.Code, "error", err)
		}
	}
	for _, it := range items {
		if err := itemRepo.Create(ctx, it); err != nil {
			log.Fatalw("failed to seed item", "code", it.Code, "error", err)
		}
	}
	log.Infow("catalog seeded", "locations", len(locations), "items", len(items))

	movements := demoMovements(items, locations)
	err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.ItemID, m.LocationID, m.Direction, m.Quantity,
				m.OccurredAt, m.Seq, m.Reference, m.Actor, m.RunningBalance,
				m.Flags, m.CreatedAt,
			})
		}
		inserted, err := inserter.CopyFromSlice(ctx, "ledger_movements", []string{
			"line_id", "item_id", "location_id", "direction", "quantity",
			"occurred_at", "seq", "reference", "actor", "running_balance",
			"flags", "created_at",
		}, rows)
		if err != nil {
			return err
		}
		log.Infow("ledger seeded", "movements", inserted)
		return nil
	})
	if err != nil {
		log.Fatalw("failed to seed ledger", "error", err)
	}

	log.Info("seed complete")
}

// demoMovements builds an ordered history per partition with sequence numbers
// and running balances already materialized, the shape the bulk loader needs.
func demoMovements(items []*item.Item, locations []*location.Location) []entity.Movement {
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)

	type step struct {
		item      int
		location  int
		direction entity.Direction
		qty       string
		day       int
		reference string
	}
	steps := []step{
		{0, 0, entity.DirectionIn, "500", 0, "opening-stock"},
		{0, 0, entity.DirectionOut, "120", 3, "order-1001"},
		{0, 1, entity.DirectionIn, "200", 5, "transfer-7"},
		{1, 0, entity.DirectionIn, "80", 1, "opening-stock"},
		{1, 0, entity.DirectionOut, "12.5", 8, "order-1004"},
		{2, 2, entity.DirectionIn, "40", 2, "opening-stock"},
		{2, 2, entity.DirectionOut, "6", 10, "order-1002"},
	}

	seq := make(map[entity.PartitionKey]int64)
	balance := make(map[entity.PartitionKey]types.Quantity)
	out := make([]entity.Movement, 0, len(steps))

	for _, s := range steps {
		m := entity.NewMovement(
			items[s.item].ID,
			locations[s.location].ID,
			s.direction,
			types.MustQuantity(s.qty),
			base.Add(time.Duration(s.day)*24*time.Hour),
			s.reference,
			"seed",
		)
		key := m.Partition()
		seq[key]++
		m.Seq = seq[key]
		balance[key] += m.Signed()
		m.RunningBalance = balance[key]
		out = append(out, m)
	}
	return out
}
