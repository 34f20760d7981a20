//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package seed populates a fresh database with synthetic but plausible
// retail facts: reference data first, then a transaction history shaped by
// the daily footfall curve.
package seed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpulse/pipeline/internal/config"
	"github.com/retailpulse/pipeline/internal/datagen"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

// danglingItemRate is the fraction of generated items that reference a
// product id nobody knows. The aggregation layer must exclude and count
// these, so the seeder plants a few on purpose.
const danglingItemRate = 0.003

// Seeder generates the synthetic fact history.
type Seeder struct {
	pool  *pgxpool.Pool
	cfg   config.SeedConfig
	faker *datagen.Faker
	batch datagen.BatchInsertConfig

	// prices[productID-1] is the unit price assigned at generation time.
	prices []float64

	storeIDs     []int
	storeWeights []int

	// devicesByStore[storeID] lists that store's device ids.
	devicesByStore map[int][]int
}

// NewSeeder creates a seeder. A zero RandSeed produces a different dataset
// on every run; any other value is fully reproducible.
func NewSeeder(pool *pgxpool.Pool, cfg config.SeedConfig) *Seeder {
	f := datagen.NewFaker()
	if cfg.RandSeed != 0 {
		f = datagen.NewFakerWithSeed(cfg.RandSeed)
	}
	return &Seeder{
		pool:           pool,
		cfg:            cfg,
		faker:          f,
		batch:          datagen.DefaultBatchConfig(),
		devicesByStore: make(map[int][]int),
	}
}

// Run seeds the full dataset. Transactions extend cfg.Days back from asOf.
func (s *Seeder) Run(ctx context.Context, asOf time.Time) error {
	start := time.Now()

	if err := s.seedRegions(ctx); err != nil {
		return fmt.Errorf("seeding regions: %w", err)
	}
	if err := s.seedBrands(ctx); err != nil {
		return fmt.Errorf("seeding brands: %w", err)
	}
	if err := s.seedProducts(ctx); err != nil {
		return fmt.Errorf("seeding products: %w", err)
	}
	if err := s.seedStores(ctx); err != nil {
		return fmt.Errorf("seeding stores: %w", err)
	}
	if err := s.seedDevices(ctx, asOf); err != nil {
		return fmt.Errorf("seeding devices: %w", err)
	}
	if err := s.seedTransactions(ctx, asOf); err != nil {
		return fmt.Errorf("seeding transactions: %w", err)
	}

	if err := db.SaveMetadata(ctx, s.pool, map[string]string{
		"seeded_at":    asOf.UTC().Format(time.RFC3339),
		"transactions": strconv.Itoa(s.cfg.Transactions),
		"stores":       strconv.Itoa(s.cfg.Stores),
		"days":         strconv.Itoa(s.cfg.Days),
		"rand_seed":    strconv.FormatUint(s.cfg.RandSeed, 10),
	}); err != nil {
		return fmt.Errorf("saving seed metadata: %w", err)
	}

	logging.Info().
		Int("transactions", s.cfg.Transactions).
		Int("stores", s.cfg.Stores).
		Dur("elapsed", time.Since(start)).
		Msg("Seeding complete")
	return nil
}

func (s *Seeder) seedRegions(ctx context.Context) error {
	values := make([]string, 0, len(regionDefs))
	for _, r := range regionDefs {
		values = append(values, fmt.Sprintf("('%s', '%s', %.3f, %d)",
			datagen.EscapeSingleQuote(r.name), r.macro, r.weight, r.population))
	}
	return datagen.ExecuteBatchInsert(ctx, s.pool, "regions",
		"(name, macro_region, economic_weight, population)", values)
}

func (s *Seeder) seedBrands(ctx context.Context) error {
	values := make([]string, 0, len(brandDefs))
	for _, b := range brandDefs {
		values = append(values, fmt.Sprintf("('%s', '%s', %t)",
			datagen.EscapeSingleQuote(b.name), b.category, b.client))
	}
	return datagen.ExecuteBatchInsert(ctx, s.pool, "brands",
		"(name, category, is_client)", values)
}

func (s *Seeder) seedProducts(ctx context.Context) error {
	total := len(brandDefs) * productsPerBrand
	s.prices = make([]float64, 0, total)
	values := make([]string, 0, total)

	for brandID, b := range brandDefs {
		bounds := priceRanges[b.category]
		for i := 0; i < productsPerBrand; i++ {
			price := s.faker.Price(bounds[0], bounds[1])
			s.prices = append(s.prices, price)
			name := datagen.Truncate(s.faker.ProductName(), 80)
			values = append(values, fmt.Sprintf("(%d, '%s', '%s', %.2f, TRUE)",
				brandID+1, datagen.EscapeSingleQuote(name), b.category, price))
		}
	}
	logging.Info().Int("count", total).Msg("Generating products")
	return datagen.ExecuteBatchInsert(ctx, s.pool, "products",
		"(brand_id, name, category, unit_price, is_fmcg)", values)
}

func (s *Seeder) seedStores(ctx context.Context) error {
	regionIdx := make([]int, len(regionDefs))
	regionWeights := make([]int, len(regionDefs))
	for i, r := range regionDefs {
		regionIdx[i] = i
		regionWeights[i] = int(r.weight * 100)
	}

	values := make([]string, 0, s.cfg.Stores)
	for i := 1; i <= s.cfg.Stores; i++ {
		ri := datagen.ChooseWeighted(s.faker, regionIdx, regionWeights)
		name := fmt.Sprintf("%s #%03d", datagen.Truncate(s.faker.City(), 40), i)
		storeType := datagen.ChooseWeighted(s.faker, storeTypes, storeTypeWeights)
		tier := datagen.ChooseWeighted(s.faker, sizeTiers, sizeTierWeights)

		values = append(values, fmt.Sprintf("(%d, '%s', '%s', '%s')",
			ri+1, datagen.EscapeSingleQuote(name), storeType, tier))

		s.storeIDs = append(s.storeIDs, i)
		s.storeWeights = append(s.storeWeights, regionWeights[ri])
	}
	logging.Info().Int("count", s.cfg.Stores).Msg("Generating stores")
	return datagen.ExecuteBatchInsert(ctx, s.pool, "stores",
		"(region_id, name, store_type, size_tier)", values)
}

func (s *Seeder) seedDevices(ctx context.Context, asOf time.Time) error {
	var values []string
	deviceID := 0
	for _, storeID := range s.storeIDs {
		n := s.faker.Int(1, 3)
		for i := 0; i < n; i++ {
			deviceID++
			status := datagen.ChooseWeighted(s.faker, deviceStatuses, deviceStatusWeights)
			lastSeen := "NULL"
			if status != "offline" {
				seen := s.faker.DateRange(asOf.Add(-48*time.Hour), asOf)
				lastSeen = "'" + seen.UTC().Format("2006-01-02 15:04:05+00") + "'"
			}
			values = append(values, fmt.Sprintf("(%d, '%s', %s)", storeID, status, lastSeen))
			s.devicesByStore[storeID] = append(s.devicesByStore[storeID], deviceID)
		}
	}
	logging.Info().Int("count", deviceID).Msg("Generating devices")
	return datagen.ExecuteBatchInsert(ctx, s.pool, "devices",
		"(store_id, status, last_seen_at)", values)
}

func (s *Seeder) seedTransactions(ctx context.Context, asOf time.Time) error {
	count := s.cfg.Transactions
	numProducts := len(s.prices)

	logging.Info().Int("count", count).Int("days", s.cfg.Days).Msg("Generating transactions")
	progress := datagen.NewProgressReporter("transactions", int64(count), s.batch.ProgressInterval)

	hours := make([]int, 24)
	for h := range hours {
		hours[h] = h
	}

	txnBatch := make([]string, 0, s.batch.BatchSize)
	itemBatch := make([]string, 0, s.batch.BatchSize*3)

	flush := func() error {
		if err := datagen.ExecuteBatchInsert(ctx, s.pool, "transactions",
			"(transaction_id, store_id, device_id, customer_id, recorded_at, gender, age, emotion, total_amount, influenced, substituted, duration_seconds)",
			txnBatch); err != nil {
			return err
		}
		if err := datagen.ExecuteBatchInsert(ctx, s.pool, "transaction_items",
			"(transaction_id, product_id, quantity)", itemBatch); err != nil {
			return err
		}
		progress.Update(int64(len(txnBatch)))
		txnBatch = txnBatch[:0]
		itemBatch = itemBatch[:0]
		return nil
	}

	for txnID := 1; txnID <= count; txnID++ {
		day := asOf.AddDate(0, 0, -s.faker.Int(0, s.cfg.Days-1))
		hour := datagen.ChooseWeighted(s.faker, hours, hourWeights(day))
		recordedAt := time.Date(day.Year(), day.Month(), day.Day(),
			hour, s.faker.Int(0, 59), s.faker.Int(0, 59), 0, time.UTC)

		storeID := datagen.ChooseWeighted(s.faker, s.storeIDs, s.storeWeights)
		deviceSQL := "NULL"
		if devs := s.devicesByStore[storeID]; len(devs) > 0 {
			deviceSQL = strconv.Itoa(datagen.Choose(s.faker, devs))
		}

		customerSQL := "NULL"
		if !s.faker.Chance(0.35) {
			customerSQL = fmt.Sprintf("'cust-%06d'", s.faker.Int(1, s.cfg.Customers))
		}

		ageSQL := "NULL"
		if s.faker.Chance(0.80) {
			ageSQL = strconv.Itoa(s.faker.Int(18, 80))
		}

		// Items drive the recorded total. A rare item points at a product
		// id that does not exist; its amount still lands in the total, the
		// way a bad feed would report it.
		numItems := datagen.ChooseWeighted(s.faker,
			[]int{1, 2, 3, 4, 5, 6}, []int{30, 28, 20, 12, 7, 3})
		var total float64
		for i := 0; i < numItems; i++ {
			quantity := s.faker.Int(1, 4)
			var productID int
			var unitPrice float64
			if s.faker.Chance(danglingItemRate) {
				productID = numProducts + s.faker.Int(1, 500)
				unitPrice = s.faker.Price(1, 20)
			} else {
				productID = s.faker.Int(1, numProducts)
				unitPrice = s.prices[productID-1]
			}
			total += float64(quantity) * unitPrice
			itemBatch = append(itemBatch, fmt.Sprintf("(%d, %d, %d)",
				txnID, productID, quantity))
		}

		txnBatch = append(txnBatch, fmt.Sprintf("(%d, %d, %s, %s, '%s', '%s', %s, '%s', %.2f, %t, %t, %d)",
			txnID, storeID, deviceSQL, customerSQL,
			recordedAt.Format("2006-01-02 15:04:05+00"),
			datagen.ChooseWeighted(s.faker, genders, genderWeights),
			ageSQL,
			datagen.ChooseWeighted(s.faker, emotions, emotionWeights),
			total,
			s.faker.Chance(0.18),
			s.faker.Chance(0.07),
			s.faker.Int(30, 900)))

		if len(txnBatch) >= s.batch.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(txnBatch) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	progress.Done()

	// Explicit ids bypass the sequences; advance them past the seeded rows.
	if _, err := s.pool.Exec(ctx, `
		SELECT setval('transactions_transaction_id_seq', (SELECT COALESCE(MAX(transaction_id), 1) FROM transactions))`); err != nil {
		return fmt.Errorf("advancing transaction sequence: %w", err)
	}
	return nil
}
