package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/config"
	"github.com/garyjia/escrow-engine/internal/container"
	"github.com/garyjia/escrow-engine/internal/infrastructure/catalog"
	"github.com/garyjia/escrow-engine/pkg/utils"
)

// import-products seeds marketplace listings from an xlsx sheet with the
// columns seller_id, title, price and an optional status.
func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty for defaults and environment)")
	file := flag.String("file", "", "Path to the xlsx catalog")
	dryRun := flag.Bool("dry-run", false, "Validate the sheet without writing")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: import-products --file products.xlsx [--config configs/config.yaml] [--dry-run]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *file, *dryRun, logger); err != nil {
		logger.Error("Import failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, path string, dryRun bool, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	products, err := catalog.ReadProducts(f, time.Now())
	if err != nil {
		return fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	logger.Info("Catalog parsed", zap.String("file", path), zap.Int("products", len(products)))

	if dryRun {
		for _, p := range products {
			fmt.Printf("seller=%d price=%s status=%s title=%s\n", p.SellerID, p.Price.StringFixed(2), p.Status, p.Title)
		}
		return nil
	}

	containerCfg := cfg.ToContainerConfig()
	db, err := container.ProvideDatabase(&containerCfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Raw.Close()

	repos, err := container.ProvideRepositories(db.TransactionMgr, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := catalog.Import(ctx, db.TransactionMgr, repos.Product, products, logger); err != nil {
		return err
	}

	for _, p := range products {
		fmt.Printf("imported product %d: %s\n", p.ID, p.Title)
	}
	return nil
}
