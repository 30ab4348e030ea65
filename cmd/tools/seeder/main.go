package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/championcart/backend/internal/catalog"
	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/config"
)

// demoCatalog is loaded when no file is given.
var demoCatalog = catalog.ImportRequest{
	City: "haifa",
	Stores: []catalog.StoreInput{
		{Chain: "shufersal", StoreID: "001", Name: "Shufersal Deal Carmel", Address: "Horev 8"},
		{Chain: "victory", StoreID: "017", Name: "Victory Hadar", Address: "Herzl 40"},
		{Chain: "rami-levy", StoreID: "9", Name: "Rami Levy Check Post", Address: "HaHistadrut 55"},
	},
	Prices: []catalog.PriceInput{
		{Chain: "shufersal", StoreID: "001", ItemName: "milk", Price: "5.90"},
		{Chain: "shufersal", StoreID: "001", ItemName: "bread", Price: "9.90"},
		{Chain: "shufersal", StoreID: "001", ItemName: "eggs", Price: "13.50"},
		{Chain: "victory", StoreID: "017", ItemName: "milk", Price: "5.50"},
		{Chain: "victory", StoreID: "017", ItemName: "bread", Price: "8.90"},
		{Chain: "victory", StoreID: "017", ItemName: "eggs", Price: "12.90"},
		{Chain: "rami-levy", StoreID: "9", ItemName: "milk", Price: "4.90"},
		{Chain: "rami-levy", StoreID: "9", ItemName: "eggs", Price: "11.90"},
	},
}

func main() {
	var (
		file    = flag.String("file", "", "JSON file shaped like the admin price import body; defaults to a demo city")
		migrate = flag.Bool("migrate", true, "apply database migrations before seeding")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	req := demoCatalog
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		req = catalog.ImportRequest{}
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Fatalf("decode %s: %v", *file, err)
		}
	}
	if err := common.Validate(req); err != nil {
		log.Fatalf("invalid catalog: %v", err)
	}
	batch, err := req.Batch()
	if err != nil {
		log.Fatalf("convert catalog: %v", err)
	}

	if *migrate {
		if err := catalog.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	svc, err := catalog.NewService(catalog.ServiceConfig{Store: catalog.NewRepository(pool)})
	if err != nil {
		log.Fatalf("catalog service: %v", err)
	}
	result, err := svc.Import(ctx, batch)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	log.Printf("seeded %s: %d stores, %d prices", result.City, result.Stores, result.Prices)
}
