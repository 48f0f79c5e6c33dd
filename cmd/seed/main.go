package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"freelancer-dashboard-billing/internal/config"
	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	pg "freelancer-dashboard-billing/internal/infra/db/postgres"
)

// Seeds a handful of billing accounts for local development: a free account,
// an active pro account, and one mid grace period. Safe to re-run.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	records := pg.NewEntitlementRepo(pool)
	now := time.Now()

	seed := []struct {
		email  string
		status model.SubscriptionStatus
	}{
		{"free@example.test", model.SubscriptionStatusNone},
		{"pro@example.test", model.SubscriptionStatusActive},
		{"leaving@example.test", model.SubscriptionStatusCancelling},
	}

	for _, s := range seed {
		rec, err := model.NewSubscriptionRecord(uuid.NewString(), s.email)
		if err != nil {
			log.Fatalf("new record %q: %v", s.email, err)
		}

		switch s.status {
		case model.SubscriptionStatusActive:
			sid := ulid.Make().String()
			renews := now.Add(30 * 24 * time.Hour)
			rec.SubscriptionID = &sid
			rec.Status = model.SubscriptionStatusActive
			rec.RenewsAt = &renews
		case model.SubscriptionStatusCancelling:
			sid := ulid.Make().String()
			ends := now.Add(7 * 24 * time.Hour)
			rec.SubscriptionID = &sid
			rec.Status = model.SubscriptionStatusCancelling
			rec.CurrentPeriodEnd = &ends
		}
		rec.Normalize(now)

		if err := records.Create(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				fmt.Printf("exists:  %s\n", s.email)
				continue
			}
			log.Fatalf("create %q: %v", s.email, err)
		}
		fmt.Printf("seeded:  %s (status=%s, plan=%s)\n", s.email, rec.Status, rec.Plan)
	}

	fmt.Println("Seeding complete.")
}
