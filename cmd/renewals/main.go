// Command renewals runs one pass of the recurring-payment renewal batch.
// It is flagless and intended to be invoked once daily by an external
// scheduler (cron). The process exits 0 when the batch completed, even if
// individual subscriptions failed (those are logged and retried on the next
// run); it exits 1 only when the batch itself could not run.
package main

import (
	"context"
	"log"
	"os"

	"github.com/JonasKairys/EduTeka/internal/pkg/cache"
	"github.com/JonasKairys/EduTeka/internal/pkg/database"
	"github.com/JonasKairys/EduTeka/internal/pkg/env"
	"github.com/JonasKairys/EduTeka/internal/pkg/paysera"
	"github.com/JonasKairys/EduTeka/internal/pkg/renewal"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	client, err := paysera.NewClientFromEnv()
	if err != nil {
		log.Printf("[Renewal] Failed to configure payment client: %v", err)
		os.Exit(1)
	}

	service := renewal.NewService(
		renewal.NewRepository(database.GetDB()),
		client,
		renewal.NewCacheLocker(),
		renewal.DefaultConfig(),
	)

	summary, err := service.Run(context.Background())
	if err != nil {
		log.Printf("[Renewal] Batch failed: %v", err)
		os.Exit(1)
	}

	log.Printf("[Renewal] Batch completed: candidates=%d renewed=%d failed=%d skipped=%d lock_errors=%d",
		summary.Candidates, summary.Renewed, summary.Failed, summary.Skipped, summary.LockErrors)
}
