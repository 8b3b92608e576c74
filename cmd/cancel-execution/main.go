// Command cancel-execution fails a single strategy execution and its
// whole subtree of details and tasks on operator request, for when an
// execution needs to be pulled before the watchdog would otherwise
// catch it as stuck.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/config"
	"github.com/nitinkhare/patterncore/internal/store"
	"github.com/nitinkhare/patterncore/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	executionIDFlag := flag.String("execution", "", "execution ID to cancel")
	confirm := flag.Bool("confirm", false, "confirm cancellation")
	flag.Parse()

	if *executionIDFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: cancel-execution -execution <uuid> -confirm")
		os.Exit(1)
	}
	executionID, err := uuid.Parse(*executionIDFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -execution value: %v\n", err)
		os.Exit(1)
	}
	if !*confirm {
		fmt.Printf("this will fail execution %s and every non-terminal detail/task under it.\n", executionID)
		fmt.Println("re-run with -confirm to proceed.")
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logger.WithField("component", "cancel-execution")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	wd := watchdog.New(st, watchdog.DefaultConfig, log)

	if err := wd.CancelExecution(ctx, executionID); err != nil {
		log.WithError(err).Fatal("cancel failed")
	}
	fmt.Printf("execution %s canceled\n", executionID)
}
