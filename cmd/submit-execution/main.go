// Command submit-execution is the boundary a StrategyExecution must
// cross before it exists: it validates a proposed set of (result,
// weight) allocations and only creates the StrategyExecution and its
// details if every check in internal/validate passes. A rejected
// submission never reaches the store — no row is created for it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/config"
	"github.com/nitinkhare/patterncore/internal/store"
	"github.com/nitinkhare/patterncore/internal/validate"
)

// submission is the JSON shape read from -file: one proposed
// StrategyExecution plus the detail allocations it would create.
type submission struct {
	RunID      uuid.UUID       `json:"run_id"`
	Mode       store.Mode      `json:"mode"`
	TotalMoney *float64        `json:"total_money"`
	Details    []detailRequest `json:"details"`
}

type detailRequest struct {
	ResultID      uuid.UUID `json:"result_id"`
	WeightPercent float64   `json:"weight_percent"`
}

func toDetailSubmissions(details []detailRequest) []validate.DetailSubmission {
	out := make([]validate.DetailSubmission, len(details))
	for i, d := range details {
		out[i] = validate.DetailSubmission{ResultID: d.ResultID, WeightPercent: d.WeightPercent}
	}
	return out
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	file := flag.String("file", "", "path to a submission JSON file")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: submit-execution -file <submission.json>")
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logger.WithField("component", "submit-execution")

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.WithError(err).Fatal("failed to read submission file")
	}
	var sub submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		log.WithError(err).Fatal("failed to parse submission file")
	}

	result := validate.Execution(sub.Mode, sub.TotalMoney, toDetailSubmissions(sub.Details))
	if !result.Approved {
		for _, rejection := range result.Rejections {
			fmt.Fprintln(os.Stderr, rejection.Error())
		}
		os.Exit(1)
	}

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

	exec := &store.StrategyExecution{RunID: sub.RunID, Mode: sub.Mode}
	if sub.TotalMoney != nil {
		money := decimal.NewFromFloat(*sub.TotalMoney)
		exec.TotalMoney = &money
	}
	if err := st.CreateStrategyExecution(ctx, exec); err != nil {
		log.WithError(err).Fatal("failed to create execution")
	}

	details := make([]store.StrategyExecutionDetail, len(sub.Details))
	for i, d := range sub.Details {
		details[i] = store.StrategyExecutionDetail{ExecutionID: exec.ID, ResultID: d.ResultID, WeightPercent: d.WeightPercent}
	}
	if err := st.CreateStrategyExecutionDetails(ctx, details); err != nil {
		log.WithError(err).Fatal("failed to create execution details")
	}

	fmt.Printf("execution %s created with %d detail(s)\n", exec.ID, len(details))
}
