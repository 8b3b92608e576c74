// Command daily-stats prints a terminal report of completed buy/sell
// tasks, capital deployed and received, and still-open tasks for a
// given calendar day.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// TaskRecord is one completed task output, joined with its parent
// task for symbol/order-type context.
type TaskRecord struct {
	Symbol      string
	Exchange    string
	OrderType   string
	Shares      int
	Price       float64
	TotalAmount float64
	ExecutedAt  time.Time
}

// OpenTask is one still-queued-or-running task awaiting dispatch.
type OpenTask struct {
	Symbol               string
	Exchange             string
	OrderType            string
	Status               string
	CurrentMoney         float64
	CurrentShares        int
	DaysRemaining        int
	DayOfExecution       time.Time
	TimestampOfExecution int
}

// DaySummary aggregates the day's completed tasks.
type DaySummary struct {
	TotalTasks       int
	BuyTasks         int
	SellTasks        int
	CapitalDeployed  float64
	ProceedsReceived float64
	NetCashFlow      float64
	OpenTaskCount    int
}

const (
	Reset   = "\033[0m"
	Red     = "\033[0;31m"
	Green   = "\033[0;32m"
	Yellow  = "\033[1;33m"
	Blue    = "\033[0;34m"
	Cyan    = "\033[0;36m"
	Magenta = "\033[0;35m"
)

func main() {
	dateFlag := flag.String("date", "", "date in YYYY-MM-DD format (defaults to today)")
	dbURL := flag.String("db", "", "database URL")
	flag.Parse()

	date := *dateFlag
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		fmt.Fprintln(os.Stderr, "invalid date format, use YYYY-MM-DD")
		os.Exit(1)
	}

	url := *dbURL
	if url == "" {
		url = os.Getenv("PATTERNCORE_DATABASE_URL")
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "no -db flag and PATTERNCORE_DATABASE_URL is unset")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	summary, err := getDaySummary(db, date)
	if err != nil {
		log.Fatalf("failed to get day summary: %v", err)
	}
	displaySummary(date, summary)

	tasks, err := getCompletedTasks(db, date)
	if err != nil {
		log.Fatalf("failed to get completed tasks: %v", err)
	}
	if len(tasks) > 0 {
		displayTasks(tasks)
	}

	open, err := getOpenTasks(db)
	if err != nil {
		log.Fatalf("failed to get open tasks: %v", err)
	}
	displayOpenTasks(open)
}

func getDaySummary(db *sql.DB, date string) (*DaySummary, error) {
	query := `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN t.order_type = 'buy' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN t.order_type = 'sell' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN t.order_type = 'buy' THEN o.total_amount ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN t.order_type = 'sell' THEN o.total_amount ELSE 0 END), 0)
FROM strategy_execution_task_outputs o
JOIN strategy_execution_tasks t ON t.id = o.task_id
WHERE DATE(o.order_timestamp AT TIME ZONE 'Asia/Kolkata') = $1 AND t.status = 'completed'`

	var summary DaySummary
	if err := db.QueryRow(query, date).Scan(
		&summary.TotalTasks, &summary.BuyTasks, &summary.SellTasks,
		&summary.CapitalDeployed, &summary.ProceedsReceived,
	); err != nil {
		return nil, err
	}
	summary.NetCashFlow = summary.ProceedsReceived - summary.CapitalDeployed

	if err := db.QueryRow(`
		SELECT COUNT(*) FROM strategy_execution_tasks WHERE status IN ('queued', 'running')
	`).Scan(&summary.OpenTaskCount); err != nil {
		return nil, err
	}
	return &summary, nil
}

func getCompletedTasks(db *sql.DB, date string) ([]TaskRecord, error) {
	query := `
SELECT t.symbol, t.exchange, t.order_type, o.shares, o.price_per_share, o.total_amount, o.order_timestamp
FROM strategy_execution_task_outputs o
JOIN strategy_execution_tasks t ON t.id = o.task_id
WHERE DATE(o.order_timestamp AT TIME ZONE 'Asia/Kolkata') = $1 AND t.status = 'completed'
ORDER BY o.order_timestamp DESC`

	rows, err := db.Query(query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		if err := rows.Scan(&r.Symbol, &r.Exchange, &r.OrderType, &r.Shares, &r.Price, &r.TotalAmount, &r.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func getOpenTasks(db *sql.DB) ([]OpenTask, error) {
	query := `
SELECT symbol, exchange, order_type, status, current_money, current_shares,
       days_remaining, day_of_execution, timestamp_of_execution
FROM strategy_execution_tasks
WHERE status IN ('queued', 'running')
ORDER BY day_of_execution ASC, timestamp_of_execution ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenTask
	for rows.Next() {
		var t OpenTask
		if err := rows.Scan(&t.Symbol, &t.Exchange, &t.OrderType, &t.Status, &t.CurrentMoney,
			&t.CurrentShares, &t.DaysRemaining, &t.DayOfExecution, &t.TimestampOfExecution); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func displaySummary(date string, summary *DaySummary) {
	fmt.Printf("%s%s%s\n", Cyan, strings.Repeat("=", 62), Reset)
	fmt.Printf("%sDAILY EXECUTION STATISTICS — %s%s\n", Cyan, date, Reset)
	fmt.Printf("%s%s%s\n\n", Cyan, strings.Repeat("=", 62), Reset)

	if summary.TotalTasks == 0 {
		fmt.Printf("%sNo completed tasks for %s%s\n\n", Yellow, date, Reset)
		return
	}

	flowColor := Green
	if summary.NetCashFlow < 0 {
		flowColor = Red
	}

	fmt.Printf("%sSUMMARY%s\n", Blue, Reset)
	fmt.Printf("%s%s%s\n", Blue, strings.Repeat("-", 40), Reset)
	fmt.Printf("  %sTasks Completed:%s  %d (%d buy, %d sell)\n", Yellow, Reset, summary.TotalTasks, summary.BuyTasks, summary.SellTasks)
	fmt.Printf("  %sCapital Deployed:%s ₹%.2f\n", Yellow, Reset, summary.CapitalDeployed)
	fmt.Printf("  %sProceeds Received:%s ₹%.2f\n", Yellow, Reset, summary.ProceedsReceived)
	fmt.Printf("  %sNet Cash Flow:%s    %s₹%.2f%s\n", Yellow, Reset, flowColor, summary.NetCashFlow, Reset)
	fmt.Printf("  %sOpen Tasks:%s       %d\n", Yellow, Reset, summary.OpenTaskCount)
	fmt.Println()
}

func displayTasks(tasks []TaskRecord) {
	fmt.Printf("%sCOMPLETED TASKS%s\n", Blue, Reset)
	fmt.Printf("%s%s%s\n", Blue, strings.Repeat("-", 40), Reset)
	fmt.Printf("%s%-12s %-6s %-6s %-10s %-12s %-12s %-10s%s\n",
		Magenta, "Symbol", "Exch", "Side", "Shares", "Price", "Total", "Time", Reset)
	fmt.Printf("%s%s%s\n", Magenta, strings.Repeat("-", 80), Reset)

	for _, t := range tasks {
		color := Green
		if t.OrderType == "sell" {
			color = Red
		}
		fmt.Printf("%-12s %-6s %s%-6s%s %-10d %-12.2f %-12.2f %-10s\n",
			t.Symbol, t.Exchange, color, t.OrderType, Reset, t.Shares, t.Price, t.TotalAmount, t.ExecutedAt.Format("15:04:05"))
	}
	fmt.Println()
}

func displayOpenTasks(tasks []OpenTask) {
	fmt.Printf("%sOPEN TASKS%s\n", Blue, Reset)
	fmt.Printf("%s%s%s\n", Blue, strings.Repeat("-", 40), Reset)

	if len(tasks) == 0 {
		fmt.Printf("  %sNo open tasks%s\n", Green, Reset)
		fmt.Println()
		return
	}

	fmt.Printf("  %sOpen Tasks: %d%s\n\n", Yellow, len(tasks), Reset)
	fmt.Printf("%s%-12s %-6s %-6s %-10s %-12s %-8s %-12s %-6s%s\n",
		Magenta, "Symbol", "Exch", "Side", "Status", "Money", "Shares", "Day", "T+", Reset)
	fmt.Printf("%s%s%s\n", Magenta, strings.Repeat("-", 80), Reset)

	for _, t := range tasks {
		fmt.Printf("%-12s %-6s %-6s %-10s %-12.2f %-8d %-12s %-6d\n",
			t.Symbol, t.Exchange, t.OrderType, t.Status, t.CurrentMoney, t.CurrentShares,
			t.DayOfExecution.Format("2006-01-02"), t.DaysRemaining)
	}
	fmt.Println()
}
