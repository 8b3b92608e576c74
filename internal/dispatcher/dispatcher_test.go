package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinkhare/patterncore/internal/broker"
	"github.com/nitinkhare/patterncore/internal/calendar"
	"github.com/nitinkhare/patterncore/internal/store"
)

func todayIST() time.Time {
	now := time.Now().In(calendar.IST)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, calendar.IST)
}

func seedDueBuyTask(t *testing.T, st store.Store, nowSecs int) (*store.StrategyExecution, *store.StrategyExecutionDetail, *store.StrategyExecutionTask) {
	t.Helper()
	ctx := context.Background()

	total := decimal.NewFromInt(10000)
	exec := &store.StrategyExecution{Mode: store.ModeSimulate, TotalMoney: &total}
	require.NoError(t, st.CreateStrategyExecution(ctx, exec))

	details := []store.StrategyExecutionDetail{
		{ExecutionID: exec.ID, WeightPercent: 100, Status: store.StatusRunning},
	}
	require.NoError(t, st.CreateStrategyExecutionDetails(ctx, details))
	all, err := st.ListExecutionDetails(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	detail := all[0]

	task := &store.StrategyExecutionTask{
		ExecutionDetailID:    detail.ID,
		PreviousTaskID:       store.RootTaskID,
		OrderType:            store.OrderBuy,
		DayOfExecution:       todayIST(),
		TimestampOfExecution: nowSecs,
		CurrentMoney:         total,
		DaysRemaining:        2,
		X:                    "09:15",
		Y:                    "09:45",
		Symbol:               "RELIANCE",
		Exchange:             "NSE",
		SimulateMode:         true,
		Status:               store.StatusQueued,
	}
	require.NoError(t, st.CreateTask(ctx, task))
	return exec, &detail, task
}

func TestDispatcher_CompletesBuyAndChainsSell(t *testing.T) {
	st := store.NewMemoryStore()
	nowSecs := calendar.SecondsSinceMidnightOf(time.Now())
	_, _, task := seedDueBuyTask(t, st, nowSecs)

	b := broker.NewSimulateBroker(broker.FixedPrice(100))
	d := New(st, b, DefaultConfig, nil)
	require.NoError(t, d.Tick(context.Background()))

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	require.NotNil(t, got.PriceDuringOrder)
	assert.Equal(t, 100.0, *got.PriceDuringOrder)

	children, err := st.ListTasksForDetail(context.Background(), task.ExecutionDetailID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	var sell *store.StrategyExecutionTask
	for i := range children {
		if children[i].OrderType == store.OrderSell {
			sell = &children[i]
		}
	}
	require.NotNil(t, sell)
	assert.Equal(t, store.StatusQueued, sell.Status)
	assert.Equal(t, task.ID, *sell.PreviousTaskID)
	assert.Equal(t, 100, sell.CurrentShares) // 10000 / 100
}

func TestDispatcher_SellWithDaysRemainingChainsNextBuy(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	total := decimal.NewFromInt(10000)
	exec := &store.StrategyExecution{Mode: store.ModeSimulate, TotalMoney: &total}
	require.NoError(t, st.CreateStrategyExecution(ctx, exec))
	require.NoError(t, st.CreateStrategyExecutionDetails(ctx, []store.StrategyExecutionDetail{
		{ExecutionID: exec.ID, WeightPercent: 100, Status: store.StatusRunning},
	}))
	details, err := st.ListExecutionDetails(ctx, exec.ID)
	require.NoError(t, err)
	detail := details[0]

	nowSecs := calendar.SecondsSinceMidnightOf(time.Now())
	task := &store.StrategyExecutionTask{
		ExecutionDetailID:    detail.ID,
		PreviousTaskID:       store.RootTaskID,
		OrderType:            store.OrderSell,
		DayOfExecution:       todayIST(),
		TimestampOfExecution: nowSecs,
		CurrentShares:        50,
		DaysRemaining:        3,
		X:                    "09:15",
		Y:                    "09:45",
		Symbol:               "RELIANCE",
		Exchange:             "NSE",
		SimulateMode:         true,
		Status:               store.StatusQueued,
	}
	require.NoError(t, st.CreateTask(ctx, task))

	b := broker.NewSimulateBroker(broker.FixedPrice(120))
	d := New(st, b, DefaultConfig, nil)
	require.NoError(t, d.Tick(ctx))

	children, err := st.ListTasksForDetail(ctx, detail.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	var nextBuy *store.StrategyExecutionTask
	for i := range children {
		if children[i].OrderType == store.OrderBuy {
			nextBuy = &children[i]
		}
	}
	require.NotNil(t, nextBuy)
	assert.Equal(t, 2, nextBuy.DaysRemaining)
	assert.True(t, nextBuy.CurrentMoney.Equal(decimal.NewFromInt(6000))) // 50 * 120
	assert.Equal(t, task.DayOfExecution.AddDate(0, 0, 1), nextBuy.DayOfExecution)

	gotDetail, err := st.GetExecutionDetail(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, gotDetail.Status)
}

func TestDispatcher_FinalSellCompletesDetailAndExecution(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	total := decimal.NewFromInt(10000)
	exec := &store.StrategyExecution{Mode: store.ModeSimulate, TotalMoney: &total}
	require.NoError(t, st.CreateStrategyExecution(ctx, exec))
	require.NoError(t, st.TransitionExecutionStatus(ctx, exec.ID, store.StatusQueued, store.StatusRunning))
	require.NoError(t, st.CreateStrategyExecutionDetails(ctx, []store.StrategyExecutionDetail{
		{ExecutionID: exec.ID, WeightPercent: 100, Status: store.StatusRunning},
	}))
	details, err := st.ListExecutionDetails(ctx, exec.ID)
	require.NoError(t, err)
	detail := details[0]

	nowSecs := calendar.SecondsSinceMidnightOf(time.Now())
	task := &store.StrategyExecutionTask{
		ExecutionDetailID:    detail.ID,
		PreviousTaskID:       store.RootTaskID,
		OrderType:            store.OrderSell,
		DayOfExecution:       todayIST(),
		TimestampOfExecution: nowSecs,
		CurrentShares:        50,
		DaysRemaining:        1,
		Symbol:               "RELIANCE",
		Exchange:             "NSE",
		SimulateMode:         true,
		Status:               store.StatusQueued,
	}
	require.NoError(t, st.CreateTask(ctx, task))

	b := broker.NewSimulateBroker(broker.FixedPrice(120))
	d := New(st, b, DefaultConfig, nil)
	require.NoError(t, d.Tick(ctx))

	gotDetail, err := st.GetExecutionDetail(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, gotDetail.Status)

	gotExec, err := st.GetStrategyExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, gotExec.Status)
}

func TestDispatcher_FailedOrderDoesNotChain(t *testing.T) {
	st := store.NewMemoryStore()
	nowSecs := calendar.SecondsSinceMidnightOf(time.Now())
	_, _, task := seedDueBuyTask(t, st, nowSecs)

	b := broker.NewSimulateBroker(broker.FixedPrice(0)) // non-positive price rejects
	d := New(st, b, DefaultConfig, nil)
	require.NoError(t, d.Tick(context.Background()))

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)

	children, err := st.ListTasksForDetail(context.Background(), task.ExecutionDetailID)
	require.NoError(t, err)
	assert.Len(t, children, 1) // no chained successor
}

func TestDispatcher_SkipsTasksOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	nowSecs := calendar.SecondsSinceMidnightOf(time.Now())
	_, _, task := seedDueBuyTask(t, st, nowSecs+10000) // far outside the default window

	b := broker.NewSimulateBroker(broker.FixedPrice(100))
	d := New(st, b, DefaultConfig, nil)
	require.NoError(t, d.Tick(context.Background()))

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, got.Status)
}
