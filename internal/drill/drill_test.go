package drill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/inventory"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/testenv"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

func newEnv(t *testing.T) Env {
	t.Helper()
	te := testenv.New(t)
	return Env{
		DB:         te.DB,
		Users:      te.Users,
		Properties: te.Properties,
		NewBookings: func(n booking.Notifier) booking.Service {
			return booking.NewService(te.DB, booking.Deps{
				Users:      user.Repository{},
				Properties: property.Repository{},
				Ledger:     inventory.NewLedger(te.Events),
				Events:     te.Events,
				Notifier:   n,
			}, zap.NewNop())
		},
		Logger: zap.NewNop(),
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		op   string
		v    float64
		want bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold{Operator: tt.op, Value: 1}.holds(tt.v), "%s %v", tt.op, tt.v)
	}
}

func TestRunPhases(t *testing.T) {
	var order []string
	step := func(name string, err error) Action {
		return Action{Type: name, Target: name, Execute: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}
	value := 0.0

	e := NewEngine(zap.NewNop())
	result, err := e.Run(context.Background(), Experiment{
		Name: "phases",
		SteadyState: []Metric{{
			Name:      "value",
			Query:     func(context.Context) (float64, error) { return value, nil },
			Threshold: Threshold{Operator: "<=", Value: 5},
		}},
		Method: []Action{
			step("inject", nil),
			{Type: "bump", Target: "value", Execute: func(context.Context) error { value = 7; return nil }},
		},
		Rollback:   []Action{step("rollback", errors.New("undo failed"))},
		Validation: []Assertion{{Metric: "value", Condition: func(v float64) bool { return v <= 5 }, Message: "value grew"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"inject", "rollback"}, order)
	assert.True(t, result.SteadyStateValid)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"value grew"}, result.FailedAssertions)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, 7.0, result.Violations[0].Actual)
	require.Len(t, result.ErrorEvents, 1)
	assert.Equal(t, "rollback", result.ErrorEvents[0].Component)
	assert.Len(t, e.Results(), 1)
}

func TestRunAbortsOnBadSteadyState(t *testing.T) {
	ran := false
	e := NewEngine(zap.NewNop())
	e.Register(Experiment{
		Name: "broken",
		SteadyState: []Metric{{
			Name:      "errors",
			Query:     func(context.Context) (float64, error) { return 3, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Type: "never", Execute: func(context.Context) error { ran = true; return nil }}},
	})

	held, err := e.RunAll(context.Background())
	require.NoError(t, err)
	assert.False(t, held)
	assert.False(t, ran)
	results := e.Results()
	require.Len(t, results, 1)
	assert.False(t, results[0].SteadyStateValid)
	assert.False(t, results[0].HypothesisHeld)
}

func TestConcurrentBookingRace(t *testing.T) {
	env := newEnv(t)
	e := NewEngine(zap.NewNop())

	result, err := e.Run(context.Background(), ConcurrentBookingRace(env, 8, 3))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed: %v errors: %v", result.FailedAssertions, result.ErrorEvents)
	assert.Empty(t, result.ErrorEvents)

	won, _ := result.Last("successful_bookings")
	assert.Equal(t, 3.0, won)
	left, _ := result.Last("available_rooms")
	assert.Zero(t, left)

	var available, total int
	require.NoError(t, env.DB.QueryRowx(`SELECT available_rooms, total_rooms FROM properties`).Scan(&available, &total))
	assert.Equal(t, total, available, "rollback restores the rooms")
}

func TestMailOutageDoesNotBlockBookings(t *testing.T) {
	env := newEnv(t)
	e := NewEngine(zap.NewNop())

	result, err := e.Run(context.Background(), MailOutage(env, 4))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed: %v errors: %v", result.FailedAssertions, result.ErrorEvents)

	placed, _ := result.Last("successful_bookings")
	assert.Equal(t, 4.0, placed)
	attempts, _ := result.Last("delivery_attempts")
	assert.Less(t, attempts, 24.0)
}
