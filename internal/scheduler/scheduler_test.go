package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, second, 0, time.UTC)
}

func TestFirstFire(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"late moves to tomorrow", at(9, 5, 0), time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
		{"early waits for target", at(8, 59, 0), at(9, 0, 0)},
		{"inside grace fires now", at(9, 0, 30), at(9, 0, 30)},
		{"grace boundary fires now", at(9, 1, 0), at(9, 1, 0)},
		{"just past grace", at(9, 1, 1), time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FirstFire(tc.now, 9, 0, DefaultGrace))
		})
	}
	require.Equal(t, 60*time.Second, FirstFire(at(8, 59, 0), 9, 0, DefaultGrace).Sub(at(8, 59, 0)))
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	require.Equal(t, 7, h)
	require.Equal(t, 30, m)

	_, _, err = ParseTimeOfDay("7h30")
	require.Error(t, err)

	_, err = New(Options{TimeOfDay: "25:00"}, zerolog.Nop())
	require.Error(t, err)
}

func TestRunFiresAllTasksAndSurvivesFailures(t *testing.T) {
	now := time.Now()
	hhmm := now.Format("15:04")

	var mu sync.Mutex
	var failures []string
	s, err := New(Options{
		TimeOfDay: hhmm,
		Location:  now.Location(),
		Grace:     2 * time.Minute,
		Period:    20 * time.Millisecond,
		OnFailure: func(_ context.Context, task string, _ error) {
			mu.Lock()
			failures = append(failures, task)
			mu.Unlock()
		},
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan string, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx,
			Task{Name: "alerts", Run: func(context.Context) error {
				select {
				case runs <- "alerts":
				default:
				}
				panic("boom")
			}},
			Task{Name: "digest", Run: func(context.Context) error {
				select {
				case runs <- "digest":
				default:
				}
				return errors.New("repository down")
			}},
		)
	}()

	seen := map[string]int{}
	deadline := time.After(2 * time.Second)
	for seen["alerts"] < 2 || seen["digest"] < 2 {
		select {
		case name := <-runs:
			seen[name]++
		case <-deadline:
			t.Fatalf("tasks did not repeat: %v", seen)
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, failures, "alerts")
	require.Contains(t, failures, "digest")
}
