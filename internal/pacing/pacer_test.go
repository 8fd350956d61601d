package pacing

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{name: "ordered", r: Range{Min: time.Minute, Max: 2 * time.Minute}},
		{name: "fixed", r: Range{Min: time.Minute, Max: time.Minute}},
		{name: "inverted", r: Range{Min: 2 * time.Minute, Max: time.Minute}, wantErr: true},
		{name: "negative", r: Range{Min: -time.Second, Max: time.Minute}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPacer_JitterStaysInsideInclusiveBounds(t *testing.T) {
	p := New(WithRand(rand.New(rand.NewPCG(1, 2))))
	r := Range{Min: 120 * time.Second, Max: 180 * time.Second}

	for i := 0; i < 2000; i++ {
		d := p.Jitter(r)
		require.GreaterOrEqual(t, d, r.Min)
		require.LessOrEqual(t, d, r.Max)
		require.Zero(t, d%time.Millisecond)
	}
}

func TestPacer_JitterReachesBothBounds(t *testing.T) {
	p := New(WithRand(rand.New(rand.NewPCG(7, 7))))
	r := Range{Min: 10 * time.Millisecond, Max: 12 * time.Millisecond}

	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		seen[p.Jitter(r)] = true
	}

	require.Len(t, seen, 3)
	require.True(t, seen[r.Min])
	require.True(t, seen[r.Max])
}

func TestPacer_JitterDegenerateRange(t *testing.T) {
	p := New()
	require.Equal(t, 35*time.Minute, p.Jitter(Range{Min: 35 * time.Minute, Max: 35 * time.Minute}))
}

func TestPacer_WaitUsesInjectedFunc(t *testing.T) {
	var got []time.Duration
	p := New(WithWaitFunc(func(ctx context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	}))

	require.NoError(t, p.Wait(context.Background(), time.Hour))
	require.Equal(t, []time.Duration{time.Hour}, got)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	require.True(t, errors.Is(err, context.Canceled))
	require.Less(t, time.Since(start), time.Second)
}

func TestSleep_Elapses(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 5*time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))
}
