package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	reports []int
}

func (r *recorder) record(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, percent)
}

func (r *recorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.reports...)
}

func TestEqualWeights(t *testing.T) {
	weights := EqualWeights(4)
	require.Len(t, weights, 4)
	for _, w := range weights {
		assert.InDelta(t, 0.25, w, 1e-9)
	}
}

func TestSizeWeights(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int64
		want  []float64
	}{
		{
			name:  "proportional to size",
			sizes: []int64{100, 300},
			want:  []float64{0.25, 0.75},
		},
		{
			name:  "unknown size falls back to equal",
			sizes: []int64{100, 0, 50},
			want:  []float64{1.0 / 3, 1.0 / 3, 1.0 / 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SizeWeights(tt.sizes)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestAggregator_WeightedPercent(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(EqualWeights(2), rec.record)

	a.Update(0, 0.5)
	a.Update(1, 0.5)

	assert.Equal(t, []int{25, 50}, rec.values())
	assert.Equal(t, 50, a.Percent())
}

func TestAggregator_IgnoresRegression(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(EqualWeights(1), rec.record)

	a.Update(0, 0.6)
	a.Update(0, 0.2)
	a.Update(0, 0.6)

	assert.Equal(t, []int{60}, rec.values())
	assert.Equal(t, 60, a.Percent())
}

func TestAggregator_ClampsOutOfRangeFractions(t *testing.T) {
	a := NewAggregator(EqualWeights(2), nil)

	a.Update(0, -1)
	assert.Equal(t, 0, a.Percent())

	a.Update(0, 7)
	assert.Equal(t, 50, a.Percent())

	a.Update(5, 1)
	assert.Equal(t, 50, a.Percent())
}

func TestAggregator_CapsUntilFinish(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(EqualWeights(2), rec.record)

	a.Update(0, 1)
	a.Update(1, 1)
	assert.Equal(t, CapBeforeComplete, a.Percent())

	assert.False(t, a.Finish(), "finish must wait for every item to settle")

	require.True(t, a.Settle(0))
	require.True(t, a.Settle(1))
	assert.Equal(t, CapBeforeComplete, a.Percent())

	assert.True(t, a.Finish())
	assert.False(t, a.Finish())
	assert.Equal(t, Complete, a.Percent())

	assert.Equal(t, []int{50, 95, 100}, rec.values())
}

func TestAggregator_DropsUpdatesAfterSettle(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator(EqualWeights(2), rec.record)

	require.True(t, a.Settle(0))
	assert.False(t, a.Settle(0))

	a.Update(0, 0.1)
	assert.Equal(t, 50, a.Percent())

	require.True(t, a.Settle(1))
	require.True(t, a.Finish())

	a.Update(1, 0.3)
	assert.Equal(t, []int{50, 95, 100}, rec.values())
}

func TestAggregator_ConcurrentUpdatesNeverDecrease(t *testing.T) {
	const items = 20
	rec := &recorder{}
	a := NewAggregator(EqualWeights(items), rec.record)

	var wg sync.WaitGroup
	for i := 0; i < items; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			for step := 1; step <= 10; step++ {
				a.Update(index, float64(step)/10)
			}
			a.Settle(index)
		}(i)
	}
	wg.Wait()
	require.True(t, a.Finish())

	reports := rec.values()
	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
	assert.Equal(t, Complete, reports[len(reports)-1])

	snapshot := a.Snapshot()
	assert.Equal(t, items, snapshot.SettledItems)
	assert.True(t, snapshot.Completed)
}

func TestStats(t *testing.T) {
	stats := NewStats()

	assert.Equal(t, int64(0), stats.FinishedCount())
	assert.Equal(t, time.Duration(0), stats.Average())

	stats.Update(100*time.Millisecond, true)
	stats.Update(200*time.Millisecond, false)
	stats.Update(300*time.Millisecond, true)

	assert.Equal(t, int64(3), stats.FinishedCount())
	assert.Equal(t, int64(1), stats.FailedCount())
	assert.Equal(t, 200*time.Millisecond, stats.Average())
	assert.Equal(t, 300*time.Millisecond, stats.Slowest())
	assert.Equal(t, 600*time.Millisecond, stats.TotalDuration())
}
