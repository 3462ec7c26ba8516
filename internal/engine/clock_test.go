package engine

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	tests := []struct {
		name  string
		clock *Clock
		want  []int64
	}{
		{"fresh", NewClock(), []int64{1, 2, 3}},
		{"resumed", NewClockAt(41), []int64{42, 43, 44}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Equal(t, want, tt.clock.Next())
			}
			assert.Equal(t, tt.want[len(tt.want)-1], tt.clock.Current())
		})
	}
}

func TestClock_ConcurrentSeqsAreDense(t *testing.T) {
	c := NewClockAt(10)
	const workers, perWorker = 20, 50

	var (
		mu   sync.Mutex
		seqs []int64
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			seqs = append(seqs, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seqs, workers*perWorker)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		assert.Equal(t, int64(11+i), s)
	}
}
