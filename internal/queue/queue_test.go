package queue

import (
	"testing"
	"time"

	"comfygate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id string) *model.Job {
	return model.NewJob(id, model.JobKindTxt2Img, "user")
}

func TestTryPutRejectsWhenFull(t *testing.T) {
	q := New(2)

	assert.True(t, q.TryPut(job("1")))
	assert.True(t, q.TryPut(job("2")))
	assert.False(t, q.TryPut(job("3")))
	assert.Equal(t, 2, q.Len())
}

func TestTakeFIFO(t *testing.T) {
	q := New(3)
	q.TryPut(job("1"))
	q.TryPut(job("2"))
	q.TryPut(job("3"))

	for _, want := range []string{"1", "2", "3"} {
		j, ok := q.Take(time.Second)
		require.True(t, ok)
		assert.Equal(t, want, j.ID)
	}
}

func TestTakeTimesOutOnEmptyQueue(t *testing.T) {
	q := New(1)

	start := time.Now()
	j, ok := q.Take(20 * time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, j)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDrain(t *testing.T) {
	q := New(4)
	q.TryPut(job("1"))
	q.TryPut(job("2"))

	jobs := q.Drain()
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, "2", jobs[1].ID)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestRequeueGoesToTail(t *testing.T) {
	q := New(3)
	q.TryPut(job("1"))
	q.TryPut(job("2"))

	j, ok := q.Take(time.Second)
	require.True(t, ok)
	require.Equal(t, "1", j.ID)

	// Failover re-queue appends at the tail, behind job 2.
	require.True(t, q.TryPut(j))

	next, _ := q.Take(time.Second)
	assert.Equal(t, "2", next.ID)
	next, _ = q.Take(time.Second)
	assert.Equal(t, "1", next.ID)
}

func TestCapFloorsAtOne(t *testing.T) {
	q := New(0)
	assert.Equal(t, 1, q.Cap())
}
