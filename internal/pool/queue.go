package pool

import (
	"container/heap"

	"github.com/reinvent-insight/orchestrator/internal/domain"
)

// priorityQueue orders tasks URGENT > HIGH > NORMAL > LOW; within one
// priority level, by ascending EnqueueSeq (FIFO), per spec §3's priority
// ordering rule.
type priorityQueue []domain.Task

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].EnqueueSeq < q[j].EnqueueSeq
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x any) {
	*q = append(*q, x.(domain.Task))
}

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)
