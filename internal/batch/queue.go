package batch

import "time"

// FileTask is one queued file awaiting processing.
type FileTask struct {
	FilePath    string
	Priority    int
	EnqueueTime time.Time

	// seq orders tasks of equal priority by arrival.
	seq uint64
}

// taskQueue is a max-heap over task priority. Ties leave the queue in
// FIFO order via seq. It implements heap.Interface; callers synchronize
// through the processor mutex.
type taskQueue []*FileTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*FileTask)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return task
}
