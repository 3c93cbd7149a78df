package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/wayposthq/waypost/internal/models"
)

// MemDelay is a process-local DelayBackend backed by a min-heap on due time.
// Parked tasks do not survive a restart; deployments that need durability use
// RedisDelay.
type MemDelay struct {
	mu    sync.Mutex
	heap  delayHeap
	items map[string]*delayItem
}

var _ DelayBackend = &MemDelay{}

func NewMemDelay() *MemDelay {
	return &MemDelay{items: make(map[string]*delayItem)}
}

func (d *MemDelay) Schedule(_ context.Context, task models.AttemptTask, dueAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.items[task.DeliveryID]; ok {
		existing.task = task
		existing.dueAt = dueAt
		heap.Fix(&d.heap, existing.index)
		return nil
	}

	item := &delayItem{task: task, dueAt: dueAt}
	heap.Push(&d.heap, item)
	d.items[task.DeliveryID] = item
	return nil
}

func (d *MemDelay) Due(_ context.Context, now time.Time, limit int) ([]models.AttemptTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var popped []*delayItem
	var due []models.AttemptTask
	for d.heap.Len() > 0 && (limit <= 0 || len(due) < limit) {
		top := d.heap[0]
		if top.dueAt.After(now) {
			break
		}
		heap.Pop(&d.heap)
		popped = append(popped, top)
		due = append(due, top.task)
	}
	// Tasks stay parked until Remove; put them back.
	for _, item := range popped {
		heap.Push(&d.heap, item)
	}
	return due, nil
}

func (d *MemDelay) Remove(_ context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[deliveryID]
	if !ok {
		return nil
	}
	heap.Remove(&d.heap, item.index)
	delete(d.items, deliveryID)
	return nil
}

// ============================== heap ==============================

type delayItem struct {
	task  models.AttemptTask
	dueAt time.Time
	index int
}

type delayHeap []*delayItem

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool { return h[i].dueAt.Before(h[j].dueAt) }

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayHeap) Push(x any) {
	item := x.(*delayItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
