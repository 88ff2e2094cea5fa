package sim

import "container/heap"

// eventQueue implements a min-priority queue over future events with
// deterministic ordering: timestamp, then insertion sequence.
// See the canonical container/heap example for the pattern.
type eventQueue struct {
	events []*futureEvent
}

func newEventQueue() *eventQueue {
	q := &eventQueue{events: make([]*futureEvent, 0)}
	heap.Init(q)
	return q
}

func (q *eventQueue) Len() int { return len(q.events) }

func (q *eventQueue) Less(i, j int) bool {
	ei, ej := q.events[i], q.events[j]
	if ei.time != ej.time {
		return ei.time < ej.time
	}
	return ei.seq < ej.seq
}

func (q *eventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
}

func (q *eventQueue) Push(x any) {
	q.events = append(q.events, x.(*futureEvent))
}

func (q *eventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	q.events = old[0 : n-1]
	return item
}

// schedule adds an event to the queue.
func (q *eventQueue) schedule(e *futureEvent) {
	heap.Push(q, e)
}

// popNext removes and returns the earliest event, or nil when empty.
func (q *eventQueue) popNext() *futureEvent {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*futureEvent)
}

// purgeAfter drops every queued event scheduled strictly after t.
func (q *eventQueue) purgeAfter(t float64) {
	kept := q.events[:0]
	for _, e := range q.events {
		if e.time <= t {
			kept = append(kept, e)
		}
	}
	q.events = kept
	heap.Init(q)
}
