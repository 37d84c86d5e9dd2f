package queue

// Queue is a double-ended sequence used for pending utterances and for
// planned search actions. It keeps a running count of popped elements so
// callers can tell how far into a backlog they are; Reset zeroes it.
type Queue[T any] struct {
	Items  []T `json:"items"`
	Popped int `json:"popped"`
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{Items: []T{}}
}

func (q *Queue[T]) Len() int {
	return len(q.Items)
}

func (q *Queue[T]) Empty() bool {
	return len(q.Items) == 0
}

// PopHead removes and returns the first element. ok is false on an empty queue.
func (q *Queue[T]) PopHead() (T, bool) {
	var zero T
	if len(q.Items) == 0 {
		return zero, false
	}
	v := q.Items[0]
	q.Items = q.Items[1:]
	q.Popped++
	return v, true
}

// PopTail removes and returns the last element. ok is false on an empty queue.
func (q *Queue[T]) PopTail() (T, bool) {
	var zero T
	if len(q.Items) == 0 {
		return zero, false
	}
	v := q.Items[len(q.Items)-1]
	q.Items = q.Items[:len(q.Items)-1]
	q.Popped++
	return v, true
}

func (q *Queue[T]) PushHead(v T) {
	q.Items = append([]T{v}, q.Items...)
}

func (q *Queue[T]) PushTail(v T) {
	q.Items = append(q.Items, v)
}

// ExtendHead bulk-inserts at the head. Elements land in reverse of input
// order: ExtendHead(a, b, c) leaves c at the head. Stage-5 recovery relies on
// this stack-like behavior when it pushes a repair sequence in front of a
// retried instruction, so the reversal is load-bearing.
func (q *Queue[T]) ExtendHead(vs ...T) {
	for _, v := range vs {
		q.PushHead(v)
	}
}

// ExtendTail bulk-appends in input order.
func (q *Queue[T]) ExtendTail(vs ...T) {
	q.Items = append(q.Items, vs...)
}

// Reset clears the queue and zeroes the popped counter.
func (q *Queue[T]) Reset() {
	q.Items = []T{}
	q.Popped = 0
}
