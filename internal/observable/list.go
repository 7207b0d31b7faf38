// Package observable provides a slice wrapper that reports every mutation to
// registered observers. Repositories use it to persist on change without
// mixing state mutation with I/O.
package observable

import "slices"

// Observer receives the list contents before and after a mutation. Both
// slices are copies owned by the observer.
//
// An observer must not mutate the List that invoked it, and must not panic;
// either is a programming error. A panic is not recovered: it reaches the
// caller of the mutation, which has already been applied.
type Observer[T any] func(prev, next []T)

// List is an ordered container that notifies observers synchronously after
// each successful mutation, before the mutating call returns.
//
// List is not safe for concurrent use; owners serialise access.
type List[T any] struct {
	items     []T
	observers []Observer[T]
}

func New[T any](items []T) *List[T] {
	return &List[T]{items: slices.Clone(items)}
}

func (l *List[T]) AddObserver(o Observer[T]) {
	l.observers = append(l.observers, o)
}

func (l *List[T]) Len() int { return len(l.items) }

func (l *List[T]) Get(i int) T { return l.items[i] }

// IndexFunc returns the index of the first element matching pred, or -1.
func (l *List[T]) IndexFunc(pred func(T) bool) int {
	return slices.IndexFunc(l.items, pred)
}

// Snapshot returns a copy of the current contents.
func (l *List[T]) Snapshot() []T { return slices.Clone(l.items) }

func (l *List[T]) Append(v ...T) {
	if len(v) == 0 {
		return
	}
	prev := l.Snapshot()
	l.items = append(l.items, v...)
	l.notify(prev)
}

func (l *List[T]) Set(i int, v T) {
	prev := l.Snapshot()
	l.items[i] = v
	l.notify(prev)
}

// RemoveFunc deletes every element matching pred and returns how many were
// removed. Observers are only called when something was removed.
func (l *List[T]) RemoveFunc(pred func(T) bool) int {
	prev := l.Snapshot()
	l.items = slices.DeleteFunc(l.items, pred)
	removed := len(prev) - len(l.items)
	if removed > 0 {
		l.notify(prev)
	}
	return removed
}

func (l *List[T]) notify(prev []T) {
	for _, o := range l.observers {
		o(prev, l.Snapshot())
	}
}
