package iterable

import "io"

// Iterator returns items in a collection with every call to Next().
// The error will be set to io.EOF when the iterator is complete.
type Iterator[T any] interface {
	Next() (T, error)
}

type iterator[T any] struct {
	next func() (T, error)
}

func (it *iterator[T]) Next() (T, error) {
	return it.next()
}

func NewIterator[T any](next func() (T, error)) Iterator[T] {
	return &iterator[T]{next}
}

// From returns an iterator over the items of a slice.
func From[T any](items []T) Iterator[T] {
	i := 0
	return NewIterator(func() (T, error) {
		if i >= len(items) {
			var undef T
			return undef, io.EOF
		}
		item := items[i]
		i++
		return item, nil
	})
}

// Concat chains iterators, draining each in turn.
func Concat[T any](iterators ...Iterator[T]) Iterator[T] {
	i := 0
	return NewIterator(func() (T, error) {
		for {
			if i >= len(iterators) {
				var undef T
				return undef, io.EOF
			}
			item, err := iterators[i].Next()
			if err == io.EOF {
				i++
				continue
			}
			return item, err
		}
	})
}

func Collect[T any](it Iterator[T]) ([]T, error) {
	var items []T
	for {
		item, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
