package datastruct

// Node is an element of a List. A node stays valid until it is removed,
// so callers can keep it as a handle for O(1) removal.
type Node[T any] struct {
	prev  *Node[T]
	next  *Node[T]
	list  *List[T]
	value T
}

func (n *Node[T]) Prev() *Node[T] { return n.prev }
func (n *Node[T]) Next() *Node[T] { return n.next }
func (n *Node[T]) Value() T {
	return n.value
}

// List is a doubly linked list. It is not safe for concurrent use.
type List[T any] struct {
	head *Node[T]
	tail *Node[T]
	len  int
}

func NewList[T any]() *List[T] {
	return &List[T]{}
}

func (l *List[T]) Len() int {
	return l.len
}

func (l *List[T]) Head() *Node[T] {
	return l.head
}

func (l *List[T]) Tail() *Node[T] {
	return l.tail
}

func (l *List[T]) PushFront(value T) *Node[T] {
	node := &Node[T]{value: value, list: l}

	if l.len == 0 {
		l.head = node
		l.tail = node
	} else {
		node.next = l.head
		l.head.prev = node
		l.head = node
	}

	l.len++
	return node
}

func (l *List[T]) PushBack(value T) *Node[T] {
	node := &Node[T]{value: value, list: l}

	if l.len == 0 {
		l.head = node
		l.tail = node
	} else {
		node.prev = l.tail
		l.tail.next = node
		l.tail = node
	}

	l.len++
	return node
}

// Remove unlinks node. Removing a node twice, or a node of another list, is a no-op.
func (l *List[T]) Remove(node *Node[T]) bool {
	if node == nil || node.list != l || l.len == 0 {
		return false
	}

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.list = nil
	l.len--
	return true
}

func (l *List[T]) PopFront() (T, bool) {
	if l.len == 0 {
		var zero T
		return zero, false
	}
	node := l.head
	l.Remove(node)
	return node.value, true
}

func (l *List[T]) PopBack() (T, bool) {
	if l.len == 0 {
		var zero T
		return zero, false
	}
	node := l.tail
	l.Remove(node)
	return node.value, true
}

func (l *List[T]) Get(index int) (T, bool) {
	if index < 0 {
		index = l.len + index
	}
	if index < 0 || index >= l.len {
		var zero T
		return zero, false
	}

	var cur *Node[T]
	if index < l.len/2 {
		cur = l.head
		for i := 0; i < index; i++ {
			cur = cur.next
		}
	} else {
		cur = l.tail
		for i := l.len - 1; i > index; i-- {
			cur = cur.prev
		}
	}

	return cur.value, true
}

// Each walks the list from head to tail until fn returns false.
func (l *List[T]) Each(fn func(value T) bool) {
	for cur := l.head; cur != nil; cur = cur.next {
		if !fn(cur.value) {
			return
		}
	}
}

// Drain removes every element and returns them in order.
func (l *List[T]) Drain() []T {
	out := make([]T, 0, l.len)
	for cur := l.head; cur != nil; {
		next := cur.next
		out = append(out, cur.value)
		cur.prev, cur.next, cur.list = nil, nil, nil
		cur = next
	}
	l.head, l.tail, l.len = nil, nil, 0
	return out
}
