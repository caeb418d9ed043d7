package hud

// lruNode is one cached entry, linked newest to oldest.
type lruNode[K comparable, V any] struct {
	key        K
	value      V
	prev, next *lruNode[K, V]
}

// lru is a fixed-capacity least-recently-used map.
// It is not safe for concurrent use; Overlay guards it with its mutex.
type lru[K comparable, V any] struct {
	capacity int
	items    map[K]*lruNode[K, V]
	head     *lruNode[K, V] // most recently used
	tail     *lruNode[K, V] // least recently used

	hits, misses uint64
}

func newLRU[K comparable, V any](capacity int) *lru[K, V] {
	return &lru[K, V]{
		capacity: max(capacity, 1),
		items:    make(map[K]*lruNode[K, V], capacity),
	}
}

func (c *lru[K, V]) len() int { return len(c.items) }

// get returns the value for key and marks it most recently used.
func (c *lru[K, V]) get(key K) (V, bool) {
	n, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.moveToFront(n)
	return n.value, true
}

// put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *lru[K, V]) put(key K, value V) {
	if n, ok := c.items[key]; ok {
		n.value = value
		c.moveToFront(n)
		return
	}
	if len(c.items) >= c.capacity {
		old := c.tail
		c.unlink(old)
		delete(c.items, old.key)
	}
	n := &lruNode[K, V]{key: key, value: value}
	c.pushFront(n)
	c.items[key] = n
}

func (c *lru[K, V]) pushFront(n *lruNode[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *lru[K, V]) moveToFront(n *lruNode[K, V]) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *lru[K, V]) unlink(n *lruNode[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
