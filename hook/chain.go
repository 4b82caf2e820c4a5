package hook

import "fmt"

// node is one link in the chain. The chain is doubly linked so a response
// can resume traversal in reverse from wherever the matching request left
// off, preserving symmetric coverage between the two passes.
type node struct {
	client Client
	prev   *node
	next   *node
}

// Chain is the ordered sequence of hooks a Passthrough Context drives
// requests, responses, and notifications through. Requests traverse head
// to tail; the corresponding response traverses tail-to-head starting at
// the node that returned Respond (or at the tail), so a hook that short-circuits a
// request never sees its own response pass back through it twice and a
// hook earlier in the chain never misses the response it would otherwise
// have seen.
type Chain struct {
	head *node
	tail *node
	len  int
}

// NewChain builds an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Len reports the number of hooks currently in the chain.
func (c *Chain) Len() int { return c.len }

// Append adds client as the new tail.
func (c *Chain) Append(client Client) {
	n := &node{client: client}
	if c.tail == nil {
		c.head, c.tail = n, n
	} else {
		n.prev = c.tail
		c.tail.next = n
		c.tail = n
	}
	c.len++
}

// Prepend adds client as the new head.
func (c *Chain) Prepend(client Client) {
	n := &node{client: client}
	if c.head == nil {
		c.head, c.tail = n, n
	} else {
		n.next = c.head
		c.head.prev = n
		c.head = n
	}
	c.len++
}

// RemoveFirst removes the first client named name, searching from the
// head, and reports whether one was removed.
func (c *Chain) RemoveFirst(name string) bool {
	for n := c.head; n != nil; n = n.next {
		if n.client.Name() == name {
			c.unlink(n)
			return true
		}
	}
	return false
}

// RemoveLast removes the last client named name, searching from the tail,
// and reports whether one was removed.
func (c *Chain) RemoveLast(name string) bool {
	for n := c.tail; n != nil; n = n.prev {
		if n.client.Name() == name {
			c.unlink(n)
			return true
		}
	}
	return false
}

func (c *Chain) unlink(n *node) {
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
	c.len--
}

// FindByName returns the client named name, or nil if absent.
func (c *Chain) FindByName(name string) Client {
	for n := c.head; n != nil; n = n.next {
		if n.client.Name() == name {
			return n.client
		}
	}
	return nil
}

// Names returns the hook names in head-to-tail order, mostly useful for
// diagnostics and tests.
func (c *Chain) Names() []string {
	names := make([]string, 0, c.len)
	for n := c.head; n != nil; n = n.next {
		names = append(names, n.client.Name())
	}
	return names
}

// Cursor identifies a position within the chain, used to resume a
// response traversal from the hook that short-circuited the request (or
// from the tail, if no hook did).
type Cursor struct {
	n *node
}

// String renders the cursor's hook name, or "<tail>" if it points past
// the end of the chain.
func (p Cursor) String() string {
	if p.n == nil {
		return "<tail>"
	}
	return fmt.Sprintf("<%s>", p.n.client.Name())
}

// HeadCursor is the starting point for a forward (request-path) traversal.
func (c *Chain) HeadCursor() Cursor { return Cursor{c.head} }

// TailCursor is the starting point for a reverse traversal that was never
// short-circuited on the way in — i.e. it ran every hook's request-path
// method and must now run every hook's response-path method, starting
// from the tail.
func (c *Chain) TailCursor() Cursor { return Cursor{c.tail} }

// forward walks from cur (inclusive) to the tail, calling fn for each
// client in order. fn returns (result, stop): stop ends the traversal
// early (a Respond or Abort) and the cursor it returns identifies where the
// resulting response traversal should resume from.
func (c *Chain) forward(cur Cursor, fn func(Client) (Result, bool)) (Result, Cursor) {
	var last Result
	for n := cur.n; n != nil; n = n.next {
		res, stop := fn(n.client)
		last = res
		if stop {
			return res, Cursor{n}
		}
	}
	return last, Cursor{nil}
}

// reverse walks from cur (inclusive) back to the head, calling fn for each
// client in order.
func (c *Chain) reverse(cur Cursor, fn func(Client) (Result, bool)) (Result, Cursor) {
	start := cur.n
	if start == nil {
		start = c.tail
	}
	var last Result
	for n := start; n != nil; n = n.prev {
		res, stop := fn(n.client)
		last = res
		if stop {
			return res, Cursor{n}
		}
	}
	return last, Cursor{nil}
}
