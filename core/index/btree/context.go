package btree

import "github.com/grovedb/grove/core/buffer/pool"

// opContext tracks the write guards held by one structure-modifying
// operation: the guarded path from the shallowest node that might still
// change down to the current node, root-most first, plus the header guard
// while the root itself might change. Guards leave the context the moment
// crabbing proves them unnecessary, and releaseAll backstops every exit
// path (guard release is idempotent).
type opContext struct {
	header *pool.WritePageGuard
	guards []*pool.WritePageGuard
}

func (c *opContext) push(g *pool.WritePageGuard) {
	c.guards = append(c.guards, g)
}

func (c *opContext) top() *pool.WritePageGuard {
	return c.guards[len(c.guards)-1]
}

// pop removes the top guard without releasing it; the caller has already
// done so.
func (c *opContext) pop() {
	c.guards = c.guards[:len(c.guards)-1]
}

// topIsRoot reports whether the top guard is the tree root. The header
// guard is only still held while no node above the top has been proven
// safe, so with a single held guard that guard must be the root.
func (c *opContext) topIsRoot() bool {
	return c.header != nil && len(c.guards) == 1
}

// releaseAncestors drops the header guard and every guard above the
// current node once the current node is proven safe.
func (c *opContext) releaseAncestors() {
	if c.header != nil {
		c.header.Done()
		c.header = nil
	}
	if n := len(c.guards); n > 1 {
		for _, g := range c.guards[:n-1] {
			g.Done()
		}
		c.guards[0] = c.guards[n-1]
		c.guards = c.guards[:1]
	}
}

// releaseAll drops everything, leaf-most first.
func (c *opContext) releaseAll() {
	for i := len(c.guards) - 1; i >= 0; i-- {
		c.guards[i].Done()
	}
	c.guards = nil
	if c.header != nil {
		c.header.Done()
		c.header = nil
	}
}
