package xfs

import "container/list"

// inodeCache is a small fixed-capacity LRU keyed by absolute inode number.
// spec.md §3 permits but does not require one: "a bounded LRU keyed by
// inode number is permitted as an optimisation". Grounded on the
// fixed-backing-slice discipline of util/bitmap.Bitmap in the teacher: a
// single allocation-sized structure with no unbounded growth.
type inodeCache struct {
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

type inodeCacheEntry struct {
	number uint64
	inode  *inode
}

func newInodeCache(capacity int) *inodeCache {
	if capacity <= 0 {
		return nil
	}
	return &inodeCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element, capacity),
	}
}

func (c *inodeCache) get(number uint64) (*inode, bool) {
	if c == nil {
		return nil, false
	}
	el, ok := c.items[number]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*inodeCacheEntry).inode, true
}

func (c *inodeCache) put(number uint64, in *inode) {
	if c == nil {
		return
	}
	if el, ok := c.items[number]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*inodeCacheEntry).inode = in
		return
	}
	el := c.ll.PushFront(&inodeCacheEntry{number: number, inode: in})
	c.items[number] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*inodeCacheEntry).number)
		}
	}
}
