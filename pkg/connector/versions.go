package connector

import "container/list"

// versionCache is the in-memory working copy of a connector's per-item
// version map, capped so the persisted map cannot grow unbounded. Recency is
// rebuilt per tick: entries restored from the store start in arbitrary order
// and are promoted as items are seen.
type versionCache struct {
	versions map[string]*list.Element
	order    *list.List // front = most recently seen
	cap      int
}

type versionEntry struct {
	id      string
	version string
}

func newVersionCache(initial map[string]string, cap int) *versionCache {
	c := &versionCache{
		versions: make(map[string]*list.Element, len(initial)),
		order:    list.New(),
		cap:      cap,
	}
	for id, version := range initial {
		c.versions[id] = c.order.PushBack(&versionEntry{id: id, version: version})
	}
	return c
}

func (c *versionCache) get(id string) (string, bool) {
	elem, ok := c.versions[id]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*versionEntry).version, true
}

func (c *versionCache) put(id, version string) {
	if elem, ok := c.versions[id]; ok {
		elem.Value.(*versionEntry).version = version
		c.order.MoveToFront(elem)
		return
	}
	c.versions[id] = c.order.PushFront(&versionEntry{id: id, version: version})
	for len(c.versions) > c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.versions, oldest.Value.(*versionEntry).id)
	}
}

func (c *versionCache) snapshot() map[string]string {
	out := make(map[string]string, len(c.versions))
	for id, elem := range c.versions {
		out[id] = elem.Value.(*versionEntry).version
	}
	return out
}
