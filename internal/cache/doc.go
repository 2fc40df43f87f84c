// Package cache provides a generic, thread-safe LRU cache.
//
//	c := cache.New[string, *shader.Program](64)
//	c.Set(key, prog)
//	prog, ok := c.Get(key)
//
// The cache holds at most its capacity; adding beyond it evicts the least
// recently used entry. An optional eviction callback releases resources
// owned by evicted values.
package cache
