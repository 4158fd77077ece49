// Package dsa provides the ordered key index used by the history store.
// Uses go-radix for a compressed prefix tree (radix tree).
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for a compressed prefix tree. Walks visit keys in
// lexicographic order, so prefix scans come back sorted.
//
// Not safe for concurrent use; callers hold their own lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds or replaces a key.
// Time Complexity: O(k) where k is key length.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// WithPrefix returns the values of every key starting with prefix, in
// key order.
// Time Complexity: O(k + m) where k is prefix length, m is number of matches.
func (t *Trie[V]) WithPrefix(prefix string) []V {
	var results []V
	t.tree.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		if val, ok := v.(V); ok {
			results = append(results, val)
		}
		return false // continue walking
	})
	return results
}

// Size returns the number of keys in the tree.
func (t *Trie[V]) Size() int {
	return t.tree.Len()
}

// Clear removes all keys from the tree.
func (t *Trie[V]) Clear() {
	t.tree = radix.New()
}
