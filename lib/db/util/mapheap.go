// Package util
//
// This file provides a min-priority queue with key-based access.
//
// The implementation combines a binary heap with a hash map, which gives both
// priority ordered removal and O(1) membership checks by key:
//   - O(log n) for priority operations (AddItem, PopMin, RemoveByKey)
//   - O(1) for Contains and GetByKey
//
// It serves two purposes in this module:
//   - k-way merging: the trie engine keys the heap by shard and uses the next
//     key of that shard's iterator as priority, which yields a globally
//     ascending traversal over independently ordered shards.
//   - identifier recycling: the registry keys and prioritizes freed entity
//     ids by the id itself, so the lowest free id is always reused first and
//     a double free is detected by Contains.
//
// Note: This implementation is not thread-safe; callers synchronize externally.
//
// Example usage:
//
//	h := NewMapHeap()
//	h.AddItem(3, 30)
//	h.AddItem(1, 10)
//
//	key, priority, ok := h.PopMin() // 1, 10, true
package util

import (
	"container/heap"
	"strconv"
)

// item is an entry of the heap identified by Key and ordered by Priority
type item struct {
	Key      uint64 // Unique identifier for the item
	Priority uint64 // Ordering of the item, lowest first
	index    int    // Index in the heap, maintained by heap package
}

func (i *item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap implements a min-priority queue with key-based access
type MapHeap struct {
	items    []*item          // The actual heap slice
	itemsMap map[uint64]*item // Map for O(1) access by key
}

// NewMapHeap creates a new empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[uint64]*item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less compares items by priority (part of heap.Interface)
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (h *MapHeap) Push(x interface{}) {
	n := len(h.items)
	item := x.(*item)
	item.index = n
	h.items = append(h.items, item)
	h.itemsMap[item.Key] = item
}

// Pop removes and returns the last item (part of heap.Interface)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or updates the priority of an existing one
func (h *MapHeap) AddItem(key, priority uint64) {
	if item, exists := h.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(h, item.index)
		return
	}

	heap.Push(h, &item{
		Key:      key,
		Priority: priority,
	})
}

// PopMin removes the item with the lowest priority
func (h *MapHeap) PopMin() (key, priority uint64, ok bool) {
	if len(h.items) == 0 {
		return 0, 0, false
	}
	item := heap.Pop(h).(*item)
	return item.Key, item.Priority, true
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	item, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(h, item.index)
	return item.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (h *MapHeap) Peek() (key, priority uint64, ok bool) {
	if len(h.items) == 0 {
		return 0, 0, false
	}
	return h.items[0].Key, h.items[0].Priority, true
}

// Contains checks if a key exists in the queue
func (h *MapHeap) Contains(key uint64) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey returns the priority of an item without removing it
func (h *MapHeap) GetByKey(key uint64) (uint64, bool) {
	item, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	return item.Priority, true
}
