// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openmap is a Go implementation of a flat, linearly probed,
// open-addressing hash table with caller supplied hashing, equality and
// empty-slot sentinel. See https://en.wikipedia.org/wiki/Open_addressing
// and https://en.wikipedia.org/wiki/Linear_probing.
//
// # Layout
//
// A Map owns a single backing array of 2^N slots. Each slot holds a key and
// a value inline; there is no metadata array, no chaining and no
// tombstones. A slot is empty iff its key is the null key of the KeyPolicy.
// The home slot of a key is hash(key) & (capacity-1). A key lives either at
// its home slot or at the first empty slot found by scanning forward from
// it (wrapping from the end of the array to the start):
//
//	home(k)
//	  |
//	  v
//	+---+---+---+---+---+---+---+---+
//	|   | a | b | k |   | c |   |   |
//	+---+---+---+---+---+---+---+---+
//	      ^-------^
//	      all slots from home(k) to k are non-empty
//
// This is the probe-sequence invariant: every slot on the path from a key's
// home slot to the slot holding it is occupied. Lookups stop at the first
// empty slot, so the invariant is what makes every live key findable.
//
// # Load factor
//
// After every insertion the map enforces used + used/4 < capacity, i.e. a
// maximum load factor of 80% computed with integer math. Crossing the
// threshold doubles the capacity and rehashes every entry. The map never
// shrinks. Because at least one slot is always empty, probe loops always
// terminate.
//
// # Deletion
//
// Simply emptying a slot would cut the probe path of any key that was
// displaced past it. Instead of leaving a tombstone, Remove scans forward
// from the vacated slot p to the next empty slot. Each key found at q
// whose home slot is not in the cyclic range (p, q] can be moved back to p
// and still be found; it is moved and q becomes the slot to vacate. When
// the scan reaches an empty slot, the slot currently pending is emptied.
// See Knuth, TAOCP Vol. 3, Algorithm 6.4R.
//
// # Handles
//
// Lookup returns a Handle, which is a slot index paired with the generation
// of the map when it was produced. Resizing, Remove and Clear can relocate
// entries, so each of them bumps the generation. Dereferencing a Handle
// from an older generation panics rather than silently reading another
// key's slot.
//
// A Map is NOT goroutine-safe.
package openmap

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	debug = false

	// DefaultCapacity is the capacity of a Map created with an initial
	// capacity of 0.
	DefaultCapacity = 8

	maxCapacity = 1 << (bits.UintSize - 2)
)

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Map is an unordered map from keys to values with Lookup, Remove, Clear
// and iteration operations. Keys are hashed and compared by a KeyPolicy.
// The zero value of Map is not usable; construct one with New or Init.
type Map[K comparable, V any] struct {
	policy KeyPolicy[K]
	// null is policy.Null(), cached so that the emptiness test on every
	// probed slot is a plain comparison.
	null K
	// The allocator to use for the slots slice.
	allocator Allocator[K, V]
	// slots is the backing array. Its length is the capacity, always a power
	// of two. It is nil after Close.
	slots []Slot[K, V]
	// mask is len(slots)-1 and is used to compute i%capacity.
	mask uintptr
	// The number of non-empty slots.
	used int
	// gen is incremented whenever entries may have moved. See Handle.
	gen uint64
}

// New constructs a new Map with the specified initial capacity, which must
// be a power of two. If initialCapacity is 0, DefaultCapacity is used. The
// only error returned is an allocation failure.
func New[K comparable, V any](
	initialCapacity int, policy KeyPolicy[K], options ...option[K, V],
) (*Map[K, V], error) {
	m := &Map[K, V]{}
	if err := m.Init(initialCapacity, policy, options...); err != nil {
		return nil, err
	}
	return m, nil
}

// Init initializes a Map with the specified initial capacity, key policy
// and options. Init can be called on a previously used Map in order to
// reset it; the previous backing array is released to its allocator and
// all handles into it become stale.
func (m *Map[K, V]) Init(initialCapacity int, policy KeyPolicy[K], options ...option[K, V]) error {
	if initialCapacity == 0 {
		initialCapacity = DefaultCapacity
	}
	if initialCapacity < 0 || initialCapacity&(initialCapacity-1) != 0 {
		panic(errors.AssertionFailedf("openmap: initial capacity %d is not a power of two", initialCapacity))
	}
	if policy == nil {
		panic(errors.AssertionFailedf("openmap: nil key policy"))
	}

	m.Close()
	*m = Map[K, V]{
		policy:    policy,
		null:      policy.Null(),
		allocator: defaultAllocator[K, V]{},
		gen:       m.gen,
	}
	for _, op := range options {
		op.apply(m)
	}

	slots, err := m.allocSlots(uintptr(initialCapacity))
	if err != nil {
		return err
	}
	m.slots = slots
	m.mask = uintptr(initialCapacity) - 1
	m.checkInvariants()
	return nil
}

// Close releases the backing array to the configured allocator. It is
// unnecessary to close a map using the default allocator. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	if m.slots != nil {
		m.allocator.Free(m.slots)
	}
	m.slots = nil
	m.mask = 0
	m.used = 0
	m.gen++
}

// Lookup finds the entry for key. If no entry exists and insert is true, a
// new entry is created holding key and the zero value of V; the caller sets
// the value through the returned handle. If no entry exists and insert is
// false, the zero Handle is returned (h.Found() is false).
//
// Inserting may grow the map, which invalidates all previously returned
// handles. If the allocator cannot provide the larger backing array the
// insertion is undone and an error marked with ErrAllocation is returned.
func (m *Map[K, V]) Lookup(key K, insert bool) (Handle[K, V], error) {
	m.checkKey(key)
	i := m.probe(key)
	if m.slots[i].key != m.null {
		return m.handle(i), nil
	}
	if !insert {
		if debug {
			fmt.Printf("lookup(%v): not found at index=%d\n", key, i)
		}
		return Handle[K, V]{}, nil
	}

	m.slots[i] = Slot[K, V]{key: key}
	m.used++
	if debug {
		fmt.Printf("lookup(%v): inserted at index=%d home=%d used=%d\n", key, i, m.home(key), m.used)
	}

	// Grow the map if we reached >= 80% occupancy.
	if m.used+m.used/4 >= len(m.slots) {
		if err := m.resize(2 * uintptr(len(m.slots))); err != nil {
			// The slot was empty before this call, so emptying it again
			// restores the previous state exactly.
			m.slots[i] = Slot[K, V]{key: m.null}
			m.used--
			return Handle[K, V]{}, err
		}
		i = m.probe(key)
	}
	m.checkInvariants()
	return m.handle(i), nil
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	m.checkKey(key)
	i := m.probe(key)
	if s := &m.slots[i]; s.key != m.null {
		return s.value, true
	}
	return value, false
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists.
func (m *Map[K, V]) Put(key K, value V) error {
	h, err := m.Lookup(key, true)
	if err != nil {
		return err
	}
	h.SetValue(value)
	return nil
}

// Remove deletes the entry for key, reporting whether it was present. All
// previously returned handles become stale if an entry was removed.
func (m *Map[K, V]) Remove(key K) bool {
	m.checkKey(key)
	p := m.probe(key)
	if m.slots[p].key == m.null {
		if debug {
			fmt.Printf("remove(%v): not found at index=%d\n", key, p)
		}
		return false
	}

	// p is the slot pending to be emptied. Scan forward with q until an
	// empty slot. A key at q whose home r lies outside the cyclic range
	// (p, q] probes through p before reaching q, so it is still found if it
	// is moved back to p. After moving it, q is the slot pending instead.
	// Keys whose home lies inside (p, q] never probe through p and stay put.
	//
	// There is always at least one empty slot, so the scan terminates.
	for q := (p + 1) & m.mask; m.slots[q].key != m.null; q = (q + 1) & m.mask {
		r := m.home(m.slots[q].key)
		if (q > p && (r <= p || r > q)) || (q < p && r <= p && r > q) {
			if debug {
				fmt.Printf("remove(%v): moving %v from index=%d to index=%d home=%d\n",
					key, m.slots[q].key, q, p, r)
			}
			m.slots[p] = m.slots[q]
			p = q
		}
	}

	m.slots[p] = Slot[K, V]{key: m.null}
	m.used--
	m.gen++
	if debug {
		fmt.Printf("remove(%v): emptied index=%d used=%d\n", key, p, m.used)
	}
	m.checkInvariants()
	return true
}

// Clear deletes all entries from the map, retaining its capacity. All
// previously returned handles become stale.
func (m *Map[K, V]) Clear() {
	for i := range m.slots {
		m.slots[i] = Slot[K, V]{key: m.null}
	}
	m.used = 0
	m.gen++
	m.checkInvariants()
}

// Resize doubles the capacity of the map and rehashes every entry. Lookup
// calls it automatically when the load factor reaches 80%; calling it
// manually only trades memory for shorter probe sequences. On allocation
// failure the map is left unchanged and an error marked with ErrAllocation
// is returned.
func (m *Map[K, V]) Resize() error {
	m.checkOpen()
	return m.resize(2 * uintptr(len(m.slots)))
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Capacity returns the number of slots in the backing array. The map keeps
// Len() at most 80% of Capacity().
func (m *Map[K, V]) Capacity() int {
	return len(m.slots)
}

// resize allocates a backing array of newCapacity slots, re-inserts every
// entry into it, and only then releases the old array. Re-inserting never
// has to check for an existing equal key, so each entry is placed at the
// first empty slot of its new probe sequence.
func (m *Map[K, V]) resize(newCapacity uintptr) error {
	newSlots, err := m.allocSlots(newCapacity)
	if err != nil {
		if debug {
			fmt.Printf("resize: capacity=%d->%d failed: %v\n", len(m.slots), newCapacity, err)
		}
		return err
	}

	oldSlots := m.slots
	m.slots = newSlots
	m.mask = newCapacity - 1
	if debug {
		fmt.Printf("resize: capacity=%d->%d used=%d\n", len(oldSlots), newCapacity, m.used)
	}

	for i := range oldSlots {
		s := &oldSlots[i]
		if s.key == m.null {
			continue
		}
		j := m.home(s.key)
		for m.slots[j].key != m.null {
			j = (j + 1) & m.mask
		}
		m.slots[j] = *s
	}

	m.allocator.Free(oldSlots)
	m.gen++
	m.checkInvariants()
	return nil
}

// allocSlots returns a backing array of n empty slots.
func (m *Map[K, V]) allocSlots(n uintptr) ([]Slot[K, V], error) {
	if n > maxCapacity {
		return nil, allocationError(errors.Newf("capacity exceeds maximum of %d", uintptr(maxCapacity)), n)
	}
	slots, err := m.allocator.Alloc(int(n))
	if err != nil {
		return nil, allocationError(err, n)
	}
	if uintptr(len(slots)) != n {
		panic(errors.AssertionFailedf("openmap: allocator returned %d slots, expected %d", len(slots), n))
	}
	for i := range slots {
		slots[i] = Slot[K, V]{key: m.null}
	}
	return slots, nil
}

// home returns the index of the home slot of key.
func (m *Map[K, V]) home(key K) uintptr {
	return uintptr(m.policy.Hash(key)) & m.mask
}

// probe returns the index of the slot holding key if it is present, or the
// index of the first empty slot on its probe sequence (i.e. where key would
// be inserted) if it is not.
func (m *Map[K, V]) probe(key K) uintptr {
	i := m.home(key)
	if debug {
		fmt.Printf("probe(%v): home=%d capacity=%d\n", key, i, len(m.slots))
	}
	for {
		s := &m.slots[i]
		if s.key == m.null || m.policy.Equal(key, s.key) {
			return i
		}
		i = (i + 1) & m.mask
	}
}

func (m *Map[K, V]) handle(i uintptr) Handle[K, V] {
	return Handle[K, V]{m: m, index: i, gen: m.gen}
}

func (m *Map[K, V]) checkOpen() {
	if m.slots == nil {
		panic(errors.AssertionFailedf("openmap: use of closed or uninitialized map"))
	}
}

func (m *Map[K, V]) checkKey(key K) {
	m.checkOpen()
	if key == m.null {
		panic(errors.AssertionFailedf("openmap: the null key %v cannot be used as a key", key))
	}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		capacity := uintptr(len(m.slots))
		if capacity == 0 || capacity&(capacity-1) != 0 {
			panic(errors.AssertionFailedf("invariant failed: capacity %d is not a power of two", capacity))
		}
		if m.mask != capacity-1 {
			panic(errors.AssertionFailedf("invariant failed: mask %d does not match capacity %d", m.mask, capacity))
		}
		if m.used+m.used/4 >= int(capacity) {
			panic(errors.AssertionFailedf("invariant failed: used=%d exceeds the load factor of capacity=%d\n%s",
				m.used, capacity, m.debugString()))
		}

		// For every non-empty slot, verify probing for its key lands on
		// that slot, i.e. no empty slot or equal key precedes it on its
		// probe sequence.
		var used int
		for i := range m.slots {
			s := &m.slots[i]
			if s.key == m.null {
				continue
			}
			used++
			if j := m.probe(s.key); j != uintptr(i) {
				panic(errors.AssertionFailedf("invariant failed: slot(%d): %v probes to slot(%d) [home=%d]\n%s",
					i, s.key, j, m.home(s.key), m.debugString()))
			}
		}
		if used != m.used {
			panic(errors.AssertionFailedf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  gen=%d\n", len(m.slots), m.used, m.gen)
	for i := range m.slots {
		s := &m.slots[i]
		if s.key == m.null {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		fmt.Fprintf(&buf, "  %4d: %v [home=%d]\n", i, s.key, m.home(s.key))
	}
	return buf.String()
}
