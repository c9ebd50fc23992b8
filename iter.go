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

package openmap

import "github.com/cockroachdb/errors"

// Handle refers to an occupied slot of a Map. It is returned by Lookup,
// Start and Next. The zero Handle refers to no slot and is returned when a
// key is absent or iteration is exhausted.
//
// A Handle is valid until the next Remove, Clear, Close or growth of the
// map it came from. Using a stale Handle panics. Inserting a key without
// growing the map does not move entries and leaves handles valid.
type Handle[K comparable, V any] struct {
	m     *Map[K, V]
	index uintptr
	gen   uint64
}

// Found reports whether h refers to a slot.
func (h Handle[K, V]) Found() bool {
	return h.m != nil
}

// Valid reports whether h refers to a slot and has not been invalidated by
// a mutation of its map.
func (h Handle[K, V]) Valid() bool {
	return h.m != nil && h.gen == h.m.gen
}

// Key returns the key stored in the slot.
func (h Handle[K, V]) Key() K {
	return h.slot().key
}

// Value returns the value stored in the slot.
func (h Handle[K, V]) Value() V {
	return h.slot().value
}

// SetValue overwrites the value stored in the slot.
func (h Handle[K, V]) SetValue(value V) {
	h.slot().value = value
}

func (h Handle[K, V]) slot() *Slot[K, V] {
	if h.m == nil {
		panic(errors.AssertionFailedf("openmap: use of an empty handle"))
	}
	if h.gen != h.m.gen {
		panic(errors.AssertionFailedf("openmap: use of a stale handle (generation %d, map at %d)", h.gen, h.m.gen))
	}
	return &h.m.slots[h.index]
}

// Start returns a handle to the first occupied slot in index order, or the
// zero Handle if the map is empty. Iterate with:
//
//	for h := m.Start(); h.Found(); h = m.Next(h) {
//	  ...
//	}
//
// Entries are visited in slot order, which is neither insertion order nor
// hash order. The effect of inserting during iteration is undefined, and
// removing during iteration makes the next call to Next panic.
func (m *Map[K, V]) Start() Handle[K, V] {
	return m.scan(0)
}

// Next returns a handle to the next occupied slot after h, or the zero
// Handle at the end of the map. h must be a valid handle from m.
func (m *Map[K, V]) Next(h Handle[K, V]) Handle[K, V] {
	if h.m != m {
		panic(errors.AssertionFailedf("openmap: handle does not belong to this map"))
	}
	_ = h.slot()
	return m.scan(h.index + 1)
}

// scan returns a handle to the first occupied slot at index >= i.
func (m *Map[K, V]) scan(i uintptr) Handle[K, V] {
	for n := uintptr(len(m.slots)); i < n; i++ {
		if m.slots[i].key != m.null {
			return m.handle(i)
		}
	}
	return Handle[K, V]{}
}

// All calls yield sequentially for each key and value present in the map,
// in slot order. If yield returns false, iteration stops. All has the shape
// of an iter.Seq2, so the map can be ranged over:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// The map must not be mutated during iteration; doing so may cause entries
// to be skipped or visited twice.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the slots so that iteration stays in bounds if the map is
	// resized during iteration.
	slots, null := m.slots, m.null
	for i := range slots {
		if s := &slots[i]; s.key != null {
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Keys calls yield sequentially for each key present in the map. See All.
func (m *Map[K, V]) Keys(yield func(key K) bool) {
	m.All(func(k K, _ V) bool {
		return yield(k)
	})
}

// Values calls yield sequentially for each value present in the map. See
// All.
func (m *Map[K, V]) Values(yield func(value V) bool) {
	m.All(func(_ K, v V) bool {
		return yield(v)
	})
}
