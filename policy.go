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

import (
	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// KeyPolicy describes how a Map hashes and compares keys of type K, and
// which value of K marks an empty slot.
//
// The following requirements are the user's responsibility to follow:
//   - Hash must be deterministic for the lifetime of the Map, and
//     Equal(a, b) must imply Hash(a) == Hash(b).
//   - Equal must be reflexive, symmetric and transitive.
//   - Null is never passed to Lookup, Remove, Get or Put. Doing so panics.
//     Emptiness is tested with ==, so Equal and Hash are never called with
//     the null key.
//   - Only the low bits of Hash select the home slot of a key. A hash
//     function that does not mix into its low bits will produce long probe
//     sequences.
type KeyPolicy[K comparable] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
	Null() K
}

// Funcs adapts a pair of functions and a sentinel value to the KeyPolicy
// interface. A nil EqualFn compares keys with ==.
type Funcs[K comparable] struct {
	HashFn  func(key K) uint64
	EqualFn func(a, b K) bool
	NullKey K
}

var _ KeyPolicy[string] = Funcs[string]{}

// Hash implements KeyPolicy.
func (f Funcs[K]) Hash(key K) uint64 {
	return f.HashFn(key)
}

// Equal implements KeyPolicy.
func (f Funcs[K]) Equal(a, b K) bool {
	if f.EqualFn == nil {
		return a == b
	}
	return f.EqualFn(a, b)
}

// Null implements KeyPolicy.
func (f Funcs[K]) Null() K {
	return f.NullKey
}

// StringKeys is the KeyPolicy for non-empty string keys. Keys are hashed
// with xxhash and the empty string is the null key.
type StringKeys struct{}

var _ KeyPolicy[string] = StringKeys{}

// Hash implements KeyPolicy.
func (StringKeys) Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Equal implements KeyPolicy.
func (StringKeys) Equal(a, b string) bool {
	return a == b
}

// Null implements KeyPolicy.
func (StringKeys) Null() string {
	return ""
}

// DJBStringKeys is like StringKeys, but hashes with Bernstein's djb hash.
// It is cheaper than xxhash for very short keys, at the cost of a weaker
// distribution.
type DJBStringKeys struct{}

var _ KeyPolicy[string] = DJBStringKeys{}

// Hash implements KeyPolicy.
func (DJBStringKeys) Hash(key string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(key); i++ {
		h = h*33 + uint64(key[i])
	}
	return h
}

// Equal implements KeyPolicy.
func (DJBStringKeys) Equal(a, b string) bool {
	return a == b
}

// Null implements KeyPolicy.
func (DJBStringKeys) Null() string {
	return ""
}

// IntKeys is the KeyPolicy for non-zero integer keys. Zero is the null key.
type IntKeys[I constraints.Integer] struct{}

var _ KeyPolicy[int] = IntKeys[int]{}

// Hash implements KeyPolicy. It is the murmur3 64-bit finalizer, which
// spreads sequential keys across the low bits used to pick a home slot.
func (IntKeys[I]) Hash(key I) uint64 {
	h := uint64(key)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// Equal implements KeyPolicy.
func (IntKeys[I]) Equal(a, b I) bool {
	return a == b
}

// Null implements KeyPolicy.
func (IntKeys[I]) Null() I {
	return 0
}
