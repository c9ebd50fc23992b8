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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type stringer int

func (s stringer) String() string {
	return "s" + strconv.Itoa(int(s))
}

func TestStringFunc(t *testing.T) {
	var nilMap *Map[string, int]
	require.Equal(t, "openmap.Map[]", StringFunc(nilMap, nil, nil))

	m := mustNew[string, int](t, 0, StringKeys{})
	require.Equal(t, "openmap.Map[]", StringFunc(m, nil, nil))

	for i, k := range []string{"c", "a", "b"} {
		require.NoError(t, m.Put(k, i))
	}
	require.Equal(t, "openmap.Map[a:1 b:2 c:0]",
		StringFunc(m, func(k string) string { return k }, strconv.Itoa))
}

func TestString(t *testing.T) {
	m := mustNew[stringer, stringer](t, 0, IntKeys[stringer]{})
	require.NoError(t, m.Put(2, 20))
	require.NoError(t, m.Put(1, 10))
	require.Equal(t, "openmap.Map[s1:s10 s2:s20]", String(m))
}

func TestEqual(t *testing.T) {
	m1 := mustNew[int, int](t, 0, IntKeys[int]{})
	m2 := mustNew[int, int](t, 64, IntKeys[int]{})
	require.True(t, Equal(m1, m2))

	for i := 1; i <= 20; i++ {
		require.NoError(t, m1.Put(i, i))
	}
	require.False(t, Equal(m1, m2))
	for i := 20; i >= 1; i-- {
		require.NoError(t, m2.Put(i, i))
	}
	require.True(t, Equal(m1, m2))
	require.True(t, Equal(m2, m1))

	require.NoError(t, m2.Put(5, -5))
	require.False(t, Equal(m1, m2))
	require.True(t, EqualFunc(m1, m2, func(a, b int) bool {
		return a == b || a == -b
	}))

	require.True(t, m2.Remove(5))
	require.NoError(t, m2.Put(21, 5))
	require.False(t, Equal(m1, m2))
}
