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

// ErrAllocation marks every error caused by the Allocator failing to provide
// a backing array, including a requested capacity that cannot be
// represented. Test for it with errors.Is.
var ErrAllocation = errors.New("openmap: allocation failed")

func allocationError(err error, n uintptr) error {
	return errors.Mark(errors.Wrapf(err, "allocating %d slots", n), ErrAllocation)
}
