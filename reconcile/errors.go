// Copyright 2025 Poiesic Systems
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


package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a point store is not provided.
	ErrStoreRequired = errors.New("point store required")

	// ErrSourceNameRequired is returned when an operation has no corpus name.
	ErrSourceNameRequired = errors.New("source name required")

	// ErrSequenceKeyRequired is returned when a single-source purge has no sequence key.
	ErrSequenceKeyRequired = errors.New("sequence key required")

	// ErrEmptyCatalog is returned when orphan detection is given no known sources.
	// Every stored point would count as an orphan.
	ErrEmptyCatalog = errors.New("catalog is empty")
)

// ConfirmationMismatchError aborts a corpus purge whose confirmation text
// does not match. Nothing has been deleted when it is returned.
type ConfirmationMismatchError struct {
	SourceName string
	Expected   string
	Got        string
}

func (e *ConfirmationMismatchError) Error() string {
	return fmt.Sprintf("purge of %s cancelled: confirmation %q does not match %q", e.SourceName, e.Got, e.Expected)
}
