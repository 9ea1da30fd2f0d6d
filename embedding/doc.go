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


// Package embedding turns ordered segment texts into vectors in bounded batches.
//
// Requests are paced by a shared rate limiter so concurrent sources together
// respect the configured spacing. Each batch is retried under the shared
// retry policy; what happens after retries are exhausted depends on the
// deployment's Policy, which never changes within a run.
package embedding
