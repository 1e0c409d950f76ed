// Copyright 2025 seqops LLC
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

package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

// 🧪 TestRunSequentialPreservesOrder checks ordering with one worker
func TestRunSequentialPreservesOrder(t *testing.T) {
	var order []int
	var tasks []Task
	for i := 0; i < 5; i++ {
		i := i
		tasks = append(tasks, func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, New(1).Run(context.Background(), tasks))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

// 🧪 TestRunConcurrentRunsAll checks every task executes
func TestRunConcurrentRunsAll(t *testing.T) {
	var count atomic.Int64
	var tasks []Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, func(ctx context.Context) error {
			count.Add(1)
			return nil
		})
	}

	require.NoError(t, New(4).Run(context.Background(), tasks))
	assert.Equal(t, int64(20), count.Load())
}

// 🧪 TestRunSequentialStopsOnError checks later tasks do not run
func TestRunSequentialStopsOnError(t *testing.T) {
	var mu sync.Mutex
	var ran []string

	tasks := []Task{
		func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, "first")
			return nil
		},
		func(ctx context.Context) error {
			return errors.New("boom")
		},
		func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, "third")
			return nil
		},
	}

	err := New(1).Run(context.Background(), tasks)
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, ran)
}

// 🧪 TestRunHonorsCancellation checks a cancelled context aborts the batch
func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := New(1).Run(ctx, []Task{func(ctx context.Context) error {
		ran = true
		return nil
	}})

	require.Error(t, err)
	assert.False(t, ran)
}

// 🧪 TestNewClampsWorkers checks a nonsensical worker count is corrected
func TestNewClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0).workers)
	assert.Equal(t, 1, New(-3).workers)
	assert.Equal(t, 8, New(8).workers)
}
