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

// Package runner schedules per-file work, sequentially or with bounded
// concurrency.
package runner

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// 🏃 Task is one unit of per-file work. A task owns its failure reporting;
// returning an error aborts the whole batch and is reserved for cancellation
// and unrecoverable conditions.
type Task func(ctx context.Context) error

// 🏃 Runner executes batches of tasks
type Runner struct {
	workers int
}

// 🏗️ New creates a runner. workers <= 1 selects strictly sequential
// execution, which preserves batch ordering.
func New(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{workers: workers}
}

// 🏃 Run executes the batch
func (r *Runner) Run(ctx context.Context, tasks []Task) error {
	if r.workers == 1 {
		return r.runSequential(ctx, tasks)
	}
	return r.runConcurrent(ctx, tasks)
}

// 🔄 runSequential runs tasks in order, stopping on cancellation
func (r *Runner) runSequential(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return errors.Errorf("batch cancelled: %w", err)
		}
		if err := task(ctx); err != nil {
			return errors.Errorf("executing task: %w", err)
		}
	}
	return nil
}

// ⚡ runConcurrent runs tasks with at most workers in flight
func (r *Runner) runConcurrent(ctx context.Context, tasks []Task) error {
	zerolog.Ctx(ctx).Debug().Int("workers", r.workers).Int("tasks", len(tasks)).Msg("running batch concurrently")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Errorf("executing batch: %w", err)
	}
	return nil
}
