// Copyright 2024 The Keep Authors.
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

//go:build linux

// Package registry tracks the sandboxes a single keep process has started,
// ordered by container uid, and bounds how many may be starting at once.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/keepctl/keep/container"
)

// entry is the btree item: ordered by uid, so List returns containers in a
// stable, deterministic order regardless of start order.
type entry struct {
	uid uint64
	c   *container.Container
}

func (e entry) Less(than btree.Item) bool {
	return e.uid < than.(entry).uid
}

// Registry is an in-process, uid-ordered index of active containers. It
// also bounds concurrency: at most maxConcurrent containers may be mid-Start
// at once, and new starts are rate-limited to avoid a caller fork-bombing
// the host.
type Registry struct {
	mu   sync.Mutex
	tree *btree.BTree

	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New builds a Registry that allows at most maxConcurrent simultaneous
// Start calls, admitted no faster than startsPerSecond (with a burst of
// burst).
func New(maxConcurrent int64, startsPerSecond float64, burst int) *Registry {
	return &Registry{
		tree:    btree.New(32),
		sem:     semaphore.NewWeighted(maxConcurrent),
		limiter: rate.NewLimiter(rate.Limit(startsPerSecond), burst),
	}
}

// Start admits a Start call through the concurrency/rate gates, runs it,
// and — on success — registers c under uid for later lookup/listing.
func (r *Registry) Start(ctx context.Context, uid uint64, c *container.Container) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("registry: rate limit wait: %w", err)
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("registry: concurrency limit wait: %w", err)
	}
	defer r.sem.Release(1)

	if err := c.Start(); err != nil {
		return err
	}

	r.mu.Lock()
	r.tree.ReplaceOrInsert(entry{uid: uid, c: c})
	r.mu.Unlock()
	return nil
}

// Get returns the container registered under uid, if any.
func (r *Registry) Get(uid uint64) (*container.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := r.tree.Get(entry{uid: uid})
	if item == nil {
		return nil, false
	}
	return item.(entry).c, true
}

// Remove drops uid from the registry. It does not touch the container's
// own lifecycle — callers still own calling Delete/Close on it.
func (r *Registry) Remove(uid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(entry{uid: uid})
}

// List returns every registered uid in ascending order.
func (r *Registry) List() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	uids := make([]uint64, 0, r.tree.Len())
	r.tree.Ascend(func(item btree.Item) bool {
		uids = append(uids, item.(entry).uid)
		return true
	})
	return uids
}

// Len reports how many containers are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}
