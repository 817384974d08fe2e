// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// forEachInput runs fn for every input path, at most --jobs at a time.
// The first failure cancels the remaining work.
func forEachInput(ctx context.Context, paths []string, fn func(ctx context.Context, path string) error) error {
	workers := int64(jobs)
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		path := path
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(ctx, path)
		})
	}
	return g.Wait()
}

// replaceExt swaps the extension of path for ext (which includes the dot).
func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// outputPath derives the output file for an input: same name with the new
// extension, placed in dir when given.
func outputPath(path, dir, ext string) string {
	out := replaceExt(path, ext)
	if dir == "" {
		return out
	}
	return filepath.Join(dir, filepath.Base(out))
}
