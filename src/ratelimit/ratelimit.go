/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ratelimit

import (
	"context"
	"fmt"

	gorate "golang.org/x/time/rate"
)

type Kind string

const (
	SELECT Kind = "SELECT"
	INSERT Kind = "INSERT"
	UPDATE Kind = "UPDATE"
	DELETE Kind = "DELETE"
)

// Limiter paces pipeline reads or writes. Intercept blocks until weight units may proceed.
type Limiter interface {
	Intercept(ctx context.Context, kind Kind, weight int) error
}

// Intercept is nil safe: a nil limiter never throttles.
func Intercept(ctx context.Context, l Limiter, kind Kind, weight int) error {
	if l == nil {
		return nil
	}
	return l.Intercept(ctx, kind, weight)
}

type rateLimiter struct {
	limiter *gorate.Limiter
	burst   int
	applies func(kind Kind) bool
}

func newRateLimiter(perSecond int, applies func(kind Kind) bool) *rateLimiter {
	return &rateLimiter{
		limiter: gorate.NewLimiter(gorate.Limit(perSecond), perSecond),
		burst:   perSecond,
		applies: applies,
	}
}

// NewQPS throttles SELECTs to qps rows per second. qps <= 0 returns nil (unthrottled).
func NewQPS(qps int) Limiter {
	if qps <= 0 {
		return nil
	}
	return newRateLimiter(qps, func(kind Kind) bool { return kind == SELECT })
}

// NewTPS throttles writes to tps rows per second. tps <= 0 returns nil (unthrottled).
func NewTPS(tps int) Limiter {
	if tps <= 0 {
		return nil
	}
	return newRateLimiter(tps, func(kind Kind) bool { return kind != SELECT })
}

func (r *rateLimiter) Intercept(ctx context.Context, kind Kind, weight int) error {
	if !r.applies(kind) || weight <= 0 {
		return nil
	}
	// WaitN rejects n above the burst, so large batches wait in burst sized steps.
	for weight > 0 {
		n := min(weight, r.burst)
		if err := r.limiter.WaitN(ctx, n); err != nil {
			return fmt.Errorf("rate limit %s: %w", kind, err)
		}
		weight -= n
	}
	return nil
}
