/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sybil

import "sync"

// shardedLock serializes work per uuid without one global lock. Two uuids
// on the same shard wait for each other, which is harmless.
type shardedLock struct {
	shards [32]sync.Mutex
}

func (l *shardedLock) lock(uuid string) func() {
	m := &l.shards[shardFor(uuid, len(l.shards))]
	m.Lock()
	return m.Unlock
}

func shardFor(key string, n int) int {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return int(h % uint32(n))
}
