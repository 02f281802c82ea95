package server

import "hash/fnv"

// shardCount rounds n up to a power of two so a shard is picked by masking.
func shardCount(n int) uint32 {
	if n <= 0 {
		n = 16
	}
	v := uint32(n) - 1
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
