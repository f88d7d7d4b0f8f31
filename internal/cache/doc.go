// Package cache keeps synthesized speech clips around so that replaying a
// token does not hit the speech proxy again. It has an in-memory LRU tier
// (L1) in front of a zstd-compressed disk tier (L2).
package cache
