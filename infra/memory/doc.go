// Package memory provides the low-level primitives for memory
// management and safe reclamation. It includes lock-free data
// structures — a typed object Pool, a SPSC RetireRing, and global
// epoch tracking — that domain/orderbook's Pool builds on so that an
// order struct is not reused while a reader on another goroutine may
// still hold it, without forcing either side to take a lock.
//
// The memory package is dependency-free and forms the foundation
// for concurrent object reuse and RCU-style epoch advancement.
package memory
