/*
Package concurrency provides advanced concurrency primitives with observability.

Features:
  - Semaphore: Weighted semaphore
  - WorkerPool: Goroutine pool
  - SafeGo / FanOut: Panic-recovering goroutine helpers
*/
package concurrency
