package main

import "time"

const (
	txQueueSize        = 256  // bus transmit queue
	consoleQueueSize   = 1024 // capacity of async console echo ring
	consoleReadBufSize = 256  // per read() buffer for the console
	// largeBufferReclaimThreshold is the capacity above which the console
	// RX accumulation buffer is reallocated once empty.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
	simIdleSleep                = time.Millisecond
)
