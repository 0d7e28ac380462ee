package utils

import "time"

// Auction Constants
const (
	DefaultBidIncrement  = 1.00      // Used when a listing omits its increment
	RetractionWindow     = time.Hour // How long after placing a bid it may be retracted
	MaxProxyRounds       = 200       // Upper bound on cascaded proxy counter-bids per trigger
	MaxConflictRetries   = 5         // Retries for transactions aborted by a concurrent writer
	ConflictRetryBackoff = 10 * time.Millisecond
	MoneyPlaces          = 2 // Decimal places stored for every amount
)

// Transaction Constants
const (
	DefaultTxTimeout    = 30 * time.Second // Default transaction timeout
	SweepInterval       = 30 * time.Second // Expired auction sweep interval
	SweepBatchSize      = 500              // Items finalized per sweep at most
	FinalizeConcurrency = 4                // Items finalized in parallel per sweep
	FinalizeTimeout     = 30 * time.Second // Per-item finalization budget
)

// Side-effect Constants
const (
	NotifyWorkers   = 4
	NotifyQueueSize = 1024
	EventLanes      = 16
	EventLaneBuffer = 256
	PublishTimeout  = 5 * time.Second
)
