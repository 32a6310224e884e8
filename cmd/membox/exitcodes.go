package main

// Exit codes for the membox CLI.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (runtime failure, storage/database fault)
	ExitConfigError = 2 // Configuration error (bad config, unwritable paths, wrong backend)
	ExitDataError   = 3 // Data error (validation failure, rejected content)
	ExitLockTimeout = 4 // Advisory lock not acquired within the timeout
	ExitNotFound    = 5 // Addressed project or entry does not exist
)
