package core

// Exit codes returned by the atfetch binary
const (
	ExitOK             = 0
	ExitGeneralError   = 1
	ExitConfigError    = 2
	ExitUsageError     = 3
	ExitTransferFailed = 4
	ExitBusy           = 5
)
