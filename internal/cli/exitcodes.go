package cli

// Exit codes: 0 success, 1 failure, 130 interrupted.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)
