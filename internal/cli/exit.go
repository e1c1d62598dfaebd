package cli

import "github.com/me/ossim/pkg/model"

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitTimeout  = 2
	ExitResource = 3
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch model.KindOf(err) {
	case model.KindTimeout:
		return ExitTimeout
	case model.KindResource:
		return ExitResource
	default:
		return ExitFailure
	}
}
