package mcpclient

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrDiscovery is the sentinel of DiscoveryError.
var ErrDiscovery = errors.New("tool discovery failed")

// DiscoveryError is returned for a server whose catalog could not be fetched.
type DiscoveryError struct {
	Server string
	Cause  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for server %q: %s", e.Server, e.Cause)
}

// Unwrap returns the cause
func (e *DiscoveryError) Unwrap() error { return e.Cause }

// Is returns true for ErrDiscovery
func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// DiscoveryErrors aggregates the failures of one discovery.
type DiscoveryErrors []*DiscoveryError

func (e DiscoveryErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, f := range e {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is returns true for ErrDiscovery
func (e DiscoveryErrors) Is(target error) bool { return target == ErrDiscovery && len(e) > 0 }

// Unwrap returns the failures
func (e DiscoveryErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, f := range e {
		errs = append(errs, f)
	}
	return errs
}

// RemoteToolError is returned when the server reports that the tool call failed.
type RemoteToolError struct {
	Server  string
	Tool    string
	Message string
}

func (e *RemoteToolError) Error() string {
	return fmt.Sprintf("tool %q on server %q failed: %s", e.Tool, e.Server, e.Message)
}
