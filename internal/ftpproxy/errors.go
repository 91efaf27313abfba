package ftpproxy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSession is returned when an operation names a key with no live session.
	ErrNoSession = errors.New("no session for key")
	// ErrKeyInUse is returned by Connect when the key already holds a live session.
	ErrKeyInUse = errors.New("key already has a live session")
	// ErrWalkLimit is returned when a tree walk exceeds its depth bound or
	// revisits a path.
	ErrWalkLimit = errors.New("tree walk limit exceeded")
	// ErrInvalidArgument is returned when a caller-supplied path, file name or
	// command cannot be sent as a single FTP command line.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRateLimited is wrapped by *RateLimitError when Connect is refused
	// by the connect limiter.
	ErrRateLimited = errors.New("connect rate limited")
)

// Operation names, used in error codes, metrics labels and log fields.
const (
	OpConnect = "connect"
	OpLs      = "ls"
	OpMov     = "mov"
	OpCmd     = "cmd"
	OpCd      = "cd"
	OpPwd     = "pwd"
	OpTree    = "tree"
)

// OpError is the error every public operation returns on failure. Code is
// the stable identifier handed to the result envelope.
type OpError struct {
	Op   string
	Key  string
	Code string
	Err  error
}

func newOpError(op, key string, err error) *OpError {
	return &OpError{
		Op:   op,
		Key:  key,
		Code: fmt.Sprintf("ftp.%s.failed_action", op),
		Err:  err,
	}
}

func (e *OpError) Error() string {
	return fmt.Sprintf("ftp %s on %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the envelope code from err, or "" if err is not an OpError.
func ErrorCode(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return ""
}

// checkLine rejects values that would split into more than one command on
// the control connection. The reply to the smuggled command would otherwise
// be read as the answer to the next one.
func checkLine(name, v string) error {
	if strings.ContainsAny(v, "\r\n") {
		return fmt.Errorf("%s contains a line break: %w", name, ErrInvalidArgument)
	}
	return nil
}
