// Package errors provides the failure taxonomy shared by every ftpgate
// layer.
//
// Every failure that leaves the engine is an *Error carrying a closed
// Kind plus a human message.  Lower layers produce raw causes
// (*ReplyError from the FTP drivers, *NetworkError and *SSHError from the
// transports, os/net errors from local I/O) and Classify maps them onto a
// Kind using the operation that was in flight.
package errors

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"syscall"
)

// ── Kinds ────────────────────────────────────────────────────────────

// Kind is the machine-checkable category of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindConnection
	KindAuth
	KindMode
	KindValidation
	KindNotFound
	KindPermission
	KindForbidden
	KindProtocol
)

var kindNames = [...]string{
	KindInternal:   "InternalError",
	KindConnection: "ConnectionError",
	KindAuth:       "AuthError",
	KindMode:       "ModeError",
	KindValidation: "ValidationError",
	KindNotFound:   "NotFoundError",
	KindPermission: "PermissionError",
	KindForbidden:  "ForbiddenError",
	KindProtocol:   "ProtocolError",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ── Operations ───────────────────────────────────────────────────────
//
// Op names the step that was in flight.  Classification depends on it:
// a 550 during a store is a permission problem, during a login it is not
// reachable at all.

const (
	OpConnect   = "connect"
	OpMode      = "mode"
	OpLogin     = "login"
	OpChangeDir = "cwd"
	OpList      = "list"
	OpType      = "type"
	OpRetrieve  = "retrieve"
	OpStore     = "store"
	OpMakeDir   = "mkdir"
	OpRemoveDir = "rmdir"
	OpDelete    = "delete"
	OpRename    = "rename"
	OpLocal     = "local"
	OpDispatch  = "dispatch"
)

// ── Reply codes ──────────────────────────────────────────────────────

const (
	CodeServiceNotAvailable = 421
	CodeCantOpenData        = 425
	CodeTransferAborted     = 426
	CodeFileBusy            = 450
	CodeNotLoggedIn         = 530
	CodeNeedAccount         = 532
	CodeFileUnavailable     = 550
	CodeFileNameNotAllowed  = 553
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTunnelClosed = errors.New("tunnel is closed")
	ErrNotConnected = errors.New("not connected")
	ErrAuthFailed   = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// Error is a classified failure.  Message is what callers see; Err keeps
// the raw cause for logs and errors.Is/As.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Text())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text())
}

func (e *Error) Unwrap() error { return e.Err }

// Text returns the newline-free human message.
func (e *Error) Text() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return Sanitize(msg)
}

// ReplyError is a negative FTP reply, normalised from whichever client
// library produced it.
type ReplyError struct {
	Command string // verb only: "RETR", "PASV", …  (empty when unknown)
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %d %s", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// NetworkError represents a failure in a transport operation.
type NetworkError struct {
	Op   string // "dial", "forward", "read", "write"
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Newf builds a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a missing or malformed argument.
func Validation(format string, args ...interface{}) *Error {
	return Newf(KindValidation, "", format, args...)
}

// NotFound reports a probed resource that does not exist.
func NotFound(op, format string, args ...interface{}) *Error {
	return Newf(KindNotFound, op, format, args...)
}

// Forbidden reports an operation that is never allowed.
func Forbidden(op, format string, args ...interface{}) *Error {
	return Newf(KindForbidden, op, format, args...)
}

// Auth reports a credential problem detected before reaching the server.
func Auth(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Op: OpLogin, Message: fmt.Sprintf(format, args...), Err: ErrAuthFailed}
}

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification ───────────────────────────────────────────────────

// Classify maps a raw failure from op onto the taxonomy.  Errors that
// are already classified pass through unchanged; nil stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	out := &Error{Kind: classifyKind(op, err), Op: op, Err: err}
	var re *ReplyError
	if errors.As(err, &re) {
		out.Message = re.Message
	}
	return out
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ReplyCode returns the FTP reply code carried by err, if any.
func ReplyCode(err error) (int, bool) {
	var re *ReplyError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}

// IsFileUnavailable reports a "file unavailable" class reply (450/550).
func IsFileUnavailable(err error) bool {
	code, ok := ReplyCode(err)
	return ok && (code == CodeFileUnavailable || code == CodeFileBusy)
}

// Sanitize strips CR and LF so a message can travel in a single header
// or log line.
func Sanitize(msg string) string {
	return strings.TrimSpace(newlines.Replace(msg))
}

var newlines = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func classifyKind(op string, err error) Kind {
	var re *ReplyError
	if errors.As(err, &re) {
		return replyKind(op, re)
	}

	var se *SSHError
	var ne *NetworkError
	if errors.As(err, &se) || errors.As(err, &ne) {
		return KindConnection
	}

	// Local filesystem
	if errors.Is(err, fs.ErrNotExist) {
		return KindNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return KindPermission
	}

	if isConnectionFailure(err) || op == OpConnect {
		return KindConnection
	}
	return KindInternal
}

func replyKind(op string, re *ReplyError) Kind {
	switch {
	case isDataChannelCommand(re.Command), re.Code == CodeCantOpenData:
		return KindMode
	case op == OpConnect:
		return KindConnection
	case op == OpLogin:
		return KindAuth
	case isWriteOp(op) && isDenial(re.Code):
		return KindPermission
	default:
		return KindProtocol
	}
}

func isDataChannelCommand(cmd string) bool {
	switch strings.ToUpper(cmd) {
	case "PASV", "EPSV", "PORT", "EPRT":
		return true
	}
	return false
}

func isWriteOp(op string) bool {
	switch op {
	case OpStore, OpMakeDir, OpRemoveDir, OpDelete, OpRename:
		return true
	}
	return false
}

func isDenial(code int) bool {
	switch code {
	case CodeFileBusy, CodeNotLoggedIn, CodeNeedAccount, CodeFileUnavailable, CodeFileNameNotAllowed:
		return true
	}
	return false
}

// isConnectionFailure inspects standard library error types.
func isConnectionFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrTunnelClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use ftpgate/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
