package core

import (
	"context"
	"io"
	"runtime/debug"
	"time"

	"ftpgate/internal/command"
	"ftpgate/internal/credential"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/metrics"
	"ftpgate/internal/session"
	"ftpgate/util"
)

// Request is one command bound for one endpoint.  The endpoint is
// already resolved; the engine never looks up aliases.
type Request struct {
	Endpoint session.Endpoint
	Command  command.Command
	Mode     ftpconn.Mode
	Token    string // raw credential token, "" = anonymous
}

// Result is the payload of a successful command.  Which fields are set
// depends on the command:
//
//	LIST      Entries (never nil)
//	GET_FILE  Stream and Size; the caller must Close the stream
//	GET_TREE  Path = local mirror root
//	PUT       Path = remote target; OK for a single file
//	RENAME    Path = new remote path
//	MKDIR     Path = created directory
//	RMTREE    OK
type Result struct {
	Entries []ftpconn.Entry
	Stream  io.ReadCloser
	Size    int64
	Path    string
	OK      bool
}

// Outcome is what a worker hands back: a Result or a classified error.
type Outcome struct {
	Result Result
	Err    error
}

// Engine runs commands.  It holds no per-command state and is safe for
// concurrent use.
type Engine struct {
	opener   session.Opener
	logger   *util.Logger
	metrics  *metrics.Collector
	spoolDir string
	typeFor  func(name string) ftpconn.TransferType
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records command, session and byte metrics on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSpoolDir sets where GET_FILE downloads are staged ("" = os.TempDir).
func WithSpoolDir(dir string) Option {
	return func(e *Engine) { e.spoolDir = dir }
}

// WithTransferTypes overrides the per-file TYPE selection.
func WithTransferTypes(f func(name string) ftpconn.TransferType) Option {
	return func(e *Engine) { e.typeFor = f }
}

// New returns an Engine that opens sessions through opener.
func New(opener session.Opener, logger *util.Logger, opts ...Option) *Engine {
	e := &Engine{opener: opener, logger: logger, typeFor: TransferTypeFor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit starts req on its own goroutine.  The returned channel receives
// exactly one Outcome, after the session has been torn down.
func (e *Engine) Submit(ctx context.Context, req Request) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		done <- e.run(ctx, req)
	}()
	return done
}

// Execute runs req and waits for it.  There is no cancellation: ctx only
// bounds the connect.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	out := <-e.Submit(ctx, req)
	return out.Result, out.Err
}

func (e *Engine) run(ctx context.Context, req Request) (out Outcome) {
	if req.Command == nil {
		return Outcome{Err: ftperr.Validation("no command given")}
	}

	start := time.Now()
	name := req.Command.Kind().String()
	log := e.logger.With("command", name, "path", req.Command.Target())

	var sess *session.Session
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic: %v\n%s", r, debug.Stack())
			if out.Result.Stream != nil {
				out.Result.Stream.Close()
			}
			out = Outcome{Err: ftperr.Newf(ftperr.KindInternal, ftperr.OpDispatch, "unexpected failure: %v", r)}
		}
		if sess != nil {
			if err := sess.Teardown(); err != nil {
				sess.Logger.Warn("teardown: %v", err)
			}
			e.metrics.SessionClosed()
		}
		e.finish(log, name, start, out.Err)
	}()

	s, err := session.Connect(ctx, e.opener, req.Endpoint, req.Mode, log)
	if err != nil {
		return Outcome{Err: err}
	}
	sess = s
	e.metrics.SessionOpened()

	if err := sess.SelectMode(req.Mode); err != nil {
		return Outcome{Err: err}
	}
	cred, err := credential.Parse(req.Token)
	if err != nil {
		return Outcome{Err: err}
	}
	if err := sess.Authenticate(cred); err != nil {
		return Outcome{Err: err}
	}

	res, err := e.dispatch(sess, req.Command)
	if err != nil {
		return Outcome{Err: ftperr.Classify(ftperr.OpDispatch, err)}
	}
	return Outcome{Result: res}
}

func (e *Engine) finish(log *util.Logger, name string, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = ftperr.KindOf(err).String()
		e.metrics.RecordError(err.Error())
		log.Verbose("failed after %s: %v", elapsed.Truncate(time.Millisecond), err)
	} else {
		log.Verbose("done in %s", elapsed.Truncate(time.Millisecond))
	}
	e.metrics.CommandFinished(name, outcome, elapsed)
}
