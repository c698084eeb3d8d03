// Package watcher implements the mailbox ingestion state machine. It
// replays unseen messages in UID order, applies the qualification filter,
// hands qualifying messages to the pipeline and advances the durable
// watermark after every per-message decision.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/emysliwietz/latex-email-daemon/filter"
	"github.com/emysliwietz/latex-email-daemon/parse"
	"github.com/emysliwietz/latex-email-daemon/spool"
	"github.com/emysliwietz/latex-email-daemon/state"
	"github.com/emysliwietz/latex-email-daemon/stats"
)

// RawMessage is one fetched message before decoding.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Session is an authenticated, selected mailbox connection. All errors
// returned from a session are transport-level and trigger a reconnect.
type Session interface {
	// UIDsAbove returns every message UID strictly greater than uid.
	UIDsAbove(uid uint32) ([]uint32, error)
	// HighestUID returns the highest UID in the mailbox, 0 when empty.
	HighestUID() (uint32, error)
	// Fetch returns the full raw messages for the given UIDs.
	Fetch(uids []uint32) ([]RawMessage, error)
	// Wait blocks until the server signals new mail, the timeout
	// elapses or ctx is cancelled.
	Wait(ctx context.Context, timeout time.Duration) error
	Close() error
}

// Transport dials and authenticates mailbox sessions.
type Transport interface {
	Connect(ctx context.Context) (Session, error)
}

// Handler processes one spooled record; a non-nil error means the record
// was retained for manual reprocessing.
type Handler interface {
	Handle(ctx context.Context, recordPath string) error
}

type Options struct {
	Transport Transport
	Filter    *filter.Filter
	Store     *state.Store
	Spool     *spool.Spool
	Handler   Handler
	Stream    *stats.Stream
	Logger    *slog.Logger

	// BatchSize bounds how many messages one fetch requests.
	BatchSize int
	// IdleTimeout bounds the wait for a push notification.
	IdleTimeout time.Duration
	// HandleTimeout bounds a single message's compile-and-send step.
	HandleTimeout time.Duration
	// ReconnectDelay is the fixed backoff after a transport failure.
	ReconnectDelay time.Duration
	// InitialRetryDelay is the backoff when the very first connection
	// for the backlog skip fails.
	InitialRetryDelay time.Duration
}

type Watcher struct {
	opts      Options
	watermark uint32
}

func New(opts Options) (*Watcher, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport must not be nil")
	}
	if opts.Filter == nil {
		return nil, fmt.Errorf("filter must not be nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("state store must not be nil")
	}
	if opts.Spool == nil {
		return nil, fmt.Errorf("spool must not be nil")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("handler must not be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 2 * time.Minute
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 10 * time.Second
	}
	if opts.InitialRetryDelay <= 0 {
		opts.InitialRetryDelay = 5 * time.Second
	}
	return &Watcher{opts: opts}, nil
}

// Run drives the state machine until ctx is cancelled. Cancellation is
// cooperative: the message currently being processed finishes, then the
// watermark is persisted and Run returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	w.watermark = w.opts.Store.Load()
	w.logInfo("starting inbox watcher", "watermark", w.watermark)

	if w.watermark == 0 {
		if err := w.skipBacklog(ctx); err != nil {
			return err
		}
	}

	for ctx.Err() == nil {
		session, err := w.opts.Transport.Connect(ctx)
		if err != nil {
			w.transportError("connect", err)
			if !sleep(ctx, w.opts.ReconnectDelay) {
				break
			}
			continue
		}

		err = w.listen(ctx, session)
		_ = session.Close()
		if err == nil {
			break
		}
		w.transportError("listen", err)
		if !sleep(ctx, w.opts.ReconnectDelay) {
			break
		}
	}

	// The watermark is already durable after every decision; one final
	// save covers the fresh-start value from skipBacklog.
	if err := w.opts.Store.Save(w.watermark); err != nil {
		return fmt.Errorf("persist watermark on shutdown: %w", err)
	}
	w.logInfo("inbox watcher stopped", "watermark", w.watermark)
	return nil
}

// skipBacklog marks everything currently in the mailbox as handled, so a
// fresh start begins from "now" instead of replaying history. Only runs
// when the watermark is exactly 0.
func (w *Watcher) skipBacklog(ctx context.Context) error {
	for ctx.Err() == nil {
		session, err := w.opts.Transport.Connect(ctx)
		if err != nil {
			w.transportError("initial connect", err)
			if !sleep(ctx, w.opts.InitialRetryDelay) {
				return nil
			}
			continue
		}

		highest, err := session.HighestUID()
		_ = session.Close()
		if err != nil {
			w.transportError("initial uid fetch", err)
			if !sleep(ctx, w.opts.InitialRetryDelay) {
				return nil
			}
			continue
		}

		if highest > 0 {
			w.watermark = highest
			if err := w.opts.Store.Save(w.watermark); err != nil {
				return fmt.Errorf("persist initial watermark: %w", err)
			}
		}
		w.logInfo("skipped backlog", "watermark", w.watermark)
		return nil
	}
	return nil
}

// listen drains available messages, then waits for new-mail notifications,
// alternating until cancellation or a transport failure.
func (w *Watcher) listen(ctx context.Context, session Session) error {
	for {
		if err := w.drain(ctx, session); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := session.Wait(ctx, w.opts.IdleTimeout); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// drain fetches and processes everything above the watermark in bounded
// batches, strictly ascending. Only transport failures are returned;
// per-message problems advance the watermark and never stall the loop.
func (w *Watcher) drain(ctx context.Context, session Session) error {
	uids, err := session.UIDsAbove(w.watermark)
	if err != nil {
		return fmt.Errorf("search above %d: %w", w.watermark, err)
	}
	if len(uids) == 0 {
		return nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	w.logInfo("found new messages", "count", len(uids))

	for start := 0; start < len(uids); start += w.opts.BatchSize {
		if ctx.Err() != nil {
			return nil
		}
		end := start + w.opts.BatchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]

		messages, err := session.Fetch(batch)
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}
		byUID := make(map[uint32][]byte, len(messages))
		for _, m := range messages {
			byUID[m.UID] = m.Body
		}

		for _, uid := range batch {
			if ctx.Err() != nil {
				return nil
			}
			w.process(ctx, uid, byUID[uid])
			w.advance(uid)
		}
	}
	return nil
}

// process decides one message. Every outcome, including rejection and
// failure, is a decision; the caller advances the watermark afterwards.
func (w *Watcher) process(ctx context.Context, uid uint32, raw []byte) {
	w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeFetched, UID: uid})

	if len(raw) == 0 {
		w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeSkipped, UID: uid, Detail: "empty fetch"})
		return
	}

	msg, err := parse.Message(uid, raw)
	if err != nil {
		// Poison message: skipped, never retried.
		w.logWarn("failed to parse message", "uid", uid, "err", err)
		w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeSkipped, UID: uid, Err: err})
		return
	}

	if !w.opts.Filter.Allows(msg) {
		w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeFiltered, UID: uid})
		return
	}

	recordPath, err := w.opts.Spool.Write(msg)
	if err != nil {
		w.logWarn("failed to spool record", "uid", uid, "err", err)
		w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeError, UID: uid, Err: err})
		return
	}
	w.logInfo("matching message", "uid", uid, "subject", msg.Subject, "record", recordPath)

	// An in-flight handle finishes even while the run is being
	// cancelled; only the timeout bounds it. Cancellation takes effect
	// between messages.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.HandleTimeout)
	err = w.opts.Handler.Handle(hctx, recordPath)
	cancel()
	if err != nil {
		// Record stays in the spool for manual reprocessing; the
		// decision to attempt was made, so the watermark advances.
		w.logWarn("handler failed, record retained", "uid", uid, "record", recordPath, "err", err)
		w.emit(stats.Event{Stage: stats.StageHandle, Type: stats.EventTypeFailed, UID: uid, Err: err})
		return
	}

	w.emit(stats.Event{Stage: stats.StageHandle, Type: stats.EventTypeHandled, UID: uid})
}

// advance raises the watermark to uid and persists it. The watermark
// never decreases.
func (w *Watcher) advance(uid uint32) {
	if uid <= w.watermark {
		return
	}
	w.watermark = uid
	if err := w.opts.Store.Save(uid); err != nil {
		w.logWarn("failed to persist watermark", "uid", uid, "err", err)
		w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeError, UID: uid, Err: err})
	}
}

// Watermark returns the current in-memory watermark.
func (w *Watcher) Watermark() uint32 {
	return w.watermark
}

func (w *Watcher) transportError(op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	w.logWarn("transport failure, will reconnect", "op", op, "err", err)
	w.emit(stats.Event{Stage: stats.StageWatch, Type: stats.EventTypeError, Err: err, Detail: op})
}

func (w *Watcher) emit(evt stats.Event) {
	if w.opts.Stream != nil {
		w.opts.Stream.Emit(evt)
	}
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.opts.Logger != nil {
		w.opts.Logger.Info(msg, args...)
	}
}

func (w *Watcher) logWarn(msg string, args ...any) {
	if w.opts.Logger != nil {
		w.opts.Logger.Warn(msg, args...)
	}
}

// sleep waits for d unless ctx is cancelled first; it reports whether the
// full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
