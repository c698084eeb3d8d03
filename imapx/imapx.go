// Package imapx provides the IMAP transport for the inbox watcher,
// built on go-imap v2. One session covers dial, login and mailbox
// selection; new-mail notifications arrive through IDLE.
package imapx

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/emysliwietz/latex-email-daemon/watcher"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Mailbox            string
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

type Transport struct {
	opts Options
}

func NewTransport(opts Options) (*Transport, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("imap port must be between 1 and 65535")
	}
	if opts.Username == "" {
		return nil, fmt.Errorf("imap username is empty")
	}
	if opts.Password == "" {
		return nil, fmt.Errorf("imap password is empty")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	return &Transport{opts: opts}, nil
}

// Connect dials, authenticates and selects the mailbox. The returned
// session buffers one new-mail notification so a message arriving while
// the watcher is busy is never lost.
func (t *Transport) Connect(ctx context.Context) (watcher.Session, error) {
	address := net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))
	newMail := make(chan struct{}, 1)

	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         t.opts.Host,
			InsecureSkipVerify: t.opts.InsecureSkipVerify,
		},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case newMail <- struct{}{}:
				default:
				}
			},
		},
	}

	client, err := imapclient.DialTLS(address, options)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(t.opts.Username, t.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	if _, err := client.Select(t.opts.Mailbox, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select %s: %w", t.opts.Mailbox, err)
	}

	// Abort any in-flight command when the watcher is cancelled, so a
	// blocked IDLE cannot outlive the run.
	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if t.opts.Logger != nil {
		t.opts.Logger.Debug("imap connection established", "address", address, "user", t.opts.Username, "mailbox", t.opts.Mailbox)
	}

	return &session{client: client, newMail: newMail, stopClose: stopClose, logger: t.opts.Logger}, nil
}

type session struct {
	client    *imapclient.Client
	newMail   chan struct{}
	stopClose func() bool
	logger    *slog.Logger
}

func (s *session) UIDsAbove(uid uint32) ([]uint32, error) {
	criteria := &imapv2.SearchCriteria{
		UID: []imapv2.UIDSet{{imapv2.UIDRange{Start: imapv2.UID(uid) + 1, Stop: 0}}},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	var uids []uint32
	for _, u := range data.AllUIDs() {
		uids = append(uids, uint32(u))
	}
	return uids, nil
}

func (s *session) HighestUID() (uint32, error) {
	data, err := s.client.UIDSearch(&imapv2.SearchCriteria{}, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("uid search all: %w", err)
	}
	var highest imapv2.UID
	for _, u := range data.AllUIDs() {
		if u > highest {
			highest = u
		}
	}
	return uint32(highest), nil
}

func (s *session) Fetch(uids []uint32) ([]watcher.RawMessage, error) {
	ids := make([]imapv2.UID, len(uids))
	for i, u := range uids {
		ids[i] = imapv2.UID(u)
	}

	bodySection := &imapv2.FetchItemBodySection{Peek: true}
	options := &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{bodySection},
	}

	buffers, err := s.client.Fetch(imapv2.UIDSetNum(ids...), options).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	messages := make([]watcher.RawMessage, 0, len(buffers))
	for _, buf := range buffers {
		messages = append(messages, watcher.RawMessage{
			UID:  uint32(buf.UID),
			Body: buf.FindBodySection(bodySection),
		})
	}
	return messages, nil
}

// Wait idles until the server announces new mail, the timeout elapses or
// ctx is cancelled. A notification that arrived before Wait returns
// immediately.
func (s *session) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.newMail:
		return nil
	default:
	}

	idle, err := s.client.Idle()
	if err != nil {
		return fmt.Errorf("idle: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.newMail:
	case <-timer.C:
	}

	if err := idle.Close(); err != nil {
		return fmt.Errorf("stop idle: %w", err)
	}
	if err := idle.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("idle: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	s.stopClose()
	if err := s.client.Logout().Wait(); err != nil {
		if s.logger != nil {
			s.logger.Debug("imap logout failed", "err", err)
		}
	}
	return s.client.Close()
}
