// Package imapmail polls a mailbox over IMAP and hands extracted message
// bodies to the relay loop. Deleted and already-seen mail is never touched;
// each processed message is flagged \Seen so it is fetched exactly once.
package imapmail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const reconnectDelay = 10 * time.Second

// BodyHandler receives one extracted message body. Implementations must not
// block.
type BodyHandler func(body string)

type Poller struct {
	addr     string
	user     string
	pass     string
	sender   string
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller configures a mailbox poller. sender, when non-empty, restricts
// the unseen search to mail from that address.
func NewPoller(addr, user, pass, sender string, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		addr:     addr,
		user:     user,
		pass:     pass,
		sender:   sender,
		interval: interval,
		logger:   logger,
	}
}

// Run maintains a mailbox session until ctx is cancelled. A dropped
// connection is retried after a fixed delay rather than propagated, so a
// flaky IMAP server degrades to late codes instead of a dead process.
func (p *Poller) Run(ctx context.Context, handler BodyHandler) error {
	for {
		if err := p.session(ctx, handler); err != nil {
			p.logger.Error("imap session ended", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (p *Poller) session(ctx context.Context, handler BodyHandler) error {
	client, err := imapclient.DialTLS(p.addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.addr, err)
	}
	defer client.Close()

	if err := client.Login(p.user, p.pass).Wait(); err != nil {
		return fmt.Errorf("login %s: %w", p.user, err)
	}
	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}
	p.logger.Info("imap session established", "addr", p.addr, "user", p.user)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.fetchUnseen(client, handler); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			if err := client.Logout().Wait(); err != nil {
				p.logger.Warn("imap logout failed", "err", err)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// fetchUnseen processes every unseen message from the configured sender and
// marks each one \Seen afterwards.
func (p *Poller) fetchUnseen(client *imapclient.Client, handler BodyHandler) error {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	if p.sender != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "From", Value: p.sender}}
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	uidSet := imap.UIDSetNum(uids...)
	section := &imap.FetchItemBodySection{}
	messages, err := client.Fetch(uidSet, &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return fmt.Errorf("fetch %d messages: %w", len(uids), err)
	}

	for _, msg := range messages {
		raw := msg.FindBodySection(section)
		if raw == nil {
			continue
		}
		handler(ExtractText(raw))
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	p.logger.Debug("processed mailbox batch", "count", len(messages))
	return nil
}
