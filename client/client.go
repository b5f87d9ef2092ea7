// Package client keeps a widget in step with a repository shared with other
// hosts. It polls the persisted entry and asks the widget to sync whenever
// the stored bytes change.
package client

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sirupsen/logrus"
)

// MinRefreshInterval is the shortest accepted polling interval.
const MinRefreshInterval = time.Second

// Syncer is implemented by *widget.Widget.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Stats counts refresh activity.
type Stats struct {
	Refreshes   int
	Changes     int
	Errors      int
	LastRefresh time.Time
	LastError   error
}

type Client struct {
	Repository      source.Repository
	Entry           string
	RefreshInterval time.Duration

	target Syncer
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	last  []byte
	stats Stats
	log   *logrus.Entry
}

// NewClient reads the entry once to record the current content, then polls it
// every refreshInterval until Close or ctx is cancelled. The first read never
// syncs target since the widget has loaded the entry itself.
func NewClient(ctx context.Context, repository source.Repository, entry string, target Syncer, refreshInterval time.Duration) *Client {
	if refreshInterval < MinRefreshInterval {
		logrus.Warnf("refresh interval %s is below the minimum, using %s", refreshInterval, MinRefreshInterval)
		refreshInterval = MinRefreshInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		Repository:      repository,
		Entry:           entry,
		RefreshInterval: refreshInterval,
		target:          target,
		cancel:          cancel,
		done:            make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component":  "client",
			"repository": repository.GetName(),
			"entry":      entry,
		}),
	}

	if data, err := c.read(ctx); err != nil {
		c.recordError(err)
	} else {
		c.mu.Lock()
		c.last = data
		c.mu.Unlock()
	}

	go c.refreshLoop(ctx)
	return c
}

func (c *Client) refreshLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				c.log.WithError(err).Error("error refreshing entry")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh reads the entry and syncs the target when it differs from the last
// read. It reports whether a change was seen.
func (c *Client) Refresh(ctx context.Context) (bool, error) {
	data, err := c.read(ctx)
	if err != nil {
		c.recordError(err)
		return false, err
	}

	c.mu.Lock()
	c.stats.Refreshes++
	c.stats.LastRefresh = time.Now()
	changed := !bytes.Equal(data, c.last)
	c.last = data
	if changed {
		c.stats.Changes++
	}
	c.mu.Unlock()

	if !changed {
		return false, nil
	}
	c.log.Debug("entry changed elsewhere")
	if err := c.target.Sync(ctx); err != nil {
		c.recordError(err)
		return true, errors.Wrap(err, "syncing after remote change")
	}
	return true, nil
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops polling and waits for the loop to exit.
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

// read returns nil content for a missing entry, which compares equal to
// another missing read.
func (c *Client) read(ctx context.Context) ([]byte, error) {
	data, err := c.Repository.Read(ctx, c.Entry)
	if errors.Is(err, source.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.LastError = err
	c.mu.Unlock()
}
