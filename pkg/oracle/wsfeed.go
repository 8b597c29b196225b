package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/synthvault/pkg/fixed"
)

// WSFeed tracks a price over a websocket stream. It dials the configured URL,
// reads JSON frames of the form {"price":"2000.5"}, and keeps the latest
// parsed value; reads never block on the network. Reconnects with backoff
// until the context is cancelled.
type WSFeed struct {
	feed *Feed // latest price lives here
	url  string
	log  *zap.SugaredLogger
}

// priceFrame is one message on the stream
type priceFrame struct {
	Price string `json:"price"`
}

// NewWSFeed creates a websocket-backed price source seeded with an initial
// price (used until the first frame arrives)
func NewWSFeed(url string, initial fixed.Num, log *zap.SugaredLogger) *WSFeed {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &WSFeed{
		feed: NewFeed(initial),
		url:  url,
		log:  log,
	}
}

// CurrentPrice returns the most recently received price
func (w *WSFeed) CurrentPrice() fixed.Num {
	return w.feed.CurrentPrice()
}

// Run dials the stream and keeps the latest price updated until ctx is done.
// Intended to be launched as a goroutine from the node wiring.
func (w *WSFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
		if err != nil {
			w.log.Warnw("price_feed_dial_failed", "url", w.url, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.log.Infow("price_feed_connected", "url", w.url)
		w.readLoop(ctx, conn)
		conn.Close()
	}
}

func (w *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warnw("price_feed_read_failed", "err", err)
			}
			return
		}

		var frame priceFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			w.log.Debugw("price_feed_bad_frame", "err", err)
			continue
		}

		d, err := decimal.NewFromString(frame.Price)
		if err != nil || d.Sign() <= 0 {
			w.log.Debugw("price_feed_bad_price", "price", frame.Price)
			continue
		}

		w.feed.Set(fixed.FromDecimal(d))
	}
}
