package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/storage"
)

// Broker fans dashboard updates out to the open streams of each user.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *Broker) subscribe(userID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan struct{}]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(userID string, ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs[userID], ch)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

// Notify wakes every stream of u.UserID. Pending wake-ups are coalesced.
func (b *Broker) Notify(u storage.Update) {
	b.mu.Lock()
	for ch := range b.subs[u.UserID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// stream pushes the caller's dashboard as server-sent events: once on
// connect and again after every update.
func (s *Server) stream(c echo.Context) error {
	userID := userFrom(c)
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return newError(http.StatusInternalServerError, "stream unsupported")
	}

	ctx := c.Request().Context()
	var ch chan struct{}
	if s.Broker != nil {
		ch = s.Broker.subscribe(userID)
		defer s.Broker.unsubscribe(userID, ch)
	}
	streamClients.Inc()
	defer streamClients.Dec()

	entry := s.Logger.WithField("user", userID)
	for {
		d, err := s.load(c)
		if err != nil {
			entry.WithError(err).Error("stream.load_failed")
			return nil
		}
		data, err := sonic.Marshal(d.Public())
		if err != nil {
			entry.WithError(err).Error("stream.encode_failed")
			return nil
		}
		w := c.Response()
		if _, err := w.Write([]byte("data: ")); err != nil {
			return nil
		}
		if _, err := w.Write(data); err != nil {
			return nil
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return nil
		}
		flusher.Flush()
		if ch == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
		}
	}
}
