// Package board is a Presenter that keeps lobby messages in memory and fans
// every change out to websocket subscribers.
package board

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/pug"
)

// ErrUnknownMessage is returned when a handle does not name a live message.
var ErrUnknownMessage = errors.New("unknown message")

// Update types.
const (
	UpdatePost   = "post"
	UpdateEdit   = "edit"
	UpdateMarks  = "marks"
	UpdateDelete = "delete"
)

// Update is one change pushed to subscribers.
type Update struct {
	Type   string     `json:"type"`
	Handle pug.Handle `json:"handle"`
	Text   string     `json:"text,omitempty"`
	Marks  []string   `json:"marks,omitempty"`
}

// Message is the current state of one posted message.
type Message struct {
	Handle pug.Handle `json:"handle"`
	Text   string     `json:"text"`
	Marks  []string   `json:"marks"`
	seq    uint64
}

type Board struct {
	mu       sync.Mutex
	seq      uint64
	messages map[string]*Message
	subs     map[uuid.UUID]chan Update
	buffer   int
	logger   *logrus.Logger
}

// New makes a board. buffer is each subscriber's queue depth; a subscriber
// that falls further behind loses updates.
func New(buffer int, logger *logrus.Logger) *Board {
	if buffer <= 0 {
		buffer = 32
	}
	return &Board{
		messages: make(map[string]*Message),
		subs:     make(map[uuid.UUID]chan Update),
		buffer:   buffer,
		logger:   logger,
	}
}

func (b *Board) Post(_ context.Context, channelID, text string) (pug.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	h := pug.Handle{ChannelID: channelID, MessageID: uuid.NewString()}
	b.messages[h.MessageID] = &Message{Handle: h, Text: text, seq: b.seq}
	b.broadcastLocked(Update{Type: UpdatePost, Handle: h, Text: text})
	return h, nil
}

func (b *Board) Edit(_ context.Context, h pug.Handle, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[h.MessageID]
	if !ok {
		return ErrUnknownMessage
	}
	msg.Text = text
	b.broadcastLocked(Update{Type: UpdateEdit, Handle: h, Text: text})
	return nil
}

func (b *Board) ClearMarks(_ context.Context, h pug.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[h.MessageID]
	if !ok {
		return ErrUnknownMessage
	}
	msg.Marks = nil
	b.broadcastLocked(Update{Type: UpdateMarks, Handle: h})
	return nil
}

func (b *Board) AddMark(_ context.Context, h pug.Handle, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[h.MessageID]
	if !ok {
		return ErrUnknownMessage
	}
	for _, m := range msg.Marks {
		if m == symbol {
			return nil
		}
	}
	msg.Marks = append(msg.Marks, symbol)
	b.broadcastLocked(Update{Type: UpdateMarks, Handle: h, Marks: append([]string(nil), msg.Marks...)})
	return nil
}

// Delete removes the message. Deleting an unknown message is not an error.
func (b *Board) Delete(_ context.Context, h pug.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.messages[h.MessageID]; !ok {
		return nil
	}
	delete(b.messages, h.MessageID)
	b.broadcastLocked(Update{Type: UpdateDelete, Handle: h})
	return nil
}

// Messages returns the current messages in posting order.
func (b *Board) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messagesLocked()
}

func (b *Board) messagesLocked() []Message {
	out := make([]Message, 0, len(b.messages))
	for _, m := range b.messages {
		cp := *m
		cp.Marks = append([]string(nil), m.Marks...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Subscribe registers a listener and returns the messages present at the
// moment of subscription. Updates after that arrive on the channel.
func (b *Board) Subscribe() (uuid.UUID, []Message, <-chan Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	ch := make(chan Update, b.buffer)
	b.subs[id] = ch
	return id, b.messagesLocked(), ch
}

// Unsubscribe closes the listener's channel.
func (b *Board) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Subscribers counts current listeners.
func (b *Board) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Board) broadcastLocked(u Update) {
	for id, ch := range b.subs {
		select {
		case ch <- u:
		default:
			b.logger.WithField("subscriber", id).Warn("board subscriber is behind, dropping update")
		}
	}
}
