package photostore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level ...
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelLoading Level = "loading"
)

// DefaultMaxVisible is the number of notifications a Board keeps.
const DefaultMaxVisible = 3

// Duration returns how long notifications of the level stay visible. Zero means until removed.
func (l Level) Duration() time.Duration {
	switch l {
	case LevelError:
		return 5 * time.Second
	case LevelWarning:
		return 4 * time.Second
	case LevelLoading:
		return 0
	default:
		return 3 * time.Second
	}
}

// Notification is a user-visible message.
type Notification struct {
	ID        string
	Level     Level
	Text      string
	Duration  time.Duration
	Timestamp time.Time
}

// Notifier receives upload summaries.
type Notifier interface {
	Notify(n Notification)
}

// Board keeps the most recent notifications until they expire.
type Board struct {
	mu         sync.Mutex
	messages   []Notification
	maxVisible int
	now        func() time.Time
}

// NewBoard ...
func NewBoard() *Board {
	return &Board{
		maxVisible: DefaultMaxVisible,
		now:        time.Now,
	}
}

// Notify adds n, dropping the oldest notification above the visible limit.
func (b *Board) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now()
	}

	b.messages = append(b.messages, n)
	b.trimLocked()
}

// Show adds a notification with the default duration of level.
func (b *Board) Show(level Level, text string) {
	b.Notify(Notification{Level: level, Text: text, Duration: level.Duration()})
}

// Remove ...
func (b *Board) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.messages {
		if m.ID == id {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			return
		}
	}
}

// Clear ...
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = nil
}

// SetMaxVisible ...
func (b *Board) SetMaxVisible(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maxVisible = n
	b.trimLocked()
}

// Active returns the unexpired notifications, oldest first.
func (b *Board) Active() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	active := b.messages[:0]
	for _, m := range b.messages {
		if m.Duration > 0 && now.Sub(m.Timestamp) >= m.Duration {
			continue
		}
		active = append(active, m)
	}
	b.messages = active

	return append([]Notification(nil), active...)
}

func (b *Board) trimLocked() {
	if b.maxVisible <= 0 {
		return
	}
	for len(b.messages) > b.maxVisible {
		b.messages = b.messages[1:]
	}
}
