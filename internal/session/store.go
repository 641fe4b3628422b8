package session

import (
	"sync"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/llm"
)

// DefaultHistoryCap bounds the message sequence kept per user. Oldest entries
// are dropped first once the cap is exceeded.
const DefaultHistoryCap = 20

// Session is one user's active route plus the bounded conversation history.
type Session struct {
	Endpoint   string
	Model      string
	Parameters map[string]any
	Messages   []llm.Message
}

type userSession struct {
	mu      sync.Mutex
	session Session
	active  bool
}

// Store holds one session per user. Sessions are created on first command
// invocation and live for the process lifetime. Mutations for the same user
// are serialized by a per-user lock; different users never contend.
type Store struct {
	cap int

	mu    sync.Mutex
	users map[int64]*userSession
}

func NewStore(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Store{
		cap:   historyCap,
		users: make(map[int64]*userSession),
	}
}

func (s *Store) user(userID int64) *userSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &userSession{}
		s.users[userID] = u
	}
	return u
}

// Get returns a copy of the user's session, or false when the user has never
// invoked a command.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.active {
		return Session{}, false
	}
	out := u.session
	out.Messages = append([]llm.Message(nil), u.session.Messages...)
	return out, true
}

// Reset clears the user's history and overwrites the route fields. Called on
// every command invocation, including repeats of the same command.
func (s *Store) Reset(userID int64, endpoint, model string, parameters map[string]any) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = true
	u.session = Session{
		Endpoint:   endpoint,
		Model:      model,
		Parameters: parameters,
	}
}

func (s *Store) AppendUser(userID int64, content string) {
	s.append(userID, llm.Message{Role: llm.RoleUser, Content: content})
}

func (s *Store) AppendAssistant(userID int64, content string) {
	s.append(userID, llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (s *Store) append(userID int64, msg llm.Message) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = true
	u.session.Messages = append(u.session.Messages, msg)
	if n := len(u.session.Messages); n > s.cap {
		u.session.Messages = u.session.Messages[n-s.cap:]
	}
}
