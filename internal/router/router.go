package router

import (
	"strings"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/config"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/session"
)

// DefaultGreetingRequest is substituted as the first user turn when a command
// is invoked with no argument text, so the backend always receives at least
// one message.
const DefaultGreetingRequest = "Hello! Please introduce yourself and tell me what you can help with."

type DecisionKind int

const (
	// DecisionNewRoute: a known command (re)initialized the session.
	DecisionNewRoute DecisionKind = iota
	// DecisionContinued: free text appended to an existing session.
	DecisionContinued
	// DecisionNoActiveSession: free text from a user with no session.
	DecisionNoActiveSession
	// DecisionUnknownCommand: a command token that is not configured.
	DecisionUnknownCommand
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNewRoute:
		return "new_route"
	case DecisionContinued:
		return "continued"
	case DecisionNoActiveSession:
		return "no_active_session"
	case DecisionUnknownCommand:
		return "unknown_command"
	default:
		return "unknown"
	}
}

// Decision is the resolved route for one inbound event. Endpoint, Model and
// Parameters are set for DecisionNewRoute and DecisionContinued only.
type Decision struct {
	Kind       DecisionKind
	Command    string
	Endpoint   string
	Model      string
	Parameters map[string]any
}

type Router struct {
	registry *config.Registry
	sessions *session.Store
}

func New(registry *config.Registry, sessions *session.Store) *Router {
	return &Router{registry: registry, sessions: sessions}
}

// Route resolves one inbound event and applies its session side effects.
//
// With a command: the session is reset to the command's route and the
// command-stripped argument text becomes the first user turn (the default
// greeting request when the arguments are empty). History from any previous
// route is always discarded, including repeats of the same command.
//
// Without a command: the raw text is appended to the existing session, which
// must already exist.
func (r *Router) Route(userID int64, command, text string) Decision {
	if command != "" {
		cmd, ok := r.registry.Command(command)
		if !ok {
			return Decision{Kind: DecisionUnknownCommand, Command: command}
		}
		r.sessions.Reset(userID, cmd.Endpoint, cmd.Model, cmd.Parameters)
		content := stripCommandToken(text)
		if content == "" {
			content = DefaultGreetingRequest
		}
		r.sessions.AppendUser(userID, content)
		return Decision{
			Kind:       DecisionNewRoute,
			Command:    command,
			Endpoint:   cmd.Endpoint,
			Model:      cmd.Model,
			Parameters: cmd.Parameters,
		}
	}

	s, ok := r.sessions.Get(userID)
	if !ok {
		return Decision{Kind: DecisionNoActiveSession}
	}
	r.sessions.AppendUser(userID, text)
	return Decision{
		Kind:       DecisionContinued,
		Endpoint:   s.Endpoint,
		Model:      s.Model,
		Parameters: s.Parameters,
	}
}

// stripCommandToken drops the leading "/command" word, keeping the argument
// text that follows it.
func stripCommandToken(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}
