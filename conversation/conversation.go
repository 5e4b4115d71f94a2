// Package conversation is a small finite-state runtime for multi-step
// chat dialogs. A chat is in at most one flow at a time; each incoming
// update is routed to the handler registered for the current state and
// update kind, and the handler's action moves the state machine.
package conversation

import (
	"context"
	"fmt"
)

// UpdateKind partitions incoming updates for handler routing.
type UpdateKind int

const (
	KindText UpdateKind = iota
	KindContact
	KindLocation
	KindPhoto
	KindCallback
)

func (k UpdateKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindContact:
		return "contact"
	case KindLocation:
		return "location"
	case KindPhoto:
		return "photo"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Contact is a shared phone number. SenderChatID is the chat that sent
// it, which handlers compare against OwnerChatID to refuse forwarded
// contacts.
type Contact struct {
	Phone        string
	OwnerChatID  int64
	SenderChatID int64
	FirstName    string
	LastName     string
}

// Location is a map pin.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Callback is an inline keyboard press.
type Callback struct {
	ID        string
	Token     string
	MessageID int
}

// Update is the transport-neutral inbound event handed to handlers.
type Update struct {
	ChatID   int64
	Kind     UpdateKind
	Text     string
	Contact  *Contact
	Location *Location
	Callback *Callback
	PhotoID  string
}

// State is the per-chat conversation position plus collected answers.
// Values must stay string-encodable so the Redis store can persist them.
type State struct {
	FlowID  string            `json:"flow_id"`
	Name    string            `json:"name"`
	Context map[string]string `json:"context"`
}

// Get returns a collected value or "".
func (s *State) Get(key string) string {
	if s.Context == nil {
		return ""
	}
	return s.Context[key]
}

// Set stores a collected value.
func (s *State) Set(key, value string) {
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

type actionKind int

const (
	actionStay actionKind = iota
	actionAdvance
	actionClear
	actionReplace
)

// Action is a handler's verdict on where the conversation goes next.
type Action struct {
	kind    actionKind
	to      string
	replace string
}

// Stay keeps the current state, e.g. after re-prompting invalid input.
func Stay() Action { return Action{kind: actionStay} }

// Advance moves the chat to another state of the same flow.
func Advance(to string) Action { return Action{kind: actionAdvance, to: to} }

// Clear ends the flow and forgets the state.
func Clear() Action { return Action{kind: actionClear} }

// Replace ends the flow and immediately starts another one.
func Replace(flowID string) Action { return Action{kind: actionReplace, replace: flowID} }

// HandlerFunc processes one update in one state. Mutations to the state
// context are persisted when the action keeps the conversation alive.
type HandlerFunc func(ctx context.Context, upd *Update, st *State) (Action, error)

type handlerKey struct {
	state string
	kind  UpdateKind
}

// Flow is a named state machine definition.
type Flow struct {
	id       string
	initial  string
	onStart  func(ctx context.Context, chatID int64, st *State) error
	handlers map[handlerKey]HandlerFunc
}

// NewFlow declares a flow starting in the given state.
func NewFlow(id, initial string) *Flow {
	return &Flow{id: id, initial: initial, handlers: make(map[handlerKey]HandlerFunc)}
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// OnStart registers the entry hook, typically the first prompt.
func (f *Flow) OnStart(fn func(ctx context.Context, chatID int64, st *State) error) *Flow {
	f.onStart = fn
	return f
}

// Handle registers a handler for one state and update kind.
func (f *Flow) Handle(state string, kind UpdateKind, fn HandlerFunc) *Flow {
	f.handlers[handlerKey{state, kind}] = fn
	return f
}

// StateStore persists per-chat conversation state.
type StateStore interface {
	// Get returns (nil, nil) when the chat has no active conversation.
	Get(ctx context.Context, chatID int64) (*State, error)
	Set(ctx context.Context, chatID int64, st *State) error
	Delete(ctx context.Context, chatID int64) error
}

// Runtime routes updates to flow handlers and applies their actions.
type Runtime struct {
	flows map[string]*Flow
	store StateStore
}

// NewRuntime builds a runtime over the given state store.
func NewRuntime(store StateStore) *Runtime {
	return &Runtime{flows: make(map[string]*Flow), store: store}
}

// Register adds a flow. Duplicate ids are a programming error.
func (r *Runtime) Register(f *Flow) {
	if _, ok := r.flows[f.id]; ok {
		panic(fmt.Sprintf("conversation: flow %q registered twice", f.id))
	}
	r.flows[f.id] = f
}

// Start begins a flow for the chat, replacing any active conversation.
func (r *Runtime) Start(ctx context.Context, chatID int64, flowID string, seed map[string]string) error {
	flow, ok := r.flows[flowID]
	if !ok {
		return fmt.Errorf("conversation: unknown flow %q", flowID)
	}

	st := &State{FlowID: flowID, Name: flow.initial, Context: map[string]string{}}
	for k, v := range seed {
		st.Context[k] = v
	}
	if flow.onStart != nil {
		if err := flow.onStart(ctx, chatID, st); err != nil {
			return err
		}
	}
	return r.store.Set(ctx, chatID, st)
}

// Active returns the chat's current state, or nil.
func (r *Runtime) Active(ctx context.Context, chatID int64) (*State, error) {
	return r.store.Get(ctx, chatID)
}

// Clear drops the chat's conversation, if any.
func (r *Runtime) Clear(ctx context.Context, chatID int64) error {
	return r.store.Delete(ctx, chatID)
}

// Dispatch routes an update to the active conversation. It reports
// false when the chat has no active flow or the flow has no handler for
// this state and kind, letting the caller fall back to global commands.
func (r *Runtime) Dispatch(ctx context.Context, upd *Update) (bool, error) {
	st, err := r.store.Get(ctx, upd.ChatID)
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, nil
	}

	flow, ok := r.flows[st.FlowID]
	if !ok {
		// A flow was removed between deploys; drop the orphaned state.
		_ = r.store.Delete(ctx, upd.ChatID)
		return false, nil
	}

	handler, ok := flow.handlers[handlerKey{st.Name, upd.Kind}]
	if !ok {
		return false, nil
	}

	action, err := handler(ctx, upd, st)
	if err != nil {
		return true, err
	}
	return true, r.apply(ctx, upd.ChatID, st, action)
}

func (r *Runtime) apply(ctx context.Context, chatID int64, st *State, action Action) error {
	switch action.kind {
	case actionStay:
		return r.store.Set(ctx, chatID, st)
	case actionAdvance:
		st.Name = action.to
		return r.store.Set(ctx, chatID, st)
	case actionClear:
		return r.store.Delete(ctx, chatID)
	case actionReplace:
		if err := r.store.Delete(ctx, chatID); err != nil {
			return err
		}
		return r.Start(ctx, chatID, action.replace, nil)
	default:
		return fmt.Errorf("conversation: unknown action %d", action.kind)
	}
}
