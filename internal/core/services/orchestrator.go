package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/logger"
	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

// Ensure ConversationService implements the interface.
var _ driving.ConversationService = (*ConversationService)(nil)

// EmptyInputMessage is returned for blank input without touching the thread.
const EmptyInputMessage = "Please type a question."

// LimitReachedMessage is appended when a conversation limit ends the thread.
const LimitReachedMessage = "This conversation has reached its limit. Start a new conversation to continue."

// Default history bounds applied between turns.
const (
	DefaultMaxHistoryMessages = 50
	DefaultMaxHistoryChars    = 20000
)

// ConversationOptions configures the conversation service.
type ConversationOptions struct {
	Limits    Limits
	Retrieval RetrievalOptions
	Synthesis SynthesisOptions

	MaxHistoryMessages int
	MaxHistoryChars    int

	// StoreTimeout bounds each checkpoint call. Zero leaves it to the store.
	StoreTimeout time.Duration
}

// ConversationService drives one turn at a time through the conversation
// state machine and persists the result.
type ConversationService struct {
	store       driven.CheckpointStore
	classifier  *IntentClassifier
	router      *Router
	retrieval   *RetrievalEngine
	synthesizer *ResponseSynthesizer
	opts        ConversationOptions
	locks       *threadLocks
	now         func() time.Time
}

// NewConversationService creates a conversation service.
// The index and generator parameters are optional (can be nil); turns then
// degrade to empty evidence and extractive answers.
func NewConversationService(
	store driven.CheckpointStore,
	index driven.KnowledgeIndex,
	generator driven.Generator,
	opts ConversationOptions,
) *ConversationService {
	if opts.MaxHistoryMessages == 0 {
		opts.MaxHistoryMessages = DefaultMaxHistoryMessages
	}
	if opts.MaxHistoryChars == 0 {
		opts.MaxHistoryChars = DefaultMaxHistoryChars
	}
	router := NewRouter(opts.Limits)
	opts.Limits = router.Limits()

	return &ConversationService{
		store:       store,
		classifier:  NewIntentClassifier(generator),
		router:      router,
		retrieval:   NewRetrievalEngine(index, opts.Retrieval),
		synthesizer: NewResponseSynthesizer(generator, opts.Synthesis),
		opts:        opts,
		locks:       newThreadLocks(),
		now:         time.Now,
	}
}

// SetPromptStore sets the prompt store for answer and suggestion prompts.
func (s *ConversationService) SetPromptStore(store driven.PromptStore) {
	s.synthesizer.SetPromptStore(store)
}

// ProcessMessage runs one turn for threadID. Collaborator failures never
// surface as errors; only an empty thread id is rejected.
func (s *ConversationService) ProcessMessage(
	ctx context.Context, threadID, text string,
) (result *domain.TurnResult, err error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}

	unlock := s.locks.acquire(threadID)
	defer unlock()

	started := s.now()
	logger.Section("Turn " + threadID)

	var state *domain.ConversationState
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("Turn on %s panicked outside the turn graph: %v", threadID, r)
		if state == nil {
			state = domain.NewConversationState(threadID, s.now())
		}
		state.RecordError(fmt.Sprintf("internal error: %v", r))
		result = turnResult(threadID, state, s.synthesizer.Failure(state))
		err = nil
	}()

	state, loaded := s.loadState(ctx, threadID)

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Debug("Empty input on thread %s, nothing to do", threadID)
		return &domain.TurnResult{
			ThreadID:  threadID,
			Response:  EmptyInputMessage,
			TurnCount: state.TurnCount,
			Phase:     state.Phase,
			Intent:    state.UserIntent,
			HasErrors: state.HasErrors,
		}, nil
	}

	reply := s.runTurn(ctx, state, text)
	state.TurnCount++
	s.enforceLimits(state, &reply)
	state.UpdatedAt = s.now()

	// A stand-in state must not overwrite a checkpoint that failed to load.
	if loaded {
		if err := s.saveState(ctx, threadID, state); err != nil {
			state.HasErrors = true
		}
	} else {
		logger.Warn("Not saving thread %s: its checkpoint could not be loaded", threadID)
	}

	metrics.TurnsTotal.WithLabelValues(state.Phase.String(), state.UserIntent.String()).Inc()
	metrics.TurnDuration.Observe(s.now().Sub(started).Seconds())
	logger.Info("Turn %d on %s finished in phase %s (intent=%s)",
		state.TurnCount, threadID, state.Phase, state.UserIntent)

	return turnResult(threadID, state, reply), nil
}

func turnResult(threadID string, state *domain.ConversationState, reply Reply) *domain.TurnResult {
	return &domain.TurnResult{
		ThreadID:    threadID,
		Response:    reply.Content,
		Sources:     reply.Sources,
		Suggestions: append([]string(nil), state.SuggestedQuestions...),
		TurnCount:   state.TurnCount,
		Phase:       state.Phase,
		Intent:      state.UserIntent,
		Confidence:  reply.Confidence,
		HasErrors:   state.HasErrors,
	}
}

// GetHistory returns up to maxMessages of the most recent messages for threadID.
// A non-positive maxMessages returns the whole ledger.
func (s *ConversationService) GetHistory(
	ctx context.Context, threadID string, maxMessages int,
) ([]domain.Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}
	if s.store == nil {
		return []domain.Message{}, nil
	}

	unlock := s.locks.acquire(threadID)
	defer unlock()

	callCtx, cancel := s.storeContext(ctx)
	defer cancel()
	state, err := s.store.Load(callCtx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w: %v", threadID, domain.ErrPersistence, err)
	}
	if state == nil {
		return []domain.Message{}, nil
	}
	return state.LastMessages(maxMessages), nil
}

// runTurn traverses the turn graph once. A panic in any node is converted
// into the generic failure reply.
func (s *ConversationService) runTurn(
	ctx context.Context, state *domain.ConversationState, text string,
) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Turn on %s panicked: %v", state.ThreadID, r)
			state.RecordError(fmt.Sprintf("internal error: %v", r))
			moveTo(state, domain.PhaseResponding)
			reply = s.synthesizer.Failure(state)
		}
	}()

	if dropped := state.TrimHistory(s.opts.MaxHistoryMessages, s.opts.MaxHistoryChars); dropped > 0 {
		logger.Debug("Trimmed %d messages from %s", dropped, state.ThreadID)
	}

	moveTo(state, domain.PhaseUnderstanding)
	history := state.LastMessages(ClassifierHistoryWindow)
	cls, _ := s.classifier.Classify(ctx, text, history, state.TopicEntities)

	state.AppendMessage(domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})
	applyClassification(state, text, cls)
	state.ClearEvidence()

	switch s.router.AfterClassify(state) {
	case NodeEnd:
		reply = s.synthesizer.Respond(ctx, state)
		moveTo(state, domain.PhaseEnding)
		return reply

	case NodeRespond:
		reply = s.synthesizer.Respond(ctx, state)
		moveTo(state, domain.PhaseResponding)
		return reply

	case NodeSearch, NodeClarify:
	}

	moveTo(state, domain.PhaseSearching)
	s.retrieval.Retrieve(ctx, state)

	if s.router.AfterSearch(state) == NodeClarify {
		state.RetryCount++
		reply = s.synthesizer.Clarify(state)
		moveTo(state, domain.PhaseClarifying)
		return reply
	}

	reply = s.synthesizer.Respond(ctx, state)
	if len(state.SearchResults) > 0 || state.Aggregation != nil {
		state.RetryCount = 0
	}
	moveTo(state, domain.PhaseResponding)
	return reply
}

// enforceLimits forces the ending phase once a limit is exceeded.
func (s *ConversationService) enforceLimits(state *domain.ConversationState, reply *Reply) {
	if s.router.ShouldContinue(state) || state.Phase == domain.PhaseEnding {
		return
	}
	limit := s.router.exceeded(state)
	if limit == "" {
		moveTo(state, domain.PhaseEnding)
		return
	}

	logger.Warn("Thread %s exceeded its %s limit, ending conversation", state.ThreadID, limit)
	state.RecordError(fmt.Sprintf("%s limit: %v", limit, domain.ErrLimitExceeded))
	moveTo(state, domain.PhaseEnding)

	reply.Content = reply.Content + "\n\n" + LimitReachedMessage
	if n := len(state.Messages); n > 0 && state.Messages[n-1].Role == domain.RoleAssistant {
		state.Messages[n-1].Content = reply.Content
	}
}

// loadState fetches the thread or starts a fresh one. A thread that ended
// starts over. loaded is false when the store failed, so the returned state
// is a stand-in for this turn only.
func (s *ConversationService) loadState(
	ctx context.Context, threadID string,
) (state *domain.ConversationState, loaded bool) {
	if s.store == nil {
		return domain.NewConversationState(threadID, s.now()), true
	}

	callCtx, cancel := s.storeContext(ctx)
	defer cancel()
	state, err := s.store.Load(callCtx, threadID)
	switch {
	case err != nil:
		metrics.CollaboratorErrorsTotal.WithLabelValues("checkpoint", "load").Inc()
		logger.Warn("Failed to load thread %s, starting fresh: %v", threadID, err)
		fresh := domain.NewConversationState(threadID, s.now())
		fresh.RecordError(fmt.Sprintf("load conversation: %v", errors.Join(domain.ErrPersistence, err)))
		return fresh, false
	case state == nil:
		logger.Debug("New thread %s", threadID)
		return domain.NewConversationState(threadID, s.now()), true
	case state.Phase.IsTerminal():
		logger.Debug("Thread %s had ended, starting fresh", threadID)
		return domain.NewConversationState(threadID, s.now()), true
	default:
		// HasErrors reports on the current turn only.
		state.HasErrors = false
		return state, true
	}
}

func (s *ConversationService) saveState(ctx context.Context, threadID string, state *domain.ConversationState) error {
	if s.store == nil {
		return nil
	}
	callCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Save(callCtx, threadID, state); err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("checkpoint", "save").Inc()
		logger.Error("Failed to save thread %s: %v", threadID, err)
		return fmt.Errorf("save thread %s: %w", threadID, err)
	}
	return nil
}

func (s *ConversationService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// applyClassification copies the classifier output onto the state.
func applyClassification(state *domain.ConversationState, text string, cls domain.Classification) {
	state.UserIntent = cls.Intent
	state.QueryComplexity = cls.Complexity
	state.OriginalQuery = text
	state.ProcessedQuery = cls.ProcessedQuery
	state.IsContextual = cls.IsContextual
	state.IsInterrogative = cls.Interrogative
	state.QueryKeywords = cls.Keywords
	for _, entity := range cls.TopicEntities {
		state.TrackTopic(entity)
	}
}

// moveTo advances the phase, stepping through understanding when the state
// machine has no direct edge.
func moveTo(state *domain.ConversationState, next domain.Phase) {
	current := state.Phase
	if current == next {
		return
	}
	if !current.CanTransition(next) {
		viaUnderstanding := current.CanTransition(domain.PhaseUnderstanding) &&
			domain.PhaseUnderstanding.CanTransition(next)
		if !viaUnderstanding {
			logger.Warn("Unexpected phase transition %s -> %s", current, next)
		}
	}
	logger.Debug("Phase %s -> %s", current, next)
	state.Phase = next
}

// threadLocks serialises turns per thread. Entries are reference counted and
// removed once no caller holds or waits for them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// acquire blocks until threadID is free and returns the release function.
func (t *threadLocks) acquire(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}

// size returns the number of tracked threads.
func (t *threadLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
