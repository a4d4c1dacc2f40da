// Package session owns the per-session runtime: every transport event is
// normalized onto a channel and consumed by one runner goroutine, so business
// logic never executes inside a transport callback.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/agent"
	"github.com/clinicvoice-ai/session-orchestrator/internal/catalog"
	"github.com/clinicvoice-ai/session-orchestrator/internal/channelcfg"
	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/org"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/metrics"
)

// Speaker delivers agent utterances back to the transport.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Deps are the shared collaborators every runner needs.
type Deps struct {
	Resolver    *org.Resolver
	Configs     *channelcfg.Cache
	Sessions    store.SessionStore
	Messages    store.MessageLog
	Invoker     agent.Invoker
	Catalog     *catalog.Catalog
	LLM         func(model string) llm.Client
	MaxTurns    int
	Granularity time.Duration
	Logger      *logger.Logger
}

// disabledReply is spoken when a tenant has switched the channel off. The
// session still gets a record so the webhook reconciler has something to
// merge into.
const disabledReply = "I'm sorry, this line is not in service right now. Please contact the office directly."

// Runner drives one session: it consumes normalized events, feeds the front
// agent, and persists every turn.
type Runner struct {
	id      string
	deps    Deps
	speaker Speaker
	events  chan model.SessionEvent

	// stop is closed on the first session_end so an in-flight supervisor
	// loop is cancelled instead of waiting for its queue turn.
	stop      chan struct{}
	endOnce   sync.Once
	endReason string

	cancel context.CancelFunc
	done   chan struct{}

	// set during session_start
	orgID       string
	channel     model.Channel
	front       *agent.Front
	sup         *agent.Supervisor
	office      *agent.OfficeState
	fullCatalog bool
	history     []llm.ChatMessage
	log         *logger.Logger
}

func newRunner(id string, deps Deps, speaker Speaker) *Runner {
	return &Runner{
		id:      id,
		deps:    deps,
		speaker: speaker,
		events:  make(chan model.SessionEvent, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     deps.Logger,
	}
}

// Deliver hands one event to the runner. It never blocks a transport
// callback: a full buffer drops the event with a loud log instead. A
// session_end bypasses the queue entirely so it cannot be dropped and
// cancels any in-flight supervisor work.
func (r *Runner) Deliver(ev model.SessionEvent) {
	if ev.Type == model.EventSessionEnd {
		r.endOnce.Do(func() {
			r.endReason = ev.Reason
			close(r.stop)
		})
		return
	}
	select {
	case r.events <- ev:
	case <-r.done:
	default:
		r.log.Error("session event buffer full, dropping event",
			zap.String("session_id", r.id), zap.String("type", string(ev.Type)))
	}
}

// Done is closed when the runner goroutine has fully stopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) run(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()
	defer close(r.done)

	go func() {
		select {
		case <-r.stop:
			r.cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-r.stop:
			r.handleEnd(r.endReason)
			return
		case <-ctx.Done():
			// stop cancels ctx through the watcher above, so both cases
			// can be ready at once; the ended merge must still run.
			select {
			case <-r.stop:
				r.handleEnd(r.endReason)
			default:
			}
			return
		case ev := <-r.events:
			switch ev.Type {
			case model.EventSessionStart:
				r.handleStart(ctx, ev.Meta)
			case model.EventUserUtterance:
				r.handleUtterance(ctx, ev.Text)
			case model.EventAgentUtterance, model.EventToolStart, model.EventToolEnd:
				// Informational for transports that echo their own side.
			case model.EventSessionEnd:
				// Normalized through Deliver; unreachable from the queue.
			}
		}
	}
}

// registerStart settles tenant identity and the session record. It is the
// part of session start that must happen even when the connection is
// already tearing down.
func (r *Runner) registerStart(ctx context.Context, meta *model.SessionMeta) {
	if meta == nil {
		meta = &model.SessionMeta{SessionID: r.id}
	}
	r.orgID = r.deps.Resolver.ResolveSession(ctx, meta)
	r.channel = meta.Channel
	r.log = r.deps.Logger.WithSession(r.orgID, r.id)

	if meta.From != "" {
		r.deps.Resolver.RememberCaller(meta.From, r.orgID)
	}

	now := time.Now().UTC()
	if _, _, err := r.deps.Sessions.CreateOrGet(ctx, r.orgID, r.id, r.channel); err != nil {
		r.log.Error("session create failed", zap.Error(err))
	}
	if _, err := r.deps.Sessions.Merge(ctx, r.id, store.SessionPatch{
		From:      meta.From,
		To:        meta.To,
		Status:    model.StatusOngoing,
		StartedAt: &now,
	}); err != nil {
		r.log.Error("session start merge failed", zap.Error(err))
	}

	metrics.SessionsActive.WithLabelValues(string(r.channel)).Inc()
	metrics.SessionsTotal.WithLabelValues(r.orgID, string(r.channel)).Inc()
	r.log.Info("session started", zap.String("channel", string(r.channel)))
}

func (r *Runner) handleStart(ctx context.Context, meta *model.SessionMeta) {
	r.registerStart(ctx, meta)

	cfg := r.deps.Configs.Get(ctx, r.orgID, r.channel)
	if !cfg.Enabled {
		r.log.Warn("channel disabled for organization, declining session",
			zap.String("channel", string(r.channel)))
		r.append(ctx, model.RoleAssistant, disabledReply)
		if err := r.speaker.Speak(ctx, disabledReply); err != nil {
			r.log.Warn("speak failed", zap.Error(err))
		}
		r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "channel_disabled"})
		return
	}
	frontInstr, supInstr := channelcfg.SplitInstructions(cfg.Instructions)
	r.fullCatalog = cfg.FullCatalog

	client := r.deps.LLM(cfg.ModelBackend)
	r.sup = agent.NewSupervisor(client, cfg.ModelBackend, r.deps.Catalog, r.deps.Invoker, r.deps.MaxTurns, r.log)

	frontModel := cfg.FrontModelBackend
	if frontModel == "" {
		frontModel = cfg.ModelBackend
	}
	if cfg.AgentMode == model.AgentModeSingle {
		// Single mode: the "front" delegates on every scheduling request
		// but shares the supervisor's model and full instructions.
		frontInstr = cfg.Instructions
		frontModel = cfg.ModelBackend
	}
	r.front = agent.NewFront(r.deps.LLM(frontModel), frontModel, frontInstr, r.delegate(supInstr), r.log)

	// Availability is prefetched once so the supervisor answers slot
	// questions locally.
	r.office = agent.PrefetchOfficeState(ctx, r.deps.Invoker, r.id, r.orgID, time.Now(), r.log)
}

func (r *Runner) delegate(instructions string) agent.Delegate {
	return func(ctx context.Context, delegated string, history []llm.ChatMessage) (string, error) {
		return r.sup.Respond(ctx, agent.Request{
			OrgID:        r.orgID,
			SessionID:    r.id,
			Instructions: instructions,
			Context:      delegated,
			History:      history,
			Office:       r.office,
			FullCatalog:  r.fullCatalog,
			Granularity:  r.deps.Granularity,
		})
	}
}

func (r *Runner) handleUtterance(ctx context.Context, text string) {
	if r.front == nil {
		r.log.Warn("utterance before session start, dropping")
		return
	}
	r.append(ctx, model.RoleUser, text)

	reply, err := r.front.HandleUtterance(ctx, r.history, text)
	if err != nil {
		r.log.Error("front agent failed", zap.Error(err))
		return
	}
	r.history = append(r.history, reply.Messages...)

	for _, utterance := range reply.Utterances {
		r.append(ctx, model.RoleAssistant, utterance)
		if err := r.speaker.Speak(ctx, utterance); err != nil {
			r.log.Warn("speak failed", zap.Error(err))
		}
	}

	if reply.End {
		r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "agent_goodbye"})
	}
}

func (r *Runner) handleEnd(reason string) {
	// A start frame can still be sitting in the queue when the connection
	// tears down; the tenant binding and session record must not be lost.
	for drained := false; !drained; {
		select {
		case ev := <-r.events:
			if ev.Type == model.EventSessionStart && r.orgID == "" {
				endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				r.registerStart(endCtx, ev.Meta)
				cancel()
			}
		default:
			drained = true
		}
	}

	if r.orgID == "" {
		return
	}

	now := time.Now().UTC()
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.deps.Sessions.Merge(endCtx, r.id, store.SessionPatch{
		Status:      model.StatusEnded,
		EndedAt:     &now,
		Disposition: reason,
	}); err != nil {
		r.log.Error("session end merge failed", zap.Error(err))
	}
	metrics.SessionsActive.WithLabelValues(string(r.channel)).Dec()
	r.log.Info("session ended", zap.String("reason", reason))
}

func (r *Runner) append(ctx context.Context, role model.Role, content string) {
	_, err := r.deps.Messages.Append(ctx, &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: r.id,
		OrgID:     r.orgID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		r.log.Error("message append failed", zap.Error(err))
		return
	}
	metrics.MessagesTotal.WithLabelValues(r.orgID, string(role)).Inc()
}
