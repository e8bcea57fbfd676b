package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/logger"
)

// Gate validates a turn against the global budget and per-model limits
// before any generation starts.
type Gate interface {
	CheckBudget(ctx context.Context) error
	CheckModel(ctx context.Context, userID uint64, model *ai.Model, prompt []ai.Message) error
	ByokKey(ctx context.Context, userID uint64, host string) (string, bool, error)
	AddBudgetUsage(ctx context.Context, amount float64) error
}

type UsageTracker interface {
	Track(ctx context.Context, userID uint64, modelID string, u ai.Usage) error
}

type FileStore interface {
	GetFile(ctx context.Context, id string) (contentType string, data []byte, err error)
}

type PromptSource interface {
	Get(name string, params map[string]any) (string, error)
}

// Submitter schedules fire-and-forget work; the orchestrator never blocks on
// it and never sees its failures.
type Submitter interface {
	Submit(name string, fn func(ctx context.Context) error)
}

type Service struct {
	repo         *Repo
	catalog      *ai.Catalog
	registry     *ai.Registry
	guard        Gate
	tracker      UsageTracker
	files        FileStore
	prompts      PromptSource
	tasks        Submitter
	log          *logger.Logger
	titleModelID string
}

func NewService(repo *Repo, catalog *ai.Catalog, registry *ai.Registry, guard Gate, tracker UsageTracker, files FileStore, prompts PromptSource, tasks Submitter, log *logger.Logger, titleModelID string) *Service {
	return &Service{
		repo:         repo,
		catalog:      catalog,
		registry:     registry,
		guard:        guard,
		tracker:      tracker,
		files:        files,
		prompts:      prompts,
		tasks:        tasks,
		log:          log,
		titleModelID: titleModelID,
	}
}

type TurnMessage struct {
	ID          *uint64 `json:"id,omitempty"` // set on edit/regenerate
	ChatID      *string `json:"chat_id,omitempty"`
	Content     string  `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

type ModelSelection struct {
	ModelID      string  `json:"model_id"`
	ImageModelID *string `json:"image_model_id,omitempty"`
}

type TurnOptions struct {
	Tools []ai.Tool `json:"tools,omitempty"`
}

type TurnRequest struct {
	Message              TurnMessage      `json:"message"`
	Models               []ModelSelection `json:"models"`
	SharedConversationID *string          `json:"shared_conversation_id,omitempty"`
	Options              TurnOptions      `json:"options"`
}

// turnSlot is one fanned-out model: its catalog entry, its pre-created
// assistant message row, and the caller's own key when one applies.
type turnSlot struct {
	model        *ai.Model
	imageModelID *string
	byokKey      string
	messageID    uint64
}

// CompleteTurn runs one conversation turn: resolve the chat, rewrite
// history, gate every target model, create assistant slots, then stream.
// Errors returned here happened before the stream started and propagate as
// ordinary request failures; everything after arrives on the event channel,
// which always ends with a done frame.
func (s *Service) CompleteTurn(ctx context.Context, userID uint64, req TurnRequest) (<-chan ServerEvent, error) {
	if strings.TrimSpace(req.Message.Content) == "" {
		return nil, common.BadRequestErr("message content required")
	}
	if len(req.Models) == 0 {
		return nil, common.BadRequestErr("at least one target model required")
	}

	c, err := s.resolveChat(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	userMsg, thread, err := s.rewriteHistory(ctx, c, req)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CheckBudget(ctx); err != nil {
		return nil, err
	}

	// gate every model before creating any slot: partial fan-out must not
	// begin if a single model is unauthorized
	prompt := providerMessages(thread)
	slots := make([]*turnSlot, 0, len(req.Models))
	for _, sel := range req.Models {
		model, err := s.catalog.Get(ctx, sel.ModelID)
		if err != nil {
			return nil, mapNotFound(err, fmt.Sprintf("model %s", sel.ModelID))
		}
		if err := s.guard.CheckModel(ctx, userID, model, prompt); err != nil {
			return nil, err
		}
		key, _, err := s.guard.ByokKey(ctx, userID, model.Host)
		if err != nil {
			return nil, err
		}
		slots = append(slots, &turnSlot{model: model, imageModelID: sel.ImageModelID, byokKey: key})
	}

	// one empty assistant row per model so every stream has a stable target
	// to finalize into
	for i, slot := range slots {
		selected := i == 0
		m := &Message{
			ChatID:            c.ID,
			Role:              RoleAssistant,
			ModelID:           &slot.model.ID,
			ImageModelID:      slot.imageModelID,
			SeqNum:            userMsg.SeqNum + 1 + i,
			Selected:          &selected,
			PreviousMessageID: &userMsg.ID,
		}
		if err := s.repo.AddMessage(ctx, m); err != nil {
			return nil, err
		}
		slot.messageID = m.ID
	}

	events := make(chan ServerEvent, 32)
	// detached from the request context: a client disconnect must not abort
	// in-flight generation, so final content can still be persisted
	turnCtx := context.WithoutCancel(ctx)
	go s.run(turnCtx, userID, c, userMsg, thread, slots, req.Options, events)
	return events, nil
}

func (s *Service) resolveChat(ctx context.Context, userID uint64, req TurnRequest) (*Chat, error) {
	if req.Message.ChatID != nil && *req.Message.ChatID != "" {
		c, err := s.repo.GetChat(ctx, userID, *req.Message.ChatID)
		if err != nil {
			return nil, mapNotFound(err, "chat")
		}
		return c, nil
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	if req.SharedConversationID != nil && *req.SharedConversationID != "" {
		c, err := s.repo.CreateChatFromShared(ctx, userID, *req.SharedConversationID, id)
		if err != nil {
			return nil, mapNotFound(err, "shared conversation")
		}
		return c, nil
	}

	title := s.generateTitle(ctx, req.Message.Content)
	c := &Chat{ID: id, UserID: userID, Title: &title}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// rewriteHistory truncates the branch on edit/regenerate, persists the user
// message at the next seq_num, and returns the active linear thread.
func (s *Service) rewriteHistory(ctx context.Context, c *Chat, req TurnRequest) (*Message, []Message, error) {
	var userMsg *Message

	if req.Message.ID != nil {
		orig, err := s.repo.GetMessage(ctx, c.ID, *req.Message.ID)
		if err != nil {
			return nil, nil, mapNotFound(err, "message")
		}
		if orig.Role == RoleUser {
			// edit: the original user message and everything after it go away
			if err := s.repo.DeleteFromSeq(ctx, c.ID, orig.SeqNum, true); err != nil {
				return nil, nil, err
			}
		} else {
			// regenerate: keep the triggering user message, drop everything
			// after it
			if orig.PreviousMessageID == nil {
				return nil, nil, common.BadRequestErr("assistant message has no reply target")
			}
			trigger, err := s.repo.GetMessage(ctx, c.ID, *orig.PreviousMessageID)
			if err != nil {
				return nil, nil, mapNotFound(err, "message")
			}
			if err := s.repo.DeleteFromSeq(ctx, c.ID, trigger.SeqNum, false); err != nil {
				return nil, nil, err
			}
			userMsg = trigger
		}
	}

	if userMsg == nil {
		seq, err := s.nextUserSeq(ctx, c.ID)
		if err != nil {
			return nil, nil, err
		}
		content := req.Message.Content
		userMsg = &Message{
			ChatID:      c.ID,
			Role:        RoleUser,
			Content:     &content,
			Attachments: req.Message.Attachments,
			SeqNum:      seq,
		}
		if err := s.repo.AddMessage(ctx, userMsg); err != nil {
			return nil, nil, err
		}
	}

	msgs, err := s.repo.listMessages(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	// active thread: selected true or unset
	thread := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Selected == nil || *m.Selected {
			thread = append(thread, m)
		}
	}
	return userMsg, thread, nil
}

func (s *Service) nextUserSeq(ctx context.Context, chatID string) (int, error) {
	lastAsst, ok, err := s.repo.LastAssistantSeq(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if ok {
		return lastAsst + 1, nil
	}
	maxSeq, err := s.repo.MaxSeqNum(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if maxSeq > 0 {
		return maxSeq + 2, nil
	}
	return 1, nil
}

// run is the streaming phase: fan out one producer per model onto a shared
// queue, drain it into SSE events, finalize, then emit done unconditionally.
func (s *Service) run(ctx context.Context, userID uint64, c *Chat, userMsg *Message, thread []Message, slots []*turnSlot, opts TurnOptions, events chan<- ServerEvent) {
	defer close(events)

	title := ""
	if c.Title != nil {
		title = *c.Title
	}
	events <- ServerEvent{Type: EventChatMetadata, ChatID: c.ID, Title: title}
	for _, slot := range slots {
		events <- ServerEvent{
			Type:      EventMessageStart,
			MessageID: slot.messageID,
			ModelID:   slot.model.ID,
			ModelName: slot.model.Name,
			ReplyTo:   userMsg.ID,
		}
	}

	// one shared FIFO for all producers; chunks interleave in arrival order
	queue := make(chan streamChunk, 64)
	var wg sync.WaitGroup
	for _, slot := range slots {
		wg.Add(1)
		go func(sl *turnSlot) {
			defer wg.Done()
			s.generate(ctx, sl, thread, opts, queue)
		}(slot)
	}
	go func() {
		wg.Wait()
		close(queue)
	}()

	stops := make(map[uint64]streamChunk, len(slots))
	terminals := 0
	for ch := range queue {
		switch ch.kind {
		case chunkReasoning:
			events <- ServerEvent{Type: EventReasoningContent, MessageID: ch.messageID, ModelID: ch.modelID, Delta: ch.delta}
		case chunkContent:
			events <- ServerEvent{Type: EventMessageContent, MessageID: ch.messageID, ModelID: ch.modelID, Delta: ch.delta}
		case chunkToolCalls:
			events <- ServerEvent{Type: EventToolCalls, MessageID: ch.messageID, ModelID: ch.modelID, ToolCalls: ch.toolCalls}
		case chunkStop:
			terminals++
			stops[ch.messageID] = ch
			events <- ServerEvent{Type: EventMessageContentStop, MessageID: ch.messageID, ModelID: ch.modelID, Attachments: ch.attachments}
		case chunkError:
			terminals++
			events <- ServerEvent{Type: EventError, MessageID: ch.messageID, ModelID: ch.modelID, Status: ch.status, Message: ch.errMsg}
		}
	}
	if terminals != len(slots) {
		s.log.Warn("turn ended short of terminal chunks", "chat_id", c.ID, "got", terminals, "want", len(slots))
	}

	// finalize sequentially, one commit per message; errored models keep
	// empty content
	for _, slot := range slots {
		ch, ok := stops[slot.messageID]
		if !ok {
			continue
		}
		if err := s.repo.UpdateMessageContent(ctx, ch.messageID, ch.fullText, ch.attachments); err != nil {
			s.log.Error("finalize assistant message", "chat_id", c.ID, "message_id", ch.messageID, "err", err)
			continue
		}
		sl, u := slot, ch.usage
		s.tasks.Submit("track-usage", func(taskCtx context.Context) error {
			if err := s.tracker.Track(taskCtx, userID, sl.model.ID, u); err != nil {
				return err
			}
			return s.guard.AddBudgetUsage(taskCtx, sl.model.Cost(u))
		})
	}

	events <- ServerEvent{Type: EventDone}
}

// generate is one producer. Its failures stay local: it pushes a single
// model-tagged error chunk and returns without touching its siblings.
func (s *Service) generate(ctx context.Context, slot *turnSlot, thread []Message, opts TurnOptions, queue chan<- streamChunk) {
	fail := func(status int, msg string) {
		queue <- streamChunk{kind: chunkError, modelID: slot.model.ID, messageID: slot.messageID, status: status, errMsg: msg}
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("generation panic", "model_id", slot.model.ID, "panic", rec)
			fail(http.StatusInternalServerError, "internal error")
		}
	}()

	msgs := s.assembleMessages(ctx, slot, thread)

	provider, err := s.registry.Get(ctx, slot.model.Host, slot.model.Upstream, slot.byokKey)
	if err != nil {
		fail(http.StatusFailedDependency, err.Error())
		return
	}

	deltas, errs := provider.GenerateStream(ctx, msgs, ai.Options{Tools: opts.Tools})

	var b strings.Builder
	var usage ai.Usage
	var attachments []string
	for d := range deltas {
		if d.Reasoning != "" {
			queue <- streamChunk{kind: chunkReasoning, modelID: slot.model.ID, messageID: slot.messageID, delta: d.Reasoning}
		}
		if d.Content != "" {
			b.WriteString(d.Content)
			queue <- streamChunk{kind: chunkContent, modelID: slot.model.ID, messageID: slot.messageID, delta: d.Content}
		}
		if len(d.ToolCalls) > 0 {
			queue <- streamChunk{kind: chunkToolCalls, modelID: slot.model.ID, messageID: slot.messageID, toolCalls: d.ToolCalls}
		}
		if d.Usage != nil {
			usage = *d.Usage
		}
	}

	select {
	case err := <-errs:
		if err != nil {
			fail(upstreamStatus(err), err.Error())
			return
		}
	default:
	}

	if usage.TotalTokens == 0 {
		// host reported no accounting; estimate so tracking never records zero
		usage.PromptTokens = provider.CountTokens(msgs)
		usage.CompletionTokens = len(b.String()) / 4
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	queue <- streamChunk{
		kind:        chunkStop,
		modelID:     slot.model.ID,
		messageID:   slot.messageID,
		fullText:    b.String(),
		attachments: attachments,
		usage:       usage,
	}
}

// assembleMessages builds the provider-ready message list: system prompt
// plus the active thread with attachments resolved to inline content.
func (s *Service) assembleMessages(ctx context.Context, slot *turnSlot, thread []Message) []ai.Message {
	out := make([]ai.Message, 0, len(thread)+1)
	if sys, err := s.prompts.Get("chat_system", map[string]any{"ModelName": slot.model.Name}); err == nil && sys != "" {
		out = append(out, ai.Message{Role: "system", Content: sys})
	}
	for _, m := range thread {
		content := ""
		if m.Content != nil {
			content = *m.Content
		}
		for _, attID := range m.Attachments {
			ctype, data, err := s.files.GetFile(ctx, attID)
			if err != nil {
				s.log.Warn("attachment unavailable", "attachment_id", attID, "err", err)
				continue
			}
			if strings.HasPrefix(ctype, "text/") || ctype == "application/json" {
				content += fmt.Sprintf("\n\n[attachment %s]\n%s", attID, data)
			} else {
				content += fmt.Sprintf("\n\n[attachment %s: %s, %d bytes]", attID, ctype, len(data))
			}
		}
		if content == "" {
			// assistant slots still in flight have nothing to contribute
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Content: content})
	}
	return out
}

// generateTitle asks the title model for a short chat title; any failure
// falls back to a truncation of the user's message.
func (s *Service) generateTitle(ctx context.Context, content string) string {
	fallback := strings.TrimSpace(content)
	if len(fallback) > 40 {
		fallback = strings.TrimSpace(fallback[:40])
	}
	if s.titleModelID == "" {
		return fallback
	}
	model, err := s.catalog.Get(ctx, s.titleModelID)
	if err != nil {
		s.log.Warn("title model missing", "model_id", s.titleModelID, "err", err)
		return fallback
	}
	provider, err := s.registry.Get(ctx, model.Host, model.Upstream, "")
	if err != nil {
		s.log.Warn("title provider unavailable", "host", model.Host, "err", err)
		return fallback
	}
	sys, err := s.prompts.Get("title_system", nil)
	if err != nil {
		return fallback
	}
	title, _, err := provider.Generate(ctx, []ai.Message{
		{Role: "system", Content: sys},
		{Role: RoleUser, Content: content},
	}, ai.Options{})
	if err != nil {
		s.log.Warn("title generation failed", "err", err)
		return fallback
	}
	title = strings.Trim(strings.TrimSpace(title), `"`)
	if title == "" {
		return fallback
	}
	return title
}

func providerMessages(thread []Message) []ai.Message {
	out := make([]ai.Message, 0, len(thread))
	for _, m := range thread {
		if m.Content == nil {
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Content: *m.Content})
	}
	return out
}

func upstreamStatus(err error) int {
	if e, ok := common.AsDomainError(err); ok {
		return e.Status
	}
	return http.StatusFailedDependency
}

func mapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFoundErr("%s not found", what)
	}
	return err
}

// --- chat management, thin owner-scoped pass-throughs ---

func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	return s.repo.ListChats(ctx, userID)
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, chatID string) ([]Message, error) {
	msgs, err := s.repo.ListMessages(ctx, userID, chatID)
	if err != nil {
		return nil, mapNotFound(err, "chat")
	}
	return msgs, nil
}

func (s *Service) RenameChat(ctx context.Context, userID uint64, chatID, title string) error {
	if strings.TrimSpace(title) == "" {
		return common.BadRequestErr("title required")
	}
	return mapNotFound(s.repo.RenameChat(ctx, userID, chatID, title), "chat")
}

func (s *Service) SetPinned(ctx context.Context, userID uint64, chatID string, pinned bool) error {
	return mapNotFound(s.repo.SetPinned(ctx, userID, chatID, pinned), "chat")
}

func (s *Service) DeleteChat(ctx context.Context, userID uint64, chatID string) error {
	return mapNotFound(s.repo.DeleteChat(ctx, userID, chatID), "chat")
}

func (s *Service) SelectMessage(ctx context.Context, userID uint64, chatID string, messageID uint64) error {
	return mapNotFound(s.repo.SelectMessage(ctx, userID, chatID, messageID), "message")
}

func (s *Service) CreateShare(ctx context.Context, userID uint64, chatID string) (*SharedConversation, error) {
	share, err := s.repo.CreateShare(ctx, userID, chatID)
	if err != nil {
		return nil, mapNotFound(err, "chat")
	}
	return share, nil
}

func (s *Service) DeleteShare(ctx context.Context, userID uint64, chatID string) error {
	return mapNotFound(s.repo.DeleteShare(ctx, userID, chatID), "chat")
}

func (s *Service) SharedMessages(ctx context.Context, shareID string) (*Chat, []Message, error) {
	c, msgs, err := s.repo.SharedMessages(ctx, shareID)
	if err != nil {
		return nil, nil, mapNotFound(err, "shared conversation")
	}
	return c, msgs, nil
}
