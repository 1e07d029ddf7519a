// Package service exposes the narrator over NATS request/reply.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/translate"
)

const queueGroup = "narrator"

// Translator is the free-text side of the translation gateway.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) translate.Result
	DefaultLanguage() string
}

type Narrator interface {
	Narrate(ctx context.Context, itemID, language string, mode pipeline.Mode) (pipeline.Result, error)
	Play(ctx context.Context, itemID, language string) bool
	Cleanup(ctx context.Context, itemID, language string) bool
}

type Service struct {
	bus        *bus.Client
	translator Translator
	narrator   Narrator
	timeout    time.Duration
	subs       []*nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	ready      bool
	logger     *slog.Logger
}

// NewService builds the service. timeout bounds each request; it must cover
// translation retries and playback.
func NewService(parent context.Context, busClient *bus.Client, translator Translator, narrator Narrator, timeout time.Duration, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Service{
		bus:        busClient,
		translator: translator,
		narrator:   narrator,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(slog.String("component", "narrator-service")),
	}
}

func (s *Service) Start() error {
	if err := s.bus.EnsureStream(protocol.StatusStream, []string{protocol.SubjectStatus}, 7*24*time.Hour); err != nil {
		s.logger.Warn("status stream unavailable", slogError(err))
	}
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectTranslate: s.async(s.handleTranslate),
		protocol.SubjectNarrate:   s.async(s.handleNarrate),
		protocol.SubjectPlay:      s.async(s.handlePlay),
		protocol.SubjectCleanup:   s.async(s.handleCleanup),
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().QueueSubscribe(subject, queueGroup, handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.bus.Conn().Flush(); err != nil {
		s.unsubscribe()
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

// async runs fn off the subscription goroutine so slow narrations do not
// block other requests.
func (s *Service) async(fn func(context.Context, *nats.Msg)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
			defer cancel()
			fn(ctx, msg)
		}()
	}
}

func (s *Service) handleTranslate(ctx context.Context, msg *nats.Msg) {
	var req protocol.TranslateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyError(msg, protocol.TranslateReply{}, "decode translate request", err)
		return
	}
	req.RequestID = requestID(req.RequestID)
	lang := req.Language
	if lang == "" {
		lang = s.translator.DefaultLanguage()
	}

	res := s.translator.Translate(ctx, req.Text, lang)
	reply := protocol.TranslateReply{
		RequestID:   req.RequestID,
		Translation: res.Text,
		Language:    lang,
		Attempts:    res.Attempts,
	}
	if res.Err != nil {
		reply.Error = res.Err.Error()
	}
	s.respond(msg, reply)
	s.publishStatus(protocol.Status{RequestID: req.RequestID, Subject: msg.Subject, Language: lang, OK: res.Err == nil, Detail: reply.Error})
}

func (s *Service) handleNarrate(ctx context.Context, msg *nats.Msg) {
	var req protocol.NarrateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyError(msg, protocol.NarrateReply{}, "decode narrate request", err)
		return
	}
	req.RequestID = requestID(req.RequestID)
	reply := protocol.NarrateReply{RequestID: req.RequestID, ItemID: req.ItemID, Language: req.Language}

	mode, err := pipeline.ParseMode(req.Mode)
	if err == nil && req.ItemID == "" {
		err = errors.New("item_id is required")
	}
	if err != nil {
		reply.Error = err.Error()
		s.respond(msg, reply)
		return
	}

	start := time.Now()
	res, err := s.narrator.Narrate(ctx, req.ItemID, req.Language, mode)
	reply.Language = res.Language
	reply.Subject = res.Subject
	reply.Summary = res.Summary
	reply.DisplayBody = res.DisplayBody
	reply.Script = res.Script
	reply.Audio = res.Audio
	reply.Warnings = res.Warnings
	if err != nil {
		reply.Error = err.Error()
		s.logger.Warn("narration failed", slog.String("item_id", req.ItemID), slogError(err))
	} else {
		s.logger.Info("narration complete",
			slog.String("item_id", req.ItemID),
			slog.String("language", res.Language),
			slog.String("mode", string(mode)),
			slog.Duration("latency", time.Since(start)))
	}
	s.respond(msg, reply)
	s.publishStatus(protocol.Status{
		RequestID: req.RequestID, Subject: msg.Subject, ItemID: req.ItemID,
		Language: reply.Language, OK: err == nil, Detail: reply.Error,
	})
}

func (s *Service) handlePlay(ctx context.Context, msg *nats.Msg) {
	s.handleArtifact(ctx, msg, s.narrator.Play)
}

func (s *Service) handleCleanup(ctx context.Context, msg *nats.Msg) {
	s.handleArtifact(ctx, msg, s.narrator.Cleanup)
}

func (s *Service) handleArtifact(ctx context.Context, msg *nats.Msg, op func(context.Context, string, string) bool) {
	var req protocol.ArtifactRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyError(msg, protocol.ArtifactReply{}, "decode artifact request", err)
		return
	}
	req.RequestID = requestID(req.RequestID)
	reply := protocol.ArtifactReply{RequestID: req.RequestID, OK: op(ctx, req.ItemID, req.Language)}
	if !reply.OK {
		reply.Error = fmt.Sprintf("no audio for %s/%s", req.ItemID, req.Language)
	}
	s.respond(msg, reply)
	s.publishStatus(protocol.Status{
		RequestID: req.RequestID, Subject: msg.Subject, ItemID: req.ItemID,
		Language: req.Language, OK: reply.OK, Detail: reply.Error,
	})
}

func (s *Service) replyError(msg *nats.Msg, reply any, what string, err error) {
	s.logger.Warn("failed to "+what, slogError(err))
	switch r := reply.(type) {
	case protocol.TranslateReply:
		r.Error = err.Error()
		reply = r
	case protocol.NarrateReply:
		r.Error = err.Error()
		reply = r
	case protocol.ArtifactReply:
		r.Error = err.Error()
		reply = r
	}
	s.respond(msg, reply)
}

func (s *Service) respond(msg *nats.Msg, reply any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

func (s *Service) publishStatus(status protocol.Status) {
	status.Timestamp = time.Now().UTC()
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectStatus, data); err != nil {
		s.logger.Warn("failed to publish status", slogError(err))
	}
}

func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
