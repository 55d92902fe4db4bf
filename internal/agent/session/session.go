// Package session is the entry point hosts use to run conversation turns.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/memgraph-agent/server/internal/agent/graph"
	"github.com/memgraph-agent/server/internal/agent/graph/nodes"
	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

// CoreMemoryReader exposes a user's core memories to hosts.
type CoreMemoryReader interface {
	LoadCoreMemories(ctx context.Context, userID string) (model.CoreMemories, error)
}

// Session maps (user, thread) pairs onto turn graph invocations. It keeps no
// conversation state of its own: the thread repository checkpoints the active
// messages after each successful turn.
type Session struct {
	runner  graph.Runner
	threads model.ThreadRepository
	memory  CoreMemoryReader
	locks   *threadLocks
	log     zerolog.Logger
}

func New(runner graph.Runner, threads model.ThreadRepository, memory CoreMemoryReader) *Session {
	return &Session{
		runner:  runner,
		threads: threads,
		memory:  memory,
		locks:   newThreadLocks(),
		log:     logx.With("session"),
	}
}

// Submit runs one turn and returns the final response.
func (s *Session) Submit(ctx context.Context, userID, threadID, text string) (string, error) {
	res, err := s.turn(ctx, userID, threadID, text)
	if err != nil {
		return "", err
	}
	return res.FinalResponse, nil
}

// Stream runs one turn in the background and returns the response fragments as
// they are generated. Only the response step writes to the stream. A failed
// turn ends the stream with its error. The caller must close the reader.
func (s *Session) Stream(ctx context.Context, userID, threadID, text string) (*schema.StreamReader[string], error) {
	if err := validate(userID, threadID, text); err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[string](16)
	go func() {
		defer sw.Close()
		sctx := nodes.WithFragmentSink(ctx, func(fragment string) {
			sw.Send(fragment, nil)
		})
		if _, err := s.turn(sctx, userID, threadID, text); err != nil {
			sw.Send("", err)
		}
	}()
	return sr, nil
}

// CoreMemories returns the current core memories of a user.
func (s *Session) CoreMemories(ctx context.Context, userID string) (model.CoreMemories, error) {
	return s.memory.LoadCoreMemories(ctx, userID)
}

// History returns the checkpointed messages of a thread.
func (s *Session) History(ctx context.Context, threadID string) ([]*schema.Message, error) {
	h, err := s.threads.LoadHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return h.Messages, nil
}

// ResetThread drops the checkpoint of a thread and returns how many messages it held.
// It waits for an in-flight turn on the thread to finish.
func (s *Session) ResetThread(ctx context.Context, threadID string) (int, error) {
	if strings.TrimSpace(threadID) == "" {
		return 0, errors.New("thread id is required")
	}

	release, err := s.locks.acquire(ctx, threadID)
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.threads.GetMessageCount(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	if err := s.threads.ClearHistory(ctx, threadID); err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}

	s.log.Info().Str("thread_id", threadID).Int("messages", n).Msg("Thread reset")
	return n, nil
}

func (s *Session) turn(ctx context.Context, userID, threadID, text string) (*model.TurnResult, error) {
	if err := validate(userID, threadID, text); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	history, err := s.threads.LoadHistory(ctx, threadID)
	if err != nil {
		s.log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to load thread history")
		return nil, fmt.Errorf("load history: %w", err)
	}

	res, err := s.runner.Invoke(ctx, model.TurnInput{
		UserID:   userID,
		ThreadID: threadID,
		History:  history.Messages,
		Message:  text,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("thread_id", threadID).Msg("Turn failed")
		return nil, err
	}

	// Checkpoint only completed turns.
	if err := s.threads.SaveMessages(ctx, threadID, res.Messages); err != nil {
		s.log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to checkpoint thread")
		return nil, fmt.Errorf("checkpoint thread: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("thread_id", threadID).
		Int("messages", len(res.Messages)).
		Int("tool_calls", res.ToolCalls).
		Bool("summarized", res.Summary != "").
		Msg("Turn finished")
	return res, nil
}

func validate(userID, threadID, text string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(threadID) == "" {
		return errors.New("user id and thread id are required")
	}
	if strings.TrimSpace(text) == "" {
		return errx.ErrEmptyMessage
	}
	return nil
}
