package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

const sessionHotTTL = time.Hour

// session ids become filenames; anything else is rejected
var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Conversation is one persisted session transcript. The last assembled
// context is stored compressed so transcripts stay small on disk.
type Conversation struct {
	SessionID       string               `json:"session_id"`
	Messages        []models.ChatMessage `json:"messages"`
	ContextSnapshot string               `json:"context_snapshot,omitempty"` // base64
	ContextEncoding string               `json:"context_encoding,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// SessionStore persists conversations as one JSON file per session with a
// redis hot cache in front when configured.
type SessionStore struct {
	dir string
	rdb *redis.Client
}

func NewSessionStore(cfg *config.Config, rdb *redis.Client) (*SessionStore, error) {
	if err := os.MkdirAll(cfg.ConversationsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating conversations dir: %w", err)
	}
	return &SessionStore{dir: cfg.ConversationsDir, rdb: rdb}, nil
}

func validSessionID(id string) error {
	if !sessionIDRe.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

func (ss *SessionStore) path(sessionID string) string {
	return filepath.Join(ss.dir, sessionID+".json")
}

// Save writes the conversation to disk and refreshes the hot cache. The
// context snapshot, when present, is compressed before storage.
func (ss *SessionStore) Save(ctx context.Context, conv *Conversation, contextText string) error {
	if err := validSessionID(conv.SessionID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	if contextText != "" {
		compressed, algo, err := utils.CompressText(contextText)
		if err != nil {
			return fmt.Errorf("compressing context snapshot: %w", err)
		}
		conv.ContextSnapshot = base64.StdEncoding.EncodeToString(compressed)
		conv.ContextEncoding = string(algo)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation: %w", err)
	}

	tmp := ss.path(conv.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}
	if err := os.Rename(tmp, ss.path(conv.SessionID)); err != nil {
		return fmt.Errorf("replacing conversation: %w", err)
	}

	if ss.rdb != nil {
		if err := ss.rdb.Set(ctx, "session:"+conv.SessionID, data, sessionHotTTL).Err(); err != nil {
			logger.Warn("session hot cache write failed", "session", conv.SessionID, "error", err)
		}
	}
	return nil
}

// Load reads a conversation, trying the hot cache before disk.
func (ss *SessionStore) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}

	if ss.rdb != nil {
		data, err := ss.rdb.Get(ctx, "session:"+sessionID).Bytes()
		if err == nil {
			var conv Conversation
			if err := json.Unmarshal(data, &conv); err == nil {
				return &conv, nil
			}
		} else if err != redis.Nil {
			logger.Warn("session hot cache read failed", "session", sessionID, "error", err)
		}
	}

	data, err := os.ReadFile(ss.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshaling conversation: %w", err)
	}

	if ss.rdb != nil {
		ss.rdb.Set(ctx, "session:"+sessionID, data, sessionHotTTL)
	}
	return &conv, nil
}

// ContextSnapshot decompresses the stored context snapshot of a
// conversation.
func (conv *Conversation) DecodedContext() (string, error) {
	if conv.ContextSnapshot == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(conv.ContextSnapshot)
	if err != nil {
		return "", fmt.Errorf("decoding context snapshot: %w", err)
	}
	return utils.DecompressText(raw, utils.CompressionAlgorithm(conv.ContextEncoding))
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List enumerates stored sessions, newest first.
func (ss *SessionStore) List(ctx context.Context) ([]SessionSummary, error) {
	files, err := os.ReadDir(ss.dir)
	if err != nil {
		return nil, fmt.Errorf("reading conversations dir: %w", err)
	}

	var out []SessionSummary
	for _, fi := range files {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(fi.Name(), ".json")
		conv, err := ss.Load(ctx, id)
		if err != nil {
			logger.Warn("skipping unreadable session", "session", id, "error", err)
			continue
		}
		out = append(out, SessionSummary{
			SessionID: conv.SessionID,
			Messages:  len(conv.Messages),
			UpdatedAt: conv.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a session from disk and the hot cache.
func (ss *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if err := os.Remove(ss.path(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session %s not found", sessionID)
		}
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if ss.rdb != nil {
		ss.rdb.Del(ctx, "session:"+sessionID)
	}
	return nil
}

// SweepOlderThan removes sessions whose transcript has not changed since
// the cutoff. Used by the maintenance scheduler.
func (ss *SessionStore) SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	sessions, err := ss.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range sessions {
		if s.UpdatedAt.Before(cutoff) {
			if err := ss.Delete(ctx, s.SessionID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
