package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/viral-platform/miniapp/internal/repositories"
	"go.uber.org/zap"
)

const DefaultModalSuppressFor = 24 * time.Hour

var modalNameRe = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

type suppressionEntry struct {
	Timestamp int64 `json:"timestamp"` // unix ms
}

// ModalSuppression remembers that a user dismissed a modal ("don't show
// again") for a fixed window.
type ModalSuppression struct {
	kv     repositories.KV
	window time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewModalSuppression(kv repositories.KV, window time.Duration, log *zap.Logger) *ModalSuppression {
	if window <= 0 {
		window = DefaultModalSuppressFor
	}
	return &ModalSuppression{kv: kv, window: window, now: time.Now, log: log}
}

func ValidModalName(name string) bool {
	return modalNameRe.MatchString(name)
}

func modalKey(telegramID int64, modal string) string {
	return fmt.Sprintf("modal:%d:%s", telegramID, modal)
}

func (m *ModalSuppression) Suppress(ctx context.Context, telegramID int64, modal string) error {
	data, err := json.Marshal(suppressionEntry{Timestamp: m.now().UnixMilli()})
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, modalKey(telegramID, modal), string(data), m.window)
}

// IsSuppressed reports whether the modal was dismissed within the window.
// Expired and unreadable entries are removed and read as not suppressed.
func (m *ModalSuppression) IsSuppressed(ctx context.Context, telegramID int64, modal string) (bool, error) {
	key := modalKey(telegramID, modal)
	raw, found, err := m.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	var entry suppressionEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Timestamp <= 0 {
		m.log.Debug("dropping unreadable modal entry", zap.String("key", key))
		_ = m.kv.Del(ctx, key)
		return false, nil
	}

	at := time.UnixMilli(entry.Timestamp)
	if m.now().Sub(at) >= m.window {
		_ = m.kv.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (m *ModalSuppression) Clear(ctx context.Context, telegramID int64, modal string) error {
	return m.kv.Del(ctx, modalKey(telegramID, modal))
}
