package bitfinex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type nonceFile struct {
	LastNonce int64 `json:"last_nonce"`
}

// NonceStore hands out strictly increasing nonces and persists the last one,
// so a restarted bot never reuses a value the exchange has already seen.
type NonceStore struct {
	mu   sync.Mutex
	path string
	last int64
	now  func() time.Time
}

func NewNonceStore(path string) (*NonceStore, error) {
	s := &NonceStore{path: path, now: time.Now}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Не удалось прочитать файл nonce %s: %w", path, err)
	}

	var f nonceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("Некорректный файл nonce %s: %w", path, err)
	}
	s.last = f.LastNonce
	return s, nil
}

func (s *NonceStore) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.now().UnixMicro()
	if next <= s.last {
		next = s.last + 1
	}
	s.last = next

	if s.path == "" {
		return next, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *NonceStore) persist() error {
	data, err := json.Marshal(nonceFile{LastNonce: s.last})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("Не удалось создать каталог для nonce: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("Не удалось сохранить nonce: %w", err)
	}
	return os.Rename(tmp, s.path)
}
