// Package jsonfile persists broker state in JSON files guarded by flock so
// several deskbus processes can share a data directory.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Membership records the channel an identity last joined.
type Membership struct {
	Identity  string    `json:"identity"`
	Channel   string    `json:"channel"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelFile is the root JSON structure stored on disk.
type ChannelFile struct {
	Memberships map[string]Membership `json:"memberships"`
}

// ChannelStore remembers channel membership per endpoint identity.
type ChannelStore struct {
	path           string
	defaultChannel string
	now            func() time.Time
	mu             sync.RWMutex
}

// NewChannelStore creates a store at path. Joining defaultChannel forgets
// the identity instead of recording it.
func NewChannelStore(path, defaultChannel string) *ChannelStore {
	return &ChannelStore{path: path, defaultChannel: defaultChannel, now: time.Now}
}

func (s *ChannelStore) lockPath() string {
	return s.path + ".lock"
}

func (s *ChannelStore) withSharedLock(fn func() error) error {
	return s.withFileLock(syscall.LOCK_SH, fn)
}

func (s *ChannelStore) withExclusiveLock(fn func() error) error {
	return s.withFileLock(syscall.LOCK_EX, fn)
}

func (s *ChannelStore) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// Channel returns the remembered channel for identity, or "" when none.
func (s *ChannelStore) Channel(_ context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var channel string
	err := s.withSharedLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		channel = file.Memberships[identity].Channel
		return nil
	})
	return channel, err
}

// SetChannel records channel for identity.
func (s *ChannelStore) SetChannel(_ context.Context, identity, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withExclusiveLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		if channel == "" || channel == s.defaultChannel {
			if _, ok := file.Memberships[identity]; !ok {
				return nil
			}
			delete(file.Memberships, identity)
		} else {
			file.Memberships[identity] = Membership{
				Identity:  identity,
				Channel:   channel,
				UpdatedAt: s.now(),
			}
		}
		return s.save(file)
	})
}

// List returns every membership ordered by identity.
func (s *ChannelStore) List(_ context.Context) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Membership
	err := s.withSharedLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		for _, m := range file.Memberships {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// Prune forgets memberships not updated since before. It returns the
// removed identities.
func (s *ChannelStore) Prune(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	err := s.withExclusiveLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		for id, m := range file.Memberships {
			if m.UpdatedAt.Before(before) {
				delete(file.Memberships, id)
				removed = append(removed, id)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		return s.save(file)
	})
	sort.Strings(removed)
	return removed, err
}

// load reads the file from disk. A missing or empty file is an empty store.
func (s *ChannelStore) load() (ChannelFile, error) {
	empty := ChannelFile{Memberships: make(map[string]Membership)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return ChannelFile{}, err
	}
	if len(data) == 0 {
		return empty, nil
	}

	var file ChannelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return ChannelFile{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if file.Memberships == nil {
		file.Memberships = make(map[string]Membership)
	}
	return file, nil
}

// save writes the file atomically.
func (s *ChannelStore) save(file ChannelFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
