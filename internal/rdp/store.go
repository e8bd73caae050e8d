package rdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loykin/vmpilot/internal/store"
)

// SettingsStore keeps a Settings document per VM.
type SettingsStore struct {
	s store.Store
}

func NewSettingsStore(s store.Store) *SettingsStore { return &SettingsStore{s: s} }

// Load returns the saved settings of name, or DefaultSettings when none
// were saved.
func (ss *SettingsStore) Load(ctx context.Context, name string) (Settings, error) {
	rec, err := ss.s.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings of %s: %w", name, err)
	}
	var s Settings
	if err := json.Unmarshal(rec.Data, &s); err != nil {
		return Settings{}, fmt.Errorf("corrupt settings of %s: %w", name, err)
	}
	return s.WithDefaults(), nil
}

func (ss *SettingsStore) Save(ctx context.Context, name string, s Settings) error {
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := ss.s.Put(ctx, store.Record{Name: name, Data: b}); err != nil {
		return fmt.Errorf("failed to save settings of %s: %w", name, err)
	}
	return nil
}

// SaveHardware records the applied hardware of name, keeping the connection
// profile and any hardware field h leaves unknown.
func (ss *SettingsStore) SaveHardware(ctx context.Context, name string, h Hardware) error {
	s, err := ss.Load(ctx, name)
	if err != nil {
		return err
	}
	s.Hardware = s.Hardware.Merge(h)
	return ss.Save(ctx, name, s)
}

func (ss *SettingsStore) Delete(ctx context.Context, name string) error {
	return ss.s.Delete(ctx, name)
}
