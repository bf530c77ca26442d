package repository

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/judgeboard/internal/domain/model"
)

// Seed is the participant directory file format.
type Seed struct {
	Participants []model.Participant `yaml:"participants"`
}

// LoadSeed reads and checks a participant directory file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes a participant directory. Ids and usernames must be
// present and unique within the file.
func ParseSeed(raw []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	ids := make(map[string]struct{}, len(s.Participants))
	users := make(map[string]struct{}, len(s.Participants))
	for i, p := range s.Participants {
		p.ID = strings.TrimSpace(p.ID)
		p.Username = strings.TrimSpace(p.Username)
		p.DisplayName = strings.TrimSpace(p.DisplayName)
		if p.ID == "" || p.Username == "" || p.DisplayName == "" {
			return Seed{}, fmt.Errorf("seed participant #%d: id, username and display_name are required", i+1)
		}
		if _, dup := ids[p.ID]; dup {
			return Seed{}, fmt.Errorf("seed participant #%d: duplicate id %q", i+1, p.ID)
		}
		if _, dup := users[p.Username]; dup {
			return Seed{}, fmt.Errorf("seed participant #%d: duplicate username %q", i+1, p.Username)
		}
		ids[p.ID] = struct{}{}
		users[p.Username] = struct{}{}
		s.Participants[i] = p
	}
	return s, nil
}

// Apply upserts every participant in one transaction.
func (s Seed) Apply(ctx context.Context, store Store) error {
	return store.Update(ctx, func(tx Tx) error {
		for _, p := range s.Participants {
			if err := tx.UpsertParticipant(p); err != nil {
				return fmt.Errorf("seed participant %s: %w", p.ID, err)
			}
		}
		return nil
	})
}
