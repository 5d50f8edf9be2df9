package digest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Member is one team digest recipient and the phrases they follow.
type Member struct {
	Name    string   `toml:"name"`
	Email   string   `toml:"email"`
	Phrases []string `toml:"phrases"`
}

// FirstName is the greeting name used in subjects and bodies.
func (m Member) FirstName() string {
	if f := strings.Fields(m.Name); len(f) > 0 {
		return f[0]
	}
	return m.Email
}

func (m Member) key() string { return strings.ToLower(strings.TrimSpace(m.Email)) }

type teamFile struct {
	Members []Member `toml:"member"`
}

// LoadTeam reads [[member]] tables from a TOML file. A missing file yields
// no members.
func LoadTeam(path string) ([]Member, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read team file: %w", err)
	}
	return ParseTeam(data)
}

// ParseTeam decodes a team file and validates each member.
func ParseTeam(data []byte) ([]Member, error) {
	var f teamFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse team file: %w", err)
	}
	for i, m := range f.Members {
		if strings.TrimSpace(m.Email) == "" {
			return nil, fmt.Errorf("member %d: email must be set", i)
		}
		if len(m.Phrases) == 0 {
			return nil, fmt.Errorf("member %s: phrases must not be empty", m.Email)
		}
	}
	return f.Members, nil
}
