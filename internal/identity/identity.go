// Package identity persists the local user's display name in a small
// key-value file so it survives restarts.
package identity

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Key is the fixed key the display name is stored under.
const Key = "plandala_user_name"

// ErrBlankName is returned when saving an empty or whitespace-only name.
var ErrBlankName = errors.New("identity: name must not be blank")

// ErrNoIdentity is returned by Require when no name is saved and none can
// be prompted for.
var ErrNoIdentity = errors.New("identity: no user name set")

// Service reads and writes the key-value file at Path.
type Service struct {
	Path string
}

// DefaultPath returns the identity file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("identity: locate config dir: %w", err)
	}
	return filepath.Join(dir, "plandala", "identity.yaml"), nil
}

// New returns a Service at path, or at DefaultPath when path is empty.
func New(path string) (*Service, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Service{Path: path}, nil
}

func (s *Service) load() (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", s.Path, err)
	}
	kv := map[string]string{}
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", s.Path, err)
	}
	return kv, nil
}

func (s *Service) store(kv map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	data, err := yaml.Marshal(kv)
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", s.Path, err)
	}
	return nil
}

// Name returns the saved display name, or "" when none is set.
func (s *Service) Name() (string, error) {
	kv, err := s.load()
	if err != nil {
		return "", err
	}
	return kv[Key], nil
}

// Save stores name after trimming surrounding whitespace. Other keys in the
// file are preserved.
func (s *Service) Save(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrBlankName
	}
	kv, err := s.load()
	if err != nil {
		return "", err
	}
	kv[Key] = name
	if err := s.store(kv); err != nil {
		return "", err
	}
	return name, nil
}

// Clear removes the saved name. Clearing an unset name is not an error.
func (s *Service) Clear() error {
	kv, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := kv[Key]; !ok {
		return nil
	}
	delete(kv, Key)
	return s.store(kv)
}

// Require returns the saved name. When none is set and in is an
// interactive terminal, it prompts on out until a non-blank name is
// entered and saves it.
func (s *Service) Require(in *os.File, out io.Writer) (string, error) {
	name, err := s.Name()
	if err != nil || name != "" {
		return name, err
	}
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		return "", ErrNoIdentity
	}
	return s.Prompt(in, out)
}

// Prompt asks for a display name on out, reading lines from in until a
// non-blank one arrives, then saves it.
func (s *Service) Prompt(in io.Reader, out io.Writer) (string, error) {
	r := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Enter your name: ")
		line, err := r.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			return s.Save(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrNoIdentity
			}
			return "", fmt.Errorf("identity: read name: %w", err)
		}
		fmt.Fprintln(out, "Name must not be blank.")
	}
}
