package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrNotFound means no secret is stored for the market.
	ErrNotFound = errors.New("no vault entry for market")
	// ErrExists means a secret is already stored for the market. Overwriting
	// it would make the earlier bet unrevealable.
	ErrExists = errors.New("vault entry already exists for market")
)

// Entry is everything needed to reveal one bet.
type Entry struct {
	MarketID     uint64    `json:"marketId"`
	Outcome      string    `json:"outcome"`
	OutcomeIndex int       `json:"outcomeIndex"`
	Secret       string    `json:"secret"`
	AmountWei    string    `json:"amountWei"`
	Commitment   string    `json:"commitment"`
	BetIndex     int       `json:"betIndex"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FileVault keeps entries in a single JSON file readable only by its owner.
type FileVault struct {
	mu   sync.Mutex
	path string
}

// Open returns a vault backed by path. The file is created on first write.
func Open(path string) (*FileVault, error) {
	if path == "" {
		return nil, fmt.Errorf("vault path cannot be empty")
	}
	return &FileVault{path: path}, nil
}

// DefaultPath is ~/.phantombet/vault.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".phantombet", "vault.json")
	}
	return filepath.Join(home, ".phantombet", "vault.json")
}

// Path returns the backing file path.
func (v *FileVault) Path() string {
	return v.path
}

// Put stores a new entry. It never replaces an existing one.
func (v *FileVault) Put(e Entry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return err
	}
	key := strconv.FormatUint(e.MarketID, 10)
	if _, ok := entries[key]; ok {
		return fmt.Errorf("market %d: %w", e.MarketID, ErrExists)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	entries[key] = e
	return v.save(entries)
}

// Get returns the entry for a market.
func (v *FileVault) Get(marketID uint64) (Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return Entry{}, err
	}
	e, ok := entries[strconv.FormatUint(marketID, 10)]
	if !ok {
		return Entry{}, fmt.Errorf("market %d: %w", marketID, ErrNotFound)
	}
	return e, nil
}

// Delete removes a market's entry, typically after a successful reveal.
func (v *FileVault) Delete(marketID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return err
	}
	key := strconv.FormatUint(marketID, 10)
	if _, ok := entries[key]; !ok {
		return fmt.Errorf("market %d: %w", marketID, ErrNotFound)
	}
	delete(entries, key)
	return v.save(entries)
}

// List returns all entries ordered by market id.
func (v *FileVault) List() ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

func (v *FileVault) load() (map[string]Entry, error) {
	data, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}

	entries := make(map[string]Entry)
	if len(data) == 0 {
		return entries, nil
	}
	err = json.Unmarshal(data, &entries)
	if err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return entries, nil
}

// save writes through a temp file and rename so a crash never truncates the vault.
func (v *FileVault) save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}

	dir := filepath.Dir(v.path)
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vault-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0o600)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write vault: %w", err)
	}

	err = os.Rename(tmp.Name(), v.path)
	if err != nil {
		return fmt.Errorf("replace vault: %w", err)
	}
	return nil
}
