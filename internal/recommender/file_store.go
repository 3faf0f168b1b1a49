package recommender

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const modelFilePrefix = "dispatch-model-v"

var (
	modelFilePattern = regexp.MustCompile(`^dispatch-model-v(\d+)\.json$`)
	unsafePathChars  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

type storedArtifact struct {
	Info    ModelInfo       `json:"info"`
	Payload json.RawMessage `json:"payload"`
}

// FileStore keeps versioned model artifacts under <dir>/<domain>/.
type FileStore struct {
	dir    string
	retain int
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store rooted at dir keeping the newest retain versions.
func NewFileStore(dir string, retain int, logger *zap.Logger) *FileStore {
	if retain <= 0 {
		retain = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, retain: retain, logger: logger}
}

// Load returns the latest artifact for domainID.
func (s *FileStore) Load(ctx context.Context, domainID string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.versions(domainID)
	if err != nil {
		return Artifact{}, err
	}
	if len(versions) == 0 {
		return Artifact{}, ErrModelNotFound
	}
	path := s.pathFor(domainID, versions[len(versions)-1])
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, ErrModelNotFound
		}
		return Artifact{}, fmt.Errorf("read model %s: %w", path, err)
	}

	var stored storedArtifact
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrModelCorrupt, path, err)
	}
	if len(stored.Payload) == 0 || checksum(stored.Payload) != stored.Info.Checksum {
		return Artifact{}, fmt.Errorf("%w: %s: checksum mismatch", ErrModelCorrupt, path)
	}
	stored.Info.Path = path
	return Artifact{Info: stored.Info, Payload: stored.Payload}, nil
}

// Save writes artifact as the next version. The file appears atomically.
func (s *FileStore) Save(ctx context.Context, artifact Artifact) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if !json.Valid(artifact.Payload) {
		return Artifact{}, errors.New("model payload is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	domainDir := filepath.Join(s.dir, sanitize(artifact.Info.DomainID))
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create model dir: %w", err)
	}
	versions, err := s.versions(artifact.Info.DomainID)
	if err != nil {
		return Artifact{}, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, artifact.Payload); err != nil {
		return Artifact{}, fmt.Errorf("compact payload: %w", err)
	}
	info := artifact.Info
	info.Version = next
	info.Checksum = checksum(payload.Bytes())
	if info.TrainedAt.IsZero() {
		info.TrainedAt = time.Now().UTC()
	}
	info.Path = ""
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(storedArtifact{Info: info, Payload: payload.Bytes()}); err != nil {
		return Artifact{}, fmt.Errorf("encode artifact: %w", err)
	}

	tmp, err := os.CreateTemp(domainDir, ".tmp-model-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("create temp model: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("write temp model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("sync temp model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("close temp model: %w", err)
	}
	final := s.pathFor(info.DomainID, next)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return Artifact{}, fmt.Errorf("publish model: %w", err)
	}

	s.prune(info.DomainID, append(versions, next))
	s.logger.Info("saved dispatch model",
		zap.String("domain_id", info.DomainID),
		zap.Int("version", next),
		zap.Int("record_count", info.RecordCount))

	info.Path = final
	return Artifact{Info: info, Payload: payload.Bytes()}, nil
}

func (s *FileStore) versions(domainID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, sanitize(domainID)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list models: %w", err)
	}
	var out []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := modelFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (s *FileStore) prune(domainID string, versions []int) {
	if len(versions) <= s.retain {
		return
	}
	for _, v := range versions[:len(versions)-s.retain] {
		path := s.pathFor(domainID, v)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to prune model version", zap.String("path", path), zap.Error(err))
		}
	}
}

func (s *FileStore) pathFor(domainID string, version int) string {
	return filepath.Join(s.dir, sanitize(domainID), modelFilePrefix+strconv.Itoa(version)+".json")
}

func sanitize(domainID string) string {
	domainID = strings.TrimSpace(domainID)
	if domainID == "" {
		return "default"
	}
	return unsafePathChars.ReplaceAllString(domainID, "_")
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
