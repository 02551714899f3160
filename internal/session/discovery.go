// Package session discovers coding-agent sessions from their on-disk JSONL
// transcripts. The agent writes one transcript per session under a
// per-project directory; discovery reads metadata out of those files without
// ever modifying them.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orchestra-dev/orchestra/internal/logging"
)

const transcriptExt = ".jsonl"

// maxScanTokenSize bounds transcript line length. Agent transcripts can carry
// large embedded tool output in a single line.
const maxScanTokenSize = 4 * 1024 * 1024

// Info contains summary information about one discovered session.
type Info struct {
	ID           string    `json:"id"`
	ProjectHash  string    `json:"project_hash"`
	ProjectPath  string    `json:"project_path,omitempty"`
	Path         string    `json:"path"`
	ModifiedAt   time.Time `json:"modified_at"`
	MessageCount int       `json:"message_count"`
	LastPrompt   string    `json:"last_prompt,omitempty"`
}

// transcriptLine is the subset of a transcript entry discovery cares about.
type transcriptLine struct {
	Type    string          `json:"type"`
	Cwd     string          `json:"cwd"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured message content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Manager discovers sessions under a projects directory.
type Manager struct {
	projectsDir string
	logger      *logging.Logger
}

// NewManager creates a session Manager over projectsDir.
// A nil logger falls back to a no-op logger.
func NewManager(projectsDir string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		projectsDir: projectsDir,
		logger:      logger.WithComponent("session"),
	}
}

// ListRecent returns sessions modified within the lookback window, newest
// first. A missing projects directory yields an empty list, not an error.
// Unreadable transcripts are skipped.
func (m *Manager) ListRecent(since time.Duration) ([]Info, error) {
	entries, err := os.ReadDir(m.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := time.Now().Add(-since)
	var sessions []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectHash := entry.Name()
		projectDir := filepath.Join(m.projectsDir, projectHash)

		files, err := os.ReadDir(projectDir)
		if err != nil {
			m.logger.Warn("skipping unreadable project directory", "dir", projectDir, "error", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), transcriptExt) {
				continue
			}
			fi, err := f.Info()
			if err != nil || fi.ModTime().Before(cutoff) {
				continue
			}

			path := filepath.Join(projectDir, f.Name())
			info, err := m.parseTranscript(path, projectHash, fi.ModTime())
			if err != nil {
				m.logger.Warn("skipping unparseable transcript", "path", path, "error", err)
				continue
			}
			sessions = append(sessions, info)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ModifiedAt.After(sessions[j].ModifiedAt)
	})
	return sessions, nil
}

// Get finds one session by id across all projects.
func (m *Manager) Get(sessionID string) (Info, bool) {
	entries, err := os.ReadDir(m.projectsDir)
	if err != nil {
		return Info{}, false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.projectsDir, entry.Name(), sessionID+transcriptExt)
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		info, err := m.parseTranscript(path, entry.Name(), fi.ModTime())
		if err != nil {
			return Info{}, false
		}
		return info, true
	}
	return Info{}, false
}

// parseTranscript reads session metadata out of one JSONL transcript:
// message count, the project working directory from the init entry, and the
// most recent user prompt. Malformed lines are counted past, not fatal.
func (m *Manager) parseTranscript(path, projectHash string, modifiedAt time.Time) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	info := Info{
		ID:          strings.TrimSuffix(filepath.Base(path), transcriptExt),
		ProjectHash: projectHash,
		Path:        path,
		ModifiedAt:  modifiedAt,
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry transcriptLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		info.MessageCount++

		if entry.Type == "init" && entry.Cwd != "" {
			info.ProjectPath = entry.Cwd
		}
		if entry.Role == "user" {
			if prompt := extractPrompt(entry.Content); prompt != "" {
				info.LastPrompt = prompt
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Info{}, err
	}
	return info, nil
}

// extractPrompt pulls display text out of a message content field, which is
// either a plain string or an array of typed blocks.
func extractPrompt(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return truncate(s, 100)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				return truncate(b.Text, 100)
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
