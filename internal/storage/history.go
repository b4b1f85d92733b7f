package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one completed analysis stored in a session's history file.
type Record struct {
	Timestamp string   `json:"timestamp"`
	Route     string   `json:"route"`
	Response  string   `json:"response"`
	Triggers  []string `json:"triggers,omitempty"`
	FaceCount int      `json:"face_count,omitempty"`
}

// SessionInfo summarizes a stored session for listings.
type SessionInfo struct {
	UID          string `json:"uid"`
	LatestRecord Record `json:"latest_record"`
	Records      int    `json:"records"`
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

// NewSessionUID returns a fresh session identifier safe for use as a history
// filename.
func NewSessionUID() string {
	return time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Append adds one record to the session's history file, creating it on first
// use.
func Append(baseDir string, sessionUID string, record Record) error {
	path, err := recordPath(baseDir, sessionUID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	records, err := readRecords(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if record.Timestamp == "" {
		record.Timestamp = time.Now().Format(time.RFC3339)
	}
	records = append(records, record)
	return writeRecords(path, records)
}

// Get returns all records for one session.
func Get(baseDir string, sessionUID string) ([]Record, error) {
	path, err := recordPath(baseDir, sessionUID)
	if err != nil {
		return nil, err
	}
	return readRecords(path)
}

// List returns a summary for every stored session, newest first.
func List(baseDir string) []SessionInfo {
	list := []SessionInfo{}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return list
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sessionUID := strings.TrimSuffix(entry.Name(), ".json")
		records, err := readRecords(filepath.Join(baseDir, entry.Name()))
		if err != nil || len(records) == 0 {
			continue
		}
		list = append(list, SessionInfo{
			UID:          sessionUID,
			LatestRecord: records[len(records)-1],
			Records:      len(records),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].LatestRecord.Timestamp > list[j].LatestRecord.Timestamp
	})
	return list
}

// Delete removes one session's history file.
func Delete(baseDir string, sessionUID string) bool {
	path, err := recordPath(baseDir, sessionUID)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return os.Remove(path) == nil
}

func recordPath(baseDir string, sessionUID string) (string, error) {
	if baseDir == "" {
		return "", errors.New("history base dir is empty")
	}
	if !safeNamePattern.MatchString(sessionUID) {
		return "", errors.New("invalid session uid")
	}
	return filepath.Join(baseDir, sessionUID+".json"), nil
}

func readRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func writeRecords(path string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
