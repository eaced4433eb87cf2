package domain

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ItemState is the lifecycle position of a processing item.
type ItemState string

const (
	StateDiscovered   ItemState = "discovered"
	StateBackingUp    ItemState = "backing_up"
	StateVerified     ItemState = "verified"
	StateMoving       ItemState = "moving"
	StateSplitting    ItemState = "splitting"
	StateAnalyzing    ItemState = "analyzing"
	StateNaming       ItemState = "naming"
	StateMovingFinal  ItemState = "moving_final"
	StateDone         ItemState = "done"
	StateErrored      ItemState = "errored"
	StateBackupFailed ItemState = "backup_failed"
)

// Terminal reports whether no further automatic transitions occur.
func (s ItemState) Terminal() bool {
	switch s {
	case StateDone, StateErrored, StateBackupFailed:
		return true
	}
	return false
}

// WatchedFile is a stable file discovered by the watcher. Immutable once
// enqueued.
type WatchedFile struct {
	Path         string
	DiscoveredAt time.Time
}

// BackupRecord ties a source file to its dated, verified backup copy.
type BackupRecord struct {
	SourcePath string
	BackupPath string
	SourceHash string
	BackupHash string
	CreatedAt  time.Time
}

// ProcessingItem is one logical unit flowing through the pipeline after
// backup: the whole file or one split part.
type ProcessingItem struct {
	Path           string
	State          ItemState
	Classification *ClassificationResult
}

// DocumentContent is the analyzer output for one part: extracted text plus
// optional grounding regions for preview overlays.
type DocumentContent struct {
	Text    string
	Regions []Rect
}

// ClassificationResult is the classifier suggestion. Fields may be empty or
// malformed; Normalize before use.
type ClassificationResult struct {
	Summary  string `json:"summary"`
	Filename string `json:"filename"`
	Folder   string `json:"folder"`
}

const (
	// DefaultCategory receives suggestions without a usable folder.
	DefaultCategory = "unsorted"
	// DefaultFilename receives suggestions without a usable filename.
	DefaultFilename = "document"
)

// Normalize forces a well-formed suggestion: the filename ends with ext and
// contains no path separators, the folder is a clean relative category.
func (c ClassificationResult) Normalize(ext string) ClassificationResult {
	out := c
	out.Filename = normalizeFilename(c.Filename, ext)
	out.Folder = normalizeFolder(c.Folder)
	return out
}

func normalizeFilename(name, ext string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "/" || name == "" {
		name = ""
	}
	if name == "" {
		name = DefaultFilename + ext
	}
	if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	return name
}

func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	folder = path.Clean(filepath.ToSlash(folder))
	if folder == "." || folder == "/" || folder == "" {
		return DefaultCategory
	}
	parts := make([]string, 0, 4)
	for _, part := range strings.Split(folder, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return DefaultCategory
	}
	return path.Join(parts...)
}

// ArchiveDecision is the journaled outcome of one processed part.
type ArchiveDecision struct {
	ID         string
	SourcePath string
	BackupPath string
	SourceHash string
	Summary    string
	Filename   string
	Category   string
	FinalPath  string
	Status     string
	CreatedAt  time.Time
}

const (
	DecisionFiled   = "filed"
	DecisionErrored = "errored"
)
