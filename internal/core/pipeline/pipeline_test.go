package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docmind/internal/core/domain"
	"github.com/kirillkom/docmind/internal/core/ports"
	"github.com/kirillkom/docmind/internal/infrastructure/queue/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeBackups struct {
	backupErr error
	verifyOK  bool
	verifyErr error
	calls     int
}

func (f *fakeBackups) Backup(_ context.Context, path string) (domain.BackupRecord, error) {
	f.calls++
	if f.backupErr != nil {
		return domain.BackupRecord{}, f.backupErr
	}
	return domain.BackupRecord{
		SourcePath: path,
		BackupPath: filepath.Join("backup", filepath.Base(path)),
		SourceHash: "abc123",
		BackupHash: "abc123",
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeBackups) Verify(context.Context, domain.BackupRecord) (bool, error) {
	return f.verifyOK, f.verifyErr
}

type fakeSplitter struct {
	parts func(path string) ([]string, error)
}

func (f *fakeSplitter) Scan(_ context.Context, path string) ([]string, error) {
	if f.parts == nil {
		return nil, nil
	}
	return f.parts(path)
}

type fakeAnalyzer struct {
	failFor map[string]bool
	text    string
	regions []domain.Rect
}

func (f *fakeAnalyzer) Analyze(_ context.Context, path string) (domain.DocumentContent, error) {
	if f.failFor[filepath.Base(path)] {
		return domain.DocumentContent{}, domain.WrapError(domain.ErrCapability, "analyze", errors.New("unreadable"))
	}
	return domain.DocumentContent{Text: f.text, Regions: f.regions}, nil
}

type fakeClassifier struct {
	result domain.ClassificationResult
	err    error
	seen   []string
}

func (f *fakeClassifier) Suggest(_ context.Context, content string) (domain.ClassificationResult, error) {
	f.seen = append(f.seen, content)
	return f.result, f.err
}

type memContexts struct {
	mu    sync.Mutex
	areas map[string]string
}

func newMemContexts() *memContexts {
	return &memContexts{areas: make(map[string]string)}
}

func (m *memContexts) Get(_ context.Context, area string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.areas[area], nil
}

func (m *memContexts) Update(_ context.Context, area, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[area] = content
	return nil
}

type fakeJournal struct {
	mu       sync.Mutex
	recorded []domain.ArchiveDecision
	history  []domain.ArchiveDecision
}

func (f *fakeJournal) Record(_ context.Context, d domain.ArchiveDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, d)
	return nil
}

func (f *fakeJournal) Recent(context.Context, string, int) ([]domain.ArchiveDecision, error) {
	return f.history, nil
}

type recordingSink struct {
	ports.NoopSink
	mu        sync.Mutex
	logs      []string
	images    []string
	processed []string
	overlays  int
}

func (s *recordingSink) OnLog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, message)
}

func (s *recordingSink) OnImage(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, path)
}

func (s *recordingSink) OnOverlay([]domain.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays++
}

func (s *recordingSink) OnFileProcessed(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, path)
}

type fixture struct {
	inputDir      string
	processingDir string
	outputDir     string
	errorDir      string

	backups    *fakeBackups
	splitter   *fakeSplitter
	analyzer   *fakeAnalyzer
	classifier *fakeClassifier
	contexts   *memContexts
	journal    *fakeJournal
	sink       *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		inputDir:      filepath.Join(root, "input"),
		processingDir: filepath.Join(root, "processing"),
		outputDir:     filepath.Join(root, "output"),
		errorDir:      filepath.Join(root, "error"),
		backups:       &fakeBackups{verifyOK: true},
		splitter:      &fakeSplitter{},
		analyzer:      &fakeAnalyzer{text: "invoice from ACME for March 2024"},
		classifier:    &fakeClassifier{result: domain.ClassificationResult{Summary: "ACME invoice", Filename: "Invoice_2024", Folder: "Finance"}},
		contexts:      newMemContexts(),
		journal:       &fakeJournal{},
		sink:          &recordingSink{},
	}
	for _, dir := range []string{f.inputDir, f.processingDir, f.outputDir, f.errorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return f
}

func (f *fixture) build(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Deps{
		Queue:      memory.New(),
		Backups:    f.backups,
		Splitter:   f.splitter,
		Analyzer:   f.analyzer,
		Classifier: f.classifier,
		Contexts:   f.contexts,
		Journal:    f.journal,
		Events:     f.sink,
		Logger:     testLogger(),
	}, Options{
		ProcessingDir: f.processingDir,
		OutputDir:     f.outputDir,
		ErrorDir:      f.errorDir,
		DocExtension:  ".pdf",
		PollTimeout:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func (f *fixture) writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.inputDir, name)
	if err := os.WriteFile(path, []byte("document body"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected %s to be gone, stat err = %v", path, err)
	}
}

func TestProcessFileFilesDocumentUnderSuggestedCategory(t *testing.T) {
	f := newFixture(t)
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	item := p.processFile(src)

	if item.State != domain.StateDone || !item.State.Terminal() {
		t.Fatalf("item state = %q, want terminal %q", item.State, domain.StateDone)
	}
	target := filepath.Join(f.outputDir, strconv.Itoa(time.Now().Year()), "Finance", "Invoice_2024.pdf")
	mustExist(t, target)
	mustNotExist(t, src)
	mustNotExist(t, filepath.Join(f.processingDir, "scan.pdf"))

	if len(f.sink.processed) != 1 || f.sink.processed[0] != target {
		t.Fatalf("OnFileProcessed = %v, want [%s]", f.sink.processed, target)
	}
	if len(f.journal.recorded) != 1 || f.journal.recorded[0].Status != domain.DecisionFiled {
		t.Fatalf("journal = %+v, want one filed decision", f.journal.recorded)
	}
	if ctxContent, _ := f.contexts.Get(context.Background(), f.outputDir); ctxContent == "" {
		t.Fatal("expected learned context after filing")
	}
}

func TestProcessFileLeavesSourceOnIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	f.backups.verifyOK = false
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	item := p.processFile(src)

	if item.State != domain.StateBackupFailed {
		t.Fatalf("item state = %q, want %q", item.State, domain.StateBackupFailed)
	}
	mustExist(t, src)
	mustNotExist(t, filepath.Join(f.processingDir, "scan.pdf"))
	if entries, _ := os.ReadDir(f.errorDir); len(entries) != 0 {
		t.Fatalf("error dir should stay empty, got %d entries", len(entries))
	}
	if len(f.sink.processed) != 0 {
		t.Fatalf("no file should be reported processed, got %v", f.sink.processed)
	}
}

func TestProcessFileRoutesFailedPartAndKeepsSiblings(t *testing.T) {
	f := newFixture(t)
	f.splitter.parts = func(path string) ([]string, error) {
		dir := filepath.Dir(path)
		parts := []string{
			filepath.Join(dir, "scan_part1.pdf"),
			filepath.Join(dir, "scan_part2.pdf"),
		}
		for _, part := range parts {
			if err := os.WriteFile(part, []byte("part"), 0o644); err != nil {
				return nil, err
			}
		}
		return parts, nil
	}
	f.analyzer.failFor = map[string]bool{"scan_part2.pdf": true}
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	item := p.processFile(src)

	if item.State != domain.StateDone {
		t.Fatalf("item state = %q, want %q when a sibling survives", item.State, domain.StateDone)
	}
	target := filepath.Join(f.outputDir, strconv.Itoa(time.Now().Year()), "Finance", "Invoice_2024.pdf")
	mustExist(t, target)
	mustExist(t, filepath.Join(f.errorDir, "scan_part2.pdf"))
	mustNotExist(t, filepath.Join(f.processingDir, "scan.pdf"))
	mustNotExist(t, filepath.Join(f.processingDir, "scan_part1.pdf"))
	mustNotExist(t, filepath.Join(f.processingDir, "scan_part2.pdf"))

	var filed, errored int
	for _, d := range f.journal.recorded {
		switch d.Status {
		case domain.DecisionFiled:
			filed++
		case domain.DecisionErrored:
			errored++
		}
	}
	if filed != 1 || errored != 1 {
		t.Fatalf("journal filed=%d errored=%d, want 1/1", filed, errored)
	}
}

func TestProcessFileRoutesToErrorOnClassifierFailure(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = domain.WrapError(domain.ErrTemporary, "suggest", errors.New("model offline"))
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	item := p.processFile(src)

	if item.State != domain.StateErrored {
		t.Fatalf("item state = %q, want %q when its only part fails", item.State, domain.StateErrored)
	}
	mustExist(t, filepath.Join(f.errorDir, "scan.pdf"))
	mustNotExist(t, src)
	if len(f.sink.processed) != 0 {
		t.Fatalf("no file should be reported processed, got %v", f.sink.processed)
	}
}

func TestProcessFilePrefixesErrorCollisions(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("no suggestion")
	if err := os.WriteFile(filepath.Join(f.errorDir, "scan.pdf"), []byte("earlier failure"), 0o644); err != nil {
		t.Fatalf("seed error dir: %v", err)
	}
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	p.processFile(src)

	entries, err := os.ReadDir(f.errorDir)
	if err != nil {
		t.Fatalf("read error dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both failures kept, got %d entries", len(entries))
	}
}

func TestProcessFileNormalizesEmptySuggestion(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = domain.ClassificationResult{Summary: "unreadable scan"}
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	p.processFile(src)

	target := filepath.Join(f.outputDir, strconv.Itoa(time.Now().Year()), domain.DefaultCategory, domain.DefaultFilename+".pdf")
	mustExist(t, target)
}

func TestProcessFileSkipsVanishedFile(t *testing.T) {
	f := newFixture(t)
	p := f.build(t)

	p.processFile(filepath.Join(f.inputDir, "never_existed.pdf"))

	if f.backups.calls != 0 {
		t.Fatalf("backup should not run for a vanished file, got %d calls", f.backups.calls)
	}
}

func TestClassifierReceivesHistory(t *testing.T) {
	f := newFixture(t)
	f.journal.history = []domain.ArchiveDecision{
		{Filename: "Lease_2023.pdf", Category: "Housing", Summary: "apartment lease"},
	}
	p := f.build(t)
	src := f.writeInput(t, "scan.pdf")

	p.processFile(src)

	if len(f.classifier.seen) != 1 {
		t.Fatalf("classifier called %d times, want 1", len(f.classifier.seen))
	}
	prompt := f.classifier.seen[0]
	if want := "Lease_2023.pdf -> Housing: apartment lease"; !strings.Contains(prompt, want) {
		t.Fatalf("classifier content missing history line %q:\n%s", want, prompt)
	}
}

func TestPipelineDrainsQueueAndStops(t *testing.T) {
	f := newFixture(t)
	queue := memory.New()
	p, err := New(Deps{
		Queue:      queue,
		Backups:    f.backups,
		Splitter:   f.splitter,
		Analyzer:   f.analyzer,
		Classifier: f.classifier,
		Contexts:   f.contexts,
		Events:     f.sink,
		Logger:     testLogger(),
	}, Options{
		ProcessingDir: f.processingDir,
		OutputDir:     f.outputDir,
		ErrorDir:      f.errorDir,
		DocExtension:  ".pdf",
		PollTimeout:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	src := f.writeInput(t, "scan.pdf")
	queue.Put(src)

	p.Start()
	queue.Join()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return within one poll interval")
	}

	target := filepath.Join(f.outputDir, strconv.Itoa(time.Now().Year()), "Finance", "Invoice_2024.pdf")
	mustExist(t, target)
}

func TestStopWithoutStartReturns(t *testing.T) {
	f := newFixture(t)
	p := f.build(t)
	p.Stop()
	p.Stop()
}

func TestConcurrentStartStopJoinsWorker(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		p := f.build(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Start()
		}()
		go func() {
			defer wg.Done()
			p.Stop()
		}()
		wg.Wait()

		// A second Stop must also observe the worker gone, whichever
		// call order the race produced.
		p.Stop()
	}
}

func TestNewRejectsMissingCapabilities(t *testing.T) {
	f := newFixture(t)
	_, err := New(Deps{
		Queue:      memory.New(),
		Backups:    f.backups,
		Splitter:   f.splitter,
		Analyzer:   f.analyzer,
		Classifier: f.classifier,
	}, Options{})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("New() error = %v, want configuration kind", err)
	}
}

func TestPanickingSinkDoesNotAbortProcessing(t *testing.T) {
	f := newFixture(t)
	p := f.build(t)
	p.deps.Events = panicSink{}
	src := f.writeInput(t, "scan.pdf")

	p.processFile(src)

	target := filepath.Join(f.outputDir, strconv.Itoa(time.Now().Year()), "Finance", "Invoice_2024.pdf")
	mustExist(t, target)
}

type panicSink struct{ ports.NoopSink }

func (panicSink) OnLog(string) { panic("observer bug") }
