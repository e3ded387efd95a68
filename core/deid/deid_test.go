package deid

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ankit-chaubey/svs-surgery/core/config"
	"github.com/ankit-chaubey/svs-surgery/core/redact"
	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
	"github.com/ankit-chaubey/svs-surgery/core/tiffio/tifftest"
)

// scannerName is long enough to hold a generated name in place.
const scannerName = "TCGA-AA-3512-01A-01-BS1.c4d0ad2b-a15d-4f0c-9b0b-8e5f2d4e6f1a"

var (
	fixedTime = time.Date(2024, 7, 29, 12, 11, 26, 547122000, time.Local)
	fixedID   = uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
)

func page(desc string, seed byte) tifftest.Page {
	return tifftest.Page{
		Description: desc,
		Strips:      [][]byte{tifftest.Strip(32, seed), tifftest.Strip(16, seed+1)},
	}
}

func slide(labels int) []byte {
	pages := []tifftest.Page{
		page("Aperio Image Library v12.0.15\r\n46000x32914 (240x240) JPEG/RGB Q=70|AppMag = 20|Filename = "+scannerName+"|MPP = 0.4990", 1),
		page("Aperio Image Library v12.0.15\r\n46000x32914 -> 1024x732|Filename = "+scannerName+"|AppMag = 20", 3),
	}
	for i := 0; i < labels; i++ {
		pages = append(pages, page("Aperio Image Library v12.0.15\r\nlabel 387x463", byte(5+i)))
	}
	pages = append(pages, page("Aperio Image Library v12.0.15\r\nmacro 1280x431", 9))
	return tifftest.Build(binary.LittleEndian, false, pages...).Data
}

func testPipeline(t *testing.T) (*Pipeline, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Incoming = filepath.Join(root, "in")
	cfg.Paths.Final = filepath.Join(root, "out")
	if err := os.MkdirAll(cfg.Paths.Incoming, 0o755); err != nil {
		t.Fatal(err)
	}
	p := New(cfg, nil)
	p.now = func() time.Time { return fixedTime }
	p.newID = func() uuid.UUID { return fixedID }
	return p, cfg
}

func writeIncoming(t *testing.T, cfg *config.Config, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(cfg.Paths.Incoming, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func readStructure(t *testing.T, path string) *tiffio.Structure {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := tiffio.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("tiffio.Read(%s): %v", path, err)
	}
	return s
}

func TestGenerateName(t *testing.T) {
	file, meta := GenerateName("sample.svs", fixedTime, fixedID)
	if want := "W123e4567-e89b-12d3-a456-426614174000T2024-07-29121126547122"; meta != want {
		t.Errorf("metadata name = %q, want %q", meta, want)
	}
	if file != meta+".svs" {
		t.Errorf("file name = %q", file)
	}

	// Microseconds are zero padded.
	_, meta = GenerateName("x.svs", time.Date(2024, 1, 2, 3, 4, 5, 7000, time.UTC), fixedID)
	if !strings.HasSuffix(meta, "T2024-01-02030405000007") {
		t.Errorf("metadata name = %q", meta)
	}

	if file, _ := GenerateName("noext", fixedTime, fixedID); strings.Contains(file, ".") {
		t.Errorf("unexpected extension in %q", file)
	}
}

func TestRun(t *testing.T) {
	p, cfg := testPipeline(t)
	orig := slide(1)
	writeIncoming(t, cfg, "sample.svs", orig)

	rep, err := p.Run(context.Background(), "sample.svs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantOut := filepath.Join(cfg.Paths.Final, rep.DeidName)
	if rep.Output != wantOut {
		t.Errorf("output = %s, want %s", rep.Output, wantOut)
	}
	if rep.Size != int64(len(orig)) {
		t.Errorf("size = %d, want %d", rep.Size, len(orig))
	}
	if rep.SourceDigest == rep.OutputDigest {
		t.Error("output digest equals source digest")
	}
	wantActions := []string{ActionLabelRemoved, ActionMetadataUpdated, ActionNameUpdated}
	if strings.Join(rep.Actions, ";") != strings.Join(wantActions, ";") {
		t.Errorf("actions = %v", rep.Actions)
	}

	// The source stays as it was and the work copy is gone.
	src, _ := os.ReadFile(filepath.Join(cfg.Paths.Incoming, "sample.svs"))
	if !bytes.Equal(src, orig) {
		t.Error("source modified")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.Incoming, rep.DeidName)); !os.IsNotExist(err) {
		t.Errorf("work copy left behind: %v", err)
	}

	s := readStructure(t, rep.Output)
	if len(s.Pages) != 3 {
		t.Fatalf("%d pages, want 3", len(s.Pages))
	}
	for i := 0; i < 2; i++ {
		if v, _ := redact.KeyValue(s.Pages[i].Description, "Filename"); v != rep.MetadataName {
			t.Errorf("page %d Filename = %q", i, v)
		}
	}
	if !strings.Contains(s.Pages[2].Description, "macro") {
		t.Errorf("macro should be kept by default: %q", s.Pages[2].Description)
	}
}

func TestRunKeepsNameWithoutMetadataUpdate(t *testing.T) {
	p, cfg := testPipeline(t)
	cfg.Metadata.Update = false
	cfg.Redaction.RemoveMacro = true
	writeIncoming(t, cfg, "sample.svs", slide(1))

	rep, err := p.Run(context.Background(), "sample.svs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Output != filepath.Join(cfg.Paths.Final, "sample.svs") {
		t.Errorf("output = %s", rep.Output)
	}
	if len(rep.Actions) != 2 || rep.Actions[1] != ActionMacroRemoved {
		t.Errorf("actions = %v", rep.Actions)
	}
	s := readStructure(t, rep.Output)
	if len(s.Pages) != 2 {
		t.Fatalf("%d pages, want 2", len(s.Pages))
	}
	if v, _ := redact.KeyValue(s.Pages[0].Description, "Filename"); v != scannerName {
		t.Errorf("Filename changed to %q", v)
	}
}

func TestRunFailureCleansUp(t *testing.T) {
	p, cfg := testPipeline(t)
	writeIncoming(t, cfg, "dup.svs", slide(2))

	_, err := p.Run(context.Background(), "dup.svs")
	if !errors.Is(err, redact.ErrDuplicateMatch) {
		t.Fatalf("expected ErrDuplicateMatch, got %v", err)
	}
	entries, _ := os.ReadDir(cfg.Paths.Incoming)
	if len(entries) != 1 {
		t.Errorf("incoming holds %d files, want only the source", len(entries))
	}
	if _, err := os.Stat(cfg.Paths.Final); !os.IsNotExist(err) {
		t.Errorf("final directory created: %v", err)
	}
}

func TestRunShortScannerFilename(t *testing.T) {
	p, cfg := testPipeline(t)
	short := bytes.ReplaceAll(slide(1), []byte("Filename = "+scannerName), []byte("Filename = CMU-1|"+strings.Repeat(" ", len(scannerName)-6)))
	writeIncoming(t, cfg, "CMU-1.svs", short)

	_, err := p.Run(context.Background(), "CMU-1.svs")
	if !errors.Is(err, redact.ErrValueLengthMismatch) {
		t.Fatalf("expected ErrValueLengthMismatch, got %v", err)
	}
	for _, want := range []string{"rewritten in place", "metadata.update: false"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q: %v", want, err)
		}
	}
	entries, _ := os.ReadDir(cfg.Paths.Incoming)
	if len(entries) != 1 {
		t.Errorf("incoming holds %d files, want only the source", len(entries))
	}
}

func TestRunCancelled(t *testing.T) {
	p, cfg := testPipeline(t)
	writeIncoming(t, cfg, "sample.svs", slide(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, "sample.svs"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunBatch(t *testing.T) {
	p, cfg := testPipeline(t)
	cfg.Workers = 2
	p.newID = uuid.New

	names := []string{"a.svs", "b.svs", "c.svs"}
	for _, n := range names {
		writeIncoming(t, cfg, n, slide(1))
	}

	reports, err := p.RunBatch(context.Background(), names)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	seen := map[string]bool{}
	for i, rep := range reports {
		if rep == nil || rep.File != names[i] {
			t.Fatalf("report %d = %+v", i, rep)
		}
		if seen[rep.Output] {
			t.Errorf("duplicate output %s", rep.Output)
		}
		seen[rep.Output] = true
	}
}

func TestReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.svs")
	if err := os.WriteFile(path, slide(1), 0o644); err != nil {
		t.Fatal(err)
	}
	pages, err := ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("%d pages", len(pages))
	}
	if !strings.Contains(pages[0]["ImageDescription"], "Filename = "+scannerName) {
		t.Errorf("ImageDescription = %q", pages[0]["ImageDescription"])
	}
	if pages[2]["StripByteCounts"] != "(32, 16)" {
		t.Errorf("StripByteCounts = %q", pages[2]["StripByteCounts"])
	}
}
