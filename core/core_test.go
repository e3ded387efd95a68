package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		data []byte
		want FormatID
	}{
		{"a.tif", []byte{0x49, 0x49, 0x2A, 0x00, 8, 0, 0, 0}, FmtTIFF},
		{"a.svs", []byte{0x4D, 0x4D, 0x00, 0x2A, 0, 0, 0, 8}, FmtSVS},
		{"a.btf", []byte{0x49, 0x49, 0x2B, 0x00, 8, 0, 0, 0}, FmtBigTIFF},
		{"b.svs", []byte{0x4D, 0x4D, 0x00, 0x2B, 0, 8, 0, 0}, FmtSVS},
		{"c.svs", []byte("plain text"), FmtUnknown},
		{"d.tif", []byte{0x49}, FmtUnknown},
	}
	for _, c := range cases {
		path := filepath.Join(dir, c.name)
		if err := os.WriteFile(path, c.data, 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := DetectFormat(path)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}

	if _, err := DetectFormat(filepath.Join(dir, "missing.svs")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCopyAndMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.svs")
	data := bytes.Repeat([]byte{1, 2, 3}, 1000)
	if err := os.WriteFile(src, data, 0o640); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "a", "b", "copy.svs")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if !bytes.Equal(got, data) {
		t.Fatal("copy differs from source")
	}
	if info, _ := os.Stat(dst); info.Mode().Perm() != 0o640 {
		t.Errorf("mode %v not preserved", info.Mode().Perm())
	}

	moved := filepath.Join(dir, "final", "moved.svs")
	if err := MoveFile(dst, moved); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("source of move still exists")
	}
	got, _ = os.ReadFile(moved)
	if !bytes.Equal(got, data) {
		t.Fatal("moved file differs")
	}
}

func TestParseKV(t *testing.T) {
	cases := []struct {
		in     string
		k, v   string
		wantOK bool
	}{
		{"Filename=W1", "Filename", "W1", true},
		{" Filename = W 1 ", "Filename", "W 1", true},
		{"Filename=", "Filename", "", true},
		{"=x", "", "", false},
		{"Filename", "", "", false},
	}
	for _, c := range cases {
		k, v, ok := ParseKV(c.in)
		if k != c.k || v != c.v || ok != c.wantOK {
			t.Errorf("ParseKV(%q) = %q, %q, %v", c.in, k, v, ok)
		}
	}
}

func TestPrintRemoved(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Writer: &buf}
	p.PrintRemoved("x.svs", []RemovedPage{
		{Kind: "label", Variant: "Aperio Image Library", Removed: true, Page: 2, Offset: 4096, Bytes: 512},
		{Kind: "macro", Variant: "Aperio Image Library"},
	})
	out := buf.String()
	if !strings.Contains(out, "page 2 at offset 4096 removed") || !strings.Contains(out, "macro  not present") {
		t.Errorf("unexpected output:\n%s", out)
	}

	buf.Reset()
	p.JSON = true
	p.PrintRemoved("x.svs", []RemovedPage{{Kind: "label", Removed: true}})
	if !strings.Contains(buf.String(), `"bytes_zeroed": 0`) {
		t.Errorf("unexpected JSON:\n%s", buf.String())
	}
}

func TestMediaTypeFor(t *testing.T) {
	cases := map[FormatID]string{
		FmtSVS:     "slide",
		FmtTIFF:    "image",
		FmtBigTIFF: "image",
		FmtUnknown: "unknown",
	}
	for id, want := range cases {
		if got := MediaTypeFor(id); got != want {
			t.Errorf("MediaTypeFor(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestPrintMetadata(t *testing.T) {
	m := &Metadata{
		FilePath:  "x.svs",
		Format:    "SVS",
		MediaType: MediaTypeFor(FmtSVS),
		Fields: []MetaField{
			{Key: "Offset", Value: "4096", Category: "Page 1", Raw: "0x1000"},
			{Key: "Filename", Value: "CMU-1", Category: "Slide", Editable: true},
		},
	}

	var buf bytes.Buffer
	p := &Printer{Writer: &buf}
	p.PrintMetadata(m)
	if out := buf.String(); !strings.Contains(out, "Format: SVS (slide)") || strings.Contains(out, "0x1000") {
		t.Errorf("unexpected text output:\n%s", out)
	}

	buf.Reset()
	p.Verbose = true
	p.PrintMetadata(m)
	if out := buf.String(); !strings.Contains(out, "4096 (0x1000)") || !strings.Contains(out, "CMU-1 [editable]") {
		t.Errorf("unexpected verbose output:\n%s", out)
	}

	buf.Reset()
	p.JSON = true
	p.PrintMetadata(m)
	for _, want := range []string{`"media_type": "slide"`, `"raw": "0x1000"`, `"editable": true`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("JSON lacks %s:\n%s", want, buf.String())
		}
	}
}
