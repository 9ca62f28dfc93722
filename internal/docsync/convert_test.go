package docsync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConvertTree_MarkdownToText(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "guide", "intro.md"), "# Intro\n\nSome *docs* here.")

	created, err := NewConverter(nil, nil).ConvertTree(context.Background(), root)
	if err != nil {
		t.Fatalf("ConvertTree error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %v, want one file", created)
	}

	data, err := os.ReadFile(filepath.Join(root, "guide", "intro.txt"))
	if err != nil {
		t.Fatalf("read converted file: %v", err)
	}
	text := string(data)
	if strings.ContainsAny(text, "#*") {
		t.Fatalf("markdown syntax not stripped: %q", text)
	}
	if !strings.Contains(text, "Some docs here.") {
		t.Fatalf("content lost: %q", text)
	}
}

func TestConvertTree_SkipsExistingTxt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "page.md"), "# Page")
	writeFile(t, filepath.Join(root, "page.txt"), "already converted")

	created, err := NewConverter(nil, nil).ConvertTree(context.Background(), root)
	if err != nil {
		t.Fatalf("ConvertTree error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("created = %v, want none", created)
	}

	data, _ := os.ReadFile(filepath.Join(root, "page.txt"))
	if string(data) != "already converted" {
		t.Fatalf("existing txt was overwritten: %q", data)
	}
}

func TestConvertTree_CSVPassthroughAndUnknownSkipped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "table.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(root, "binary.dat"), "\x00\x01")

	created, err := NewConverter(nil, nil).ConvertTree(context.Background(), root)
	if err != nil {
		t.Fatalf("ConvertTree error: %v", err)
	}
	if len(created) != 1 || !strings.HasSuffix(created[0], "table.txt") {
		t.Fatalf("created = %v, want only table.txt", created)
	}
}

func TestConvertTree_HTMLFlattened(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "page.html"), "<html><body><p>flattened body</p></body></html>")

	created, err := NewConverter(nil, nil).ConvertTree(context.Background(), root)
	if err != nil {
		t.Fatalf("ConvertTree error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %v, want one file", created)
	}
	data, _ := os.ReadFile(created[0])
	if !strings.Contains(string(data), "flattened body") {
		t.Fatalf("html body lost: %q", data)
	}
}

func TestGatherTextFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "nested", "b.txt"), "b")
	writeFile(t, filepath.Join(root, "nested", "c.md"), "c")

	files, err := GatherTextFiles(root)
	if err != nil {
		t.Fatalf("GatherTextFiles error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want the two .txt files", files)
	}
}
