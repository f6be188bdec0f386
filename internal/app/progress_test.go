package app

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestFitPath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{path: "/src/a.txt", n: 20, want: "/src/a.txt"},
		{path: "/src/photos/2020/a.jpg", n: 12, want: "...020/a.jpg"},
		{path: "/src/a.txt", n: 3, want: ""},
	}
	for _, tt := range tests {
		got := fitPath(tt.path, tt.n)
		if got != tt.want {
			t.Errorf("fitPath(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
		if len(got) > tt.n {
			t.Errorf("fitPath(%q, %d) is %d bytes long", tt.path, tt.n, len(got))
		}
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, func() int { return 60 })

	p.Update("/src/big.iso", 512*1024, 2*1024*1024)
	line := buf.String()
	if !strings.HasPrefix(line, "\r/src/big.iso") {
		t.Errorf("Update() = %q, want the path at the start of the line", line)
	}
	if !strings.Contains(line, "512 KiB / 2.0 MiB  25%") {
		t.Errorf("Update() = %q, want sizes and percentage", line)
	}

	buf.Reset()
	p.Done()
	if buf.String() != "\r\x1b[K" {
		t.Errorf("Done() = %q, want the line cleared", buf.String())
	}
	buf.Reset()
	p.Done()
	if buf.Len() != 0 {
		t.Errorf("second Done() wrote %q", buf.String())
	}
}

func TestNewProgress_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()
	if p := NewProgress(f); p != nil {
		t.Error("NewProgress() on a regular file = non-nil, want nil")
	}
}
