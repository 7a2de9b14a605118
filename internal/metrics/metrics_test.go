package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	PhaseTotal.WithLabelValues("create", "success").Inc()

	path := filepath.Join(t.TempDir(), "autoacdc.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `autoacdc_phase_total{phase="create",result="success"}`) {
		t.Errorf("textfile missing phase counter:\n%s", data)
	}
}

func TestWriteTextfile_Disabled(t *testing.T) {
	if err := WriteTextfile(""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
