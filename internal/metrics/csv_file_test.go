package metrics_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opsocket/opsocket/internal/metrics"
)

func TestRecordOpen(t *testing.T) {
	t.Chdir(t.TempDir())

	r := metrics.NewRecorder("conns.csv", zerolog.Nop())
	r.RecordOpen("conn-1")

	got, err := os.ReadFile("conns.csv")
	if err != nil {
		t.Fatal(err)
	}
	if want := ",conn-1,open,,\n"; len(got) < len(want) || string(got[len(got)-len(want):]) != want {
		t.Errorf("file content = %q, want suffix %q", got, want)
	}
}

func TestRecordClose(t *testing.T) {
	t.Chdir(t.TempDir())

	r := metrics.NewRecorder("conns.csv", zerolog.Nop())
	r.RecordClose("conn-1", 1000, "bye")

	got, err := os.ReadFile("conns.csv")
	if err != nil {
		t.Fatal(err)
	}
	if want := ",conn-1,close,1000,bye\n"; len(got) < len(want) || string(got[len(got)-len(want):]) != want {
		t.Errorf("file content = %q, want suffix %q", got, want)
	}
}

func TestRecordFrame(t *testing.T) {
	t.Chdir(t.TempDir())

	r := metrics.NewRecorder("conns.csv", zerolog.Nop())
	r.RecordFrame("conn-1", "text", 42)

	got, err := os.ReadFile("conns.csv")
	if err != nil {
		t.Fatal(err)
	}
	if want := ",conn-1,frame:text,42,\n"; len(got) < len(want) || string(got[len(got)-len(want):]) != want {
		t.Errorf("file content = %q, want suffix %q", got, want)
	}
}

func TestNewRecorderDefaultFilename(t *testing.T) {
	t.Chdir(t.TempDir())

	r := metrics.NewRecorder("", zerolog.Nop())
	r.RecordOpen("conn-1")

	if _, err := os.ReadFile(metrics.DefaultMetricsFile); err != nil {
		t.Fatalf("expected %s to exist: %v", metrics.DefaultMetricsFile, err)
	}
}

func TestRecordWriteFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.Mkdir("is-a-dir.csv", 0o700); err != nil {
		t.Fatal(err)
	}

	r := metrics.NewRecorder("is-a-dir.csv", zerolog.Nop())
	// Should not panic even though the underlying file can't be opened.
	r.RecordOpen(fmt.Sprintf("conn-%d", 1))
}
