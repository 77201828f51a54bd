package promptcache

import (
	"os"
	"testing"

	"github.com/voxrelay/voxrelay/internal/commons"
	"github.com/voxrelay/voxrelay/internal/wavfile"
)

func testLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

func TestPutAndRemove(t *testing.T) {
	c, err := New(testLogger(t))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	artifact, err := c.Put([]byte{1, 2, 3, 4}, wavfile.Format{Channels: 1, SampleRate: 8000, BitDepth: 16})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(artifact.Path); err != nil {
		t.Fatalf("expected artifact file to exist: %v", err)
	}
	if artifact.MediaRef == artifact.Path {
		t.Fatalf("expected media ref to be extension-less")
	}

	if err := c.Remove(artifact.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed")
	}
}

func TestRemove_MissingFileIsNotError(t *testing.T) {
	c, err := New(testLogger(t))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if err := c.Remove(c.baseDir + "/does-not-exist.wav"); err != nil {
		t.Fatalf("expected no error removing missing file, got %v", err)
	}
}
