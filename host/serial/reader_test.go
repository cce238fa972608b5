package serial

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"code.hybscloud.com/iox"
)

func TestReaderCopiesAllBytes(t *testing.T) {
	input := strings.Repeat("G1 X1 Y2\n", 50)
	r := NewReader(strings.NewReader(input), 2, 7)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background())
	}()

	var got bytes.Buffer
	deadline := time.Now().Add(5 * time.Second)
	for got.Len() < len(input) {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out after %d bytes", got.Len())
		}
		chunk, err := r.Dequeue()
		if err != nil {
			if !iox.IsWouldBlock(err) {
				t.Fatalf("Unexpected dequeue error: %v", err)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		if len(chunk) > 7 {
			t.Errorf("Expected chunks of at most 7 bytes, got %d", len(chunk))
		}
		got.Write(chunk)
	}

	if err := <-done; err != nil {
		t.Errorf("Expected clean end of input, got %v", err)
	}
	if got.String() != input {
		t.Error("Chunks did not reassemble to the input")
	}
	if r.Bytes() != uint64(len(input)) {
		t.Errorf("Expected %d bytes counted, got %d", len(input), r.Bytes())
	}
}

func TestReaderEmptyQueue(t *testing.T) {
	r := NewReader(strings.NewReader(""), 4, 0)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := r.Dequeue(); !iox.IsWouldBlock(err) {
		t.Errorf("Expected would-block on empty queue, got %v", err)
	}
}

func TestReaderCancelWhileFull(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("x", 100)), 2, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	for r.Waits() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device gone")
}

func TestReaderSourceError(t *testing.T) {
	r := NewReader(failingReader{}, 2, 8)
	err := r.Run(context.Background())
	if err == nil || err.Error() != "device gone" {
		t.Errorf("Expected device error, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyUSB0")
	if cfg.Device != "/dev/ttyUSB0" {
		t.Errorf("Expected device /dev/ttyUSB0, got %s", cfg.Device)
	}
	if cfg.Baud != 115200 {
		t.Errorf("Expected baud 115200, got %d", cfg.Baud)
	}
}

func TestOpenNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
