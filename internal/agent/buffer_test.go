package agent

import (
	"bytes"
	"sync"
	"testing"
)

func TestRingBufferBasicWrite(t *testing.T) {
	rb := NewRingBuffer(10)

	n, err := rb.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = (%d, %v), want (5, nil)", n, err)
	}
	if got := rb.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes() = %q, want hello", got)
	}
	if rb.Len() != 5 {
		t.Errorf("Len() = %d, want 5", rb.Len())
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"exact fill", 5, []string{"abcde"}, "abcde"},
		{"wrap once", 5, []string{"abc", "de", "fg"}, "cdefg"},
		{"single oversized write", 4, []string{"abcdefgh"}, "efgh"},
		{"many small writes", 3, []string{"a", "b", "c", "d", "e"}, "cde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				if _, err := rb.Write([]byte(w)); err != nil {
					t.Fatalf("Write(%q) error: %v", w, err)
				}
			}
			if got := string(rb.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q, want %q", got, tt.want)
			}
			if rb.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", rb.Len(), len(tt.want))
			}
		})
	}
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(8)
	if _, err := rb.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}

	rb.Reset()
	if rb.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", rb.Len())
	}
	if _, err := rb.Write([]byte("new")); err != nil {
		t.Fatal(err)
	}
	if got := string(rb.Bytes()); got != "new" {
		t.Errorf("Bytes() after Reset+Write = %q, want new", got)
	}
}

func TestRingBufferConcurrentWrites(t *testing.T) {
	rb := NewRingBuffer(1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = rb.Write([]byte("chunk"))
				_ = rb.Bytes()
				_ = rb.Len()
			}
		}()
	}
	wg.Wait()

	if rb.Len() > 1024 {
		t.Errorf("Len() = %d exceeds capacity", rb.Len())
	}
}
