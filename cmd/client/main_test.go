package main

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestReadLines(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	lines := readLines(strings.NewReader("hello\nworld\n"), done, zaptest.NewLogger(t))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	if strings.Join(got, "|") != "hello|world" {
		t.Errorf("lines = %q, want %q", got, []string{"hello", "world"})
	}
}

func TestReadLines_StopsWhenDone(t *testing.T) {
	done := make(chan struct{})
	lines := readLines(strings.NewReader("one\ntwo\nthree\n"), done, zaptest.NewLogger(t))

	if line := <-lines; line != "one" {
		t.Fatalf("first line = %q, want %q", line, "one")
	}
	close(done)

	// The reader may already be offering the next line; it must still exit.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("reader goroutine did not exit after done was closed")
		}
	}
}
