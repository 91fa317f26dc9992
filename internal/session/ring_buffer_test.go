package session

import (
	"testing"
)

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer[Event](10)
	events := rb.ReadAll()
	if len(events) != 0 {
		t.Errorf("expected empty buffer, got %d events", len(events))
	}
}

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		writes   int
		want     []int
	}{
		{"partial", 10, 5, []int{1, 2, 3, 4, 5}},
		{"exact", 3, 3, []int{1, 2, 3}},
		{"overflow drops oldest", 5, 8, []int{4, 5, 6, 7, 8}},
		{"wrapped twice", 2, 5, []int{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer[Event](tt.capacity)
			for seq := 1; seq <= tt.writes; seq++ {
				rb.Write(Event{KernelID: "test", Type: EventResult, Seq: seq})
			}

			events := rb.ReadAll()
			if len(events) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(events))
			}
			for i, e := range events {
				if e.Seq != tt.want[i] {
					t.Errorf("event %d: expected seq %d, got %d", i, tt.want[i], e.Seq)
				}
			}
		})
	}
}
