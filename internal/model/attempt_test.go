package model

import (
	"testing"
	"time"
)

func TestAttemptIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exam := &Exam{DurationMinutes: 30}

	tests := []struct {
		name      string
		started   time.Time
		submitted bool
		want      bool
	}{
		{name: "just started", started: now, want: false},
		{name: "exactly at deadline", started: now.Add(-30 * time.Minute), want: false},
		{name: "one second past deadline", started: now.Add(-30*time.Minute - time.Second), want: true},
		{name: "31 minutes ago", started: now.Add(-31 * time.Minute), want: true},
		{name: "past deadline but submitted", started: now.Add(-31 * time.Minute), submitted: true, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &Attempt{StartTime: tc.started, IsSubmitted: tc.submitted, Exam: exam}
			if got := a.IsExpired(now); got != tc.want {
				t.Fatalf("IsExpired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAttemptTimeRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exam := &Exam{DurationMinutes: 30}

	a := &Attempt{StartTime: now.Add(-10 * time.Minute), Exam: exam}
	if got := a.TimeRemaining(now); got != 20*60 {
		t.Fatalf("TimeRemaining() = %d, want %d", got, 20*60)
	}

	a.StartTime = now.Add(-45 * time.Minute)
	if got := a.TimeRemaining(now); got != 0 {
		t.Fatalf("expired TimeRemaining() = %d, want 0", got)
	}

	// 已提交的作答与墙钟时间无关
	a.StartTime = now
	a.IsSubmitted = true
	for _, at := range []time.Time{now, now.Add(-time.Hour), now.Add(24 * time.Hour)} {
		if got := a.TimeRemaining(at); got != 0 {
			t.Fatalf("submitted TimeRemaining(%v) = %d, want 0", at, got)
		}
	}
}

func TestExamIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	base := Exam{
		IsPublished: true,
		StartTime:   now.Add(-5 * time.Minute),
		EndTime:     now.Add(25 * time.Minute),
	}

	if !base.IsActive(now) {
		t.Fatal("published exam inside window should be active")
	}

	unpublished := base
	unpublished.IsPublished = false
	if unpublished.IsActive(now) {
		t.Fatal("unpublished exam should not be active")
	}

	future := base
	future.StartTime = now.Add(time.Hour)
	future.EndTime = now.Add(2 * time.Hour)
	if future.IsActive(now) {
		t.Fatal("exam before start time should not be active")
	}

	past := base
	past.StartTime = now.Add(-2 * time.Hour)
	past.EndTime = now.Add(-time.Hour)
	if past.IsActive(now) {
		t.Fatal("exam after end time should not be active")
	}

	if !base.IsActive(base.EndTime) {
		t.Fatal("end time is inclusive")
	}
}

func TestExamTotalMarks(t *testing.T) {
	e := Exam{Questions: []Question{{Marks: 1}, {Marks: 2}, {Marks: 5}}}
	if got := e.TotalMarks(); got != 8 {
		t.Fatalf("TotalMarks() = %d, want 8", got)
	}
	if got := (&Exam{}).TotalMarks(); got != 0 {
		t.Fatalf("empty TotalMarks() = %d, want 0", got)
	}
}
