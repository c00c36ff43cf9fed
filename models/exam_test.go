package models

import (
	"testing"
	"time"
)

func TestExamSessionStartsAt(t *testing.T) {
	loc := time.FixedZone("MYT", 8*3600)
	tests := []struct {
		name     string
		examTime string
		want     time.Time
	}{
		{name: "hh:mm", examTime: "09:30", want: time.Date(2030, 1, 10, 9, 30, 0, 0, loc)},
		{name: "hh:mm:ss", examTime: "14:05:00", want: time.Date(2030, 1, 10, 14, 5, 0, 0, loc)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := ExamSession{ExamDate: time.Date(2030, 1, 10, 0, 0, 0, 0, loc), ExamTime: tc.examTime}
			got, err := s.StartsAt()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestExamSessionStartsInOtherZone(t *testing.T) {
	kl := time.FixedZone("MYT", 8*3600)
	scheduled := ExamSession{ExamDate: time.Date(2030, 1, 10, 0, 0, 0, 0, kl), ExamTime: "09:00"}
	want := time.Date(2030, 1, 10, 9, 0, 0, 0, kl)

	// the same instant read back by a driver running in UTC
	reloaded := scheduled
	reloaded.ExamDate = scheduled.ExamDate.In(time.UTC)

	got, err := reloaded.StartsIn(kl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if own, _ := reloaded.StartsAt(); own.Equal(want) {
		t.Fatalf("date's own zone should not be trusted, got %s", own)
	}
}

func TestExamSessionStartsAtInvalid(t *testing.T) {
	for _, v := range []string{"", "9", "25:00", "10:61", "ab:cd"} {
		s := ExamSession{ExamDate: time.Now(), ExamTime: v}
		if _, err := s.StartsAt(); err == nil {
			t.Fatalf("expected error for %q", v)
		}
	}
}

func TestQuestionOptionsSkipsEmpty(t *testing.T) {
	q := Question{OptionA: "True", OptionB: "False"}
	opts := q.Options()
	if len(opts) != 2 || opts["A"] != "True" || opts["B"] != "False" {
		t.Fatalf("unexpected options: %v", opts)
	}
}
