package scheduler

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func TestNextCronTime(t *testing.T) {
	cases := []struct {
		name  string
		expr  string
		after string
		want  string
	}{
		{
			name:  "every minute",
			expr:  "* * * * *",
			after: "2026-08-24T10:00:30Z",
			want:  "2026-08-24T10:01:00Z",
		},
		{
			name:  "top of each hour",
			expr:  "0 * * * *",
			after: "2026-08-24T10:15:00Z",
			want:  "2026-08-24T11:00:00Z",
		},
		{
			name:  "every five minutes",
			expr:  "*/5 * * * *",
			after: "2026-08-24T10:01:00Z",
			want:  "2026-08-24T10:05:00Z",
		},
		{
			name:  "daily at 3am",
			expr:  "0 3 * * *",
			after: "2026-08-24T10:00:00Z",
			want:  "2026-08-25T03:00:00Z",
		},
		{
			name:  "first of month",
			expr:  "0 0 1 * *",
			after: "2026-08-24T10:00:00Z",
			want:  "2026-09-01T00:00:00Z",
		},
		{
			name:  "comma list of minutes",
			expr:  "15,45 * * * *",
			after: "2026-08-24T10:20:00Z",
			want:  "2026-08-24T10:45:00Z",
		},
		{
			// 2026-08-24 is a Monday; weekday 0 is Sunday.
			name:  "sunday midnight",
			expr:  "0 0 * * 0",
			after: "2026-08-24T10:00:00Z",
			want:  "2026-08-30T00:00:00Z",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextCronTime(tc.expr, mustTime(t, tc.after))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(mustTime(t, tc.want)) {
				t.Errorf("want %s, got %s", tc.want, got.Format(time.RFC3339))
			}
		})
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"61x * * * *",
		"*/0 * * * *",
	} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("expression %q should be rejected", expr)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		SweepInterval:  15 * time.Second,
		SettlementCron: "* * * * *",
		ArchiveCron:    "0 3 * * *",
		LockTTL:        time.Minute,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	noSweep := valid
	noSweep.SweepInterval = 0
	if err := noSweep.Validate(); err == nil {
		t.Errorf("zero sweep interval accepted")
	}

	badCron := valid
	badCron.SettlementCron = "bogus"
	if err := badCron.Validate(); err == nil {
		t.Errorf("bad settlement cron accepted")
	}

	// Archival is optional; an empty cron disables it.
	noArchive := valid
	noArchive.ArchiveCron = ""
	if err := noArchive.Validate(); err != nil {
		t.Errorf("empty archive cron rejected: %v", err)
	}
}
