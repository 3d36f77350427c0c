package accesslog

import (
	"testing"

	"bluegreen-watch/internal/models"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		want  models.LogEvent
		match bool
	}{
		{
			name:  "plain record",
			line:  "pool=green release=v1.2.3 upstream_status=502",
			want:  models.LogEvent{Pool: "green", Release: "v1.2.3", Status: 502},
			match: true,
		},
		{
			name: "embedded in nginx line",
			line: `172.18.0.1 - - [18/Oct/2026:10:00:00 +0000] "GET /version HTTP/1.1" 200 57 "-" "curl/8.5.0" ` +
				`pool=blue release=blue-v1.0_rc upstream_status=200 upstream=172.18.0.3:3000 request_time=0.004`,
			want:  models.LogEvent{Pool: "blue", Release: "blue-v1.0_rc", Status: 200},
			match: true,
		},
		{
			name: "no record",
			line: `172.18.0.1 - - [18/Oct/2026:10:00:00 +0000] "GET / HTTP/1.1" 200 612`,
		},
		{
			name: "non numeric status",
			line: "pool=green release=v1.2.3 upstream_status=abc",
		},
		{
			name: "status out of range",
			line: "pool=green release=v1.2.3 upstream_status=99999999999999999999999",
		},
		{
			name: "fields out of order",
			line: "release=v1.2.3 pool=green upstream_status=502",
		},
		{
			name: "double space between fields",
			line: "pool=green  release=v1.2.3 upstream_status=502",
		},
		{
			name: "empty line",
			line: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse(tc.line)
			if ok != tc.match {
				t.Fatalf("Parse(%q) match=%v, want %v", tc.line, ok, tc.match)
			}
			if ok && got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseUpstreamStatusWithMultipleValues(t *testing.T) {
	// nginx 重试时 upstream_status 形如 "502, 200" 只取第一个数字
	got, ok := Parse("pool=blue release=v2 upstream_status=502, 200")
	if !ok {
		t.Fatal("expected match")
	}
	if got.Status != 502 {
		t.Fatalf("status = %d, want 502", got.Status)
	}
}
