package disposition

import (
	"strings"
	"testing"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
		ok       bool
	}{
		{"quoted plain", `attachment; filename="report.csv"`, "report.csv", true},
		{"unquoted plain", `attachment; filename=report.csv`, "report.csv", true},
		{"single quoted plain", `attachment; filename='report.csv'`, "report.csv", true},
		{"extended utf-8", `attachment; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv`, "测试.csv", true},
		{"extended lower-case charset", `attachment; FILENAME*=utf-8''%E6%B5%8B%E8%AF%95.csv`, "测试.csv", true},
		{"extended with language", `attachment; filename*=UTF-8'en'data%20set.csv`, "data set.csv", true},
		{"extended latin1", `attachment; filename*=ISO-8859-1''caf%E9.csv`, "café.csv", true},
		{"both forms prefer extended", `attachment; filename="plain.csv"; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv`, "测试.csv", true},
		{"extended before plain", `attachment; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv; filename="plain.csv"`, "测试.csv", true},
		{"truncated escape, no plain", `attachment; filename*=UTF-8''%E6%`, "", false},
		{"truncated escape falls back to plain", `attachment; filename*=UTF-8''%E6%; filename="plain.csv"`, "plain.csv", true},
		{"invalid utf-8 falls back to plain", `attachment; filename*=UTF-8''%E6; filename=plain.csv`, "plain.csv", true},
		{"unknown charset falls back to plain", `attachment; filename*=X-NOPE''abc; filename=plain.csv`, "plain.csv", true},
		{"trailing parameter", `attachment; filename=report.csv; foo=bar`, "report.csv", true},
		{"trailing parameter quoted", `attachment; filename="report.csv"; size=12`, "report.csv", true},
		{"extended trailing parameter", `attachment; filename*=UTF-8''a.csv; foo=bar`, "a.csv", true},
		{"plain percent-encoded", `attachment; filename="data%20v2.csv"`, "data v2.csv", true},
		{"plain bad escape kept raw", `attachment; filename="100%.csv"`, "100%.csv", true},
		{"plain whitespace trimmed", `attachment; filename="  spaced.csv  "`, "spaced.csv", true},
		{"quoted semicolon", `attachment; filename="a;b.csv"`, "a;b.csv", true},
		{"quoted pair", `attachment; filename="say \"hi\".txt"`, `say "hi".txt`, true},
		{"no disposition type", `filename=bare.csv`, "bare.csv", true},
		{"case insensitive token", `attachment; FileName="Upper.CSV"`, "Upper.CSV", true},
		{"inline without name", `inline`, "", false},
		{"empty quoted", `attachment; filename=""`, "", false},
		{"empty header", ``, "", false},
		{"whitespace header", `   `, "", false},
		{"similar parameter name", `attachment; xfilename=nope.csv`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFilename(tt.header)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseFilename(%q) = (%q, %v), expected (%q, %v)", tt.header, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestParseFilenameIsPure(t *testing.T) {
	h := `attachment; filename="plain.csv"; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv`
	first, ok1 := ParseFilename(h)
	second, ok2 := ParseFilename(h)
	if first != second || ok1 != ok2 {
		t.Errorf("ParseFilename not idempotent: (%q,%v) vs (%q,%v)", first, ok1, second, ok2)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		header   string
		fallback string
		expected string
	}{
		{`attachment; filename="data.csv"`, "fallback.csv", "data.csv"},
		{"", "fallback.csv", "fallback.csv"},
		{`attachment; filename*=UTF-8''%E6%`, "fallback.csv", "fallback.csv"},
		{`attachment; filename="../../etc/passwd"`, "fallback.csv", "passwd"},
		{`attachment; filename=".."`, "fallback.csv", "fallback.csv"},
		{"", "", DefaultName},
		{"", "../", DefaultName},
	}

	for _, tt := range tests {
		if got := Resolve(tt.header, tt.fallback); got != tt.expected {
			t.Errorf("Resolve(%q, %q) = %q, expected %q", tt.header, tt.fallback, got, tt.expected)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"report.csv", "report.csv"},
		{"dir/report.csv", "report.csv"},
		{`C:\Users\me\report.csv`, "report.csv"},
		{"a:b?.csv", "a_b_.csv"},
		{"line\nbreak.csv", "linebreak.csv"},
		{"  name.csv  ", "name.csv"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	long := strings.Repeat("测", 120) + ".csv"
	got := Sanitize(long)
	if len(got) > maxNameBytes {
		t.Fatalf("expected at most %d bytes, got %d", maxNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".csv") {
		t.Errorf("expected extension to be kept, got %q", got)
	}
	if !strings.HasPrefix(got, "测") {
		t.Errorf("expected valid prefix, got %q", got)
	}
}
