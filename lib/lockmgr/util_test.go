package lockmgr

import "testing"

func TestFoldName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", ""},
		{"REPORT.CSV", "REPORT.CSV"},
		{"Report.csv", "REPORT.CSV"},
		{"ärger.txt", "ÄRGER.TXT"},
		{"data-\xff.bin", "DATA-\xff.BIN"},
		{"data-\xfe.bin", "DATA-\xfe.BIN"},
		{"data-\uFFFD.bin", "DATA-\uFFFD.BIN"},
		{"\xe2\x82a", "\xe2\x82A"}, // truncated sequence
	}

	for _, tt := range tests {
		if got := foldName(tt.name); got != tt.want {
			t.Errorf("foldName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFoldNameKeepsInvalidNamesDistinct(t *testing.T) {
	names := []string{"data-\xff.bin", "data-\xfe.bin", "data-\uFFFD.bin", "data-\xef\xbf.bin"}

	seen := make(map[string]string, len(names))
	for _, name := range names {
		key := foldName(name)
		if prev, ok := seen[key]; ok {
			t.Errorf("%q and %q fold to the same key %q", prev, name, key)
		}
		seen[key] = name
	}
}
