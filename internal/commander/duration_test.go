package commander

import "testing"

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{seconds: 30, want: "1mi"},
		{seconds: 300, want: "5mi"},
		{seconds: 3599, want: "59mi"},
		{seconds: 3600, want: "1h"},
		{seconds: 7200, want: "2h"},
		{seconds: 86400, want: "1d"},
		{seconds: 604800, want: "7d"},
		{seconds: 2592000, want: "1mo"},
		{seconds: 7776000, want: "3mo"},
		{seconds: 31536000, want: "1y"},
		{seconds: 63072000, want: "2y"},
	}

	for _, tt := range tests {
		if got := FormatExpiry(tt.seconds); got != tt.want {
			t.Errorf("FormatExpiry(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
