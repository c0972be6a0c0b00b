package geo

import "testing"

func TestValidAddress(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"136.159.0.0", true},
		{"1.1.1.1", true},
		{"255.255.255.255", true},
		{"2001:db8::1", true},
		{"::1", true},
		{"::ffff:192.0.2.1", true},
		{"not-an-ip", false},
		{"", false},
		{"256.1.1.1", false},
		{"1.2.3", false},
		{" 1.2.3.4", false},
		{"example.com", false},
		{"fe80::1%eth0", false},
		{"2001:db8::g", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidAddress(tt.input); got != tt.want {
				t.Errorf("ValidAddress(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
