package transport

import "testing"

func TestBuildURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://console.example.com", "wss://console.example.com/ws/agent"},
		{"http://console.example.com:8080", "ws://console.example.com:8080/ws/agent"},
		{"wss://console.example.com", "wss://console.example.com/ws/agent"},
		{"ws://10.0.0.1:9000", "ws://10.0.0.1:9000/ws/agent"},
		{"https://console.example.com/", "wss://console.example.com/ws/agent"},
	}
	for _, tc := range cases {
		got, err := BuildURL(tc.in)
		if err != nil {
			t.Errorf("BuildURL(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("BuildURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildURLRejectsUnknownScheme(t *testing.T) {
	if _, err := BuildURL("ftp://console.example.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
