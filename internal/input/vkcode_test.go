package input

import "testing"

func TestLookupVKCodeTable(t *testing.T) {
	cases := []struct {
		key  string
		want uint16
	}{
		{"Enter", 0x0D},
		{"Tab", 0x09},
		{"Escape", 0x1B},
		{"Backspace", 0x08},
		{"Delete", 0x2E},
		{"Insert", 0x2D},
		{"Home", 0x24},
		{"End", 0x23},
		{"PageUp", 0x21},
		{"PageDown", 0x22},
		{"ArrowLeft", 0x25},
		{"ArrowUp", 0x26},
		{"ArrowRight", 0x27},
		{"ArrowDown", 0x28},
		{"Space", 0x20},
		{"F1", 0x70},
		{"F5", 0x74},
		{"F12", 0x7B},
		{"CapsLock", 0x14},
		{"NumLock", 0x90},
		{"ScrollLock", 0x91},
		{"PrintScreen", 0x2C},
		{"Pause", 0x13},
		{"ContextMenu", 0x5D},
		{"Control", 0x11},
		{"Alt", 0x12},
		{"Shift", 0x10},
		{"Meta", 0x5B},
		{"a", 0x41},
		{"z", 0x5A},
		{"A", 0x41},
		{"0", 0x30},
		{"9", 0x39},
	}
	for _, tc := range cases {
		got, ok := lookupVKCode(tc.key)
		if !ok {
			t.Errorf("lookupVKCode(%q) not found", tc.key)
			continue
		}
		if got != tc.want {
			t.Errorf("lookupVKCode(%q) = %#x, want %#x", tc.key, got, tc.want)
		}
	}
}

func TestLookupVKCodeUnknown(t *testing.T) {
	for _, key := range []string{"", "NoSuchKey", "ß", "Enter2"} {
		if code, ok := lookupVKCode(key); ok {
			t.Errorf("lookupVKCode(%q) = %#x, want not found", key, code)
		}
	}
}
