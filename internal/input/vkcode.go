package input

import "strings"

// vkCodes is the fixed key-name→virtual-key-code mapping for the wire
// protocol's web-platform key names. Matching is case-insensitive.
var vkCodes = map[string]uint16{
	"enter":       0x0D,
	"tab":         0x09,
	"escape":      0x1B,
	"backspace":   0x08,
	"delete":      0x2E,
	"insert":      0x2D,
	"home":        0x24,
	"end":         0x23,
	"pageup":      0x21,
	"pagedown":    0x22,
	"arrowleft":   0x25,
	"arrowup":     0x26,
	"arrowright":  0x27,
	"arrowdown":   0x28,
	"space":       0x20,
	"f1":          0x70,
	"f2":          0x71,
	"f3":          0x72,
	"f4":          0x73,
	"f5":          0x74,
	"f6":          0x75,
	"f7":          0x76,
	"f8":          0x77,
	"f9":          0x78,
	"f10":         0x79,
	"f11":         0x7A,
	"f12":         0x7B,
	"capslock":    0x14,
	"numlock":     0x90,
	"scrolllock":  0x91,
	"printscreen": 0x2C,
	"pause":       0x13,
	"contextmenu": 0x5D,
	"control":     0x11,
	"alt":         0x12,
	"shift":       0x10,
	"meta":        0x5B,
}

// lookupVKCode resolves a web-platform key name to its virtual-key code.
// Letters a-z and digits 0-9 are derived directly; everything else is
// looked up in vkCodes. The bool return is false for unrecognised keys,
// which callers must log and ignore.
func lookupVKCode(key string) (uint16, bool) {
	lower := strings.ToLower(key)

	if len(key) == 1 {
		c := lower[0]
		switch {
		case c >= 'a' && c <= 'z':
			return uint16('A' + (c - 'a')), true
		case c >= '0' && c <= '9':
			return uint16(c), true
		}
	}

	if code, ok := vkCodes[lower]; ok {
		return code, true
	}
	return 0, false
}

// modifierVKCode resolves a modifier name to its virtual-key code.
func modifierVKCode(mod string) (uint16, bool) {
	switch strings.ToLower(mod) {
	case "ctrl":
		return vkCodes["control"], true
	case "alt":
		return vkCodes["alt"], true
	case "shift":
		return vkCodes["shift"], true
	case "meta":
		return vkCodes["meta"], true
	default:
		return 0, false
	}
}
