package stage

import (
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor converts a color string to 0xRRGGBBAA. It accepts #rgb,
// #rgba, #rrggbb, #rrggbbaa, 0xRRGGBBAA and CSS color names.
func ParseColor(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, false
		}
		return uint32(v), true
	}
	c, ok := colornames.Map[strings.ToLower(s)]
	if !ok {
		return 0, false
	}
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A), true
}

func parseHex(h string) (uint32, bool) {
	switch len(h) {
	case 3, 4:
		// expand shorthand: #abc -> #aabbcc
		var b strings.Builder
		for i := 0; i < len(h); i++ {
			b.WriteByte(h[i])
			b.WriteByte(h[i])
		}
		h = b.String()
	case 6, 8:
	default:
		return 0, false
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// isColorProp reports whether values of prop are colors.
func isColorProp(prop string) bool {
	return prop == "color" || strings.HasSuffix(prop, "Color")
}
