package board

// Palette is the fixed color table shared by every node; the wire colorId is an index into it.
var Palette = [...]string{
	"hsl(0, 70%, 85%)",
	"hsl(30, 70%, 85%)",
	"hsl(60, 70%, 85%)",
	"hsl(90, 70%, 85%)",
	"hsl(120, 70%, 85%)",
	"hsl(150, 70%, 85%)",
	"hsl(180, 70%, 85%)",
	"hsl(210, 70%, 85%)",
	"hsl(240, 70%, 85%)",
	"hsl(270, 70%, 85%)",
	"hsl(300, 70%, 85%)",
	"hsl(330, 70%, 85%)",
	"hsl(0, 0%, 85%)",
	"hsl(0, 0%, 75%)",
	"hsl(45, 80%, 85%)",
	"hsl(15, 80%, 85%)",
}

// ColorFor maps a palette index to its color; out of range maps to entry 0.
func ColorFor(index int) string {
	if index < 0 || index >= len(Palette) {
		return Palette[0]
	}
	return Palette[index]
}

// ColorIndex maps a color back to its palette index; unknown colors map to 0.
func ColorIndex(color string) int {
	for i, c := range Palette {
		if c == color {
			return i
		}
	}
	return 0
}
