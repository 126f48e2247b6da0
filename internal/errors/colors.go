package errors

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Color 终端颜色
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBoldRed
	ColorBoldYellow
	ColorBoldWhite
)

var palette = map[Color]*color.Color{
	ColorRed:        color.New(color.FgRed),
	ColorGreen:      color.New(color.FgGreen),
	ColorYellow:     color.New(color.FgYellow),
	ColorBlue:       color.New(color.FgBlue),
	ColorMagenta:    color.New(color.FgMagenta),
	ColorCyan:       color.New(color.FgCyan),
	ColorWhite:      color.New(color.FgWhite),
	ColorBoldRed:    color.New(color.FgRed, color.Bold),
	ColorBoldYellow: color.New(color.FgYellow, color.Bold),
	ColorBoldWhite:  color.New(color.FgWhite, color.Bold),
}

func init() {
	for _, c := range palette {
		c.EnableColor()
	}
}

// colorsEnabled 是否启用颜色
var colorsEnabled = detectColorSupport(os.Stderr)

// detectColorSupport 检测输出是否为支持颜色的终端
func detectColorSupport(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// EnableColors 启用颜色
func EnableColors() {
	colorsEnabled = true
}

// DisableColors 禁用颜色
func DisableColors() {
	colorsEnabled = false
}

// ColorsEnabled 颜色是否启用
func ColorsEnabled() bool {
	return colorsEnabled
}

// SetColorsEnabled 设置颜色开关
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// Colorize 着色字符串（颜色关闭时原样返回）
func Colorize(s string, c Color) string {
	if !colorsEnabled || c == ColorReset {
		return s
	}
	p, ok := palette[c]
	if !ok {
		return s
	}
	return p.Sprint(s)
}

// Red 红色
func Red(s string) string { return Colorize(s, ColorRed) }

// Yellow 黄色
func Yellow(s string) string { return Colorize(s, ColorYellow) }

// Cyan 青色
func Cyan(s string) string { return Colorize(s, ColorCyan) }

// BoldRed 粗体红色
func BoldRed(s string) string { return Colorize(s, ColorBoldRed) }
