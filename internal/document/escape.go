package document

import "strings"

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`(`, `\(`,
	`)`, `\)`,
	"\r", `\r`,
	"\n", `\n`,
)

// EscapeString 转义字面字符串内容：反斜杠与括号加反斜杠，换行改写为转义序列。
func EscapeString(s string) string { return stringEscaper.Replace(s) }

// streamEnd 为流内容的终止记号。
const streamEnd = "endstream"

// EscapeStream 拆开流内容中位于行首的终止记号（前插一个空格），内容其余部分原样保留。
// 脚本语义不受影响：行首空白对脚本无意义。
func EscapeStream(s string) string {
	if !strings.Contains(s, streamEnd) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	lineStart := true
	for i := 0; i < len(s); i++ {
		if lineStart && strings.HasPrefix(s[i:], streamEnd) {
			b.WriteByte(' ')
		}
		c := s[i]
		b.WriteByte(c)
		lineStart = c == '\n' || c == '\r'
	}
	return b.String()
}
