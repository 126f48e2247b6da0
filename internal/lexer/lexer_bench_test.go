package lexer

import (
	"strings"
	"testing"
)

// ============================================================================
// Lexer 基准测试
// ============================================================================
//
// 运行基准测试：
//   go test -bench=. -benchmem ./internal/lexer/...
//
// ============================================================================

var benchSource = `
// 典型的脚本片段
"use strict";

var config = { name: "widget", retries: 3, tags: ["a", "b", "c"] };

function retry(fn, times) {
    var lastError = null;
    for (var i = 0; i < times; i++) {
        try {
            return fn(i);
        } catch (e) {
            lastError = e;
        } finally {
            config.retries -= 1;
        }
    }
    throw lastError;
}

let total = 0;
const items = [1, 2, 3, 4, 5];
for (let j = 0; j < items.length; j++) {
    total += items[j] * 2 % 7;
}
if (total !== 0 && typeof retry === "function") {
    retry(function (n) { return n + total; }, 2);
}
`

var unicodeSource = strings.Repeat("var 名字 = \"值\"; // 注释\n", 50)

func BenchmarkLexerASCII(b *testing.B) {
	source := strings.Repeat(benchSource, 20)
	b.SetBytes(int64(len(source)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New(source, "bench.js").ScanTokens()
	}
}

func BenchmarkLexerUnicode(b *testing.B) {
	b.SetBytes(int64(len(unicodeSource)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New(unicodeSource, "bench.js").ScanTokens()
	}
}
