package literal

import (
	"github.com/tangzhangming/wkcjs/internal/token"
)

// PathEntryType JSONP 路径段类别
type PathEntryType int

const (
	PathDeclareVar PathEntryType = iota // var name = ...
	PathDot                             // .name（首段为全局名）
	PathLookup                          // [index]
	PathCall                            // 最后一段为被调用的函数名
)

func (t PathEntryType) String() string {
	switch t {
	case PathDeclareVar:
		return "DeclareVar"
	case PathDot:
		return "Dot"
	case PathLookup:
		return "Lookup"
	case PathCall:
		return "Call"
	}
	return "Unknown"
}

// PathEntry 路径中的一段
type PathEntry struct {
	Type  PathEntryType
	Name  string
	Index uint32
}

// JSONPData 一条 JSONP 语句：沿 Path 解析目标，再赋值或以 Value 调用
type JSONPData struct {
	Path  []PathEntry
	Value *Value
}

// TryJSONPParse 尝试把整个程序解析为 JSONP 语句序列。
// 返回 false 表示源码不是 JSONP 形式，调用方应走完整编译。
func TryJSONPParse(source string) ([]JSONPData, bool) {
	p := &parser{lex: lexer{src: source, idOK: true}}
	if p.lex.next() != tokIdentifier {
		return nil, false
	}

	var results []JSONPData
	for {
		var path []PathEntry
		entry := PathEntry{Type: PathDot, Name: p.lex.tok.str}
		if entry.Name == "var" {
			if p.lex.next() != tokIdentifier {
				return nil, false
			}
			entry = PathEntry{Type: PathDeclareVar, Name: p.lex.tok.str}
		}
		if isReserved(entry.Name) {
			return nil, false
		}
		path = append(path, entry)

		typ := p.lex.next()
		if entry.Type == PathDeclareVar && typ != tokAssign {
			return nil, false
		}

		isCall := false
	segments:
		for typ != tokAssign {
			switch typ {
			case tokLBracket:
				switch p.lex.next() {
				case tokNumber:
					n := p.lex.tok.num
					idx := uint32(n)
					if n < 0 || float64(idx) != n {
						return nil, false
					}
					entry = PathEntry{Type: PathLookup, Index: idx}
				case tokString:
					// ["name"] 与 .name 等价
					entry = PathEntry{Type: PathDot, Name: p.lex.tok.str}
				default:
					return nil, false
				}
				if p.lex.next() != tokRBracket {
					return nil, false
				}
			case tokDot:
				if p.lex.next() != tokIdentifier {
					return nil, false
				}
				entry = PathEntry{Type: PathDot, Name: p.lex.tok.str}
			case tokLParen:
				last := &path[len(path)-1]
				if last.Type != PathDot {
					return nil, false
				}
				last.Type = PathCall
				isCall = true
				break segments
			default:
				return nil, false
			}
			path = append(path, entry)
			typ = p.lex.next()
		}

		p.lex.next()
		value, ok := p.parseValue()
		if !ok {
			return nil, false
		}
		if isCall {
			if p.lex.tok.typ != tokRParen {
				return nil, false
			}
			p.lex.next()
		}
		results = append(results, JSONPData{Path: path, Value: value})

		if p.lex.tok.typ != tokSemi {
			break
		}
		if p.lex.next() != tokIdentifier {
			break
		}
	}
	return results, p.lex.tok.typ == tokEnd
}

// isReserved 路径首段不能是关键字（true = 1 之类不是 JSONP）
func isReserved(name string) bool {
	return token.IsKeyword(token.LookupIdent(name))
}
