// Package parser 从转发邮件正文中恢复原始发件人、收件人和正文。
package parser

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
)

// 锚点关键字
const (
	AnchorFrom = "from:"
	AnchorTo   = "to:"
)

// ErrAddressNotFound 正文中没有可提取的地址
var ErrAddressNotFound = errors.New("address not found in body")

// span 窗口内一个已确认地址的位置
type span struct {
	start   int
	address string
}

// ExtractAddresses 在正文中定位锚点所在行并提取其中的邮箱地址。
//
// "from:" 取最后一次出现且后跟空格的位置，最多返回一个地址；
// "to:" 取第一次出现的位置，返回该行内的全部地址。
// 扫描范围止于锚点所在行的行尾。
//
// 分隔规则：本地部分只包含 Unicode 字母数字，域名部分只包含字母数字和 '.'，
// 因此逗号、分号、空格、尖括号等任意其他字符都能分隔相邻地址。
// 本地部分向前扫描不会越过上一个地址的结束位置；
// 域名首尾的 '.' 会被去掉；无法解析为邮箱的候选直接跳过。
//
// 找不到锚点或 '@' 时返回空切片。
func ExtractAddresses(body, anchor string) []string {
	anchor = asciiLower(anchor)
	window, ok := anchorWindow(body, anchor)
	if !ok {
		return nil
	}

	spans := scanWindow(asciiLower(window), anchor == AnchorFrom)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.address)
	}
	return out
}

// ExtractSender 提取 "from:" 行中的发件人地址
func ExtractSender(body string) (string, error) {
	addrs := ExtractAddresses(body, AnchorFrom)
	if len(addrs) == 0 {
		return "", ErrAddressNotFound
	}
	return addrs[0], nil
}

// ExtractReceivers 提取 "to:" 行中的全部收件人地址
func ExtractReceivers(body string) []string {
	return ExtractAddresses(body, AnchorTo)
}

// ExtractSenderName 提取 "from:" 行中地址前面的显示名称，
// 去掉引号、尖括号和 Outlook 的 "mailto:" 前缀。没有名称时返回空字符串。
func ExtractSenderName(body string) string {
	window, ok := anchorWindow(body, AnchorFrom)
	if !ok {
		return ""
	}
	spans := scanWindow(asciiLower(window), true)
	if len(spans) == 0 {
		return ""
	}

	name := strings.TrimSpace(window[:spans[0].start])
	name = strings.TrimRight(name, " \t<[(:")
	if strings.HasSuffix(asciiLower(name), "mailto") {
		name = strings.TrimRight(name[:len(name)-len("mailto")], " \t<[(:")
	}
	return strings.TrimSpace(strings.Trim(name, `"' `))
}

// anchorWindow 返回锚点之后到行尾的原文片段
func anchorWindow(body, anchor string) (string, bool) {
	lower := asciiLower(body)

	var start int
	switch anchor {
	case AnchorFrom:
		idx := strings.LastIndex(lower, AnchorFrom+" ")
		if idx < 0 {
			return "", false
		}
		start = idx + len(AnchorFrom) + 1
	case AnchorTo:
		idx := strings.Index(lower, AnchorTo)
		if idx < 0 {
			return "", false
		}
		start = idx + len(AnchorTo)
	default:
		return "", false
	}

	end := strings.IndexByte(body[start:], '\n')
	if end < 0 {
		end = len(body)
	} else {
		end += start
	}
	return body[start:end], true
}

// scanWindow 按分隔规则扫描窗口，single 为 true 时找到第一个有效地址即返回
func scanWindow(window string, single bool) []span {
	var out []span
	resume := 0
	for resume < len(window) {
		at := strings.IndexByte(window[resume:], '@')
		if at < 0 {
			break
		}
		at += resume

		localStart := at
		for localStart > resume {
			r, size := utf8.DecodeLastRuneInString(window[resume:localStart])
			if !isAlnum(r) {
				break
			}
			localStart -= size
		}
		domainEnd := at + 1
		for domainEnd < len(window) {
			r, size := utf8.DecodeRuneInString(window[domainEnd:])
			if !isAlnum(r) && r != '.' {
				break
			}
			domainEnd += size
		}

		if addr, ok := buildAddress(window[localStart:at], window[at+1:domainEnd]); ok {
			out = append(out, span{start: localStart, address: addr})
			if single {
				break
			}
		}
		resume = domainEnd
	}
	return out
}

func buildAddress(local, domain string) (string, bool) {
	domain = strings.Trim(domain, ".")
	if local == "" || domain == "" {
		return "", false
	}
	candidate := local + "@" + domain
	parsed, err := mail.ParseAddress(candidate)
	if err != nil {
		return "", false
	}
	return parsed.Address, true
}

// isAlnum 按 Unicode 判断字母或数字，无效的 UTF-8 字节作为分隔符
func isAlnum(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// asciiLower 只转换 ASCII 字母，保证字节偏移不变
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
