package parser

import "strings"

var forwardPrefixes = []string{"fwd:", "fw:"}

// IsForwarded 根据主题判断是否为转发邮件
func IsForwarded(subject string) bool {
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, p := range forwardPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// StripForwardPrefix 去掉主题开头的全部 "Fwd:"/"Fw:" 前缀，
// 以及 Thunderbird 内联转发使用的 "[Fwd: ...]" 包装
func StripForwardPrefix(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := asciiLower(s)
		if strings.HasPrefix(lower, "[fwd:") && strings.HasSuffix(s, "]") {
			s = strings.TrimSpace(s[len("[fwd:") : len(s)-1])
			continue
		}
		stripped := false
		for _, p := range forwardPrefixes {
			if strings.HasPrefix(lower, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}
