package parser

import (
	"fmt"
	"sort"
	"strings"

	"clientmanager/backend/internal/inbound"
)

// AgentParser 针对某个邮件客户端转发格式的解析能力
type AgentParser interface {
	// Subject 去除转发前缀和标记
	Subject(subject string) string
	// Sender 从正文 "from:" 行恢复原始发件人
	Sender(raw *inbound.RawMessage) (inbound.Address, error)
	// Body 去除转发分隔线和引用头，返回原始正文
	Body(raw *inbound.RawMessage) string
}

// 已知的转发分隔线
var (
	thunderbirdMarkers = []string{"-------- Original Message --------", "-------- Forwarded Message --------"}
	outlookMarkers     = []string{"-----Original Message-----", "________________________________"}
	gmailMarkers       = []string{"---------- Forwarded message ---------"}
)

// 内置解析器名称
const (
	AgentThunderbird = "thunderbird"
	AgentOutlook     = "outlook"
	AgentGmail       = "gmail"
	AgentGeneric     = "generic"
)

// markerParser 以分隔线定位原始邮件的解析器
type markerParser struct {
	markers []string
}

// NewMarkerParser 创建基于分隔线的解析器
func NewMarkerParser(markers ...string) AgentParser {
	return &markerParser{markers: markers}
}

func (p *markerParser) Subject(subject string) string {
	return StripForwardPrefix(subject)
}

func (p *markerParser) Sender(raw *inbound.RawMessage) (inbound.Address, error) {
	email, err := ExtractSender(raw.Body)
	if err != nil {
		return inbound.Address{}, err
	}
	return inbound.Address{Name: ExtractSenderName(raw.Body), Email: email}, nil
}

func (p *markerParser) Body(raw *inbound.RawMessage) string {
	body := strings.ReplaceAll(raw.Body, "\r\n", "\n")
	lower := asciiLower(body)

	cut := -1
	for _, m := range p.markers {
		if idx := strings.LastIndex(lower, asciiLower(m)); idx >= 0 && idx+len(m) > cut {
			cut = idx + len(m)
		}
	}
	if cut < 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(skipQuotedHeaders(body[cut:]))
}

// quotedHeaderKeys 转发块中常见的引用头
var quotedHeaderKeys = []string{"from:", "to:", "cc:", "date:", "sent:", "subject:", "reply-to:"}

// skipQuotedHeaders 跳过分隔线之后的引用头，直到第一个空行或非头部行
func skipQuotedHeaders(s string) string {
	lines := strings.Split(strings.TrimLeft(s, "\n"), "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.ToLower(strings.TrimSpace(lines[i]))
		if line == "" {
			i++
			break
		}
		if !hasAnyPrefix(line, quotedHeaderKeys) {
			break
		}
	}
	return strings.Join(lines[i:], "\n")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Registry 按客户端签名选择解析器。
//
// 规则是"签名子串 → 解析器名称"，大小写不敏感；较长的子串优先匹配，
// 没有规则命中时使用通用解析器。
type Registry struct {
	parsers  map[string]AgentParser
	rules    []rule
	fallback AgentParser
}

type rule struct {
	signature string
	parser    string
}

// DefaultSignatures 返回默认的签名规则
func DefaultSignatures() map[string]string {
	return map[string]string{
		"thunderbird": AgentThunderbird,
		"outlook":     AgentOutlook,
		"gmail":       AgentGmail,
	}
}

// NewRegistry 创建解析器注册表
//
// 参数:
//   - signatures: 签名子串到解析器名称的映射，为空时使用 DefaultSignatures
//
// 返回值:
//   - *Registry: 注册表
//   - error: 引用了未知解析器名称时返回错误
func NewRegistry(signatures map[string]string) (*Registry, error) {
	all := make([]string, 0, len(thunderbirdMarkers)+len(outlookMarkers)+len(gmailMarkers))
	all = append(all, thunderbirdMarkers...)
	all = append(all, outlookMarkers...)
	all = append(all, gmailMarkers...)

	r := &Registry{parsers: make(map[string]AgentParser)}
	r.Register(AgentThunderbird, NewMarkerParser(thunderbirdMarkers...))
	r.Register(AgentOutlook, NewMarkerParser(outlookMarkers...))
	r.Register(AgentGmail, NewMarkerParser(gmailMarkers...))
	r.Register(AgentGeneric, NewMarkerParser(all...))

	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	for sig, name := range signatures {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := r.parsers[name]; !ok {
			return nil, fmt.Errorf("unknown agent parser %q for signature %q", name, sig)
		}
		r.rules = append(r.rules, rule{signature: strings.ToLower(strings.TrimSpace(sig)), parser: name})
	}
	sort.Slice(r.rules, func(i, j int) bool {
		if len(r.rules[i].signature) != len(r.rules[j].signature) {
			return len(r.rules[i].signature) > len(r.rules[j].signature)
		}
		return r.rules[i].signature < r.rules[j].signature
	})

	return r, nil
}

// Register 注册或替换一个具名解析器，替换通用解析器时同时替换兜底解析器
func (r *Registry) Register(name string, p AgentParser) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.parsers[name] = p
	if name == AgentGeneric {
		r.fallback = p
	}
}

// For 返回与客户端签名匹配的解析器
func (r *Registry) For(signature string) AgentParser {
	sig := strings.ToLower(signature)
	for _, rl := range r.rules {
		if rl.signature != "" && strings.Contains(sig, rl.signature) {
			if p, ok := r.parsers[rl.parser]; ok {
				return p
			}
		}
	}
	return r.fallback
}
