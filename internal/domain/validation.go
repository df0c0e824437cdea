package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrTeamNameRequired = errors.New("team name is required")
	ErrInvalidRole      = errors.New("invalid person role")
)

// RFC 5322 邮箱地址长度限制
const (
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateEmail 验证邮箱地址
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	local, domain, _ := strings.Cut(email, "@")
	if len(local) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	return ValidateDomain(domain)
}

// ValidateDomain 验证域名
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// Validate 验证联系人
func (p *Person) Validate() error {
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if _, ok := ParsePersonRole(string(p.Role)); !ok {
		return ErrInvalidRole
	}
	return nil
}

// Validate 验证团队
func (t *Team) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrTeamNameRequired
	}
	return nil
}
