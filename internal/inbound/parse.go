package inbound

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset" // 注册非 UTF-8 字符集解码器
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

var (
	htmlTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
)

// ParseMessage 将 SMTP 会话收到的原始字节解析为 RawMessage。
//
// 参数:
//   - envelopeFrom: MAIL FROM 地址，From 头缺失或无法解析时作为发件人
//   - envelopeTo: RCPT TO 地址列表，按接收顺序作为收件人
//   - raw: 原始邮件字节
//
// 返回值:
//   - *RawMessage: 解析结果，正文优先取 text/plain，缺失时由 text/html 去标签得到
//   - error: 邮件头无法解析时返回错误
func ParseMessage(envelopeFrom string, envelopeTo []string, raw []byte) (*RawMessage, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}
	defer reader.Close()

	msg := &RawMessage{
		ID:     uuid.NewString(),
		Sender: Address{Email: normalizeAddress(envelopeFrom)},
		Date:   time.Now().UTC(),
	}

	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil && !date.IsZero() {
		msg.Date = date
	}
	if id, err := reader.Header.MessageID(); err == nil {
		msg.MessageID = id
	}
	// 身份取自 From 头，MAIL FROM 往往是每封不同的退信地址
	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		if email := normalizeAddress(fromList[0].Address); email != "" {
			msg.Sender = Address{Name: strings.TrimSpace(fromList[0].Name), Email: email}
		}
	}

	msg.ClientSignature = reader.Header.Get("User-Agent")
	if msg.ClientSignature == "" {
		msg.ClientSignature = reader.Header.Get("X-Mailer")
	}

	for _, to := range envelopeTo {
		if addr := normalizeAddress(to); addr != "" {
			msg.Receivers = append(msg.Receivers, Address{Email: addr})
		}
	}
	if len(msg.Receivers) == 0 {
		if toList, err := reader.Header.AddressList("To"); err == nil {
			for _, addr := range toList {
				msg.Receivers = append(msg.Receivers, Address{Name: addr.Name, Email: normalizeAddress(addr.Address)})
			}
		}
	}

	text, htmlBody, err := readBodies(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if text == "" && htmlBody != "" {
		text = stripHTML(htmlBody)
	}
	msg.Body = text

	return msg, nil
}

// readBodies 读取所有内联部分，附件忽略
func readBodies(reader *mail.Reader) (text, htmlBody string, err error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return text, htmlBody, err
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
			text = appendPart(text, string(body))
		case strings.HasPrefix(mediaType, "text/html"):
			htmlBody = appendPart(htmlBody, string(body))
		}
	}
	return text, htmlBody, nil
}

func appendPart(current, next string) string {
	if current == "" {
		return next
	}
	return current + "\n" + next
}

func stripHTML(s string) string {
	s = htmlBreakPattern.ReplaceAllString(s, "\n")
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}
