package receipt

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/zonecrest/lottery/internal/model"
)

// Parser 收据码解析器，纯函数式，不访问网络和状态
type Parser struct {
	tokenPattern *regexp.Regexp
	urlPrefix    string
}

// NewParser 创建收据码解析器
func NewParser(tokenPattern, urlPrefix string) (*Parser, error) {
	re, err := regexp.Compile(tokenPattern)
	if err != nil {
		return nil, fmt.Errorf("编译收据码正则表达式失败: %w", err)
	}

	return &Parser{
		tokenPattern: re,
		urlPrefix:    urlPrefix,
	}, nil
}

// Parse 解析原始收据码，按优先级先匹配签名URL变体，再匹配简单码变体
func (p *Parser) Parse(raw string) model.ParsedReceipt {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.ParsedReceipt{Valid: false}
	}

	if strings.HasPrefix(raw, p.urlPrefix) {
		return p.parseURL(raw)
	}

	token := strings.ToUpper(raw)
	if p.tokenPattern.MatchString(token) {
		return model.ParsedReceipt{
			Valid:    true,
			Variant:  model.ReceiptVariantToken,
			UniqueID: token,
		}
	}

	return model.ParsedReceipt{Valid: false}
}

// parseURL 解析签名URL变体；前缀匹配但URL格式非法时按无效处理，不报错
func (p *Parser) parseURL(raw string) model.ParsedReceipt {
	u, err := url.Parse(raw)
	if err != nil {
		return model.ParsedReceipt{Valid: false}
	}

	query := u.Query()
	rcpt := query.Get("rcpt")
	if rcpt == "" {
		// rcpt是URL变体的唯一标识，缺失则无法去重
		return model.ParsedReceipt{Valid: false}
	}

	return model.ParsedReceipt{
		Valid:     true,
		Variant:   model.ReceiptVariantURL,
		UniqueID:  rcpt,
		DeviceID:  query.Get("sdc"),
		Data:      query.Get("data"),
		Timestamp: query.Get("ts"),
		Signature: query.Get("sig"),
	}
}
