package sending

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// MessageData is the variable set exposed to templates for a contact.
func MessageData(c *domain.Contact) map[string]any {
	first := c.ContactName
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return map[string]any{
		"company_name":  c.CompanyName,
		"contact_name":  c.ContactName,
		"first_name":    first,
		"title_role":    c.TitleRole,
		"city":          c.City,
		"province":      c.Province,
		"website":       c.Website,
		"industry_code": c.IndustryCode,
		"tier":          string(c.Tier),
	}
}

// RenderFor resolves the named template for a contact within timeout and
// renders it. A deadline overrun is reported as a resolver failure, never
// as fabricated content.
func RenderFor(ctx context.Context, r TemplateResolver, timeout time.Duration, c *domain.Contact, name string) (subject, body string, err error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t, err := r.Resolve(rctx, c.Tier, c.IndustryCode, name)
	if err != nil {
		return "", "", fmt.Errorf("resolve template %s/%s/%s: %w", c.Tier, c.IndustryCode, name, err)
	}
	subject, body, err = r.Render(t, MessageData(c))
	if err != nil {
		return "", "", fmt.Errorf("render template %s: %w", name, err)
	}
	return subject, body, nil
}

// PixelURL builds the open-tracking URL for a token.
func PixelURL(baseURL, trackingID string) string {
	return strings.TrimRight(baseURL, "/") + "/track/" + trackingID + ".gif"
}

// HTMLBody turns a plain-text body into minimal HTML paragraphs and, when
// pixelURL is set, appends the 1x1 tracking image.
func HTMLBody(text, pixelURL string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if pixelURL != "" {
		fmt.Fprintf(&b, `<img src="%s" width="1" height="1" alt="" style="display:none">`, html.EscapeString(pixelURL))
	}
	b.WriteString("</body></html>")
	return b.String()
}
