package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mapleandrye/backend-bakeshop/internal/order"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
)

// SMTPMailer sends transactional mail over plain SMTP with optional auth.
type SMTPMailer struct {
	Addr     string
	From     string
	Username string
	Password string
	Host     string
}

// Send implements common.EmailSender.
func (m SMTPMailer) Send(to, subject, html string) error {
	if m.Addr == "" || m.From == "" {
		return fmt.Errorf("notify: smtp not configured")
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		html,
	}, "\r\n")

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	return smtp.SendMail(m.Addr, auth, m.From, []string{to}, []byte(msg))
}

// ConfirmationSubject is the subject line for paid-order confirmations.
func ConfirmationSubject(o *order.Order) string {
	return fmt.Sprintf("Your order %s is confirmed", o.Reference)
}

// ConfirmationBody renders the order confirmation email. Plain HTML tables,
// no template engine: the layout is fixed and inlined styles travel best
// through mail clients.
func ConfirmationBody(o *order.Order) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>Thanks for your order, %s!</h2>", htmlEscape(firstName(o.Name)))
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> placed on %s.</p>", htmlEscape(o.Reference), o.CreatedAt.Format("January 2, 2006"))

	b.WriteString(`<table cellpadding="6" cellspacing="0" border="0">`)
	b.WriteString("<tr><th align=\"left\">Item</th><th align=\"right\">Qty</th><th align=\"right\">Price</th></tr>")
	for _, line := range o.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td align=\"right\">%d</td><td align=\"right\">$%.2f</td></tr>",
			htmlEscape(line.Name), line.Qty, pricing.Dollars(line.Subtotal()))
	}
	b.WriteString("</table>")

	fmt.Fprintf(&b, "<p>Subtotal: $%.2f<br>", pricing.Dollars(o.Pricing.Subtotal))
	if o.Pricing.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -$%.2f<br>", pricing.Dollars(o.Pricing.Discount))
	}
	fmt.Fprintf(&b, "Tax: $%.2f<br>", pricing.Dollars(o.Pricing.Tax))
	fmt.Fprintf(&b, "Shipping: $%.2f<br>", pricing.Dollars(o.Pricing.Shipping))
	fmt.Fprintf(&b, "<strong>Total: $%.2f %s</strong></p>", pricing.Dollars(o.Pricing.Total), o.Currency)

	if o.ShippingRate != nil {
		fmt.Fprintf(&b, "<p>Shipping via %s", htmlEscape(o.ShippingRate.ProductName))
		if o.ShippingRate.Commitment != nil && o.ShippingRate.Commitment.ScheduleDeliveryDate != "" {
			fmt.Fprintf(&b, ", expected by %s", htmlEscape(o.ShippingRate.Commitment.ScheduleDeliveryDate))
		}
		b.WriteString(".</p>")
	}
	b.WriteString("<p>We'll let you know when it leaves the oven.</p>")
	b.WriteString("</body></html>")
	return b.String()
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "friend"
	}
	if idx := strings.IndexByte(full, ' '); idx > 0 {
		return full[:idx]
	}
	return full
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
