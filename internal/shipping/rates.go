package shipping

import (
	"sort"

	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
)

// MailClass identifies a carrier service tier.
type MailClass string

const (
	MailClassExpress    MailClass = "PRIORITY_MAIL_EXPRESS"
	MailClassPriority   MailClass = "PRIORITY_MAIL"
	MailClassGround     MailClass = "USPS_GROUND_ADVANTAGE"
	MailClassFirstClass MailClass = "FIRST-CLASS_PACKAGE_SERVICE"
)

// DefaultMailClasses is the ordered set of service tiers quoted for a
// destination. Order controls the stagger offset of the outbound calls, not
// the order of the returned rates.
func DefaultMailClasses() []MailClass {
	return []MailClass{MailClassExpress, MailClassPriority, MailClassGround, MailClassFirstClass}
}

// Commitment carries the carrier's delivery promise for a rate.
type Commitment struct {
	Name                 string `json:"name"`
	ScheduleDeliveryDate string `json:"scheduleDeliveryDate,omitempty"`
	GuaranteedDelivery   bool   `json:"guaranteedDelivery"`
}

// Rate is a single normalized shipping quote.
type Rate struct {
	MailClass         MailClass     `json:"mailClass"`
	ProductName       string        `json:"productName"`
	ProductDefinition string        `json:"productDefinition,omitempty"`
	TotalPrice        pricing.Money `json:"totalPrice"`
	Zone              string        `json:"zone,omitempty"`
	SKU               string        `json:"sku,omitempty"`
	Commitment        *Commitment   `json:"commitment,omitempty"`
}

// Dedupe collapses duplicate quotes, keeping the first occurrence. Two rates
// are duplicates when they share a mail class, or when they land on the same
// price with the same product definition (carriers occasionally return the
// same product under two class aliases).
func Dedupe(rates []Rate) []Rate {
	out := make([]Rate, 0, len(rates))
	seenClass := make(map[MailClass]bool, len(rates))
	type priceKey struct {
		price      pricing.Money
		definition string
	}
	seenPrice := make(map[priceKey]bool, len(rates))
	for _, rate := range rates {
		if seenClass[rate.MailClass] {
			continue
		}
		if rate.ProductDefinition != "" {
			key := priceKey{price: rate.TotalPrice, definition: rate.ProductDefinition}
			if seenPrice[key] {
				continue
			}
			seenPrice[key] = true
		}
		seenClass[rate.MailClass] = true
		out = append(out, rate)
	}
	return out
}

// SortByPrice orders rates ascending by total price, stable with respect to
// arrival order for equal prices.
func SortByPrice(rates []Rate) {
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].TotalPrice < rates[j].TotalPrice
	})
}
