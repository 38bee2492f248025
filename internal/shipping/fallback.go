package shipping

import "github.com/mapleandrye/backend-bakeshop/internal/pricing"

// FallbackRates synthesizes flat-rate quotes from the parcel weight when the
// carrier cannot be reached. Ground is $2.50/lb with a $5.95 floor, priority
// adds $5, express adds $15. Already sorted ascending.
func FallbackRates(weightLb float64) []Rate {
	base := pricing.FromDollars(weightLb * 2.50)
	if floor := pricing.FromDollars(5.95); base < floor {
		base = floor
	}
	return []Rate{
		{
			MailClass:   MailClassGround,
			ProductName: "USPS Ground Advantage",
			TotalPrice:  base,
		},
		{
			MailClass:   MailClassPriority,
			ProductName: "Priority Mail",
			TotalPrice:  base + pricing.FromDollars(5),
		},
		{
			MailClass:   MailClassExpress,
			ProductName: "Priority Mail Express",
			TotalPrice:  base + pricing.FromDollars(15),
		},
	}
}
