package shipping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateDimensionsPicksSmallestBox(t *testing.T) {
	t.Parallel()

	cases := []struct {
		items  int
		length float64
	}{
		{items: 1, length: 6},
		{items: 2, length: 6},
		{items: 3, length: 8},
		{items: 6, length: 8},
		{items: 7, length: 10},
		{items: 12, length: 10},
		{items: 13, length: 12},
		{items: 24, length: 12},
		{items: 100, length: 12},
	}
	for _, tc := range cases {
		dims := CalculateDimensions(tc.items)
		require.Equal(t, tc.length, dims.Length, "items=%d", tc.items)
	}
}

func TestCalculateDimensionsWeight(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.5, CalculateDimensions(1).WeightLb)
	require.Equal(t, 3.0, CalculateDimensions(6).WeightLb)
	// zero items still produces the carrier's minimum billable weight
	require.Equal(t, 0.1, CalculateDimensions(0).WeightLb)
}

func TestFallbackRatesShapeAndOrder(t *testing.T) {
	t.Parallel()

	rates := FallbackRates(1.0)
	require.Len(t, rates, 3)
	require.Equal(t, MailClassGround, rates[0].MailClass)
	require.Equal(t, MailClassPriority, rates[1].MailClass)
	require.Equal(t, MailClassExpress, rates[2].MailClass)
	// 1 lb is under the floor, so ground is $5.95
	require.EqualValues(t, 595, rates[0].TotalPrice)
	require.EqualValues(t, 1095, rates[1].TotalPrice)
	require.EqualValues(t, 2095, rates[2].TotalPrice)
}

func TestFallbackRatesScaleWithWeight(t *testing.T) {
	t.Parallel()

	rates := FallbackRates(4.0)
	// 4 lb * $2.50 clears the floor
	require.EqualValues(t, 1000, rates[0].TotalPrice)
	require.EqualValues(t, 1500, rates[1].TotalPrice)
	require.EqualValues(t, 2500, rates[2].TotalPrice)
}

func TestDedupeCollapsesClassAndPriceAliases(t *testing.T) {
	t.Parallel()

	rates := []Rate{
		{MailClass: MailClassGround, TotalPrice: 595, ProductDefinition: "ground advantage"},
		{MailClass: MailClassGround, TotalPrice: 610, ProductDefinition: "ground advantage retail"},
		{MailClass: MailClassFirstClass, TotalPrice: 595, ProductDefinition: "ground advantage"},
		{MailClass: MailClassPriority, TotalPrice: 1095, ProductDefinition: "priority"},
	}
	out := Dedupe(rates)
	require.Len(t, out, 2)
	require.Equal(t, MailClassGround, out[0].MailClass)
	require.Equal(t, MailClassPriority, out[1].MailClass)
}

func TestSortByPrice(t *testing.T) {
	t.Parallel()

	rates := []Rate{
		{MailClass: MailClassExpress, TotalPrice: 2095},
		{MailClass: MailClassGround, TotalPrice: 595},
		{MailClass: MailClassPriority, TotalPrice: 1095},
	}
	SortByPrice(rates)
	require.EqualValues(t, 595, rates[0].TotalPrice)
	require.EqualValues(t, 1095, rates[1].TotalPrice)
	require.EqualValues(t, 2095, rates[2].TotalPrice)
}
