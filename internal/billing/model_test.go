package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

func TestFinalTotal(t *testing.T) {
	items := []ItemInput{
		{ServiceID: "svc-a", Quantity: 2, UnitCents: 500},
		{ServiceID: "svc-b", Quantity: 1, UnitCents: 1000},
	}

	assert.Equal(t, int64(1800), FinalTotal(items, 200, nil), "2*500 + 1*1000 - 200")
	assert.Equal(t, int64(2000), FinalTotal(items, 0, nil))
	assert.Equal(t, int64(0), FinalTotal(items, 5000, nil), "discount clamps at zero, never negative")

	custom := int64(1500)
	assert.Equal(t, int64(1200), FinalTotal(items, 300, &custom), "custom total replaces the item sum")

	zero := int64(0)
	assert.Equal(t, int64(0), FinalTotal(items, 100, &zero))

	assert.Equal(t, int64(0), FinalTotal(nil, 0, nil), "no items, no custom total")
}

func TestValidateItems(t *testing.T) {
	ok := []ItemInput{{ServiceID: "svc", Quantity: 1, UnitCents: 0}}
	assert.NoError(t, ValidateItems(ok))
	assert.NoError(t, ValidateItems(nil))

	cases := []struct {
		name  string
		items []ItemInput
	}{
		{"missing service", []ItemInput{{Quantity: 1, UnitCents: 100}}},
		{"zero quantity", []ItemInput{{ServiceID: "svc", Quantity: 0, UnitCents: 100}}},
		{"negative quantity", []ItemInput{{ServiceID: "svc", Quantity: -2, UnitCents: 100}}},
		{"negative cost", []ItemInput{{ServiceID: "svc", Quantity: 1, UnitCents: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateItems(tc.items)
			assert.True(t, faults.IsCode(err, faults.CodeValidation))
		})
	}
}
