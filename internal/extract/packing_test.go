package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyPacking(t *testing.T) {
	t.Parallel()

	type want struct {
		weight   bool
		volume   bool
		quantity *int
	}
	qty := func(n int) *int { return &n }

	tests := []struct {
		packing string
		want    want
	}{
		{"400г", want{weight: true}},
		{"400 гр", want{weight: true}},
		{"1,5 кг", want{weight: true}},
		{"2kg", want{weight: true}},
		{"250 g", want{weight: true}},
		{"500мл", want{volume: true}},
		{"1 л", want{volume: true}},
		{"750ml", want{volume: true}},
		{"2 L", want{volume: true}},
		{"12шт", want{quantity: qty(12)}},
		{"3 шт.", want{quantity: qty(3)}},
		{"24 pcs", want{quantity: qty(24)}},
		{"шт", want{}},
		{"10 уп", want{}},
		{"100", want{}},
		{"", want{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.packing, func(t *testing.T) {
			t.Parallel()
			p := tt.packing
			got := ClassifyPacking(&p)

			if tt.want.weight {
				require.NotNil(t, got.Weight)
				require.Equal(t, p, *got.Weight)
			} else {
				require.Nil(t, got.Weight)
			}
			if tt.want.volume {
				require.NotNil(t, got.Volume)
				require.Equal(t, p, *got.Volume)
			} else {
				require.Nil(t, got.Volume)
			}
			require.Equal(t, tt.want.quantity, got.Quantity)
		})
	}
}

func TestClassifyPackingNil(t *testing.T) {
	t.Parallel()

	require.Equal(t, Packing{}, ClassifyPacking(nil))
}
