package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort_Toggle(t *testing.T) {
	s := Sort{Key: "createdAt", Direction: Descending}

	s = s.Toggle("a")
	assert.Equal(t, Sort{Key: "a", Direction: Ascending}, s)

	s = s.Toggle("a")
	assert.Equal(t, Sort{Key: "a", Direction: Descending}, s)

	s = s.Toggle("a")
	assert.Equal(t, Sort{Key: "a", Direction: Ascending}, s)
}

func TestSort_Toggle_SwitchingKeysResetsToAscending(t *testing.T) {
	s := Sort{Key: "a", Direction: Ascending}.Toggle("a")
	require.Equal(t, Descending, s.Direction)

	s = s.Toggle("b")
	assert.Equal(t, Sort{Key: "b", Direction: Ascending}, s)
}

func TestSort_Indicator(t *testing.T) {
	s := Sort{Key: "name", Direction: Ascending}
	assert.Equal(t, "↑", s.Indicator("name"))
	assert.Equal(t, "", s.Indicator("status"))
	assert.Equal(t, "↓", s.Toggle("name").Indicator("name"))
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in      string
		want    Sort
		wantErr bool
	}{
		{in: "createdAt:DESC", want: Sort{Key: "createdAt", Direction: Descending}},
		{in: "name:asc", want: Sort{Key: "name", Direction: Ascending}},
		{in: "status", want: Sort{Key: "status", Direction: Ascending}},
		{in: "owner.firstName:DESC", want: Sort{Key: "owner.firstName", Direction: Descending}},
		{in: ":DESC", wantErr: true},
		{in: "name:sideways", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSort(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}
