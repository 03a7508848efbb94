package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStreet(t *testing.T) {
	tests := []struct {
		in, line1, line2 string
	}{
		{"Main St 1", "Main St 1", ""},
		{"Main St 1, Apt 4", "Main St 1", "Apt 4"},
		{"  Main St 1 ,  Apt 4, Back  ", "Main St 1", "Apt 4, Back"},
		{"Main St 1,Apt 4", "Main St 1,Apt 4", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		l1, l2 := SplitStreet(tt.in)
		assert.Equal(t, tt.line1, l1, tt.in)
		assert.Equal(t, tt.line2, l2, tt.in)
	}
}

func TestEntryStreet(t *testing.T) {
	assert.Equal(t, "Main St 1, Apt 4", Entry{AddressLine1: "Main St 1", AddressLine2: "Apt 4"}.Street())
	assert.Equal(t, "Main St 1", Entry{AddressLine1: "Main St 1"}.Street())
}
