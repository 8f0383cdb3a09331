package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	cases := map[string]struct {
		in   []string
		want []string
	}{
		"nil stays nil":            {in: nil, want: nil},
		"empty stays empty":        {in: []string{}, want: []string{}},
		"only blanks":              {in: []string{"", "  "}, want: []string{}},
		"scope list":               {in: []string{"openid", " accounts", "openid ", "payments"}, want: []string{"openid", "accounts", "payments"}},
		"broker list from env":     {in: []string{" kafka-1:9092", "kafka-2:9092 ", "", "kafka-1:9092"}, want: []string{"kafka-1:9092", "kafka-2:9092"}},
		"client ids are case-kept": {in: []string{"TPP-1", "tpp-1"}, want: []string{"TPP-1", "tpp-1"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DedupeAndTrim(tc.in))
		})
	}
}
