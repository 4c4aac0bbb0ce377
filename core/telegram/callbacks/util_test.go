package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name           string
		cb             *tele.Callback
		unique, payload string
	}{
		{"nil", nil, "", ""},
		{"raw", &tele.Callback{Data: "approve_10_3"}, "approve_10_3", ""},
		{"encoded", &tele.Callback{Data: "\fmenu|open"}, "menu", "open"},
		{"resolved", &tele.Callback{Unique: "menu", Data: "open"}, "menu", "open"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, p := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.unique, u)
			assert.Equal(t, tc.payload, p)
		})
	}
}
