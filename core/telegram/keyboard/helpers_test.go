package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRowsKeepsRawData(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "Approve", Data: "approve_1_2"}, {Text: "Reject", Data: "reject_1_2"}},
		[]InlineBtn{{Text: "Tagged", Unique: "asg", Data: "7"}},
	)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Equal(t, "approve_1_2", m.InlineKeyboard[0][0].Data)
	assert.Equal(t, "reject_1_2", m.InlineKeyboard[0][1].Data)
	assert.Equal(t, "asg", m.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "7", m.InlineKeyboard[1][0].Data)
}

func TestReplyButtons(t *testing.T) {
	m := ReplyButtons([]string{"📚 Sections", "📊 Statistics"}, []string{"❓ Help"})
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Equal(t, "📊 Statistics", m.ReplyKeyboard[0][1].Text)
	assert.True(t, m.ResizeKeyboard)
}
