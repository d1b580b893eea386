package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := []InlineBtn{Btn("1", "a"), Btn("2", "b"), Btn("3", "c")}
	markup := InlineButtonsNPerRow(buttons, 2)

	require.Len(t, markup.InlineKeyboard, 2)
	assert.Len(t, markup.InlineKeyboard[0], 2)
	assert.Len(t, markup.InlineKeyboard[1], 1)
	assert.Equal(t, "c", markup.InlineKeyboard[1][0].Data)
}

func TestWithFooterAndHasButtons(t *testing.T) {
	assert.False(t, HasButtons(nil))
	markup := WithFooter(InlineButtons(nil), Btn("Back", "back_to_main_menu"))

	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "back_to_main_menu", markup.InlineKeyboard[0][0].Data)
	assert.True(t, HasButtons(markup))
}
