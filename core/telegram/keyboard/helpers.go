package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button carrying a raw callback payload.
type InlineBtn struct {
	Text string
	Data string
}

// Btn is shorthand for an InlineBtn literal.
func Btn(text, data string) InlineBtn {
	return InlineBtn{Text: text, Data: data}
}

// InlineButtons builds an inline keyboard where each provided button is placed on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn. Empty rows are skipped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// InlineButtonsNPerRow splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, it behaves like InlineButtons (one per row).
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	if n <= 1 {
		return InlineButtons(buttons)
	}
	var rows [][]InlineBtn
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return InlineButtonsRows(rows...)
}

// WithFooter appends one full-width row (typically "back to menu") to markup.
func WithFooter(markup *tele.ReplyMarkup, footer ...InlineBtn) *tele.ReplyMarkup {
	if markup == nil {
		markup = &tele.ReplyMarkup{}
	}
	if len(footer) == 0 {
		return markup
	}
	row := make([]tele.InlineButton, len(footer))
	for i, btn := range footer {
		row[i] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
	}
	markup.InlineKeyboard = append(markup.InlineKeyboard, row)
	return markup
}

// HasButtons reports whether markup renders at least one button.
func HasButtons(markup *tele.ReplyMarkup) bool {
	if markup == nil {
		return false
	}
	for _, row := range markup.InlineKeyboard {
		if len(row) > 0 {
			return true
		}
	}
	return false
}
