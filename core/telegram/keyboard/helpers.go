// Package keyboard builds telebot inline keyboards from plain button rows.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. Key becomes the callback unique, so the
// press arrives at the handler registered under Key.
type Button struct {
	Label string
	Key   string
}

// Inline lays rows out top to bottom. Empty rows are dropped; nil means
// no keyboard at all.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *markup.Data(b.Label, b.Key).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
