package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const keyCounters = "yc.counters"

// Counters describe what a handler sent back for one update.
type Counters struct {
	Messages int
	Keyboard bool
	Actions  int
}

// Read returns the counters collected so far; zero when Count is not installed.
func Read(c tele.Context) Counters {
	if p, ok := c.Get(keyCounters).(*Counters); ok {
		return *p
	}
	return Counters{}
}

// countingContext records successful outbound calls made through it.
type countingContext struct {
	tele.Context
	n *Counters
}

func (c countingContext) sent(err error, opts []any) error {
	if err != nil {
		return err
	}
	c.n.Messages++
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			c.n.Keyboard = c.n.Keyboard || v != nil
		case *tele.SendOptions:
			c.n.Keyboard = c.n.Keyboard || (v != nil && v.ReplyMarkup != nil)
		}
	}
	return nil
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.sent(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.sent(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.sent(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.sent(c.Context.EditOrSend(what, opts...), opts)
}

func (c countingContext) Notify(action tele.ChatAction) error {
	err := c.Context.Notify(action)
	if err == nil {
		c.n.Actions++
	}
	return err
}

// Count wraps the context so the handler summary can report replies.
func Count(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		n := &Counters{}
		c.Set(keyCounters, n)
		return next(countingContext{Context: c, n: n})
	}
}
