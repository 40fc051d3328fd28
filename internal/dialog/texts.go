package dialog

// Button payloads. They travel as Telegram callback data and must stay stable.
const (
	PayloadStartDialog     = "start_dialog"
	PayloadStartDiary      = "start_diary"
	PayloadHelped          = "helped"
	PayloadNotHelped       = "not_helped"
	PayloadPartiallyHelped = "partially_helped"
	PayloadSubscribe       = "subscribe"
)

// Payloads lists every button payload the controller understands.
var Payloads = []string{
	PayloadStartDialog,
	PayloadStartDiary,
	PayloadHelped,
	PayloadNotHelped,
	PayloadPartiallyHelped,
	PayloadSubscribe,
}

const (
	TextWelcome          = "Hi! I'm a support bot. I'm here to listen. What would you like to do?"
	TextOpeningPrompt    = "What's troubling you? Tell me more about it."
	TextDiaryUnavailable = "The feelings diary is not available yet. It's coming soon."
	TextMenuHint         = "Please choose one of the options below to begin."
	TextCoping           = "Here is a technique that may help: try to relax by taking a slow, deep breath in and out, focusing only on your breathing. When you're done, press one of the buttons below."
	TextFeedbackHint     = "Did the technique help? Please choose one of the buttons below."
	TextUpsell           = "I'm glad I could help! I can offer a subscription with unlimited conversations, access to psychoanalysis and the \"Feelings diary\"."
	TextNotHelped        = "I'm sorry that didn't help. Let's try something else. What exactly felt difficult?"
	TextPartiallyHelped  = "Glad it helped a little. We can keep working on it. What worries you most right now?"
	TextSubscribed       = "Your subscription is active! You now have unlimited chat, psychoanalysis and the \"Feelings diary\"."
	TextApology          = "I can't respond right now, please try again later."
)

var (
	menuButtons = [][]Button{
		{{Label: "💬 Start a dialog", Payload: PayloadStartDialog}},
		{{Label: "📔 Feelings diary", Payload: PayloadStartDiary}},
	}
	feedbackButtons = [][]Button{
		{{Label: "✅ It helped", Payload: PayloadHelped}},
		{{Label: "❌ It didn't help", Payload: PayloadNotHelped}},
		{{Label: "🤔 A little better", Payload: PayloadPartiallyHelped}},
	}
	subscribeButtons = [][]Button{
		{{Label: "💳 Subscribe", Payload: PayloadSubscribe}},
	}
)
