package agent

// User-facing copy. Failures are always phrased as next-action prompts, never
// raw error text.
const (
	replyWelcome = "Welcome! Let's get to know each other. 👋\n\n" +
		"Please record a voice message introducing yourself with:\n" +
		"'Hi, my name is [your full name]'\n\n" +
		"Feel free to include any nicknames you go by!"

	replyNeedVoiceIntro = "I'd love to hear your voice! Please record a voice message " +
		"introducing yourself with 'Hi, my name is [your full name]'."

	replyNameConfirm = "I heard your introduction! Is this correct?\n\n%s\n\n" +
		"Please reply with 'yes' or 'no'."

	replyYesNo = "Please reply with 'yes' or 'no'."

	replyNameCorrection = "I apologize! Please type your correct full name as you spoke it in the audio."

	replyNameFallback = "I'm having trouble understanding the audio. " +
		"Please type your full name instead."

	replyTruthLieIntro = "Great! Now let's play Two Truths and a Lie!\n\n" +
		"Record a voice message with three statements - two true and one false.\n" +
		"Make them interesting! I'll try to guess which one is the lie."

	replyTruthLieCorrected = "Thanks for the correction! Now let's play Two Truths and a Lie!\n\n" +
		"Record a voice message with three statements - two true and one false."

	replyNeedVoiceStatements = "Record a voice message with your three statements - " +
		"two true and one false."

	replyTruthLieConfirm = "Here's my analysis of your statements:\n\n%s\n\n" +
		"Did I guess correctly? Reply with 'yes' or 'no'."

	replyTryAgain = "Sorry, I couldn't process that. Please try again."

	replyTruthLieGiveUp = "You've stumped me! I couldn't work out your statements this time.\n" +
		"Send /start whenever you'd like to try again."

	replyClosingFallback = "Amazing! I've learned so much about you through our conversation.\n\n" +
		"Would you like to share this experience with a friend? They might enjoy it too!"

	replyStopped = "Conversation stopped. Send /start to begin a new one."

	replyNoConversation = "No active conversation to stop. Send /start to begin."

	replyDone = "We're all done here! Send /reset if you'd like to start over."

	replyAbandonedHint = "This conversation has ended. Send /start to begin again."
)
