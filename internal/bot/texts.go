package bot

// Fixed notices. Users never see anything else.
const (
	TextStart            = "Welcome to Suggestions Bot 👋 \n\nPlease, send your message and we will process your request."
	TextPending          = "Thank you for your suggestion! The admin received it"
	TextUnsupported      = "❌ Format of your message is not supported and it will not be forwarded."
	TextChoose           = "😊Choose what to do with this shit"
	TextNotRegistered    = "❌ This user is not registered in the database"
	TextNoArgs           = "❌Error: argument was not passed"
	TextFailedUnban      = "❌Error: Failed to unban the user"
	TextListOfBanned     = "👨‍🦽The list of banned users"
	TextToUnblock        = "To unblock a user, write the /unblock command to the bot and the user's ID.\nFor example: /unblock 123456789"
	TextInvalidArgs      = "❌Error: Invalid user ID format."
	TextFailedBan        = "❌Ban failed"
	TextBanned           = "✅ User has been successfully banned!"
	TextAlreadyBanned    = "❌ User is already banned!"
	TextUnbanned         = "✅ User has been successfully un-banned!"
	TextEditPrompt       = "Please, enter the new caption"
	TextAlbumLimit       = "❌You can send up to three photos"
	TextAdminStart       = "Welcome, admin 👋"
	TextPosted           = "✅Posted"
	TextCleared          = "✅The chat has been cleared"
	TextNotCleared       = "❌The chat or db has not been cleared, please contact technical support"
	TextThrottling       = "❌You can't send an offer yet, try again later\n(the delay from the previous suggestion is 5 minutes)"
	TextEcho             = "❌ I don't understand you"
	TextUnsupportedQuery = "Unsupported action"
)

// Reply keyboard labels of the moderator.
const (
	ButtonClearChat = "❌ Clear chat"
	ButtonBanlist   = "👨‍🦽 Banlist"
	ButtonOK        = "✅OK"
)
