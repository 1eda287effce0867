package dialogue

// User-facing texts.
const (
	msgWelcome          = "Welcome! I prepare structured company analyses: market, competitors and synergies."
	msgUnrecognized     = "Sorry, I did not understand that."
	msgEnterQuery       = "Topic: %s. Model: %s.\nSend your request, for example \"Analyze Acme Corp\". Use /topic or /model to change them."
	msgChooseTopic      = "Choose an analysis topic:"
	msgChooseModel      = "Choose a model:"
	msgTopicSet         = "Topic set to %s."
	msgModelSet         = "Model set to %s."
	msgAttachChoice     = "Do you want to attach a file with additional context?"
	msgUpload           = "Send the file. Supported formats: %s."
	msgUnsupported      = "Files of type %s are not supported. Supported formats: %s."
	msgExtractFailed    = "I could not read that file. Send another one or continue without a file."
	msgExtractEmpty     = "The file contains no text. Send another one or continue without a file."
	msgFileReceived     = "File %s received."
	msgRunning          = "Working on the analysis. This can take a few minutes."
	msgBusy             = "The analysis is still running, please wait."
	msgSummary          = "Summary for %s:\n\n%s"
	msgPartial          = "Some sections could not be generated: %s. You can regenerate the analysis."
	msgChooseAction     = "What would you like to do next?"
	msgAskQuestion      = "Type your question."
	msgAnswer           = "Answer:\n\n%s"
	msgChooseDelivery   = "How do you want to receive the report?"
	msgEnterEmail       = "Send the email address the report should go to."
	msgBadEmail         = "That does not look like an email address. Please try again."
	msgEmailSent        = "The report was sent to %s."
	msgEmailFailed      = "The report could not be emailed. You can download it instead."
	msgReportCaption    = "Analysis report: %s"
	msgEmailSubject     = "Analysis report: %s"
	msgEmailBody        = "The analysis report for %s is attached.\n\nSummary:\n\n%s\n"
	msgFinalChoice      = "Anything else?"
	msgNewAnalysis      = "Let's start a new analysis."
	msgFarewell         = "Thank you! The conversation is closed. Send a new request whenever you like."
	msgGenericFailure   = "Sorry, something went wrong while processing your request. Please try again later."
	msgTokenLimit       = "The request is too long for the selected model. Shorten it or attach a smaller file."
	msgTokenLimitN      = "The request is too long for the selected model (limit %d tokens). Shorten it or attach a smaller file."
	msgRateLimit        = "The model is overloaded right now. Please try again in a minute."
	msgTimeout          = "The analysis took too long and was stopped. Please try again."
	msgAccessDenied     = "You do not have access to this bot."
	msgAccessRequested  = "An access request has been sent to the administrators."
	msgAccessPending    = "Your access has not been confirmed yet."
	msgAuthUnavailable  = "The authorization service is unavailable right now. Please try again later."
	msgAccessGranted    = "Access granted. Send /start to begin."
	msgAccessDeclined   = "Your access request was declined."
	msgAccessRequest    = "Access request from %s."
	msgGranted          = "Access granted to %s."
	msgGrantUnsupported = "The user directory is read-only. Add %s to the configuration to grant access."
	msgDeclined         = "Access request from %s declined."
	msgAdminOnly        = "This command is for administrators only."
	msgCommandNotNow    = "Finish the current step first, or send /reset."
	msgChoosePrompt     = "Choose the prompt to replace:"
	msgUploadPrompt     = "Send a .txt file with the new text for %s."
	msgNeedTxt          = "Please send a .txt file."
	msgPromptEmpty      = "The file is empty. Please send a .txt file with the prompt text."
	msgPromptUpdated    = "Prompt %s updated."
	msgNewTopicName     = "Send the technical name of the new topic (latin letters and digits only)."
	msgNewTopicDisplay  = "Send the display name of the topic."
	msgNewTopicUpload   = "Send the system prompt of the topic as a .txt file."
	msgTopicExists      = "Topic %s already exists."
	msgTopicAdded       = "Topic %s added."
	msgNoPrompts        = "There are no prompts to export."
	msgHelp             = "Send a request such as \"Analyze Acme Corp\" and follow the buttons.\n\n/start, /reset: start over\n/topic: choose the analysis topic\n/model: choose the model\n/help: this message"
	msgHelpAdmin        = "\n\nAdministrators:\n/update_prompts: replace a prompt\n/new_topic: add a topic\n/load_prompts: export all prompts"
)

// Button labels.
const (
	lblAttachFile  = "Attach file"
	lblNoFile      = "No file"
	lblRegenerate  = "Regenerate"
	lblAsk         = "Ask a question"
	lblGetReport   = "Get report"
	lblFinish      = "Finish"
	lblDownload    = "Download"
	lblEmail       = "Send by email"
	lblBack        = "Back"
	lblMenu        = "Back to menu"
	lblNewAnalysis = "New analysis"
	lblEnd         = "End conversation"
	lblRetryAuth   = "Try again"
	lblApprove     = "Approve"
	lblDecline     = "Decline"
	lblCancel      = "Cancel"
)
