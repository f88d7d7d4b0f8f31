package playback

// Status texts shown to the user.
const (
	StatusReady      = "Click the labels to hear explanations"
	StatusStarting   = "Starting explanation..."
	StatusExplaining = "Explaining: %s"
	StatusComplete   = "Explanation complete"
	StatusStopped    = "Explanation stopped"
	StatusNoTokens   = "No explanation tokens available"
	StatusManualDone = "Click the respective labels to hear explanations"
	StatusError      = "Error playing audio"
	StatusAborted    = "Explanation aborted: too many playback errors"
)
