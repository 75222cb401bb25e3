package runtime

// bailCommands is the fixed set of user-typed tokens that abort a
// session. Matching is exact and case-sensitive.
var bailCommands = map[string]bool{
	"exit":   true,
	"/exit":  true,
	"stop":   true,
	"/stop":  true,
	"halt":   true,
	"/halt":  true,
	"/reset": true,
}

// IsBailCommand reports whether the message is a bail command
func IsBailCommand(message string) bool {
	return bailCommands[message]
}
