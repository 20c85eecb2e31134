package bridge

// Mention is one @handle found in a message. Interrupt marks the
// @handle! form, which asks the target to stop what it is doing.
type Mention struct {
	Handle    string
	Interrupt bool
}

// isHandleChar reports whether c is valid inside a handle.
func isHandleChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}

// isEmailPrefixChar reports whether c can end the local part of an
// email address. An @ preceded by such a character is likely an email,
// not a mention.
func isEmailPrefixChar(c byte) bool {
	return isHandleChar(c) || c == '.' || c == '+'
}

// ExtractMentions scans message for @handles, left to right, skipping
// email addresses and suppressing duplicate handles. The first
// occurrence of a handle decides its interrupt flag.
func ExtractMentions(message string) []Mention {
	var mentions []Mention
	seen := make(map[string]bool)

	for i := 0; i < len(message); i++ {
		if message[i] != '@' {
			continue
		}
		if i > 0 && isEmailPrefixChar(message[i-1]) {
			continue
		}

		start := i + 1
		end := start
		for end < len(message) && isHandleChar(message[end]) {
			end++
		}
		if end == start {
			continue
		}

		handle := message[start:end]
		i = end - 1
		if seen[handle] {
			continue
		}
		seen[handle] = true

		mentions = append(mentions, Mention{
			Handle:    handle,
			Interrupt: end < len(message) && message[end] == '!',
		})
	}
	return mentions
}
