package main

import "strings"

// badmatch reports whether outgoing chat text must not be sent.
//
// Twitch interprets text starting with '/' or '.' as a chat command, so
// stored responses could otherwise make the bot ban or clear.
func badmatch(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	return text[0] == '/' || text[0] == '.'
}
