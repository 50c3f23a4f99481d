// Package summary renders meeting summaries for the room and archives them to disk.
package summary

import (
	"fmt"
	"strings"
)

// Reaction keys attached to a posted summary so attendees can validate it
const (
	ReactionAccept = "✅"
	ReactionReject = "❌"
)

const responseTemplate = `Hello %s. Here's a short summary of the meeting:

---
%s
---

Does it look correct to you? If so, please click on ` + ReactionAccept + `, otherwise please click on ` + ReactionReject + `.

(*this bot feature is in alpha stage, thanks for your patience*)
`

// Render formats the reply posted to the room
func Render(participants []string, text string) string {
	return fmt.Sprintf(responseTemplate, strings.Join(participants, ", "), text)
}
