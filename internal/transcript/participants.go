package transcript

import (
	"regexp"
	"sort"
)

// speakerPattern matches lines such as
// "2025-09-25 08:26:00 <@username:server.tld> Message content"
var speakerPattern = regexp.MustCompile(`\d{4}-\d\d-\d\d \d\d:\d\d:\d\d <(@[^>]+)> `)

// ExtractParticipants returns the sorted, unique Matrix IDs that spoke in the
// meeting log, minus the ignored ones.
func ExtractParticipants(text string, ignored ...string) []string {
	seen := make(map[string]struct{})
	for _, match := range speakerPattern.FindAllStringSubmatch(text, -1) {
		seen[match[1]] = struct{}{}
	}

	for _, id := range ignored {
		delete(seen, id)
	}

	participants := make([]string, 0, len(seen))
	for id := range seen {
		participants = append(participants, id)
	}
	sort.Strings(participants)

	return participants
}
