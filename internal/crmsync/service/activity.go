package service

import (
	"sort"
	"strings"

	"conversa_backend/internal/crmsync/domain"
)

// Note bodies written by the messaging pipeline carry an author prefix so
// the timeline can be reconstructed later. The emoji is the primary marker,
// the bracketed label the fallback for notes written by hand.
const (
	prefixClient  = "📱"
	prefixBot     = "🤖"
	prefixAdvisor = "👤"

	labelClient  = "[Cliente - WhatsApp]"
	labelBot     = "[Sofía - IA]"
	labelAdvisor = "[Asesor]"
)

// systemBodyPrefixes marks notes the pipeline itself writes without an
// author prefix, such as lifecycle annotations.
var systemBodyPrefixes = []string{"Conversación cerrada"}

// ClassifySender determines who authored a note body from its prefix
// conventions. Prefix-less notes with conversational content were typed by
// a person straight into the CRM and classify as manual_note; system is
// reserved for pipeline annotations and metadata-only rows.
func ClassifySender(body string) domain.Sender {
	head := body
	if len(head) > 40 {
		head = head[:40]
	}

	switch {
	case strings.Contains(head, prefixClient) || strings.Contains(head, labelClient):
		return domain.SenderClient
	case strings.Contains(head, prefixBot) || strings.Contains(head, labelBot):
		return domain.SenderBot
	case strings.Contains(head, prefixAdvisor) || strings.Contains(head, labelAdvisor):
		return domain.SenderAdvisor
	}

	trimmed := strings.TrimSpace(body)
	for _, prefix := range systemBodyPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return domain.SenderSystem
		}
	}
	if CleanNoteBody(body) == "" {
		return domain.SenderSystem
	}
	return domain.SenderManualNote
}

// CleanNoteBody strips the author prefix, HTML the CRM injects, and the
// trailing metadata lines, leaving only the message text.
func CleanNoteBody(body string) string {
	body = strings.NewReplacer("<p>", "", "</p>", "", "<br>", "\n", "<br/>", "\n").Replace(body)

	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" || strings.HasPrefix(trimmed, "📅") {
			continue
		}
		if isPrefixLine(trimmed) {
			continue
		}
		kept = append(kept, line)
	}

	result := strings.TrimSpace(strings.Join(kept, "\n"))
	for _, label := range []string{labelClient, labelBot, labelAdvisor} {
		result = strings.TrimSpace(strings.TrimPrefix(result, label))
	}
	for _, emoji := range []string{prefixClient, prefixBot, prefixAdvisor} {
		result = strings.TrimSpace(strings.TrimPrefix(result, emoji))
	}
	return result
}

// isPrefixLine reports whether a line is an author header rather than
// content: once the markers are removed, nothing but the role name is left.
func isPrefixLine(line string) bool {
	stripped := line
	for _, marker := range []string{
		prefixClient, prefixBot, prefixAdvisor,
		labelClient, labelBot, labelAdvisor,
		"⬅️", "➡️",
	} {
		stripped = strings.ReplaceAll(stripped, marker, "")
	}
	if stripped == line {
		return false
	}

	switch strings.TrimSpace(stripped) {
	case "", "Cliente", "Sofía", "Asesor":
		return true
	}
	return false
}

// buildTimeline converts raw CRM notes into classified activity rows,
// oldest first. System notes with no conversational content are dropped.
func buildTimeline(notes []domain.Note) []domain.ActivityEntry {
	entries := make([]domain.ActivityEntry, 0, len(notes))
	for _, note := range notes {
		sender := ClassifySender(note.Body)
		message := CleanNoteBody(note.Body)
		if message == "" {
			continue
		}
		entries = append(entries, domain.ActivityEntry{
			ID:        note.ID,
			Sender:    sender,
			Message:   message,
			Timestamp: note.Timestamp,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}
