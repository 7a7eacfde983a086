package service

import (
	"strings"

	"conversa_backend/internal/crmsync/domain"
)

// channelBonus weights the acquisition channel. Paid portals convert better
// than organic social traffic, so they score higher.
var channelBonus = map[string]int{
	"finca_raiz":       25,
	"metrocuadrado":    25,
	"mercado_libre":    20,
	"ciencuadras":      20,
	"pagina_web":       15,
	"instagram":        10,
	"facebook":         10,
	"linkedin":         10,
	"youtube":          10,
	"tiktok":           10,
	"whatsapp_directo": 0,
	"desconocido":      0,
}

const maxScore = 100

// ComputeScore derives a 0..100 qualification score from the fields the
// lead has provided so far. It is a pure function of its input so the same
// lead always scores the same.
func ComputeScore(in domain.UpsertInput) int {
	score := 0

	first, last := SplitFullName(in.FullName)
	switch {
	case first != "" && last != "":
		score += 20
	case first != "":
		score += 10
	}

	if strings.TrimSpace(in.Phone) != "" {
		score += 20
	}
	if strings.TrimSpace(in.PropertyType) != "" {
		score += 15
	}
	if strings.TrimSpace(in.Location) != "" {
		score += 15
	}
	if strings.TrimSpace(in.Budget) != "" {
		score += 15
	}
	if strings.TrimSpace(in.Features) != "" {
		score += 15
	}
	if strings.TrimSpace(in.PropertyCode) != "" {
		score += 20
	}

	score += channelBonus[strings.ToLower(strings.TrimSpace(in.ChannelOrigin))]

	if score > maxScore {
		return maxScore
	}
	return score
}

// SplitFullName separates a free-text name into the CRM's firstname and
// lastname fields. Everything after the first word becomes the last name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
