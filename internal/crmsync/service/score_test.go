package service

import (
	"testing"

	"conversa_backend/internal/crmsync/domain"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name string
		in   domain.UpsertInput
		want int
	}{
		{
			name: "phone only",
			in:   domain.UpsertInput{Phone: "+5492901234567"},
			want: 20,
		},
		{
			name: "first name only adds ten",
			in:   domain.UpsertInput{Phone: "+5492901234567", FullName: "Laura"},
			want: 30,
		},
		{
			name: "full name adds twenty",
			in:   domain.UpsertInput{Phone: "+5492901234567", FullName: "Laura Gómez"},
			want: 40,
		},
		{
			name: "portal channel bonus",
			in: domain.UpsertInput{
				Phone:         "+5492901234567",
				FullName:      "Laura Gómez",
				ChannelOrigin: "finca_raiz",
			},
			want: 65,
		},
		{
			name: "direct whatsapp adds nothing",
			in: domain.UpsertInput{
				Phone:         "+5492901234567",
				ChannelOrigin: "whatsapp_directo",
			},
			want: 20,
		},
		{
			name: "unknown channel adds nothing",
			in: domain.UpsertInput{
				Phone:         "+5492901234567",
				ChannelOrigin: "radio",
			},
			want: 20,
		},
		{
			name: "fully qualified lead caps at one hundred",
			in: domain.UpsertInput{
				Phone:         "+5492901234567",
				FullName:      "Laura Gómez",
				ChannelOrigin: "finca_raiz",
				PropertyType:  "apartamento",
				Location:      "Ushuaia",
				Budget:        "300 millones",
				Features:      "3 habitaciones",
				PropertyCode:  "APT-114",
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeScore(tt.in); got != tt.want {
				t.Errorf("ComputeScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeScoreIsDeterministic(t *testing.T) {
	in := domain.UpsertInput{
		Phone:         "+5492901234567",
		FullName:      "Laura Gómez",
		ChannelOrigin: "instagram",
		Location:      "Ushuaia",
	}

	first := ComputeScore(in)
	for i := 0; i < 10; i++ {
		if got := ComputeScore(in); got != first {
			t.Fatalf("score changed between calls: %d then %d", first, got)
		}
	}
}

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"", "", ""},
		{"   ", "", ""},
		{"Laura", "Laura", ""},
		{"Laura Gómez", "Laura", "Gómez"},
		{"Laura María Gómez Ríos", "Laura", "María Gómez Ríos"},
		{"  Laura   Gómez  ", "Laura", "Gómez"},
	}

	for _, tt := range tests {
		first, last := SplitFullName(tt.full)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitFullName(%q) = (%q, %q), want (%q, %q)",
				tt.full, first, last, tt.first, tt.last)
		}
	}
}
