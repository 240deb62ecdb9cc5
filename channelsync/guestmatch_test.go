package channelsync

import (
	"testing"

	"github.com/mmdatafocus/hotel_backend/models"
)

func TestScoreGuestMatch_EmailAndPhone(t *testing.T) {
	existing := models.Guest{
		FirstName: "Aye",
		LastName:  "Chan",
		Email:     "aye.chan@example.com",
		Phone:     "+959123456789",
	}

	cases := []struct {
		name     string
		incoming ChannelGuest
		expected int
	}{
		{
			name:     "email exact only",
			incoming: ChannelGuest{Email: "AYE.CHAN@example.com"},
			expected: 50,
		},
		{
			name:     "phone exact only",
			incoming: ChannelGuest{Phone: "+959123456789"},
			expected: 40,
		},
		{
			name:     "phone suffix only",
			incoming: ChannelGuest{Phone: "09123456789"},
			expected: 40, // normalizes to the same E.164 number
		},
		{
			name:     "no overlap",
			incoming: ChannelGuest{Email: "other@example.com", Phone: "+66811111111"},
			expected: 0,
		},
	}
	for _, tc := range cases {
		if got := ScoreGuestMatch(existing, tc.incoming); got != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, got)
		}
	}
}

func TestScoreGuestMatch_NameOverlap(t *testing.T) {
	existing := models.Guest{FirstName: "Aye", LastName: "Chan"}

	full := ScoreGuestMatch(existing, ChannelGuest{FirstName: "Aye", LastName: "Chan"})
	if full != 20 {
		t.Fatalf("full name overlap expected 20, got %d", full)
	}
	partial := ScoreGuestMatch(existing, ChannelGuest{FirstName: "Aye", LastName: "Win"})
	if partial != 10 {
		t.Fatalf("half overlap expected 10, got %d", partial)
	}
}

func TestScoreGuestMatch_CapsAtHundred(t *testing.T) {
	existing := models.Guest{
		FirstName: "Aye",
		LastName:  "Chan",
		Email:     "aye@example.com",
		Phone:     "+959123456789",
	}
	incoming := ChannelGuest{
		FirstName: "Aye",
		LastName:  "Chan",
		Email:     "aye@example.com",
		Phone:     "+959123456789",
	}
	if got := ScoreGuestMatch(existing, incoming); got != 100 {
		t.Fatalf("expected cap at 100, got %d", got)
	}
}

func TestScoreGuestMatch_NameAloneBelowThreshold(t *testing.T) {
	existing := models.Guest{FirstName: "Aye", LastName: "Chan"}
	incoming := ChannelGuest{FirstName: "Aye", LastName: "Chan"}
	if got := ScoreGuestMatch(existing, incoming); got >= GuestMatchThreshold {
		t.Fatalf("a name match alone must never merge guests: score %d >= %d", got, GuestMatchThreshold)
	}
}

func TestNameOverlapScore_IgnoresTokenOrder(t *testing.T) {
	a := nameOverlapScore("Chan Aye", "Aye Chan")
	if a != 20 {
		t.Fatalf("reordered tokens expected 20, got %d", a)
	}
}
