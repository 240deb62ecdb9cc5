package channelsync

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/hotel_backend/models"
	"github.com/mmdatafocus/hotel_backend/utils"
	"gorm.io/gorm"
)

// Guest matching for inbound bookings. Scores are summed and capped at 100;
// below the threshold a new guest is created rather than risking a wrong
// merge.
const (
	guestScoreEmailExact  = 50
	guestScorePhoneExact  = 40
	guestScorePhoneSuffix = 30
	guestScoreNameMax     = 20
	guestScoreCap         = 100

	GuestMatchThreshold = 60

	phoneSuffixLength = 7
)

// ScoreGuestMatch rates how likely an existing PMS guest and an incoming
// channel guest are the same person.
func ScoreGuestMatch(existing models.Guest, incoming ChannelGuest) int {
	score := 0

	inEmail := strings.ToLower(strings.TrimSpace(incoming.Email))
	if inEmail != "" && strings.ToLower(strings.TrimSpace(existing.Email)) == inEmail {
		score += guestScoreEmailExact
	}

	inPhone := utils.NormalizePhone(incoming.Phone)
	exPhone := utils.NormalizePhone(existing.Phone)
	if inPhone != "" && exPhone != "" {
		if inPhone == exPhone {
			score += guestScorePhoneExact
		} else if suffix := utils.PhoneSuffix(incoming.Phone, phoneSuffixLength); suffix != "" &&
			suffix == utils.PhoneSuffix(existing.Phone, phoneSuffixLength) {
			score += guestScorePhoneSuffix
		}
	}

	score += nameOverlapScore(
		existing.FirstName+" "+existing.LastName,
		incoming.FirstName+" "+incoming.LastName,
	)

	if score > guestScoreCap {
		score = guestScoreCap
	}
	return score
}

// nameOverlapScore scales token-set overlap into 0..guestScoreNameMax.
func nameOverlapScore(a, b string) int {
	tokensA := utils.NormalizeNameTokens(a)
	tokensB := utils.NormalizeNameTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	shared := 0
	for _, t := range tokensB {
		if setA[t] {
			shared++
		}
	}
	larger := len(tokensA)
	if len(tokensB) > larger {
		larger = len(tokensB)
	}
	return guestScoreNameMax * shared / larger
}

// MatchOrCreateGuest finds the best-scoring existing guest or creates one.
// Guests without any contact data still get a synthesized placeholder
// identity so the booking is never blocked on missing guest details.
func MatchOrCreateGuest(db *gorm.DB, propertyId string, incoming ChannelGuest) (*models.Guest, error) {
	hasContact := strings.TrimSpace(incoming.Email) != "" || strings.TrimSpace(incoming.Phone) != ""
	hasName := strings.TrimSpace(incoming.FirstName+incoming.LastName) != ""

	if hasContact || hasName {
		guests, err := models.ListGuests(db, propertyId)
		if err != nil {
			return nil, err
		}
		var best *models.Guest
		bestScore := 0
		for i := range guests {
			if score := ScoreGuestMatch(guests[i], incoming); score > bestScore {
				best = &guests[i]
				bestScore = score
			}
		}
		if best != nil && bestScore >= GuestMatchThreshold {
			return best, nil
		}
	}

	guest := models.Guest{
		PropertyId: propertyId,
		FirstName:  strings.TrimSpace(incoming.FirstName),
		LastName:   strings.TrimSpace(incoming.LastName),
		Email:      strings.TrimSpace(incoming.Email),
		Phone:      utils.NormalizePhone(incoming.Phone),
	}
	if !hasContact {
		guest.IsPlaceholder = true
		if !hasName {
			guest.LastName = "Guest"
		}
		guest.Email = fmt.Sprintf("guest-%s@placeholder.invalid", uuid.NewString())
	}
	if err := models.CreateGuest(db, &guest); err != nil {
		return nil, err
	}
	return &guest, nil
}
