package household

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/chorewheel/internal/apperr"
)

// Member PINs guard switching between members on a shared device.

var ErrIncorrectPIN = fmt.Errorf("%w: incorrect PIN", apperr.ErrForbidden)

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *Service) SetPIN(homeID, memberID int64, pin string) error {
	if !validPIN(pin) {
		return apperr.Validation("PIN must be exactly 4 digits")
	}
	if _, err := s.GetMember(homeID, memberID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.members.SetPIN(memberID, string(hash)); err != nil {
		return err
	}
	s.logger.Info("member pin set", "home_id", homeID, "member_id", memberID)
	return nil
}

func (s *Service) ClearPIN(homeID, memberID int64) error {
	if _, err := s.GetMember(homeID, memberID); err != nil {
		return err
	}
	return s.members.ClearPIN(memberID)
}

// VerifyPIN checks pin against the member's stored hash.
func (s *Service) VerifyPIN(homeID, memberID int64, pin string) error {
	if _, err := s.GetMember(homeID, memberID); err != nil {
		return err
	}
	hash, err := s.members.GetPINHash(memberID)
	if err != nil {
		return err
	}
	if hash == "" {
		return apperr.Validation("no PIN set for member %d", memberID)
	}
	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrIncorrectPIN
	}
	if err != nil {
		return fmt.Errorf("compare pin: %w", err)
	}
	return nil
}
