package label_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"regcore/internal/label"
	"regcore/internal/label/store"
)

const latinTable = `/^(?!-)[a-z0-9\x{00E0}-\x{00FF}-]{1,63}(?<!-)$/iu`

type ValidatorSuite struct {
	suite.Suite
	store     *store.InMemoryStore
	validator *label.Validator
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.store.PutZone(label.ZonePolicy{ID: 1, TLD: ".test", IDNTable: latinTable, Supported: true})
	s.store.PutZone(label.ZonePolicy{ID: 2, TLD: ".sub.test", IDNTable: latinTable, Supported: true})
	s.store.PutZone(label.ZonePolicy{ID: 3, TLD: ".co.uk", IDNTable: latinTable, Supported: true})
	s.store.PutZone(label.ZonePolicy{ID: 4, TLD: ".frozen", IDNTable: latinTable, Supported: false})
	s.store.PutZone(label.ZonePolicy{ID: 5, TLD: ".bare", Supported: true})

	s.validator = label.NewValidator(s.store,
		label.WithTestZones([]string{".test", ".SUB.test", "frozen", ".bare"}),
	)
}

// =============================================================================
// Syntax checks
// =============================================================================

func (s *ValidatorSuite) TestSyntax() {
	ctx := context.Background()

	cases := []struct {
		name      string
		candidate string
		want      error
	}{
		{"empty", "", label.ErrEmpty},
		{"single character", "a", label.ErrTooShort},
		{"longer than 63", strings.Repeat("a", 59) + ".test", label.ErrTooLong},
		{"leading hyphen", "-abc.test", label.ErrHyphenPlacement},
		{"double hyphen", "ab--cd.test", label.ErrHyphenPlacement},
		{"hyphen before dot", "abc-.test", label.ErrHyphenPlacement},
		{"trailing dot", "abc.test.", label.ErrHyphenPlacement},
		{"empty label", "abc..test", label.ErrHyphenPlacement},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.validator.Validate(ctx, tc.candidate)
			s.ErrorIs(err, tc.want)
		})
	}
}

func (s *ValidatorSuite) TestRejectionMessages() {
	_, err := s.validator.Validate(context.Background(), "-abc.test")
	s.EqualError(err, "Invalid domain name format, cannot begin or end with a hyphen (-)")

	var labelErr *label.Error
	s.Require().True(errors.As(err, &labelErr))
	s.Equal(label.KindHyphenPlacement, labelErr.Kind)
	s.Equal("-abc.test", labelErr.Input)
}

// =============================================================================
// Zone resolution
// =============================================================================

func (s *ValidatorSuite) TestZones() {
	ctx := context.Background()

	s.Run("test zone", func() {
		name, err := s.validator.Validate(ctx, "Example.TEST")
		s.Require().NoError(err)
		s.Equal("example", name.Label)
		s.Equal(".test", name.Zone)
		s.Equal(int64(1), name.Policy.ID)
		s.Equal("example.test", name.String())
	})

	s.Run("longest test zone wins", func() {
		name, err := s.validator.Validate(ctx, "example.sub.test")
		s.Require().NoError(err)
		s.Equal("example", name.Label)
		s.Equal(".sub.test", name.Zone)
	})

	s.Run("public suffix zone", func() {
		name, err := s.validator.Validate(ctx, "example.co.uk")
		s.Require().NoError(err)
		s.Equal("example", name.Label)
		s.Equal(".co.uk", name.Zone)
	})

	s.Run("unknown zone", func() {
		_, err := s.validator.Validate(ctx, "example.com")
		s.ErrorIs(err, label.ErrUnsupportedZone)
	})

	s.Run("zone marked unsupported", func() {
		_, err := s.validator.Validate(ctx, "example.frozen")
		s.ErrorIs(err, label.ErrUnsupportedZone)
	})

	s.Run("bare zone", func() {
		_, err := s.validator.Validate(ctx, "co.uk")
		s.ErrorIs(err, label.ErrUnsupportedZone)
	})

	s.Run("zone without character table", func() {
		_, err := s.validator.Validate(ctx, "example.bare")
		s.ErrorIs(err, label.ErrPolicyMissing)
	})
}

// =============================================================================
// Character class
// =============================================================================

func (s *ValidatorSuite) TestCharacterClass() {
	ctx := context.Background()

	s.Run("ace label decoded before matching", func() {
		name, err := s.validator.Validate(ctx, "xn--bcher-kva.test")
		s.Require().NoError(err)
		s.Equal("xn--bcher-kva", name.Label)
		s.Equal("bücher", name.Unicode)
	})

	s.Run("character outside table", func() {
		_, err := s.validator.Validate(ctx, "exa_mple.test")
		s.ErrorIs(err, label.ErrInvalidFormat)
	})

	s.Run("rejection is stable", func() {
		_, first := s.validator.Validate(ctx, "exa_mple.test")
		_, second := s.validator.Validate(ctx, "exa_mple.test")
		s.Equal(first, second)
	})
}

type failingLookup struct{}

func (failingLookup) ZonePolicy(context.Context, string) (*label.ZonePolicy, error) {
	return nil, errors.New("connection refused")
}

func (s *ValidatorSuite) TestLookupFailureIsNotARejection() {
	v := label.NewValidator(failingLookup{}, label.WithTestZones([]string{".test"}))

	_, err := v.Validate(context.Background(), "example.test")
	s.Require().Error(err)
	var labelErr *label.Error
	s.False(errors.As(err, &labelErr))
	s.Contains(err.Error(), "connection refused")
}

// =============================================================================
// Contact identifiers
// =============================================================================

func (s *ValidatorSuite) TestValidateIdentifier() {
	cases := []struct {
		id   string
		want error
	}{
		{"ABC-123", nil},
		{"abc123", nil},
		{"Registrant1", nil},
		{"", label.ErrIdentifierEmpty},
		{"ab", label.ErrIdentifierLength},
		{strings.Repeat("a", 17), label.ErrIdentifierLength},
		{"1abc", label.ErrIdentifierFormat},
		{"abc-123", label.ErrIdentifierFormat},
		{"AB_12", label.ErrIdentifierFormat},
	}
	for _, tc := range cases {
		s.Run(tc.id, func() {
			err := label.ValidateIdentifier(tc.id)
			if tc.want == nil {
				s.NoError(err)
				return
			}
			s.ErrorIs(err, tc.want)
		})
	}
}
