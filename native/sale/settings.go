package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultMaxContributions bounds the pending queue of a participant when the
// settings leave MaxContributions unset.
const DefaultMaxContributions = 256

// Settings is the deployment-time definition of a sale. Zero ceilings and a
// zero TokenSupply mean "unlimited".
type Settings struct {
	StartTick          uint64
	AllocationTicks    uint64
	AllocationPrice    uint256.Int
	StageCount         uint8
	StageTicks         uint64
	StagePriceIncrease uint256.Int

	TokenSupply         uint256.Int
	MinContribution     uint256.Int
	ParticipantCap      uint256.Int
	ParticipantStageCap uint256.Int
	SaleCap             uint256.Int
	MaxContributions    uint32

	WhitelistController common.Address
	ProjectWallet       common.Address
}

// Validate checks the settings and the schedule they describe.
func (s Settings) Validate() error {
	if s.WhitelistController == (common.Address{}) {
		return fmt.Errorf("%w: whitelist controller required", ErrInvalidSettings)
	}
	if s.ProjectWallet == (common.Address{}) {
		return fmt.Errorf("%w: project wallet required", ErrInvalidSettings)
	}
	if s.AllocationPrice.IsZero() {
		return fmt.Errorf("%w: allocation price must be positive", ErrInvalidSettings)
	}
	if !s.ParticipantCap.IsZero() && !s.ParticipantStageCap.IsZero() && s.ParticipantStageCap.Gt(&s.ParticipantCap) {
		return fmt.Errorf("%w: per-stage cap exceeds participant cap", ErrInvalidSettings)
	}
	if _, err := ScheduleFromSettings(s); err != nil {
		return err
	}
	return nil
}

func (s Settings) maxContributions() uint32 {
	if s.MaxContributions == 0 {
		return DefaultMaxContributions
	}
	return s.MaxContributions
}
