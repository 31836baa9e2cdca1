package compliance

import (
	"encoding/binary"
	"fmt"

	errorsmod "cosmossdk.io/errors"

	"github.com/coldbell/matchers/internal/host"
)

type KycLevel uint8

const (
	KycBasic KycLevel = iota
	KycStandard
	KycEnhanced
	KycInstitutional
)

func (l KycLevel) String() string {
	switch l {
	case KycBasic:
		return "basic"
	case KycStandard:
		return "standard"
	case KycEnhanced:
		return "enhanced"
	case KycInstitutional:
		return "institutional"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// WhitelistEntry record layout, owned by the KYC registry program.
const (
	WhitelistKycLevelOffset     = 40
	WhitelistExpiryOffset       = 48
	WhitelistJurisdictionOffset = 56
	WhitelistMinSize            = WhitelistJurisdictionOffset + 1
)

// JurisdictionBits is the width of the blocked-jurisdiction mask. Higher
// jurisdiction IDs can never be blocked.
const JurisdictionBits = 8

type WhitelistEntry struct {
	KycLevel     KycLevel
	Expiry       int64
	Jurisdiction uint8
}

func ParseWhitelistEntry(b []byte) (WhitelistEntry, error) {
	if len(b) < WhitelistMinSize {
		return WhitelistEntry{}, errorsmod.Wrapf(ErrInvalidComplianceData, "whitelist entry is %d bytes", len(b))
	}
	return WhitelistEntry{
		KycLevel:     KycLevel(b[WhitelistKycLevelOffset]),
		Expiry:       int64(binary.LittleEndian.Uint64(b[WhitelistExpiryOffset:])),
		Jurisdiction: b[WhitelistJurisdictionOffset],
	}, nil
}

// EncodeWhitelistEntry writes e into a zeroed buffer of the minimum size.
func EncodeWhitelistEntry(e WhitelistEntry) []byte {
	b := make([]byte, WhitelistMinSize)
	b[WhitelistKycLevelOffset] = uint8(e.KycLevel)
	binary.LittleEndian.PutUint64(b[WhitelistExpiryOffset:], uint64(e.Expiry))
	b[WhitelistJurisdictionOffset] = e.Jurisdiction
	return b
}

// readWhitelist parses a whitelist account. When a registry is bound the
// account must be owned by it.
func readWhitelist(acc *host.Account, st State) (WhitelistEntry, error) {
	if !st.KycRegistry.IsZero() && !acc.Owner.Equals(st.KycRegistry) {
		return WhitelistEntry{}, errorsmod.Wrapf(ErrInvalidComplianceData, "whitelist %s not owned by registry %s", acc.Key, st.KycRegistry)
	}
	return ParseWhitelistEntry(acc.Data)
}

// IsBlocked reports whether jurisdiction's bit is set in mask.
func IsBlocked(mask, jurisdiction uint8) bool {
	return jurisdiction < JurisdictionBits && (mask>>jurisdiction)&1 == 1
}
