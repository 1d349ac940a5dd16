package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSignTokenClaims(t *testing.T) {
	now := time.Now()
	signed, err := signToken([]byte("secret"), tokenOptions{
		Subject:  "0x00000000000000000000000000000000000000a1",
		Scopes:   []string{"sale:contribute", "sale:withdraw"},
		Issuer:   "rico",
		Audience: "ricod",
		TTL:      time.Hour,
		Now:      now,
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil },
		jwt.WithIssuer("rico"), jwt.WithAudience("ricod"))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xa1").Hex(), sub)
	require.Equal(t, "sale:contribute sale:withdraw", claims["scope"])
}

func TestSignTokenRejectsBadInput(t *testing.T) {
	base := tokenOptions{Subject: "0xa1", Scopes: []string{"sale:admin"}, TTL: time.Minute, Now: time.Now()}

	bad := base
	bad.Subject = "alice"
	_, err := signToken([]byte("secret"), bad)
	require.Error(t, err)

	bad = base
	bad.Scopes = nil
	_, err = signToken([]byte("secret"), bad)
	require.Error(t, err)

	bad = base
	bad.TTL = 0
	_, err = signToken([]byte("secret"), bad)
	require.Error(t, err)
}

func TestInitWritesTemplateOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sale.toml")
	var out bytes.Buffer
	require.NoError(t, runInit([]string{"-sale", path}, &out))
	require.Contains(t, out.String(), "wrote")
	_, err := os.Stat(path)
	require.NoError(t, err)
	require.Error(t, runInit([]string{"-sale", path}, &out))

	// The template has no roles yet.
	require.Error(t, runValidate([]string{"-sale", path}, &out))
}

func TestValidatePrintsSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sale.toml")
	definition := `
[schedule]
StartTick = 10
AllocationTicks = 100
AllocationPrice = "1000"
StageCount = 3
StageTicks = 20
StagePriceIncrease = "100"

[caps]
TokenSupply = "1000000000"

[roles]
WhitelistController = "0x00000000000000000000000000000000000000c0"
ProjectWallet = "0x00000000000000000000000000000000000000f0"
`
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o644))

	var out bytes.Buffer
	require.NoError(t, runValidate([]string{"-sale", path}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2+4)
	require.Contains(t, lines[2], "1000")
	require.Contains(t, lines[5], "1300")
}
