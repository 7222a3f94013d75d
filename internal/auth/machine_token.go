package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const machineTokenPrefix = "opc_"

type MachineTokenGenerator struct{}

func NewMachineTokenGenerator() *MachineTokenGenerator {
	return &MachineTokenGenerator{}
}

// GenerateMachineToken creates a new machine token and its storage hash.
// Format: opc_<uuid>_<random_secret>
func (m *MachineTokenGenerator) GenerateMachineToken() (string, string, error) {
	id := uuid.New()

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	token := fmt.Sprintf("%s%s_%s", machineTokenPrefix, id.String(), secret)
	return token, m.HashToken(token), nil
}

// HashToken hashes a machine token for storage
func (m *MachineTokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if token has correct format
func (m *MachineTokenGenerator) ValidateTokenFormat(token string) bool {
	_, ok := m.TokenID(token)
	return ok
}

// TokenID extracts the uuid part of a machine token.
func (m *MachineTokenGenerator) TokenID(token string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(token, machineTokenPrefix)
	if !ok {
		return uuid.Nil, false
	}
	idPart, secret, ok := strings.Cut(rest, "_")
	if !ok || len(secret) != 64 {
		return uuid.Nil, false
	}
	if _, err := hex.DecodeString(secret); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
