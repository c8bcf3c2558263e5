package workspace

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

const inviteSecretBytes = 32

// newInviteToken mints the plaintext invite token and the hash that is
// stored instead of it. The token embeds the invite id so redemption
// can look the row up by primary key.
func newInviteToken(id uuid.UUID) (token string, hash []byte, err error) {
	secret := make([]byte, inviteSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, err
	}
	encoded := base64.RawURLEncoding.EncodeToString(secret)
	sum := sha256.Sum256([]byte(encoded))
	return id.String() + "." + encoded, sum[:], nil
}

// parseInviteToken splits a presented token into the invite id and the
// hash of its secret half.
func parseInviteToken(token string) (uuid.UUID, []byte, error) {
	idPart, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return uuid.Nil, nil, ErrInviteInvalid
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, nil, ErrInviteInvalid
	}
	sum := sha256.Sum256([]byte(secret))
	return id, sum[:], nil
}

func tokenHashMatches(stored, presented []byte) bool {
	return subtle.ConstantTimeCompare(stored, presented) == 1
}
