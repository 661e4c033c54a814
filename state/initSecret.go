package state

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// InitSecret loads the RSA public key used to verify identity tokens. The private key is optional;
// when present the server can mint development tokens.
func InitSecret(publicPath, privatePath string) (*JwtSecret, error) {
	pubKeyBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, err
	}

	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	secret := &JwtSecret{Public: pubKey}

	if privatePath != "" {
		privKeyBytes, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, err
		}
		privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		secret.Private = privKey
	}

	log.Info().Bool("signing", secret.Private != nil).Msg("JWT secret initialized successfully")
	return secret, nil
}
