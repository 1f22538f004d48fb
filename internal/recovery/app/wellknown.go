package app

import (
	"encoding/json"
	"net/http"

	"github.com/louisbranch/recovery.space/internal/recovery/token"
)

// AccountProviderConfig is the document this service publishes at the
// delegated-account-recovery well-known path so providers can verify the
// tokens it issues and locate its return endpoint.
type AccountProviderConfig struct {
	Issuer           string   `json:"issuer"`
	TokenSignPubKeys []string `json:"tokensign-pubkeys-secp256r1"`
	SaveTokenReturn  string   `json:"save-token-return"`
	PrivacyPolicyURL string   `json:"privacy-policy,omitempty"`
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	publicKey, err := token.EncodePublicKey(s.signer.PublicKey())
	if err != nil {
		http.Error(w, "failed to encode public key", http.StatusInternalServerError)
		return
	}

	config := AccountProviderConfig{
		Issuer:           s.config.Issuer,
		TokenSignPubKeys: []string{publicKey},
		SaveTokenReturn:  s.config.Issuer + "/save-token/return",
		PrivacyPolicyURL: s.config.PrivacyPolicyURL,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(config)
}
