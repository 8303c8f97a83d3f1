package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mmrzaf/tablegen/internal/domain"
)

type jobConfigHashPayload struct {
	RequestHash  string `json:"request_hash"`
	OutputFormat string `json:"output_format,omitempty"`
	Seed         int64  `json:"seed"`
}

// HashJobConfig identifies a job run: the request fingerprint plus the
// seed and output format it ran with.
func HashJobConfig(req *domain.GenerationRequest, seed int64) (string, error) {
	rh, err := HashRequest(req)
	if err != nil {
		return "", err
	}

	p := jobConfigHashPayload{
		RequestHash:  rh,
		OutputFormat: req.Config.OutputFormat,
		Seed:         seed,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
