package biometric

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/dhruvm848/sentinel/internal/account"
)

// embedDim is the length of simulated feature vectors.
const embedDim = 64

// simCapture is the payload format the simulated provider understands:
// a JSON document standing in for a camera frame. Subject drives the
// embedding, attribute drives classification, and noise models capture
// variation between sessions of the same subject.
type simCapture struct {
	Subject   string  `json:"subject"`
	Attribute string  `json:"attribute"`
	Noise     float64 `json:"noise"`
}

// SimProvider is a deterministic rules-based stand-in for a real embedding
// model. Two captures of the same subject embed to nearly identical unit
// vectors; different subjects embed to near-orthogonal ones. It exists so
// the verifier's gates and thresholds are exercised end to end without an
// ML dependency; a production deployment swaps in a real Provider.
type SimProvider struct{}

// NewSimProvider creates the simulated provider.
func NewSimProvider() *SimProvider {
	return &SimProvider{}
}

func (p *SimProvider) Embed(sample []byte) ([]float64, error) {
	var c simCapture
	if err := json.Unmarshal(sample, &c); err != nil {
		return nil, fmt.Errorf("decode capture payload: %w", err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("capture payload has no subject")
	}

	vec := subjectVector(c.Subject)

	// Session noise: a deterministic perturbation seeded by the whole
	// payload, scaled by the declared noise level.
	if c.Noise > 0 {
		rng := rand.New(rand.NewSource(int64(hash64(sample)))) // #nosec G404 -- simulation, not security
		for i := range vec {
			vec[i] += c.Noise * rng.NormFloat64()
		}
		normalize(vec)
	}
	return vec, nil
}

func (p *SimProvider) Similarity(a, b []float64) float64 {
	return Cosine(a, b)
}

func (p *SimProvider) Classify(sample []byte) account.Attribute {
	var c simCapture
	if err := json.Unmarshal(sample, &c); err != nil {
		return account.AttributeUnknown
	}
	switch c.Attribute {
	case string(account.AttributeMale):
		return account.AttributeMale
	case string(account.AttributeFemale):
		return account.AttributeFemale
	}
	return account.AttributeUnknown
}

// Cosine returns the cosine similarity of two equal-length vectors,
// in [-1,1]. Mismatched or zero-magnitude vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// subjectVector derives a deterministic unit vector from a subject label.
func subjectVector(subject string) []float64 {
	rng := rand.New(rand.NewSource(int64(hash64([]byte(subject))))) // #nosec G404 -- simulation, not security
	vec := make([]float64, embedDim)
	for i := range vec {
		vec[i] = rng.NormFloat64()
	}
	normalize(vec)
	return vec
}

func normalize(vec []float64) {
	var mag float64
	for _, v := range vec {
		mag += v * v
	}
	mag = math.Sqrt(mag)
	if mag == 0 {
		return
	}
	for i := range vec {
		vec[i] /= mag
	}
}

func hash64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
