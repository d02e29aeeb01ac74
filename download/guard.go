// Package download implements the Download Guard (§4.8): short-lived
// signed tokens binding a (task_id, artifact_key) pair to a reader, so a
// separate artifact-serving component never has to re-authenticate against
// the task registry. Grounded on the teacher's playback-gate JWT claims in
// handlers/accesscontrol/access-control.go, adapted from EC-signed viewer
// claims to HMAC-signed single-artifact download claims.
package download

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/subtitler/pipeline/config"
)

// VerifyResult is the closed set of outcomes named in §4.8's contract.
type VerifyResult string

const (
	VerifyOK       VerifyResult = "ok"
	VerifyExpired  VerifyResult = "expired"
	VerifyMismatch VerifyResult = "mismatch"
)

// artifactClaims binds a token to exactly one (task_id, artifact_key) pair,
// the way PlaybackGateClaims binds a JWT to exactly one playback ID.
type artifactClaims struct {
	TaskID      string `json:"task_id"`
	ArtifactKey string `json:"artifact_key"`
	jwt.RegisteredClaims
}

// Guard issues and verifies download tokens. Key is the HMAC signing
// secret; callers own its lifecycle (typically loaded once at process
// start from an env var).
type Guard struct {
	Key []byte
}

func NewGuard(key []byte) *Guard {
	return &Guard{Key: key}
}

// Issue mints a token scoped to taskID+artifactKey, valid for ttl (clamped
// to config.DownloadTokenMaxTTL). Per §4.8, callers must only issue for
// tasks already in the Succeeded state — Guard itself is state-agnostic
// and trusts the caller to have checked that.
func (g *Guard) Issue(taskID, artifactKey string, ttl time.Duration) (string, error) {
	if ttl > config.DownloadTokenMaxTTL {
		ttl = config.DownloadTokenMaxTTL
	}
	claims := artifactClaims{
		TaskID:      taskID,
		ArtifactKey: artifactKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.Key)
}

// Verify checks tokenString against the expected (taskID, artifactKey)
// pair, returning one of the three outcomes named in §4.8. A structurally
// invalid or forged token is reported as VerifyMismatch, never as a Go
// error, so callers can map it directly to a download endpoint's response
// code (404 on mismatch, 410 on expired, per §4.9's "download(token)").
func (g *Guard) Verify(tokenString, taskID, artifactKey string) VerifyResult {
	claims := &artifactClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.Key, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return VerifyExpired
		}
		return VerifyMismatch
	}
	if !token.Valid {
		return VerifyMismatch
	}
	if claims.TaskID != taskID || claims.ArtifactKey != artifactKey {
		return VerifyMismatch
	}
	return VerifyOK
}
