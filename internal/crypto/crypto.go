// Package crypto implements the vault sync fabric's cryptographic
// primitives: passphrase-derived keys, vault and device identity, AEAD
// envelope sealing, pairing codes, and HMAC device tokens.
//
// None of this is novel cryptography: PBKDF2, AES-256-GCM, and
// HMAC-SHA256 from the standard library and x/crypto, wired together for
// the fabric's key-derivation and sealing needs.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the PBKDF2 round count for passphrase-to-key derivation.
	kdfIterations = 100_000
	// kdfSalt is fixed across all vaults: the passphrase itself supplies the
	// entropy, and a fixed salt lets any two devices with the same passphrase
	// derive the same key without exchanging anything out of band.
	kdfSalt = "vaultsync-fabric-v1"
	// keyLen is the AES-256 key size in bytes.
	keyLen = 32
	// nonceLen is the AES-GCM nonce size in bytes.
	nonceLen = 12
	// envelopeVersion is the wire version tag for Envelope.
	envelopeVersion = 1
	// DeviceTokenTTL is how long a minted device token remains valid.
	DeviceTokenTTL = 30 * 24 * time.Hour
)

// Key is a derived 256-bit AEAD key. It is never serialized directly; only
// VaultID and sealed envelopes cross a process boundary.
type Key [keyLen]byte

// DeriveKey derives the AEAD key for a vault from its passphrase.
func DeriveKey(passphrase string) Key {
	raw := pbkdf2.Key([]byte(passphrase), []byte(kdfSalt), kdfIterations, keyLen, sha256.New)
	var k Key
	copy(k[:], raw)
	return k
}

// VaultID derives the vault identity from a key: the first 32 hex characters
// of SHA-256(key bytes). Two devices that derive the same key — because they
// were given the same passphrase — compute the same vault id and are grouped
// into the same relay room, without the passphrase or key ever leaving the
// device.
func VaultID(k Key) string {
	sum := sha256.Sum256(k[:])
	return hex.EncodeToString(sum[:])[:32]
}

// DeviceID derives a stable per-installation identifier from a hostname and
// the vault's filesystem path: the first 16 hex characters of
// SHA-256("hostname:vaultPath").
func DeviceID(hostname, vaultPath string) string {
	sum := sha256.Sum256([]byte(hostname + ":" + vaultPath))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash returns the SHA-256 hex digest of file content, used as the
// change entry and version content hash.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Envelope is the AEAD-sealed wire form of a protocol message.
type Envelope struct {
	V          int    `json:"v"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts plaintext under k with a fresh random nonce and returns the
// wire envelope. The GCM authentication tag is appended to the ciphertext.
func Seal(k Key, plaintext []byte) (*Envelope, error) {
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return &Envelope{
		V:          envelopeVersion,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts an envelope under k. A wrong key, corrupted ciphertext, or
// tampered tag all surface as the same opaque error so the caller cannot
// distinguish them by timing or message.
func Open(k Key, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("crypto: nil envelope")
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("crypto: unsupported envelope version %d", env.V)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode open failed")
	}
	return plaintext, nil
}

// GeneratePairingCode returns a CSPRNG-derived 6-digit pairing code and the
// hex SHA-256 hash that should be transmitted in its place. The raw code is
// shown to the user; only the hash ever crosses the wire.
func GeneratePairingCode() (code string, codeHash string, err error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", fmt.Errorf("crypto: read pairing entropy: %w", err)
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000
	code = fmt.Sprintf("%06d", n)
	codeHash = HashPairingCode(code)
	return code, codeHash, nil
}

// HashPairingCode returns the hex SHA-256 digest of a pairing code, used so
// the code itself never needs to be transmitted or stored.
func HashPairingCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// devicePayload is the signed body of a device token.
type devicePayload struct {
	DeviceID  string `json:"deviceId"`
	VaultID   string `json:"vaultId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// MintDeviceToken produces a server-signed device token:
// base64(payloadJSON) + ":" + hex(HMAC-SHA256(payloadJSON, serverSecret)).
func MintDeviceToken(serverSecret []byte, deviceID, vaultID string, now time.Time) (string, error) {
	payload := devicePayload{
		DeviceID:  deviceID,
		VaultID:   vaultID,
		ExpiresAt: now.Add(DeviceTokenTTL).Unix(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("crypto: marshal token payload: %w", err)
	}
	mac := hmac.New(sha256.New, serverSecret)
	mac.Write(body)
	sig := mac.Sum(nil)
	return base64.StdEncoding.EncodeToString(body) + ":" + hex.EncodeToString(sig), nil
}

// VerifyDeviceToken checks a token's signature and expiry, and returns the
// device/vault ids it asserts. Mismatched device or vault id is the caller's
// responsibility to check against the hello request.
func VerifyDeviceToken(serverSecret []byte, token string, now time.Time) (deviceID, vaultID string, err error) {
	sep := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return "", "", fmt.Errorf("crypto: malformed device token")
	}
	encodedBody, sigHex := token[:sep], token[sep+1:]

	body, err := base64.StdEncoding.DecodeString(encodedBody)
	if err != nil {
		return "", "", fmt.Errorf("crypto: malformed device token")
	}
	wantSig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", "", fmt.Errorf("crypto: malformed device token")
	}

	mac := hmac.New(sha256.New, serverSecret)
	mac.Write(body)
	gotSig := mac.Sum(nil)
	if subtle.ConstantTimeCompare(wantSig, gotSig) != 1 {
		return "", "", fmt.Errorf("crypto: device token signature invalid")
	}

	var payload devicePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("crypto: malformed device token body")
	}
	if now.Unix() > payload.ExpiresAt {
		return "", "", fmt.Errorf("crypto: device token expired")
	}
	return payload.DeviceID, payload.VaultID, nil
}
