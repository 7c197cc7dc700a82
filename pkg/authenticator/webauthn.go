package authenticator

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Authenticator data flag bits, WebAuthn L2 §6.1.
const (
	flagUserPresent    byte = 1 << 0
	flagUserVerified   byte = 1 << 2
	flagBackupEligible byte = 1 << 3
	flagBackupState    byte = 1 << 4
	flagAttestedData   byte = 1 << 6
)

// COSE key constants used in credential public key encoding.
const (
	coseKeyTypeEC2 = 2
	coseKeyTypeOKP = 1
	coseCurveP256  = 1
	coseCurveEd255 = 6
)

var ctap2Encoder cbor.EncMode

func init() {
	mode, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("authenticator: cbor encoder init: %v", err))
	}
	ctap2Encoder = mode
}

// clientData is the serialized contextual binding both ceremonies sign over.
type clientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin"`
}

func buildClientDataJSON(ceremonyType string, challenge protocol.URLEncodedBase64, origin string) ([]byte, error) {
	if len(challenge) == 0 {
		return nil, fmt.Errorf("authenticator: challenge is empty")
	}

	data := clientData{
		Type:        ceremonyType,
		Challenge:   base64.RawURLEncoding.EncodeToString(challenge),
		Origin:      origin,
		CrossOrigin: false,
	}
	return json.Marshal(data)
}

// buildAuthenticatorData assembles rpIDHash || flags || signCount and, when
// attestedCredential is non-nil, the attested credential data block.
func buildAuthenticatorData(rpID string, flags byte, signCount uint32, attestedCredential []byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))

	out := make([]byte, 0, 37+len(attestedCredential))
	out = append(out, rpIDHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, signCount)
	out = append(out, attestedCredential...)
	return out
}

// buildAttestedCredentialData assembles AAGUID || credIDLen || credID || COSE key.
func buildAttestedCredentialData(aaguid [16]byte, credentialID, cosePublicKey []byte) ([]byte, error) {
	if len(credentialID) == 0 || len(credentialID) > 1023 {
		return nil, fmt.Errorf("authenticator: invalid credential id length %d", len(credentialID))
	}

	out := make([]byte, 0, 16+2+len(credentialID)+len(cosePublicKey))
	out = append(out, aaguid[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(credentialID)))
	out = append(out, credentialID...)
	out = append(out, cosePublicKey...)
	return out, nil
}

type coseEC2PublicKey struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint"`
	Curve     int    `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

type coseOKPPublicKey struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint"`
	Curve     int    `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
}

// encodeCOSEPublicKey encodes the credential public key as a CTAP2 canonical
// CBOR COSE_Key structure.
func encodeCOSEPublicKey(pub any, alg webauthncose.COSEAlgorithmIdentifier) ([]byte, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		params := key.Curve.Params()
		byteLen := (params.BitSize + 7) / 8
		return ctap2Encoder.Marshal(coseEC2PublicKey{
			KeyType:   coseKeyTypeEC2,
			Algorithm: int(alg),
			Curve:     coseCurveP256,
			X:         key.X.FillBytes(make([]byte, byteLen)),
			Y:         key.Y.FillBytes(make([]byte, byteLen)),
		})
	case ed25519.PublicKey:
		return ctap2Encoder.Marshal(coseOKPPublicKey{
			KeyType:   coseKeyTypeOKP,
			Algorithm: int(alg),
			Curve:     coseCurveEd255,
			X:         []byte(key),
		})
	default:
		return nil, fmt.Errorf("authenticator: unsupported public key type %T", pub)
	}
}

// attestationObject is the CBOR structure returned from a registration
// ceremony. SoftToken always uses "none" format: the Medh backend (like most
// passkey relying parties) does not require attestation statements.
type attestationObject struct {
	AuthData []byte         `cbor:"authData"`
	Fmt      string         `cbor:"fmt"`
	AttStmt  map[string]any `cbor:"attStmt"`
}

func encodeAttestationObject(authData []byte) ([]byte, error) {
	return ctap2Encoder.Marshal(attestationObject{
		AuthData: authData,
		Fmt:      "none",
		AttStmt:  map[string]any{},
	})
}

// decodeUserHandle normalizes the user.id field from parsed creation options.
// Depending on how the server built the JSON it may arrive as a base64url
// string or raw bytes.
func decodeUserHandle(id any) []byte {
	switch v := id.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case protocol.URLEncodedBase64:
		return v
	case string:
		if decoded, err := base64.RawURLEncoding.DecodeString(v); err == nil {
			return decoded
		}
		return []byte(v)
	default:
		return nil
	}
}
