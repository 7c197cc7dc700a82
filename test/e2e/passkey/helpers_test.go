package passkey_test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/medhcloud/passkey/pkg/cryptox"
	"github.com/medhcloud/passkey/pkg/jwtx"
)

/*
 * End-to-end scenarios for the passkey SDK against a faithful fake of the
 * Medh auth API. The fake issues real challenges, checks the collected
 * client data binding (type, challenge, origin) on every verify, and signs
 * real JWTs, so the full client stack is exercised over the wire.
 */

const (
	fakeRPID       = "medh.co"
	fakeOrigin     = "https://app.medh.co"
	fakeUserID     = "user_1"
	fakeUserEmail  = "student@medh.co"
	fakeJWTSecret  = "e2e-test-secret"
	fakeBearer     = "seed-session-token"
	accessTokenTTL = 15 * time.Minute
)

type passkeyRecord struct {
	ID        string
	Name      string
	UseCount  int
	CreatedAt time.Time
}

// fakeMedh is an in-process stand-in for the Medh auth backend.
type fakeMedh struct {
	t   *testing.T
	srv *httptest.Server

	// stepUp makes authenticate/verify demand a TOTP code before issuing
	// tokens. totpSecret is shared with the client under test.
	stepUp     bool
	totpSecret string

	mu            sync.Mutex
	challenges    map[string]string // session id -> issued challenge (base64url)
	passkeys      map[string]*passkeyRecord
	pendingStepUp map[string]bool // verification tokens awaiting a code
	nextID        int
	role          string
}

func newFakeMedh(t *testing.T) *fakeMedh {
	t.Helper()

	f := &fakeMedh{
		t:             t,
		challenges:    make(map[string]string),
		passkeys:      make(map[string]*passkeyRecord),
		pendingStepUp: make(map[string]bool),
		role:          "student",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /passkey/register/challenge", f.handleRegisterChallenge)
	mux.HandleFunc("POST /passkey/register/verify", f.handleRegisterVerify)
	mux.HandleFunc("POST /passkey/authenticate/challenge", f.handleAuthenticateChallenge)
	mux.HandleFunc("POST /passkey/authenticate/verify", f.handleAuthenticateVerify)
	mux.HandleFunc("POST /passkey/authenticate/step-up", f.handleStepUp)
	mux.HandleFunc("GET /passkey/list", f.handleList)
	mux.HandleFunc("PATCH /passkey/{id}", f.handleRename)
	mux.HandleFunc("DELETE /passkey/{id}", f.handleRevoke)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeMedh) baseURL() string { return f.srv.URL }

func (f *fakeMedh) issueChallenge(prefix string) (sessionID, challenge string) {
	raw, err := cryptox.GenerateBytes(32)
	require.NoError(f.t, err)
	challenge = base64.RawURLEncoding.EncodeToString(raw)

	f.mu.Lock()
	f.nextID++
	sessionID = fmt.Sprintf("%s_%d", prefix, f.nextID)
	f.challenges[sessionID] = challenge
	f.mu.Unlock()
	return sessionID, challenge
}

// consumeChallenge takes the challenge for a session, enforcing single use.
func (f *fakeMedh) consumeChallenge(sessionID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	challenge, ok := f.challenges[sessionID]
	if ok {
		delete(f.challenges, sessionID)
	}
	return challenge, ok
}

func (f *fakeMedh) handleRegisterChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeEnvelope(w, false, "Authentication required", nil)
		return
	}

	sessionID, challenge := f.issueChallenge("reg")
	writeEnvelope(w, true, "Challenge issued", map[string]any{
		"sessionId": sessionID,
		"options": map[string]any{
			"publicKey": map[string]any{
				"challenge": challenge,
				"rp":        map[string]any{"id": fakeRPID, "name": "Medh"},
				"user": map[string]any{
					"id":          base64.RawURLEncoding.EncodeToString([]byte(fakeUserID)),
					"name":        fakeUserEmail,
					"displayName": "Student",
				},
				"pubKeyCredParams": []map[string]any{
					{"type": "public-key", "alg": -7},
					{"type": "public-key", "alg": -8},
				},
				"timeout":     60000,
				"attestation": "none",
				"authenticatorSelection": map[string]any{
					"residentKey":      "required",
					"userVerification": "required",
				},
			},
		},
	})
}

func (f *fakeMedh) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID  string `json:"sessionId"`
		Name       string `json:"name"`
		Credential struct {
			ID       string `json:"id"`
			RawID    protocol.URLEncodedBase64 `json:"rawId"`
			Type     string `json:"type"`
			Response struct {
				ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
				AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
			} `json:"response"`
		} `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, false, "Malformed request", nil)
		return
	}

	challenge, ok := f.consumeChallenge(req.SessionID)
	if !ok {
		writeEnvelope(w, false, "Challenge expired", nil)
		return
	}
	if msg := f.checkClientData(req.Credential.Response.ClientDataJSON, "webauthn.create", challenge); msg != "" {
		writeEnvelope(w, false, msg, nil)
		return
	}
	if req.Credential.Type != "public-key" || len(req.Credential.RawID) == 0 {
		writeEnvelope(w, false, "Invalid credential", nil)
		return
	}
	if len(req.Credential.Response.AttestationObject) == 0 {
		writeEnvelope(w, false, "Missing attestation", nil)
		return
	}

	f.mu.Lock()
	id := fmt.Sprintf("pk_%d", len(f.passkeys)+1)
	record := &passkeyRecord{ID: id, Name: req.Name, CreatedAt: time.Now().UTC()}
	f.passkeys[id] = record
	f.mu.Unlock()

	writeEnvelope(w, true, "Passkey registered", map[string]any{
		"passkey": recordJSON(record),
	})
}

func (f *fakeMedh) handleAuthenticateChallenge(w http.ResponseWriter, r *http.Request) {
	sessionID, challenge := f.issueChallenge("auth")
	writeEnvelope(w, true, "Challenge issued", map[string]any{
		"sessionId": sessionID,
		"options": map[string]any{
			"publicKey": map[string]any{
				"challenge":        challenge,
				"rpId":             fakeRPID,
				"timeout":          60000,
				"userVerification": "required",
			},
		},
	})
}

func (f *fakeMedh) handleAuthenticateVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID  string `json:"sessionId"`
		Credential struct {
			ID       string `json:"id"`
			Response struct {
				ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
				AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
				Signature         protocol.URLEncodedBase64 `json:"signature"`
				UserHandle        protocol.URLEncodedBase64 `json:"userHandle"`
			} `json:"response"`
		} `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, false, "Malformed request", nil)
		return
	}

	challenge, ok := f.consumeChallenge(req.SessionID)
	if !ok {
		writeEnvelope(w, false, "Challenge expired", nil)
		return
	}
	if msg := f.checkClientData(req.Credential.Response.ClientDataJSON, "webauthn.get", challenge); msg != "" {
		writeEnvelope(w, false, msg, nil)
		return
	}
	if len(req.Credential.Response.AuthenticatorData) < 37 || len(req.Credential.Response.Signature) == 0 {
		writeEnvelope(w, false, "Invalid assertion", nil)
		return
	}

	f.mu.Lock()
	for _, record := range f.passkeys {
		record.UseCount++
		break
	}
	f.mu.Unlock()

	if f.stepUp {
		token := cryptox.MustGenerateToken(cryptox.TokenSize128)
		f.mu.Lock()
		f.pendingStepUp[token] = true
		f.mu.Unlock()

		writeEnvelope(w, true, "Additional verification required", map[string]any{
			"requiresAdditionalVerification": true,
			"verificationToken":              token,
			"verificationMethods":            []string{"totp"},
		})
		return
	}

	writeEnvelope(w, true, "Signed in", f.tokenPayload())
}

func (f *fakeMedh) handleStepUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationToken string `json:"verificationToken"`
		Method            string `json:"method"`
		Code              string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, false, "Malformed request", nil)
		return
	}

	f.mu.Lock()
	pending := f.pendingStepUp[req.VerificationToken]
	delete(f.pendingStepUp, req.VerificationToken)
	f.mu.Unlock()

	if !pending {
		writeEnvelope(w, false, "Verification session expired", nil)
		return
	}
	if req.Method != "totp" || !totp.Validate(req.Code, f.totpSecret) {
		writeEnvelope(w, false, "Invalid verification code", nil)
		return
	}

	writeEnvelope(w, true, "Verification complete", f.tokenPayload())
}

func (f *fakeMedh) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	records := make([]map[string]any, 0, len(f.passkeys))
	for _, record := range f.passkeys {
		records = append(records, recordJSON(record))
	}
	f.mu.Unlock()

	writeEnvelope(w, true, "", map[string]any{"passkeys": records})
}

func (f *fakeMedh) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, false, "Malformed request", nil)
		return
	}

	f.mu.Lock()
	record, ok := f.passkeys[r.PathValue("id")]
	if ok {
		record.Name = req.Name
	}
	f.mu.Unlock()

	if !ok {
		writeEnvelope(w, false, "Passkey not found", nil)
		return
	}
	writeEnvelope(w, true, "Passkey renamed", map[string]any{"passkey": recordJSON(record)})
}

func (f *fakeMedh) handleRevoke(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	_, ok := f.passkeys[r.PathValue("id")]
	delete(f.passkeys, r.PathValue("id"))
	f.mu.Unlock()

	if !ok {
		writeEnvelope(w, false, "Passkey not found", nil)
		return
	}
	writeEnvelope(w, true, "Passkey revoked", nil)
}

// checkClientData verifies the contextual binding the authenticator signed
// over. Returns an error message, or "" when valid.
func (f *fakeMedh) checkClientData(raw []byte, wantType, wantChallenge string) string {
	var cd struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}
	if err := json.Unmarshal(raw, &cd); err != nil {
		return "Malformed client data"
	}
	if cd.Type != wantType {
		return "Unexpected ceremony type"
	}
	if cd.Challenge != wantChallenge {
		return "Challenge mismatch"
	}
	if cd.Origin != fakeOrigin {
		return "Origin mismatch"
	}
	return ""
}

func (f *fakeMedh) tokenPayload() map[string]any {
	f.mu.Lock()
	role := f.role
	f.mu.Unlock()

	now := time.Now()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fakeUserID,
			Issuer:    "medh-auth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
		Role:  role,
		Email: fakeUserEmail,
		AMR:   []string{"passkey"},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(fakeJWTSecret))
	require.NoError(f.t, err)

	return map[string]any{
		"user": map[string]any{"id": fakeUserID, "email": fakeUserEmail, "role": role},
		"tokens": map[string]any{
			"accessToken":  access,
			"refreshToken": cryptox.MustGenerateToken(cryptox.TokenSize256),
			"expiresIn":    int(accessTokenTTL.Seconds()),
		},
	}
}

func recordJSON(record *passkeyRecord) map[string]any {
	return map[string]any{
		"id":         record.ID,
		"name":       record.Name,
		"deviceType": "platform",
		"usageCount": record.UseCount,
		"createdAt":  record.CreatedAt.Format(time.RFC3339),
	}
}

func writeEnvelope(w http.ResponseWriter, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{"success": success, "message": message}
	if data != nil {
		payload["data"] = data
	}
	_ = json.NewEncoder(w).Encode(payload)
}
