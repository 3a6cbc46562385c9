package rest

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/passkey"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/session"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
	"github.com/saveriodangelo-cyber/Cooksy/internal/errors/i18n"
)

// Server bridges HTTP requests to the session and passkey managers.
type Server struct {
	sessions *session.Manager
	passkeys *passkey.Manager
}

// NewServer creates the JSON bridge over the identity managers.
func NewServer(sessions *session.Manager, passkeys *passkey.Manager) *Server {
	return &Server{sessions: sessions, passkeys: passkeys}
}

// RegisterRoutes registers identity HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) error {
	if mux == nil {
		return nil
	}

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/register/verify", s.handleVerifyRegistration)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/otp/issue", s.handleIssueOtp)
	mux.HandleFunc("POST /auth/otp/complete", s.handleCompleteOtp)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/whoami", s.handleWhoami)
	mux.HandleFunc("POST /auth/password/change", s.handleChangePassword)
	mux.HandleFunc("DELETE /auth/account", s.handleDeleteAccount)
	mux.HandleFunc("POST /auth/passkey/register/start", s.handlePasskeyRegisterStart)
	mux.HandleFunc("POST /auth/passkey/register/finish", s.handlePasskeyRegisterFinish)
	mux.HandleFunc("POST /auth/passkey/assert/start", s.handlePasskeyAssertStart)
	mux.HandleFunc("POST /auth/passkey/assert/finish", s.handlePasskeyAssertFinish)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return nil
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type verifyRegistrationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	State     string `json:"state"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type issueOtpRequest struct {
	Email string `json:"email"`
}

type completeOtpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type whoamiResponse struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
	RPID      string `json:"rp_id"`
	ExpiresAt int64  `json:"expires_at"`
}

type passkeyRegisterFinishRequest struct {
	Challenge      string `json:"challenge"`
	CredentialID   string `json:"credential_id"`
	PublicKey      string `json:"public_key"`
	SignCount      uint32 `json:"sign_count"`
	ClientResponse string `json:"client_response"`
}

type passkeyAssertStartRequest struct {
	Email string `json:"email"`
}

type passkeyAssertFinishRequest struct {
	Email          string `json:"email"`
	Challenge      string `json:"challenge"`
	CredentialID   string `json:"credential_id"`
	SignCount      uint32 `json:"sign_count"`
	ClientResponse string `json:"client_response"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.sessions.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: u.ID, Email: u.Email})
}

func (s *Server) handleVerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req verifyRegistrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.sessions.VerifyRegistration(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := s.sessions.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := sessionResponse{State: string(outcome.State)}
	if outcome.State == session.StateAuthenticated {
		resp.Token = outcome.Session.Token
		resp.ExpiresAt = outcome.Session.ExpiresAt.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIssueOtp(w http.ResponseWriter, r *http.Request) {
	var req issueOtpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.sessions.IssueLoginCode(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	// Accepted whether or not the email exists.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCompleteOtp(w http.ResponseWriter, r *http.Request) {
	var req completeOtpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.sessions.CompleteOTPLogin(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		State:     string(session.StateAuthenticated),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, apperrors.New(apperrors.CodeNotFound, "missing bearer token"))
		return
	}
	if err := s.sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, whoamiResponse{
		UserID:    principal.UserID,
		Token:     principal.Token,
		ExpiresAt: principal.ExpiresAt.UnixMilli(),
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.sessions.ChangePassword(r.Context(), principal.UserID, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.sessions.DeleteAccount(r.Context(), principal.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasskeyRegisterStart(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	challenge, err := s.passkeys.StartRegistration(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		Challenge: base64.RawURLEncoding.EncodeToString(challenge.Challenge),
		RPID:      challenge.RPID,
		ExpiresAt: challenge.ExpiresAt.UnixMilli(),
	})
}

func (s *Server) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req passkeyRegisterFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	challenge, err := base64.RawURLEncoding.DecodeString(req.Challenge)
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.CodeChallengeNotFound, "challenge is not valid base64url"))
		return
	}
	publicKey, err := base64.RawURLEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.CodeChallengeNotFound, "public key is not valid base64url"))
		return
	}
	clientResponse, err := base64.RawURLEncoding.DecodeString(req.ClientResponse)
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.CodeChallengeNotFound, "client response is not valid base64url"))
		return
	}

	err = s.passkeys.FinishRegistration(r.Context(), passkey.RegistrationInput{
		UserID:         principal.UserID,
		Challenge:      challenge,
		CredentialID:   req.CredentialID,
		PublicKey:      publicKey,
		SignCount:      req.SignCount,
		ClientResponse: clientResponse,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasskeyAssertStart(w http.ResponseWriter, r *http.Request) {
	// The email is optional: discoverable-credential flows start anonymously.
	var req passkeyAssertStartRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	challenge, err := s.passkeys.StartAssertion(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		Challenge: base64.RawURLEncoding.EncodeToString(challenge.Challenge),
		RPID:      challenge.RPID,
		ExpiresAt: challenge.ExpiresAt.UnixMilli(),
	})
}

func (s *Server) handlePasskeyAssertFinish(w http.ResponseWriter, r *http.Request) {
	var req passkeyAssertFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	challenge, err := base64.RawURLEncoding.DecodeString(req.Challenge)
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.CodeChallengeNotFound, "challenge is not valid base64url"))
		return
	}
	clientResponse, err := base64.RawURLEncoding.DecodeString(req.ClientResponse)
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.CodeChallengeNotFound, "client response is not valid base64url"))
		return
	}

	sess, err := s.sessions.LoginWithPasskey(r.Context(), passkey.AssertionInput{
		Identifier:     req.Email,
		Challenge:      challenge,
		CredentialID:   req.CredentialID,
		SignCount:      req.SignCount,
		ClientResponse: clientResponse,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		State:     string(session.StateAuthenticated),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
}

// authenticate resolves the bearer token or writes the failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, apperrors.New(apperrors.CodeSessionExpired, "missing bearer token"))
		return session.Principal{}, false
	}
	principal, err := s.sessions.Validate(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return session.Principal{}, false
	}
	return principal, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "BAD_REQUEST", Message: "request body is not valid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps a domain error to an HTTP status and a localized message.
// Internal errors are logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown {
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(code), Message: "an unexpected error occurred"})
		return
	}

	catalog := i18n.GetCatalog(r.Header.Get("Accept-Language"))
	message := catalog.Format(string(code), apperrors.GetMetadata(err))
	writeJSON(w, httpStatus(code), errorResponse{Error: string(code), Message: message})
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidEmail, apperrors.CodeWeakPassword:
		return http.StatusBadRequest
	case apperrors.CodeInvalidCredentials, apperrors.CodeOtpMismatch, apperrors.CodeSessionExpired:
		return http.StatusUnauthorized
	case apperrors.CodePossibleCloneDetected:
		return http.StatusForbidden
	case apperrors.CodeNotFound, apperrors.CodeChallengeNotFound, apperrors.CodeCredentialNotFound:
		return http.StatusNotFound
	case apperrors.CodeDuplicateEmail, apperrors.CodeDuplicateCredential:
		return http.StatusConflict
	case apperrors.CodeOtpExpired, apperrors.CodeOtpAlreadyConsumed, apperrors.CodeChallengeExpired:
		return http.StatusGone
	case apperrors.CodeAccountLocked, apperrors.CodeRateLimited, apperrors.CodeOtpLocked:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
