package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/model"
)

var (
	ErrNotLoggedIn    = errors.New("client: not logged in")
	ErrSessionExpired = errors.New("client: session expired due to inactivity")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Message)
}

// Session holds the token issued at login and the cached public profile.
// Every request counts as activity; once the inactivity tracker expires the
// token is discarded and the server is told on a best-effort basis. Tokens
// stay valid server-side until they expire on their own.
type Session struct {
	BaseURL    string
	HTTP       *http.Client
	Log        *logrus.Logger
	Timeout    time.Duration
	WarnBefore time.Duration
	// OnStateChange, when set, is called after every tracker transition.
	OnStateChange func(State)

	mu      sync.Mutex
	now     func() time.Time
	token   string
	user    model.PublicUser
	tracker *InactivityTracker
}

func NewSession(baseURL string, httpClient *http.Client, log *logrus.Logger) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpClient,
		Log:     log,
		now:     time.Now,
	}
}

// SetClock replaces the time source. It is meant for tests.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

type loginResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Token   string           `json:"token"`
	User    model.PublicUser `json:"user"`
}

// Login exchanges credentials for a token and starts inactivity tracking.
func (s *Session) Login(ctx context.Context, username, password string) (model.PublicUser, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	res, err := s.send(ctx, http.MethodPost, "/api/auth/login", bytes.NewReader(body), "application/json", "")
	if err != nil {
		return model.PublicUser{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return model.PublicUser{}, decodeAPIError(res)
	}
	var lr loginResponse
	if err := json.NewDecoder(res.Body).Decode(&lr); err != nil {
		return model.PublicUser{}, fmt.Errorf("client: decode login response: %w", err)
	}
	if lr.Token == "" {
		return model.PublicUser{}, errors.New("client: login response without token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = lr.Token
	s.user = lr.User
	s.tracker = NewInactivityTracker(s.Timeout, s.WarnBefore, s.now())
	return lr.User, nil
}

// Token returns the stored token, empty when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the cached profile of the logged-in user.
func (s *Session) User() (model.PublicUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.token != ""
}

// State returns the current inactivity state. A logged-out session is
// reported as Expired.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil || s.token == "" {
		return Expired
	}
	return s.tracker.State()
}

// Activity records a user input event.
func (s *Session) Activity() State {
	s.mu.Lock()
	if s.tracker == nil || s.token == "" {
		s.mu.Unlock()
		return Expired
	}
	prev := s.tracker.State()
	st := s.tracker.Touch(s.now())
	s.mu.Unlock()
	s.transitioned(prev, st)
	if st == Expired {
		s.expire(context.Background())
	}
	return st
}

// Tick evaluates the inactivity deadlines. Callers drive it from their own
// loop or timer. On expiry the session logs out.
func (s *Session) Tick(ctx context.Context) State {
	s.mu.Lock()
	if s.tracker == nil || s.token == "" {
		s.mu.Unlock()
		return Expired
	}
	prev := s.tracker.State()
	st, changed := s.tracker.Tick(s.now())
	s.mu.Unlock()
	if changed {
		s.transitioned(prev, st)
	}
	if changed && st == Expired {
		s.expire(ctx)
	}
	return st
}

func (s *Session) transitioned(prev, st State) {
	if prev == st {
		return
	}
	s.Log.WithFields(logrus.Fields{"from": prev.String(), "to": st.String()}).Debug("session state changed")
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

// Do sends an authenticated request. It counts as activity. A 401 answer
// clears the stored token.
func (s *Session) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	s.mu.Lock()
	token := s.token
	var prev, st State
	if s.tracker != nil && token != "" {
		prev = s.tracker.State()
		st, _ = s.tracker.Tick(s.now())
		if st != Expired {
			st = s.tracker.Touch(s.now())
		}
	}
	s.mu.Unlock()
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	s.transitioned(prev, st)
	if st == Expired {
		s.expire(ctx)
		return nil, ErrSessionExpired
	}

	res, err := s.send(ctx, method, path, body, contentType, token)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		s.clear()
	}
	return res, nil
}

// Logout tells the server and discards the token. If the regular logout
// call fails the beacon endpoint is tried. The local token is dropped in
// every case.
func (s *Session) Logout(ctx context.Context) error {
	token := s.clear()
	if token == "" {
		return nil
	}
	return s.notifyLogout(ctx, token)
}

func (s *Session) expire(ctx context.Context) {
	token := s.clear()
	if token == "" {
		return
	}
	s.Log.Info("session expired due to inactivity")
	if err := s.notifyLogout(ctx, token); err != nil {
		s.Log.WithError(err).Debug("logout notification failed")
	}
}

func (s *Session) notifyLogout(ctx context.Context, token string) error {
	res, err := s.send(ctx, http.MethodPost, "/api/auth/logout", nil, "", token)
	if err == nil {
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			return nil
		}
	}
	beacon, berr := s.send(ctx, http.MethodPost, "/api/auth/beacon-logout", nil, "", "")
	if berr != nil {
		return berr
	}
	beacon.Body.Close()
	return nil
}

// clear drops the token and profile and returns the old token.
func (s *Session) clear() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.token
	s.token = ""
	s.user = model.PublicUser{}
	if s.tracker != nil {
		s.tracker.state = Expired
	}
	return token
}

func (s *Session) send(ctx context.Context, method, path string, body io.Reader, contentType, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.HTTP.Do(req)
}

func decodeAPIError(res *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(res.StatusCode)
	}
	return &APIError{Status: res.StatusCode, Message: body.Message}
}
