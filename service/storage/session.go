package storage

import "encoding/json"

// SessionStatus is the lifecycle state of one chat.
type SessionStatus string

const (
	StatusUnknown SessionStatus = "UNKNOWN"
	StatusAnon    SessionStatus = "ANON"
	StatusAuth    SessionStatus = "AUTH"
)

// Session is the authoritative per-chat record.
//
// Invariants the engine maintains:
//   - UNKNOWN: all token fields empty, cursors reset
//   - ANON: TokenIn and LoginType set, no access/refresh tokens
//   - AUTH: access and refresh tokens set, TokenIn empty
type Session struct {
	Status       SessionStatus `json:"status"`
	TokenIn      string        `json:"token_in"`
	LoginType    string        `json:"login_type"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`

	// Navigation cursors within an ongoing attempt, -1 = none.
	CurrentCourseID    int `json:"current_course_id"`
	CurrentTestID      int `json:"current_test_id"`
	CurrentAttemptID   int `json:"current_attempt_id"`
	CurrentAnswerIndex int `json:"current_answer_index"`
}

// NewSession returns the zero-value UNKNOWN session.
func NewSession() Session {
	return Session{
		Status:           StatusUnknown,
		CurrentCourseID:  -1,
		CurrentTestID:    -1,
		CurrentAttemptID: -1,
	}
}

// IsAuth reports whether the session is fully authenticated, i.e. AUTH
// with both tokens present.
func (s *Session) IsAuth() bool {
	return s.Status == StatusAuth && s.AccessToken != "" && s.RefreshToken != ""
}

// ResetAttempt drops the attempt cursors after a finished or abandoned
// attempt.
func (s *Session) ResetAttempt() {
	s.CurrentAttemptID = -1
	s.CurrentAnswerIndex = 0
}

func marshalSession(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// unmarshalSession tolerates partial records: fields missing from the
// stored JSON keep the NewSession defaults (cursors at -1), and an
// unrecognized status degrades to UNKNOWN.
func unmarshalSession(data []byte) (Session, error) {
	s := NewSession()
	if err := json.Unmarshal(data, &s); err != nil {
		return NewSession(), err
	}
	switch s.Status {
	case StatusAnon, StatusAuth:
	default:
		s.Status = StatusUnknown
	}
	return s, nil
}
