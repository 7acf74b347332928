package service

import (
	"errors"
	"fmt"

	"msg_client/client/common/infra/httpjson"
)

const (
	MsgRegistrationFailed = "Registration failed"
	MsgLoginFailed        = "Login failed"
	MsgFetchChatsFailed   = "Failed to fetch chats"
	MsgFetchMsgsFailed    = "Failed to fetch messages"
	MsgSendFailed         = "Failed to send message"
	MsgCreateChatFailed   = "Failed to create chat"
	MsgSearchUsersFailed  = "Failed to search users"
)

// AuthError covers register, login and verify failures.
type AuthError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError covers every data endpoint failure.
type FetchError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrNoChatSelected is returned by Synchronizer.SendMessage without a selection.
var ErrNoChatSelected = errors.New("no chat selected")

// ErrEmptyMessage is returned for blank message text.
var ErrEmptyMessage = errors.New("message text is empty")

// ErrNotAuthenticated is returned for intents that need a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// serverMessage picks the server's `error` field, falling back otherwise.
func serverMessage(err error, fallback string) (int, string) {
	var statusErr *httpjson.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message != "" {
			return statusErr.Status, statusErr.Message
		}
		return statusErr.Status, fallback
	}
	return 0, fallback
}

func newAuthError(op string, err error, fallback string) *AuthError {
	status, message := serverMessage(err, fallback)
	return &AuthError{Op: op, Status: status, Message: message, Err: err}
}

func newFetchError(op string, err error, fallback string) *FetchError {
	status, message := serverMessage(err, fallback)
	return &FetchError{Op: op, Status: status, Message: message, Err: err}
}

// UserMessage is the text a view should show for a failed intent.
func UserMessage(err error, fallback string) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Message != "" {
		return fetchErr.Message
	}
	if err != nil && fallback == "" {
		return fmt.Sprint(err)
	}
	return fallback
}
