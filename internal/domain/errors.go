package domain

import (
	"errors"

	"mellium.im/xmpp/stanza"
)

var (
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrNotAllowed           = errors.New("not allowed")
	ErrItemNotFound         = errors.New("item not found")
	ErrBadRequest           = errors.New("bad request")
	ErrCannotBeInvited      = errors.New("user cannot be invited")
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationRequired = errors.New("registration required")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrUnsupportedPacket    = errors.New("unsupported packet")

	ErrNicknameEmpty   = errors.New("nickname empty")
	ErrNicknameTooLong = errors.New("nickname too long")
)

// StanzaError maps a domain error onto the XMPP error condition carried by
// replies. Unknown errors become internal-server-error.
func StanzaError(err error) stanza.Error {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrCannotBeInvited):
		return stanza.Error{Type: stanza.Auth, Condition: stanza.Forbidden}
	case errors.Is(err, ErrConflict):
		return stanza.Error{Type: stanza.Cancel, Condition: stanza.Conflict}
	case errors.Is(err, ErrNotAllowed):
		return stanza.Error{Type: stanza.Cancel, Condition: stanza.NotAllowed}
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrUserNotFound):
		return stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound}
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrNicknameEmpty),
		errors.Is(err, ErrNicknameTooLong):
		return stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest}
	case errors.Is(err, ErrRegistrationRequired):
		return stanza.Error{Type: stanza.Auth, Condition: stanza.RegistrationRequired}
	case errors.Is(err, ErrNotAuthorized):
		return stanza.Error{Type: stanza.Auth, Condition: stanza.NotAuthorized}
	case errors.Is(err, ErrServiceUnavailable):
		return stanza.Error{Type: stanza.Wait, Condition: stanza.ServiceUnavailable}
	case errors.Is(err, ErrUnsupportedPacket):
		return stanza.Error{Type: stanza.Cancel, Condition: stanza.FeatureNotImplemented}
	}
	return stanza.Error{Type: stanza.Wait, Condition: stanza.InternalServerError}
}

// Condition is a shortcut for the wire name of the mapped condition.
func Condition(err error) string {
	return string(StanzaError(err).Condition)
}
