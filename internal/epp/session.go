package epp

import (
	"context"
	"errors"
	"fmt"

	"regcore/internal/registrar"
)

func (e *Engine) login(ctx context.Context, sess *Session, req *Request) (*Response, error) {
	if sess.LoggedIn() {
		return nil, NewError(CodeUseError, "Already logged in")
	}
	l := req.Login
	if l.ClID == "" || l.Password == "" {
		return nil, NewError(CodeRequiredMissing, "")
	}
	if l.Version != "" && l.Version != "1.0" {
		return nil, NewError(CodeUnimplementedVer, "")
	}
	if l.Lang != "" && l.Lang != "en" {
		return nil, NewError(CodeUnimplementedOption, "Unsupported language")
	}
	if l.NewPW != "" {
		return nil, NewError(CodeUnimplementedOption, "Password change is not supported at login")
	}

	id, err := e.auth.Authenticate(ctx, l.ClID, l.Password)
	if errors.Is(err, registrar.ErrInvalidCredentials) {
		e.logger.WarnContext(ctx, "epp login failed", "session_id", sess.ID.String(), "remote", sess.RemoteIP, "clid", l.ClID)
		return nil, NewError(CodeAuthentication, "")
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", l.ClID, err)
	}

	sess.RegistrarID = id
	sess.CLID = l.ClID
	e.logger.InfoContext(ctx, "epp login", "session_id", sess.ID.String(), "remote", sess.RemoteIP, "clid", l.ClID)
	return &Response{Code: CodeSuccess}, nil
}

func (e *Engine) logout(context.Context, *Session, *Request) (*Response, error) {
	return &Response{Code: CodeSuccessEndSession}, nil
}
