package server

import (
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// AccessControl guards session activation and per-node operations.
// Methods run on the loop goroutine and must not block.
type AccessControl interface {
	// Activate admits or rejects a session presenting token. A non-nil
	// error rejects the activation.
	Activate(session Session, token engine.IdentityToken) error
	// SessionClosed is informational.
	SessionClosed(session Session)

	AllowRead(session Session, node ua.NodeID) bool
	AllowWrite(session Session, node ua.NodeID) bool
	AllowCall(session Session, method ua.NodeID) bool
	AllowAddNode(session Session, parent ua.NodeID) bool
	AllowDeleteNode(session Session, node ua.NodeID) bool
}

// AllowAll admits every session and permits every operation.
type AllowAll struct{}

func (AllowAll) Activate(Session, engine.IdentityToken) error { return nil }
func (AllowAll) SessionClosed(Session)                        {}
func (AllowAll) AllowRead(Session, ua.NodeID) bool            { return true }
func (AllowAll) AllowWrite(Session, ua.NodeID) bool           { return true }
func (AllowAll) AllowCall(Session, ua.NodeID) bool            { return true }
func (AllowAll) AllowAddNode(Session, ua.NodeID) bool         { return true }
func (AllowAll) AllowDeleteNode(Session, ua.NodeID) bool      { return true }

// TokenAccessControl admits sessions presenting a valid signed token
// (JWT) as their issued identity. Operation checks delegate to Inner.
type TokenAccessControl struct {
	// Key verifies HMAC-signed tokens. For other signing schemes set
	// Keyfunc instead.
	Key     []byte
	Keyfunc jwt.Keyfunc

	// Issuer and Audience, when set, must match the token claims.
	Issuer   string
	Audience string

	// Inner handles the per-operation checks; nil means allow-all.
	Inner AccessControl
}

func (t *TokenAccessControl) inner() AccessControl {
	if t.Inner == nil {
		return AllowAll{}
	}
	return t.Inner
}

// Activate validates the issued token's signature and claims.
func (t *TokenAccessControl) Activate(session Session, token engine.IdentityToken) error {
	if token.Kind != engine.IdentityIssuedToken {
		return errors.AccessDenied("issued identity token required")
	}

	keyfunc := t.Keyfunc
	if keyfunc == nil {
		key := t.Key
		keyfunc = func(*jwt.Token) (any, error) { return key, nil }
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if t.Keyfunc == nil {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}
	if t.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.Audience))
	}

	parsed, err := jwt.Parse(string(token.TokenData), keyfunc, opts...)
	if err != nil {
		return errors.New(errors.PhaseSession, errors.KindAccessDenied).
			Cause(err).
			Detail("identity token rejected").
			Build()
	}
	if !parsed.Valid {
		return errors.AccessDenied("identity token invalid")
	}
	return t.inner().Activate(session, token)
}

func (t *TokenAccessControl) SessionClosed(session Session) { t.inner().SessionClosed(session) }

func (t *TokenAccessControl) AllowRead(session Session, node ua.NodeID) bool {
	return t.inner().AllowRead(session, node)
}

func (t *TokenAccessControl) AllowWrite(session Session, node ua.NodeID) bool {
	return t.inner().AllowWrite(session, node)
}

func (t *TokenAccessControl) AllowCall(session Session, method ua.NodeID) bool {
	return t.inner().AllowCall(session, method)
}

func (t *TokenAccessControl) AllowAddNode(session Session, parent ua.NodeID) bool {
	return t.inner().AllowAddNode(session, parent)
}

func (t *TokenAccessControl) AllowDeleteNode(session Session, node ua.NodeID) bool {
	return t.inner().AllowDeleteNode(session, node)
}

// accessControlFuncs adapts the configured AccessControl to the engine
// callback table.
func (s *Server) accessControlFuncs() engine.AccessControlFuncs {
	ac := s.cfg.AccessControl
	decodeNode := func(raw engine.RawNodeID) (ua.NodeID, bool) {
		id, err := ua.DecodeNodeID(raw)
		return id, err == nil
	}
	return engine.AccessControlFuncs{
		ActivateSession: func(session engine.SessionInfo, token engine.IdentityToken) uint32 {
			if err := ac.Activate(decodeSession(session), token); err != nil {
				s.log.Warn("session rejected",
					zap.String("user", session.ClientUserID),
					zap.Error(err))
				return uint32(ua.StatusBadIdentityTokenRejected)
			}
			return engine.StatusGood
		},
		CloseSession: func(session engine.SessionInfo) {
			ac.SessionClosed(decodeSession(session))
		},
		AllowRead: func(session engine.SessionInfo, nodeID engine.RawNodeID) bool {
			node, ok := decodeNode(nodeID)
			return ok && ac.AllowRead(decodeSession(session), node)
		},
		AllowWrite: func(session engine.SessionInfo, nodeID engine.RawNodeID) bool {
			node, ok := decodeNode(nodeID)
			return ok && ac.AllowWrite(decodeSession(session), node)
		},
		AllowCall: func(session engine.SessionInfo, methodID engine.RawNodeID) bool {
			method, ok := decodeNode(methodID)
			return ok && ac.AllowCall(decodeSession(session), method)
		},
		AllowAddNode: func(session engine.SessionInfo, parentID engine.RawNodeID) bool {
			parent, ok := decodeNode(parentID)
			return ok && ac.AllowAddNode(decodeSession(session), parent)
		},
		AllowDeleteNode: func(session engine.SessionInfo, nodeID engine.RawNodeID) bool {
			node, ok := decodeNode(nodeID)
			return ok && ac.AllowDeleteNode(decodeSession(session), node)
		},
	}
}
