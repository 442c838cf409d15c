package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotside-studios/davi-nfc-service/nfcservice"
	"github.com/dotside-studios/davi-nfc-service/protocol"
)

// statusPayload snapshots the service status for clients.
func statusPayload(svc *nfcservice.Service) protocol.StatusPayload {
	// Availability may start a status query, so read Status after it.
	available, enabled := svc.Availability(), svc.Enabled()
	payload := protocol.StatusPayload{
		Status:    svc.Status().String(),
		HasPlugin: svc.HasPlugin(),
	}
	if v, known := available.Bool(); known {
		payload.Available = &v
	}
	if v, known := enabled.Bool(); known {
		payload.Enabled = &v
	}
	for _, k := range svc.Capabilities().Kinds() {
		payload.Capabilities = append(payload.Capabilities, string(k))
	}
	return payload
}

func mimeTypesPayload(svc *nfcservice.Service) protocol.MimeTypesPayload {
	values := svc.MimeTypes().Values()
	if values == nil {
		values = []string{}
	}
	return protocol.MimeTypesPayload{MimeTypes: values}
}

// addMimeType appends the lowercased mimeType unless the list already
// holds it. It reports whether the list changed.
func addMimeType(svc *nfcservice.Service, mimeType string) bool {
	return svc.MimeTypes().AddIfAbsent(strings.ToLower(strings.TrimSpace(mimeType)))
}

// decodeMimeType reads and validates a MimeTypeRequest payload.
func (s *Server) decodeMimeType(req protocol.WebSocketRequest) (string, error) {
	var body protocol.MimeTypeRequest
	if err := protocol.DecodePayload(req.Payload, &body); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	body.MimeType = strings.TrimSpace(body.MimeType)
	if err := s.validate.Struct(body); err != nil {
		return "", fmt.Errorf("mimeType is required")
	}
	return body.MimeType, nil
}

// registerServiceHandlers registers the websocket request handlers backed
// by the service.
func (s *Server) registerServiceHandlers() {
	svc := s.service

	s.Handle(protocol.WSTypeGetStatus, func(ctx context.Context, conn *Conn, req protocol.WebSocketRequest) error {
		return conn.Respond(req, statusPayload(svc))
	})

	s.Handle(protocol.WSTypeRefreshStatus, func(ctx context.Context, conn *Conn, req protocol.WebSocketRequest) error {
		svc.Refresh()
		return conn.Respond(req, statusPayload(svc))
	})

	s.Handle(protocol.WSTypeListMimeTypes, func(ctx context.Context, conn *Conn, req protocol.WebSocketRequest) error {
		return conn.Respond(req, mimeTypesPayload(svc))
	})

	s.Handle(protocol.WSTypeAddMimeType, func(ctx context.Context, conn *Conn, req protocol.WebSocketRequest) error {
		mimeType, err := s.decodeMimeType(req)
		if err != nil {
			conn.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
			return err
		}
		addMimeType(svc, mimeType)
		return conn.Respond(req, mimeTypesPayload(svc))
	})

	s.Handle(protocol.WSTypeRemoveMimeType, func(ctx context.Context, conn *Conn, req protocol.WebSocketRequest) error {
		mimeType, err := s.decodeMimeType(req)
		if err != nil {
			conn.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
			return err
		}
		if svc.MimeTypes().Remove(mimeType) == 0 {
			err := fmt.Errorf("mime type %q is not registered", mimeType)
			conn.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
			return err
		}
		return conn.Respond(req, mimeTypesPayload(svc))
	})
}
