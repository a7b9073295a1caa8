package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"wabridge/internal/constants"
	apperrors "wabridge/internal/errors"
	"wabridge/internal/models"
	"wabridge/internal/validation"
	"wabridge/pkg/whatsapp"
	watypes "wabridge/pkg/whatsapp/types"
)

// Supervisor is the connection-facing surface the HTTP handlers need.
type Supervisor interface {
	Snapshot() models.SessionInfo
	SendText(ctx context.Context, to, text string) (string, error)
	SendMedia(ctx context.Context, to string, media *watypes.MediaAttachment) (string, error)
	ResolveNumbers(ctx context.Context, phones []string) (map[string]models.LookupResult, int, error)
}

type sendRequest struct {
	To string `json:"to"`
	// Message and Text are aliases; either key carries the body.
	Message   string `json:"message"`
	Text      string `json:"text"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	Caption   string `json:"caption"`
}

// body returns the text body under whichever key the client used.
func (r *sendRequest) body() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Text
}

// caption returns the media caption, falling back to the text body.
func (r *sendRequest) caption() string {
	if r.Caption != "" {
		return r.Caption
	}
	return r.body()
}

type resolveRequest struct {
	Phones []string `json:"phones"`
}

type statusResponse struct {
	Status string `json:"status"`
	Phone  string `json:"phone,omitempty"`
	HasQR  bool   `json:"has_qr"`
	Error  string `json:"error,omitempty"`
}

type qrResponse struct {
	Available bool   `json:"available"`
	QRDataURL string `json:"qr_data_url,omitempty"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := s.supervisor.Snapshot()
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status: string(info.State),
			Phone:  info.ConnectedPhone,
			HasQR:  info.PairingCode != "",
			Error:  info.LastError,
		})
	}
}

func (s *Server) handleQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := s.supervisor.Snapshot()
		if info.PairingCode == "" {
			s.writeJSON(w, http.StatusOK, qrResponse{Available: false})
			return
		}

		dataURL, err := whatsapp.QRDataURL(info.PairingCode)
		if err != nil {
			s.logger.WithError(err).Error("Failed to render pairing code")
			s.writeError(w, http.StatusInternalServerError, "Failed to render QR code")
			return
		}

		s.writeJSON(w, http.StatusOK, qrResponse{Available: true, QRDataURL: dataURL})
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		if err := validation.ValidateRecipient(req.To); err != nil {
			s.writeError(w, http.StatusBadRequest, apperrors.UserMessage(err))
			return
		}

		var (
			messageID string
			err       error
		)
		if req.MediaURL != "" {
			var kind watypes.MediaKind
			if req.MediaType != "" {
				var ok bool
				if kind, ok = parseMediaKind(req.MediaType); !ok {
					s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid media_type %q", req.MediaType))
					return
				}
			}

			var media *watypes.MediaAttachment
			media, err = s.fetchMedia(r.Context(), req.MediaURL, req.caption())
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if kind != "" {
				media.Kind = kind
			}
			messageID, err = s.supervisor.SendMedia(r.Context(), req.To, media)
		} else {
			if err := validation.ValidateMessageText(req.body()); err != nil {
				s.writeError(w, http.StatusBadRequest, apperrors.UserMessage(err))
				return
			}
			messageID, err = s.supervisor.SendText(r.Context(), req.To, req.body())
		}

		if err != nil {
			status := apperrors.HTTPStatus(err, http.StatusInternalServerError)
			s.writeError(w, status, apperrors.UserMessage(err))
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"messageId": messageID,
		})
	}
}

func (s *Server) handleResolveNumbers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		if len(req.Phones) == 0 {
			s.writeError(w, http.StatusBadRequest, "Missing 'phones' array")
			return
		}
		if len(req.Phones) > constants.MaxResolveBatchSize {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Too many numbers, maximum is %d", constants.MaxResolveBatchSize))
			return
		}

		resolved, total, err := s.supervisor.ResolveNumbers(r.Context(), req.Phones)
		if err != nil {
			status := apperrors.HTTPStatus(err, http.StatusServiceUnavailable)
			s.writeError(w, status, apperrors.UserMessage(err))
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"resolved":       resolved,
			"total_mappings": total,
		})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"ok":     true,
			"uptime": int(time.Since(s.startTime).Seconds()),
		}
		if s.cfg.BridgeURL != "" {
			resp["bridge_url"] = s.cfg.BridgeURL
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	s.writeError(w, http.StatusNotFound, "Not found")
}

// fetchMedia downloads the attachment behind a URL, bounded by the media
// size cap, and classifies it by content type.
func (s *Server) fetchMedia(ctx context.Context, rawURL, caption string) (*watypes.MediaAttachment, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid media_url")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(constants.DefaultMediaDownloadTimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid media_url")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	maxBytes := int64(constants.DefaultMaxMediaDownloadMB) << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("media exceeds %dMB limit", constants.DefaultMaxMediaDownloadMB)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media_url returned no content")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	fileName := path.Base(parsed.Path)
	if fileName == "." || fileName == "/" || fileName == "" {
		fileName = "attachment"
	}

	return &watypes.MediaAttachment{
		Data:     data,
		MimeType: mimeType,
		FileName: fileName,
		Caption:  caption,
		Kind:     mediaKindFor(mimeType),
	}, nil
}

// parseMediaKind maps a client-supplied media_type to the protocol variant.
func parseMediaKind(mediaType string) (watypes.MediaKind, bool) {
	switch watypes.MediaKind(strings.ToLower(mediaType)) {
	case watypes.MediaKindImage:
		return watypes.MediaKindImage, true
	case watypes.MediaKindVideo:
		return watypes.MediaKindVideo, true
	case watypes.MediaKindAudio:
		return watypes.MediaKindAudio, true
	case watypes.MediaKindDocument:
		return watypes.MediaKindDocument, true
	default:
		return "", false
	}
}

func mediaKindFor(mimeType string) watypes.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return watypes.MediaKindImage
	case strings.HasPrefix(mimeType, "video/"):
		return watypes.MediaKindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return watypes.MediaKindAudio
	default:
		return watypes.MediaKindDocument
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
