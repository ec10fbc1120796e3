package proxy

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// RelayMode is how a backend response is copied back to the client. It is
// decided once per response by classify.
type RelayMode int

const (
	Buffered RelayMode = iota
	Streaming
	NoContent
)

func (m RelayMode) String() string {
	switch m {
	case Streaming:
		return "streaming"
	case NoContent:
		return "no_content"
	default:
		return "buffered"
	}
}

func classify(resp *http.Response) RelayMode {
	if resp.StatusCode == http.StatusNoContent {
		return NoContent
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil && mediaType == "text/event-stream" {
		return Streaming
	}
	return Buffered
}

const streamChunkSize = 32 << 10

// relayStream copies the backend body to the client chunk by chunk, flushing
// after each one. It returns when the backend finishes or fails, or when a
// write to the client fails; the caller then closes the backend body.
func relayStream(w http.ResponseWriter, resp *http.Response, logger *slog.Logger) {
	h := w.Header()
	h.Set("Content-Type", resp.Header.Get("Content-Type"))
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	if err := flush(rc); err != nil {
		logger.Debug("client gone before stream started", "error", err)
		return
	}

	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				logger.Debug("client disconnected during stream", "error", err)
				return
			}
			if err := flush(rc); err != nil {
				logger.Debug("client disconnected during stream", "error", err)
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("backend stream ended with error", "error", readErr)
			}
			return
		}
	}
}

func flush(rc *http.ResponseController) error {
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func relayNoContent(w http.ResponseWriter, resp *http.Response) {
	copyResponseHeaders(w.Header(), resp.Header)
	stripHopByHop(w.Header())
	w.WriteHeader(http.StatusNoContent)
}

func relayBuffered(w http.ResponseWriter, resp *http.Response, logger *slog.Logger) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("failed to read backend response", "error", err)
		writeDetail(w, http.StatusBadGateway, backendUnavailable)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	stripHopByHop(w.Header())
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}
