package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/engine"
)

// handleAnalyzeStream runs an analysis and streams its events via
// Server-Sent Events. Validation and admission errors reject the
// request with a JSON status before any stream bytes are written;
// after the stream opens, failures arrive as error events.
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	domainID, ok := s.domainID(w, r)
	if !ok {
		return
	}

	// Checked before Prepare: admission reserves the domain's run slot,
	// and only Execute releases it. A writer that cannot stream must be
	// rejected while no slot is held.
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	run, err := s.eng.Prepare(r.Context(), domainID)
	if err != nil {
		s.writePrepareError(w, err)
		return
	}
	run.OverrideLocation(r.URL.Query().Get("location"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Initial comment to establish the stream before the first event.
	fmt.Fprintf(w, ": analysis started for domain %d\n\n", domainID)
	flusher.Flush()

	sink := engine.SinkFunc(func(ev engine.Event) {
		frame, err := ev.MarshalFrame()
		if err != nil {
			zap.L().Error("marshal event failed", zap.Error(err))
			return
		}
		if _, err := w.Write(frame); err != nil {
			// Client is gone; the run context tears the rest down.
			return
		}
		flusher.Flush()
	})

	if err := run.Execute(r.Context(), sink); err != nil {
		if r.Context().Err() != nil {
			zap.L().Info("stream client disconnected", zap.Int64("domain_id", domainID))
			return
		}
		zap.L().Error("analysis run failed", zap.Int64("domain_id", domainID), zap.Error(err))
		if frame, merr := engine.FatalErrorEvent("analysis failed").MarshalFrame(); merr == nil {
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
