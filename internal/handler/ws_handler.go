package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
	ws "github.com/stemsi/exstem-academy/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt session over WebSocket.
type WSHandler struct {
	svc      *service.AssessmentService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(svc *service.AssessmentService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		svc:      svc,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AssessmentStream godoc
// WS /ws/v1/student/assessments/:test_id/stream?token=...
// Pushes a state event on every change, including each countdown tick,
// and accepts the taker's actions. The attempt must have been started.
func (h *WSHandler) AssessmentStream(c *gin.Context) {
	takerID := middleware.TakerID(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	states, stop, err := h.svc.Watch(takerID, testID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("taker_id", takerID).
		Str("test_id", testID.String()).
		Logger()
	wsLog.Info().Msg("Taker connected")

	out := ws.NewWriter(conn)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for state := range states {
			if err := out.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state}); err != nil {
				break
			}
		}
		// The session ended, the reader stopped watching or a write failed.
		// Closing the socket also ends the read loop below.
		_ = out.WriteTyped(ws.ClosedResponse{Event: ws.EventClosed})
		_ = out.Close(websocket.CloseNormalClosure, "session closed")
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(c.Request.Context(), out, wsLog, takerID, testID, &msg)
	}

	stop()
	<-pumpDone
}

// dispatch applies one client action. State changes reach the client
// through the watch pump; only errors and direct replies are written here.
func (h *WSHandler) dispatch(ctx context.Context, out *ws.Writer, wsLog zerolog.Logger, takerID string, testID uuid.UUID, msg *ws.RequestPayload) {
	var err error

	switch msg.Action {
	case ws.ActionSelect:
		if msg.Index == nil || msg.Option == "" {
			_ = out.WriteError(string(response.ErrValidation), "index and option are required")
			return
		}
		_, err = h.svc.SelectAnswer(takerID, testID, *msg.Index, msg.Option)
	case ws.ActionClear:
		if msg.Index == nil {
			_ = out.WriteError(string(response.ErrValidation), "index is required")
			return
		}
		_, err = h.svc.ClearAnswer(takerID, testID, *msg.Index)
	case ws.ActionNavigate:
		if msg.Index == nil {
			_ = out.WriteError(string(response.ErrValidation), "index is required")
			return
		}
		_, err = h.svc.Navigate(takerID, testID, *msg.Index)
	case ws.ActionNext:
		_, err = h.svc.Next(takerID, testID)
	case ws.ActionPrevious:
		_, err = h.svc.Previous(takerID, testID)
	case ws.ActionSubmit:
		h.handleSubmit(ctx, out, wsLog, takerID, testID)
		return
	case ws.ActionReviewEnter:
		_, err = h.svc.EnterReview(takerID, testID)
	case ws.ActionReviewExit:
		_, err = h.svc.ExitReview(takerID, testID)
	case ws.ActionPing:
		_ = out.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = out.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		h.writeDomainError(out, wsLog, err)
	}
}

func (h *WSHandler) handleSubmit(ctx context.Context, out *ws.Writer, wsLog zerolog.Logger, takerID string, testID uuid.UUID) {
	submitted, state, err := h.svc.Submit(ctx, takerID, testID)
	if err != nil && !errors.Is(err, model.ErrPersist) {
		h.writeDomainError(out, wsLog, err)
		return
	}

	if submitted {
		ev := wsLog.Info().Bool("persist_pending", state.PersistPending)
		if state.Result != nil {
			ev = ev.Int("score", state.Result.Score).Int("total", state.Result.Total)
		}
		ev.Msg("Attempt submitted over WebSocket")
	}

	_ = out.WriteTyped(ws.SubmittedResponse{
		Event:          ws.EventSubmitted,
		Submitted:      submitted,
		PersistPending: state.PersistPending,
	})
}

func (h *WSHandler) writeDomainError(out *ws.Writer, wsLog zerolog.Logger, err error) {
	_, code := classify(err)
	if code == response.ErrInternal {
		wsLog.Error().Err(err).Msg("Action failed")
	}
	_ = out.WriteError(string(code), response.GetMessage(code))
}
