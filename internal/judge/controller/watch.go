package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/model"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/response"
)

const (
	watchPollInterval = 250 * time.Millisecond
	watchWriteWait    = 5 * time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only progress data, same as the poll endpoint.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Watch streams progress records for one submission over a websocket until
// the submission reaches a terminal state or the record disappears.
func (h *JudgeController) Watch(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	record, err := h.judgeService.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reads are only consumed to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(rec model.Record) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
		if err := conn.WriteJSON(rec); err != nil {
			return false
		}
		return true
	}

	if !send(record) {
		return
	}
	if record.Terminal() {
		closeNormally(conn, "")
		return
	}
	last := recordFingerprint(record)

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, err := h.judgeService.Get(ctx, submissionID)
			if err != nil {
				if appErr.GetCode(err) == appErr.SubmissionNotFound {
					closeNormally(conn, "submission discarded")
					return
				}
				logger.Warn(ctx, "watch poll failed", zap.Error(err))
				continue
			}
			if fp := recordFingerprint(rec); fp != last {
				if !send(rec) {
					return
				}
				last = fp
			}
			if rec.Terminal() {
				closeNormally(conn, "")
				return
			}
		}
	}
}

func recordFingerprint(rec model.Record) string {
	return fmt.Sprintf("%s/%d/%d", rec.State, rec.CurrentCase, rec.FinishedAt)
}

func closeNormally(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}
